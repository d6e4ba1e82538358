package models

import (
	"context"

	"github.com/PizzaHomicide/acectl/internal/config"
	"github.com/PizzaHomicide/acectl/internal/hostplayer"
	"github.com/PizzaHomicide/acectl/internal/log"
	"github.com/PizzaHomicide/acectl/internal/session"
	kb "github.com/PizzaHomicide/acectl/internal/ui/tui/keybindings"
	tea "github.com/charmbracelet/bubbletea"
)

const sessionEventBuffer = 64

// Connector creates sessions
type Connector func(ctx context.Context) (*session.Handle, error)

// HistoryStore persists the recent content list, most recent first
type HistoryStore func(recent []string) error

// AppModel is the main application model that coordinates all child models.  It is the high level wrapper.
type AppModel struct {
	connect       Connector
	store         HistoryStore
	player        *hostplayer.Playlist
	activeModal   Modal // Track the current active 'modal overlay' if any
	width, height int

	// Session state.  events is fed by a listener attached to the handle and drained by waitForSessionEvent.
	handle   *session.Handle
	listener session.ListenerID
	events   chan session.Event
	gen      uint64 // Bumped per session so events of a dropped one are ignored
	done     chan struct{}

	// Models used for various views
	consoleModel *ConsoleModel
	historyModel *HistoryModel
	helpModel    *HelpModel
}

// NewAppModel creates a new instance of the main application model.  player may be nil.
func NewAppModel(cfg *config.Config, rt *session.Runtime, player *hostplayer.Playlist) *AppModel {
	var opts []session.Option
	var recorder Recorder
	if player != nil {
		opts = append(opts, session.WithHostPlayer(player))
		recorder = player
	}
	connect := func(ctx context.Context) (*session.Handle, error) {
		return session.New(ctx, rt, opts...)
	}
	store := func(recent []string) error {
		return config.UpdateConfig(func(conf *config.Config) {
			conf.Console.Recent = recent
		})
	}

	m := newAppModel(connect, store, player, recorder)
	// Oldest first so the most recent ends up on top
	for i := len(cfg.Console.Recent) - 1; i >= 0; i-- {
		m.historyModel.Add(cfg.Console.Recent[i])
	}
	return m
}

func newAppModel(connect Connector, store HistoryStore, player *hostplayer.Playlist, recorder Recorder) *AppModel {
	return &AppModel{
		connect:      connect,
		store:        store,
		player:       player,
		activeModal:  ModalNone,
		done:         make(chan struct{}),
		consoleModel: NewConsoleModel(recorder),
		historyModel: NewHistoryModel(),
		helpModel:    NewHelpModel(ViewConsole),
	}
}

func (m *AppModel) Init() tea.Cmd {
	log.Info("Initialising acectl TUI")
	return tea.Batch(m.connectSession(), m.waitForPlayback())
}

// Close drops the session.  Safe to call more than once.
func (m *AppModel) Close() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
	m.dropSession()
}

// Update handles messages and updates the models as appropriate
func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch kb.GetActionByKey(msg, kb.ContextGlobal) {
		case kb.ActionQuit:
			log.Info("Quit command received.  Shutting down...")
			m.Close()
			return m, tea.Quit
		case kb.ActionToggleHelp:
			log.Debug("Help requested", "active_modal", m.activeModal)
			// Disable/toggle modal if one already active
			if m.activeModal == ModalHelp {
				m.activeModal = ModalNone
				return m, nil
			}
			helpContext := ViewConsole
			if m.activeModal == ModalHistory {
				helpContext = ViewHistory
			}
			m.helpModel = NewHelpModel(helpContext)
			m.helpModel.Resize(m.width, m.height)
			m.activeModal = ModalHelp
			return m, m.helpModel.Init()
		case kb.ActionBack:
			// Without a modal esc falls through to the console
			if m.activeModal != ModalNone {
				m.activeModal = ModalNone
				return m, nil
			}
		}
		if m.activeModal == ModalHistory && kb.GetActionByKey(msg, kb.ContextHistory) == kb.ActionBack {
			m.activeModal = ModalNone
			return m, nil
		}

	case tea.WindowSizeMsg:
		log.Debug("Window size changed", "old_width", m.width, "new_width", msg.Width, "old_height", m.height, "new_height", msg.Height)
		m.width = msg.Width
		m.height = msg.Height

		// Propagate new window size to all views so they are aware and can render correctly
		m.consoleModel.Resize(msg.Width, msg.Height)
		m.historyModel.Resize(msg.Width, msg.Height)
		m.helpModel.Resize(msg.Width, msg.Height)
		return m, nil

	case SessionReadyMsg:
		return m, m.sessionReady(msg)

	case SessionEventMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.consoleModel.Update(msg)
		return m, m.waitForSessionEvent()

	case PlaybackMsg:
		m.consoleModel.Update(msg)
		return m, m.waitForPlayback()

	case CommandResultMsg:
		m.consoleModel.Update(msg)
		if msg.Command == "load" && msg.Err == nil {
			m.historyModel.Add(msg.Content)
			return m, m.saveHistory()
		}
		return m, nil

	case OpenHistoryMsg:
		m.activeModal = ModalHistory
		return m, m.historyModel.Init()

	case HistorySelectMsg:
		m.activeModal = ModalNone
		_, cmd := m.consoleModel.Update(msg)
		return m, cmd

	case ReconnectMsg:
		log.Info("Reconnecting to the engine")
		m.dropSession()
		return m, m.connectSession()

	case HandledMsg:
		log.Trace("Key handled", "reason", msg.Reason)
		return m, nil
	}

	// Prioritise delegating messages to a modal if one is active
	switch m.activeModal {
	case ModalHelp:
		_, cmd := m.helpModel.Update(msg)
		return m, cmd
	case ModalHistory:
		_, cmd := m.historyModel.Update(msg)
		return m, cmd
	}

	_, cmd := m.consoleModel.Update(msg)
	return m, cmd
}

func (m *AppModel) View() string {
	// If there is an active modal it takes precedence
	switch m.activeModal {
	case ModalHelp:
		return m.helpModel.View()
	case ModalHistory:
		return m.historyModel.View()
	}
	return m.consoleModel.View()
}

// saveHistory persists the recent content list off the UI goroutine
func (m *AppModel) saveHistory() tea.Cmd {
	if m.store == nil {
		return nil
	}
	store := m.store
	recent := append([]string(nil), m.historyModel.Entries()...)
	return func() tea.Msg {
		if err := store(recent); err != nil {
			log.Warn("Error saving recent content to config.  It will be missing when acectl opens next", "error", err)
		}
		return nil
	}
}

func (m *AppModel) connectSession() tea.Cmd {
	connect := m.connect
	return func() tea.Msg {
		h, err := connect(context.Background())
		return SessionReadyMsg{Handle: h, Err: err}
	}
}

func (m *AppModel) sessionReady(msg SessionReadyMsg) tea.Cmd {
	if msg.Err != nil {
		log.Error("Failed to connect to the engine", "error", msg.Err)
		m.consoleModel.Update(CommandResultMsg{Command: "connect", Err: msg.Err})
		return nil
	}

	select {
	case <-m.done:
		// Closed while connecting
		msg.Handle.Release()
		return nil
	default:
	}

	events := make(chan session.Event, sessionEventBuffer)
	id, err := msg.Handle.Events().Attach(func(ev session.Event) {
		select {
		case events <- ev:
		default:
			log.Warn("Dropping session event, the console is not keeping up", "kind", ev.Kind.String())
		}
	})
	if err != nil {
		log.Error("Failed to listen to session events", "error", err)
		msg.Handle.Release()
		m.consoleModel.Update(CommandResultMsg{Command: "connect", Err: err})
		return nil
	}

	log.Info("Session ready", "session_id", msg.Handle.ID())
	m.dropSession()
	m.gen++
	m.handle, m.listener, m.events = msg.Handle, id, events
	m.consoleModel.SetController(msg.Handle)
	m.consoleModel.Update(CommandResultMsg{Command: "connect", Detail: msg.Handle.ID().String()})

	version := func() tea.Msg {
		v, err := msg.Handle.EngineVersion(context.Background())
		return CommandResultMsg{Command: "version", Detail: v, Err: err}
	}
	return tea.Batch(m.waitForSessionEvent(), version)
}

// dropSession detaches the console from the current session and releases it
func (m *AppModel) dropSession() {
	if m.handle == nil {
		return
	}
	m.handle.Events().Detach(m.listener)
	m.handle.Release()
	m.handle, m.events = nil, nil
	m.consoleModel.SetController(nil)
}

// waitForSessionEvent returns a command delivering the next session event.  It gives up once the model is closed.
func (m *AppModel) waitForSessionEvent() tea.Cmd {
	events, done, gen := m.events, m.done, m.gen
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case ev := <-events:
			return SessionEventMsg{Event: ev, gen: gen}
		case <-done:
			return nil
		}
	}
}

// waitForPlayback returns a command delivering the next event of the external player, if there is one
func (m *AppModel) waitForPlayback() tea.Cmd {
	if m.player == nil {
		return nil
	}
	source, ok := m.player.Output().(interface {
		Events() <-chan hostplayer.PlaybackEvent
	})
	if !ok {
		return nil
	}
	events, done := source.Events(), m.done
	return func() tea.Msg {
		select {
		case ev := <-events:
			return PlaybackMsg{Event: ev}
		case <-done:
			return nil
		}
	}
}
