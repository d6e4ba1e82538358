package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PizzaHomicide/acectl/internal/content"
	"github.com/PizzaHomicide/acectl/internal/hostplayer"
	"github.com/PizzaHomicide/acectl/internal/log"
	"github.com/PizzaHomicide/acectl/internal/session"
	"github.com/PizzaHomicide/acectl/internal/ui/tui/components"
	kb "github.com/PizzaHomicide/acectl/internal/ui/tui/keybindings"
	"github.com/PizzaHomicide/acectl/internal/ui/tui/styles"
	"github.com/PizzaHomicide/acectl/internal/ui/tui/util"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	maxLogLines   = 500
	liveSeekStep  = 30
	commandLimit  = 30 * time.Second
	statusLabelW  = 10
	statusPanelH  = 9 // status rows plus borders
	consoleChrome = 6 // header, input, footer and spacing
)

// Controller is the part of a session the console drives
type Controller interface {
	State() session.State
	Ad() (session.AdContext, bool)
	Live() (session.LivePosition, bool)

	Load(ctx context.Context, req session.LoadRequest) error
	Stop(ctx context.Context) error
	LiveSeek(ctx context.Context, pos int) error
	SkipAd(ctx context.Context) error
	RegisterAdShown(ctx context.Context, id string) error
	RegisterAdClosed(ctx context.Context, id string) error
	RequestPauseAd(ctx context.Context) error
	ActivateVideoClick(ctx context.Context, single bool) error
	AdVolume(ctx context.Context) (int, error)
	ContentIDByIndex(ctx context.Context, index int) (string, error)
	EngineVersion(ctx context.Context) (string, error)
}

// Recorder keeps the media items loaded through the console so they can be resolved by index later
type Recorder interface {
	Add(item session.MediaItem) int
}

type logLine struct {
	at   time.Time
	text string
	err  bool
}

// ConsoleModel is the main view.  It shows the session status and an event log, and turns keys into session commands.
type ConsoleModel struct {
	width, height int

	ctrl     Controller
	recorder Recorder
	now      func() time.Time

	input     textinput.Model
	inputMode bool

	state        session.State
	ad           *session.AdContext
	live         *session.LivePosition
	version      string
	playing      string
	playerStatus string
	progress     float64
	lastItem     int

	lines     []logLine
	logOffset int // Lines scrolled up from the bottom
}

// NewConsoleModel creates the console.  recorder may be nil.
func NewConsoleModel(recorder Recorder) *ConsoleModel {
	input := textinput.New()
	input.Placeholder = "content id, infohash, acestream:// or descriptor url"
	input.Width = 60
	input.Prompt = "> "

	return &ConsoleModel{
		recorder: recorder,
		now:      time.Now,
		input:    input,
		state:    session.NotLaunched,
		lastItem: -1,
	}
}

func (m *ConsoleModel) ViewType() View {
	return ViewConsole
}

func (m *ConsoleModel) Init() tea.Cmd {
	return nil
}

// SetController points the console at a session.  nil disconnects it.
func (m *ConsoleModel) SetController(ctrl Controller) {
	m.ctrl = ctrl
	m.version = ""
	m.refresh()
}

// InputActive reports whether keys are going to the content input
func (m *ConsoleModel) InputActive() bool {
	return m.inputMode
}

// Resize updates the dimensions
func (m *ConsoleModel) Resize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = max(10, width-8)
}

// Update handles messages
func (m *ConsoleModel) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.inputMode {
			return m, m.handleInputKeyMsg(msg)
		}
		return m, m.handleKeyMsg(msg)

	case SessionEventMsg:
		m.refresh()
		if msg.Event.Kind == session.EventPlaybackStarted {
			m.playing = msg.Event.PlaybackURL
		}
		if msg.Event.Kind == session.EventStateChanged && !msg.Event.To.Active() && msg.Event.To != session.NotLaunched {
			m.playing = ""
		}
		m.addLine(msg.Event.Time, describeEvent(msg.Event), msg.Event.Kind == session.EventError)

	case CommandResultMsg:
		m.refresh()
		if msg.Err != nil {
			m.addLine(m.now(), fmt.Sprintf("%s failed: %v", msg.Command, msg.Err), true)
			return m, nil
		}
		if msg.Command == "version" {
			m.version = msg.Detail
		}
		text := msg.Command + " ok"
		if msg.Detail != "" {
			text += ": " + msg.Detail
		}
		m.addLine(m.now(), text, false)

	case PlaybackMsg:
		m.applyPlayback(msg.Event)

	case HistorySelectMsg:
		return m, m.load(msg.Content, session.Async)
	}
	return m, nil
}

func (m *ConsoleModel) handleInputKeyMsg(msg tea.KeyMsg) tea.Cmd {
	switch kb.GetActionByKey(msg, kb.ContextContentInput) {
	case kb.ActionBack:
		m.inputMode = false
		m.input.Blur()
		m.input.SetValue("")
		return Handled("input:cancel")
	case kb.ActionSubmitContent:
		return m.submit(session.Async)
	case kb.ActionSubmitSync:
		return m.submit(session.Sync)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *ConsoleModel) submit(mode session.Mode) tea.Cmd {
	value := strings.TrimSpace(m.input.Value())
	m.inputMode = false
	m.input.Blur()
	m.input.SetValue("")
	if value == "" {
		return Handled("input:empty")
	}
	return m.load(value, mode)
}

func (m *ConsoleModel) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	switch kb.GetActionByKey(msg, kb.ContextConsole) {
	case kb.ActionEnterContent:
		m.inputMode = true
		return m.input.Focus()
	case kb.ActionOpenHistory:
		return func() tea.Msg { return OpenHistoryMsg{} }
	case kb.ActionReconnect:
		return func() tea.Msg { return ReconnectMsg{} }
	case kb.ActionStop:
		return m.run("stop", func(ctx context.Context, c Controller) (string, error) {
			return "", c.Stop(ctx)
		})
	case kb.ActionAdShown:
		id := m.adID()
		return m.run("ad shown", func(ctx context.Context, c Controller) (string, error) {
			return id, c.RegisterAdShown(ctx, id)
		})
	case kb.ActionAdClosed:
		id := m.adID()
		return m.run("ad closed", func(ctx context.Context, c Controller) (string, error) {
			return id, c.RegisterAdClosed(ctx, id)
		})
	case kb.ActionSkipAd:
		return m.run("skip ad", func(ctx context.Context, c Controller) (string, error) {
			return "", c.SkipAd(ctx)
		})
	case kb.ActionPauseAd:
		return m.run("pause ad", func(ctx context.Context, c Controller) (string, error) {
			return "", c.RequestPauseAd(ctx)
		})
	case kb.ActionVideoClick:
		return m.run("video click", func(ctx context.Context, c Controller) (string, error) {
			return "", c.ActivateVideoClick(ctx, true)
		})
	case kb.ActionAdVolume:
		return m.run("ad volume", func(ctx context.Context, c Controller) (string, error) {
			volume, err := c.AdVolume(ctx)
			return fmt.Sprintf("volume %d", volume), err
		})
	case kb.ActionEngineVersion:
		return m.run("version", func(ctx context.Context, c Controller) (string, error) {
			return c.EngineVersion(ctx)
		})
	case kb.ActionContentID:
		index := m.lastItem
		if index < 0 {
			m.addLine(m.now(), "content id failed: no infohash loaded yet", true)
			return Handled("content_id:none")
		}
		return m.run("content id", func(ctx context.Context, c Controller) (string, error) {
			return c.ContentIDByIndex(ctx, index)
		})
	case kb.ActionLiveSeekBack, kb.ActionLiveSeekLive:
		return m.liveSeek(kb.GetActionByKey(msg, kb.ContextConsole) == kb.ActionLiveSeekLive)
	case kb.ActionMoveUp:
		m.scroll(1)
		return Handled("log:up")
	case kb.ActionMoveDown:
		m.scroll(-1)
		return Handled("log:down")
	case kb.ActionPageUp:
		m.scroll(m.logHeight())
		return Handled("log:pgup")
	case kb.ActionPageDown:
		m.scroll(-m.logHeight())
		return Handled("log:pgdown")
	case kb.ActionMoveTop:
		m.scroll(len(m.lines))
		return Handled("log:top")
	case kb.ActionMoveBottom:
		m.logOffset = 0
		return Handled("log:bottom")
	}
	return nil
}

// load classifies input and issues the load.  Invalid input never reaches the session.
func (m *ConsoleModel) load(input string, mode session.Mode) tea.Cmd {
	id, err := content.Classify(input, content.Unsupported)
	if err != nil {
		m.addLine(m.now(), fmt.Sprintf("load failed: %v", err), true)
		return Handled("load:invalid")
	}
	if id.Type() == content.Infohash && m.recorder != nil {
		m.lastItem = m.recorder.Add(session.MediaItem{Infohash: id.Raw()})
	}

	log.Info("Loading content", "id", id.String(), "mode", mode.String())
	m.addLine(m.now(), fmt.Sprintf("loading %s (%s)", id, mode), false)

	req := session.LoadRequest{ID: id, Mode: mode}
	return m.runFor("load", input, func(ctx context.Context, c Controller) (string, error) {
		return "", c.Load(ctx, req)
	})
}

func (m *ConsoleModel) liveSeek(toEdge bool) tea.Cmd {
	if m.live == nil || !m.live.IsLive {
		m.addLine(m.now(), "live seek failed: no live position reported", true)
		return Handled("live_seek:none")
	}
	pos := max(m.live.First, m.live.Pos-liveSeekStep)
	if toEdge {
		pos = m.live.Last
	}
	return m.run("live seek", func(ctx context.Context, c Controller) (string, error) {
		return fmt.Sprintf("position %d", pos), c.LiveSeek(ctx, pos)
	})
}

func (m *ConsoleModel) run(command string, fn func(ctx context.Context, c Controller) (string, error)) tea.Cmd {
	return m.runFor(command, "", fn)
}

// runFor executes fn off the UI goroutine and reports the outcome as a CommandResultMsg
func (m *ConsoleModel) runFor(command, input string, fn func(ctx context.Context, c Controller) (string, error)) tea.Cmd {
	ctrl := m.ctrl
	if ctrl == nil {
		m.addLine(m.now(), command+" failed: not connected to the engine", true)
		return Handled(command + ":not_connected")
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandLimit)
		defer cancel()
		detail, err := fn(ctx, ctrl)
		if err != nil {
			log.Debug("Console command failed", "command", command, "error", err)
		}
		return CommandResultMsg{Command: command, Content: input, Detail: detail, Err: err}
	}
}

func (m *ConsoleModel) adID() string {
	if m.ad == nil {
		return ""
	}
	return m.ad.ID
}

// refresh reloads the status snapshot from the controller
func (m *ConsoleModel) refresh() {
	if m.ctrl == nil {
		m.state = session.NotLaunched
		m.ad, m.live = nil, nil
		return
	}
	m.state = m.ctrl.State()
	m.ad, m.live = nil, nil
	if ad, ok := m.ctrl.Ad(); ok {
		m.ad = &ad
	}
	if live, ok := m.ctrl.Live(); ok {
		m.live = &live
	}
}

func (m *ConsoleModel) applyPlayback(ev hostplayer.PlaybackEvent) {
	switch ev.Type {
	case hostplayer.PlaybackStarted:
		m.playerStatus = "playing"
		m.progress = 0
		m.addLine(m.now(), "player started", false)
	case hostplayer.PlaybackProgress:
		m.progress = ev.Progress
	case hostplayer.PlaybackEnded:
		m.playerStatus = "exited"
		m.addLine(m.now(), "player exited", false)
	case hostplayer.PlaybackError:
		m.playerStatus = "error"
		m.addLine(m.now(), fmt.Sprintf("player error: %v", ev.Error), true)
	}
}

func (m *ConsoleModel) addLine(at time.Time, text string, isErr bool) {
	m.lines = append(m.lines, logLine{at: at, text: text, err: isErr})
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
	if m.logOffset > 0 {
		// Keep the view anchored while scrolled up
		m.logOffset++
	}
	m.clampOffset()
}

func (m *ConsoleModel) scroll(delta int) {
	m.logOffset += delta
	m.clampOffset()
}

func (m *ConsoleModel) clampOffset() {
	limit := max(0, len(m.lines)-m.logHeight())
	m.logOffset = min(max(m.logOffset, 0), limit)
}

func (m *ConsoleModel) logHeight() int {
	return max(1, m.height-statusPanelH-consoleChrome)
}

// View renders the console
func (m *ConsoleModel) View() string {
	header := styles.Header(m.width, "acectl")

	var input string
	if m.inputMode {
		input = styles.Title.Render("Load: ") + m.input.View()
	} else {
		input = styles.Muted.Render("Press l to load content")
	}

	keys := components.ContextKeys(kb.ContextConsole,
		components.ActionHint{Action: kb.ActionEnterContent, Desc: "Load"},
		components.ActionHint{Action: kb.ActionStop, Desc: "Stop"},
		components.ActionHint{Action: kb.ActionSkipAd, Desc: "Skip ad"},
		components.ActionHint{Action: kb.ActionOpenHistory, Desc: "History"},
	)
	keys = append(keys, components.KeyBinding{Key: "ctrl+h", Desc: "Help"})
	footer := components.KeyBindingsBar(m.width, keys)

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		styles.ContentBox(max(20, m.width-2), m.renderStatus(), 0),
		m.renderLog(),
		"",
		input,
		footer,
	)
}

func (m *ConsoleModel) renderStatus() string {
	valueW := max(10, m.width-statusLabelW-6)

	version := m.version
	if version == "" {
		version = styles.Muted.Render("unknown")
	}
	playing := styles.Muted.Render("nothing")
	if m.playing != "" {
		playing = styles.Url.Render(util.TruncateString(m.playing, valueW))
	}
	player := m.playerStatus
	if player == "" {
		player = styles.Muted.Render("idle")
	} else if m.playerStatus == "playing" && m.progress > 0 {
		player = fmt.Sprintf("playing %.0f%%", m.progress)
	}

	rows := []string{
		components.Field("State", renderState(m.state), statusLabelW),
		components.Field("Engine", version, statusLabelW),
		components.Field("Stream", playing, statusLabelW),
		components.Field("Player", player, statusLabelW),
		components.Field("Ad", m.renderAd(), statusLabelW),
		components.Field("Live", m.renderLive(), statusLabelW),
	}
	return strings.Join(rows, "\n")
}

func (m *ConsoleModel) renderAd() string {
	if m.ad == nil {
		return styles.Muted.Render("none")
	}
	text := fmt.Sprintf("%s (%s)", m.ad.ID, m.ad.Status)
	if m.ad.Status == session.AdShown && m.ad.SkipOffset > 0 {
		remaining := m.ad.ShownAt.Add(m.ad.SkipOffset).Sub(m.now())
		if remaining > 0 {
			text += " skippable in " + util.FormatCountdown(remaining)
		} else {
			text += " skippable"
		}
	}
	return text
}

func (m *ConsoleModel) renderLive() string {
	if m.live == nil {
		return styles.Muted.Render("not live")
	}
	edge := ""
	if m.live.IsLive {
		edge = " live"
	}
	return fmt.Sprintf("%d [%d..%d]%s", m.live.Pos, m.live.First, m.live.Last, edge)
}

func (m *ConsoleModel) renderLog() string {
	height := m.logHeight()
	end := len(m.lines) - m.logOffset
	start := max(0, end-height)

	var b strings.Builder
	for i := start; i < end; i++ {
		line := m.lines[i]
		text := util.TruncateString(line.at.Format("15:04:05")+" "+line.text, max(10, m.width-2))
		if line.err {
			text = styles.ErrorText.Render(text)
		}
		b.WriteString(text)
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	return lipgloss.NewStyle().Height(height).Render(b.String())
}

func renderState(s session.State) string {
	switch {
	case s == session.Error:
		return styles.StateError.Render(s.String())
	case s.Active():
		return styles.StateActive.Render(s.String())
	default:
		return styles.StateIdle.Render(s.String())
	}
}

// describeEvent renders an event as one log line
func describeEvent(ev session.Event) string {
	prefix := fmt.Sprintf("#%d %s", ev.Serial, ev.Kind)
	switch ev.Kind {
	case session.EventStateChanged:
		return fmt.Sprintf("%s %s -> %s", prefix, ev.From, ev.To)
	case session.EventError:
		if ev.Err == nil {
			return prefix
		}
		return prefix + " " + ev.Err.Error()
	case session.EventAdParams:
		if ev.Ad == nil {
			return prefix
		}
		return fmt.Sprintf("%s %s skip after %s", prefix, ev.Ad.ID, util.FormatCountdown(ev.Ad.SkipOffset))
	case session.EventAdShownAck, session.EventAdClosedAck:
		if ev.Ad == nil {
			return prefix
		}
		return prefix + " " + ev.Ad.ID
	case session.EventURLShown:
		if ev.URL == nil {
			return prefix
		}
		return fmt.Sprintf("%s type=%d %s", prefix, int(ev.URL.Type), ev.URL.URL)
	case session.EventLivePosChanged:
		if ev.Live == nil {
			return prefix
		}
		return fmt.Sprintf("%s %d [%d..%d]", prefix, ev.Live.Pos, ev.Live.First, ev.Live.Last)
	case session.EventPlaybackStarted:
		return prefix + " " + ev.PlaybackURL
	case session.EventUserDataRequest:
		return prefix + " engine asked for user data"
	}
	return prefix
}
