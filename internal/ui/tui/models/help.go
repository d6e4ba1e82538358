package models

import (
	"strings"

	"github.com/PizzaHomicide/acectl/internal/ui/tui/components"
	kb "github.com/PizzaHomicide/acectl/internal/ui/tui/keybindings"
	"github.com/PizzaHomicide/acectl/internal/ui/tui/styles"
	"github.com/PizzaHomicide/acectl/internal/ui/tui/util"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// helpChrome is the height taken by the header, footer and box borders around the help text
const helpChrome = 10

// keySection is one block of key bindings on the help screen
type keySection struct {
	heading string
	context kb.ContextName
}

// helpTopic is what the help screen explains for one view
type helpTopic struct {
	title    string
	intro    []string
	sections []keySection
	// formats lists the content identifiers the view accepts, as pattern and detected type
	formats [][2]string
	outro   []string
}

var generalTopic = helpTopic{
	title: "General",
	intro: []string{"acectl is a terminal console for a streaming engine session."},
}

var helpTopics = map[View]helpTopic{
	ViewConsole: {
		title: "Session Console",
		intro: []string{
			"The console drives one engine session.",
			"The status panel shows the session state, the stream handed to the player, the current advertisement " +
				"and the live broadcast window. Every event the engine sends is written to the log below it, which " +
				"can be scrolled while new events keep arriving.",
			"Advertisement commands act on the advertisement shown in the status panel. An advertisement can only " +
				"be skipped once it was reported shown and its skip offset has passed.",
		},
		sections: []keySection{
			{heading: "Console", context: kb.ContextConsole},
			{heading: "Entering content", context: kb.ContextContentInput},
		},
		formats: [][2]string{
			{"acestream://<id> or 40 hex characters", "Player content id"},
			{"magnet link or 32 base32 characters", "Infohash"},
			{"url ending in .torrent or .acelive", "Descriptor url"},
			{"any other http(s) url", "Direct media url"},
		},
		outro: []string{
			"Loading asynchronously returns immediately and progress arrives as events. Loading synchronously " +
				"waits for the engine to accept the request, up to the command timeout.",
		},
	},
	ViewHistory: {
		title: "Recent Content",
		intro: []string{
			"Recent content lists what was loaded, most recent first.",
			"Type to filter the list and press Enter to load the selected entry again.",
		},
		sections: []keySection{{heading: "Recent content", context: kb.ContextHistory}},
	},
}

// HelpModel shows the help for the view it was opened from
type HelpModel struct {
	width, height int
	topic         helpTopic
	viewport      viewport.Model
}

// NewHelpModel creates the help screen for context
func NewHelpModel(context View) *HelpModel {
	topic, ok := helpTopics[context]
	if !ok {
		topic = generalTopic
	}
	return &HelpModel{
		topic:    topic,
		viewport: viewport.New(0, 0),
	}
}

func (m *HelpModel) ViewType() View {
	return ViewHelp
}

func (m *HelpModel) Init() tea.Cmd {
	if m.width > 0 && m.height > 0 {
		m.refresh()
	}
	return nil
}

func (m *HelpModel) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.viewport, cmd = m.viewport.Update(msg)
	case tea.KeyMsg:
		switch kb.GetActionByKey(msg, kb.ContextHelp) {
		case kb.ActionMoveUp, kb.ActionMoveDown, kb.ActionPageUp, kb.ActionPageDown:
			m.viewport, cmd = m.viewport.Update(msg)
		case kb.ActionMoveTop:
			m.viewport.GotoTop()
		case kb.ActionMoveBottom:
			m.viewport.GotoBottom()
		}
	}
	return m, cmd
}

func (m *HelpModel) Resize(width, height int) {
	m.width, m.height = width, height
	m.viewport.Width = max(1, width-4)
	m.viewport.Height = max(1, height-helpChrome)
	m.refresh()
}

func (m *HelpModel) refresh() {
	m.viewport.SetContent(m.topic.render(m.viewport.Width))
	m.viewport.GotoTop()
}

func (m *HelpModel) View() string {
	footer := append(
		components.ContextKeys(kb.ContextHelp,
			components.ActionHint{Action: kb.ActionMoveUp, Desc: "Up"},
			components.ActionHint{Action: kb.ActionMoveDown, Desc: "Down"},
			components.ActionHint{Action: kb.ActionPageDown, Desc: "Page"},
		),
		components.ContextKeys(kb.ContextGlobal, components.ActionHint{Action: kb.ActionBack, Desc: "Return"})...,
	)
	return lipgloss.JoinVertical(
		lipgloss.Left,
		styles.Header(m.width, "Help: "+m.topic.title),
		"",
		styles.ContentBox(m.width-2, m.viewport.View(), 1),
		"",
		components.KeyBindingsBar(m.width, footer),
	)
}

// render lays the topic out for the given text width.  Global keys come first and are not repeated per section.
func (t helpTopic) render(width int) string {
	paragraph := lipgloss.NewStyle().Width(width)
	var blocks []string

	blocks = append(blocks, styles.Label.Render(t.title))
	for _, p := range t.intro {
		blocks = append(blocks, paragraph.Render(p))
	}

	global := kb.ContextBindings[kb.ContextGlobal]
	seen := make(map[kb.Action]bool, len(global))
	for _, b := range global {
		seen[b.Action] = true
	}
	blocks = append(blocks, styles.Label.Render("Keys"), renderKeys("Everywhere", global, nil))
	for _, s := range t.sections {
		if keys := renderKeys(s.heading, kb.ContextBindings[s.context], seen); keys != "" {
			blocks = append(blocks, keys)
		}
	}

	if len(t.formats) > 0 {
		blocks = append(blocks, styles.Label.Render("Content"), "The type of what you enter is detected:\n"+renderTable(t.formats))
	}
	for _, p := range t.outro {
		blocks = append(blocks, paragraph.Render(p))
	}
	return strings.Join(blocks, "\n\n")
}

// renderKeys lists bindings under heading, leaving out actions in skip.  Empty when nothing is left.
func renderKeys(heading string, bindings []kb.Binding, skip map[kb.Action]bool) string {
	rows := make([][2]string, 0, len(bindings))
	for _, b := range bindings {
		if skip[b.Action] {
			continue
		}
		keys := b.KeyMap.Primary
		if b.KeyMap.Secondary != "" {
			keys += " / " + b.KeyMap.Secondary
		}
		rows = append(rows, [2]string{keys, b.KeyMap.Help})
	}
	if len(rows) == 0 {
		return ""
	}
	return lipgloss.NewStyle().Bold(true).Render(heading) + "\n" + renderTable(rows)
}

// renderTable aligns two columns, one row per line
func renderTable(rows [][2]string) string {
	w := 0
	for _, r := range rows {
		w = max(w, runewidth.StringWidth(r[0]))
	}
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = "  " + util.PadRight(r[0], w) + "  " + styles.Muted.Render(r[1])
	}
	return strings.Join(lines, "\n")
}
