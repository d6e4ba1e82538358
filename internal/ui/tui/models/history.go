package models

import (
	"fmt"
	"strings"

	kb "github.com/PizzaHomicide/acectl/internal/ui/tui/keybindings"
	"github.com/PizzaHomicide/acectl/internal/ui/tui/styles"
	"github.com/PizzaHomicide/acectl/internal/ui/tui/util"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

const maxHistory = 50

// HistoryModel is the recent content search modal.  Entries are most recent first.
type HistoryModel struct {
	width, height  int
	entries        []string
	filtered       []string
	cursor         int
	viewportOffset int
	searchInput    textinput.Model
}

// NewHistoryModel creates an empty history
func NewHistoryModel() *HistoryModel {
	input := textinput.New()
	input.Placeholder = "Filter recent content..."
	input.Width = 30

	return &HistoryModel{searchInput: input}
}

func (m *HistoryModel) ViewType() View {
	return ViewHistory
}

// Init focuses the search input
func (m *HistoryModel) Init() tea.Cmd {
	m.searchInput.SetValue("")
	m.applyFilter()
	return m.searchInput.Focus()
}

// Add records content at the top of the history, moving it there if it was already present
func (m *HistoryModel) Add(entry string) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return
	}
	entries := []string{entry}
	for _, e := range m.entries {
		if e != entry {
			entries = append(entries, e)
		}
	}
	if len(entries) > maxHistory {
		entries = entries[:maxHistory]
	}
	m.entries = entries
	m.applyFilter()
}

// Entries returns the history, most recent first
func (m *HistoryModel) Entries() []string {
	return m.entries
}

// Selected returns the entry under the cursor
func (m *HistoryModel) Selected() (string, bool) {
	if m.cursor < 0 || m.cursor >= len(m.filtered) {
		return "", false
	}
	return m.filtered[m.cursor], true
}

// Update handles messages
func (m *HistoryModel) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch kb.GetActionByKey(keyMsg, kb.ContextHistory) {
	case kb.ActionSelectHistory:
		entry, ok := m.Selected()
		if !ok {
			return m, Handled("history:empty_selection")
		}
		return m, func() tea.Msg { return HistorySelectMsg{Content: entry} }
	case kb.ActionMoveDown:
		if m.cursor < len(m.filtered)-1 {
			m.cursor++
			m.ensureCursorVisible()
		}
		return m, Handled("cursor_move:down")
	case kb.ActionMoveUp:
		if m.cursor > 0 {
			m.cursor--
			m.ensureCursorVisible()
		}
		return m, Handled("cursor_move:up")
	}

	// Let the text input model handle other keys, filtering as we type
	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(keyMsg)
	m.applyFilter()
	return m, cmd
}

// applyFilter filters entries based on search input
func (m *HistoryModel) applyFilter() {
	query := m.searchInput.Value()
	if query == "" {
		m.filtered = m.entries
	} else {
		var filtered []string
		for _, e := range m.entries {
			if fuzzy.MatchFold(query, e) {
				filtered = append(filtered, e)
			}
		}
		m.filtered = filtered
	}

	if m.cursor >= len(m.filtered) {
		m.cursor = max(0, len(m.filtered)-1)
	}
	m.ensureCursorVisible()
}

func (m *HistoryModel) listHeight() int {
	return max(1, m.height-8)
}

// ensureCursorVisible adjusts the viewport offset to keep the cursor visible
func (m *HistoryModel) ensureCursorVisible() {
	visible := m.listHeight()
	if m.cursor < m.viewportOffset {
		m.viewportOffset = m.cursor
	}
	if m.cursor >= m.viewportOffset+visible {
		m.viewportOffset = m.cursor - visible + 1
	}
	m.viewportOffset = min(m.viewportOffset, max(0, len(m.filtered)-visible))
}

// Resize updates the dimensions
func (m *HistoryModel) Resize(width, height int) {
	m.width = width
	m.height = height
	m.ensureCursorVisible()
}

// View renders the modal
func (m *HistoryModel) View() string {
	header := styles.Header(m.width, "Recent content")
	search := styles.Title.Render("Search: ") + m.searchInput.View()

	var b strings.Builder
	switch {
	case len(m.filtered) == 0 && len(m.entries) == 0:
		b.WriteString(styles.CenteredText(m.width, "Nothing loaded yet"))
	case len(m.filtered) == 0:
		b.WriteString(styles.CenteredText(m.width, "No content matches your filter"))
	default:
		end := min(len(m.filtered), m.viewportOffset+m.listHeight())
		rowWidth := max(10, m.width-4)
		for i := m.viewportOffset; i < end; i++ {
			text := util.TruncateString(m.filtered[i], rowWidth-2)
			if i == m.cursor {
				b.WriteString(styles.SelectedRow.Width(rowWidth).Render(text))
			} else {
				b.WriteString(styles.NormalRow.Width(rowWidth).Render(text))
			}
			b.WriteString("\n")
		}
	}

	footer := styles.StatusBar.Render(fmt.Sprintf(" ↑/↓: Navigate • Enter: Load • Esc: Cancel • %d/%d ", len(m.filtered), len(m.entries)))
	return fmt.Sprintf("%s\n\n%s\n\n%s\n%s", header, search, b.String(), footer)
}
