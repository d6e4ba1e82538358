package components

import (
	"fmt"
	"strings"

	kb "github.com/PizzaHomicide/acectl/internal/ui/tui/keybindings"
	"github.com/PizzaHomicide/acectl/internal/ui/tui/styles"
	"github.com/PizzaHomicide/acectl/internal/ui/tui/util"
	"github.com/charmbracelet/lipgloss"
)

// KeyBinding represents a single key and its description for the keybinding bar
type KeyBinding struct {
	Key  string
	Desc string
}

// keyStyle is used to highlight keyboard shortcuts in UI
var keyStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#7D56F4")).
	Bold(true)

// KeyBindingsBar creates a styled footer showing a set of keybindings
// width: The width of the screen to center the bar
// bindings: The list of keybindings to display
func KeyBindingsBar(width int, bindings []KeyBinding) string {
	var parts []string
	for _, b := range bindings {
		parts = append(parts, fmt.Sprintf("%s: %s",
			keyStyle.Render(b.Key),
			b.Desc))
	}

	keyBar := styles.Info.Render(strings.Join(parts, " • "))
	return styles.CenteredText(width, keyBar)
}

// ActionHint names an action to show in a keybinding bar with a short description
type ActionHint struct {
	Action kb.Action
	Desc   string
}

// ContextKeys resolves hints to the primary keys of a keybinding context, skipping actions it does not bind
func ContextKeys(name kb.ContextName, hints ...ActionHint) []KeyBinding {
	bindings := kb.ContextBindings[name]
	out := make([]KeyBinding, 0, len(hints))
	for _, h := range hints {
		key := kb.GetActionKey(h.Action, bindings)
		if key == "" {
			continue
		}
		out = append(out, KeyBinding{Key: key, Desc: h.Desc})
	}
	return out
}

// Field renders a "label  value" row with the label padded to labelWidth
func Field(label, value string, labelWidth int) string {
	return styles.Label.Render(util.PadRight(label, labelWidth)) + " " + value
}
