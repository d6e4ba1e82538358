package models

import tea "github.com/charmbracelet/bubbletea"

// View represents a specific UI view in the application
type View string

// Available views in the application
const (
	ViewConsole View = "console"
	ViewHistory View = "history"
	ViewHelp    View = "help"
)

// Modal represents a UI intended to be temporarily shown to the user before returning to the original view
type Modal string

// Available modals in the application
const (
	ModalNone    Modal = "none"
	ModalHelp    Modal = "help"
	ModalHistory Modal = "history"
)

// Model is implemented by every view and modal the AppModel coordinates
type Model interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (Model, tea.Cmd)
	View() string
	Resize(width, height int)
	ViewType() View
}
