package models

import (
	"github.com/PizzaHomicide/acectl/internal/hostplayer"
	"github.com/PizzaHomicide/acectl/internal/session"
	tea "github.com/charmbracelet/bubbletea"
)

// HandledMsg tells the parent model that a key was consumed.  Reason is only used for logging.
type HandledMsg struct {
	Reason string
}

// Handled returns a command reporting that the key was consumed
func Handled(reason string) tea.Cmd {
	return func() tea.Msg {
		return HandledMsg{Reason: reason}
	}
}

// SessionReadyMsg is sent once connecting to the engine finished, successfully or not
type SessionReadyMsg struct {
	Handle *session.Handle
	Err    error
}

// SessionEventMsg carries one event published by the session
type SessionEventMsg struct {
	Event session.Event
	gen   uint64
}

// CommandResultMsg is sent when a session command issued from the console returns
type CommandResultMsg struct {
	Command string
	Content string // The content input of a load, empty for other commands
	Detail  string
	Err     error
}

// PlaybackMsg carries an event from the external player
type PlaybackMsg struct {
	Event hostplayer.PlaybackEvent
}

// OpenHistoryMsg asks for the recent content search
type OpenHistoryMsg struct{}

// HistorySelectMsg is sent when an entry of the recent content search was chosen
type HistorySelectMsg struct {
	Content string
}

// ReconnectMsg asks for the session to be dropped and a new one created
type ReconnectMsg struct{}
