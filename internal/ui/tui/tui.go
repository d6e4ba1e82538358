package tui

import (
	"github.com/PizzaHomicide/acectl/internal/config"
	"github.com/PizzaHomicide/acectl/internal/hostplayer"
	"github.com/PizzaHomicide/acectl/internal/session"
	"github.com/PizzaHomicide/acectl/internal/ui/tui/models"
	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the console until the user quits.  The session it opened is released before returning.
func Run(cfg *config.Config, rt *session.Runtime, player *hostplayer.Playlist) error {
	app := models.NewAppModel(cfg, rt, player)
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
