// Package hostplayer provides the media players sessions hand engine streams to.
package hostplayer

import (
	"fmt"

	"github.com/PizzaHomicide/acectl/internal/config"
	"github.com/PizzaHomicide/acectl/internal/log"
)

// PlaybackEventType represents the type of playback event
type PlaybackEventType string

const (
	// PlaybackStarted indicates that playback has successfully started
	PlaybackStarted PlaybackEventType = "started"
	// PlaybackEnded indicates that the player exited
	PlaybackEnded PlaybackEventType = "ended"
	// PlaybackError indicates an error during playback
	PlaybackError PlaybackEventType = "error"
	// PlaybackProgress indicates a progress update
	PlaybackProgress PlaybackEventType = "progress"
)

// PlaybackEvent represents an event from the media player
type PlaybackEvent struct {
	Type     PlaybackEventType
	Progress float64 // Percentage of progress (0-100)
	Error    error   // Error if Type is PlaybackError
}

// New creates the host player described by cfg, wrapped in a playlist.
func New(cfg config.PlayerConfig, logger *log.Logger) (*Playlist, error) {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	logger.Info("Creating host player", "type", cfg.Type)

	switch cfg.Type {
	case "mpv", "":
		return NewPlaylist(NewMPV(cfg.Path, cfg.Args, logger), logger), nil
	case "none":
		return NewPlaylist(nil, logger), nil
	default:
		return nil, fmt.Errorf("unknown player type %q", cfg.Type)
	}
}
