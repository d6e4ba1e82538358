package hostplayer

import (
	"sync"

	"github.com/PizzaHomicide/acectl/internal/log"
	"github.com/PizzaHomicide/acectl/internal/session"
)

// Playlist is a session host player that remembers the content it was given, so entries can be resolved by index.
// Playback is forwarded to an output player; without one streams are only logged.
type Playlist struct {
	out    session.HostPlayer
	logger *log.Logger

	mu      sync.Mutex
	items   []session.MediaItem
	playing string
}

// NewPlaylist creates an empty playlist playing through out, which may be nil.
func NewPlaylist(out session.HostPlayer, logger *log.Logger) *Playlist {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Playlist{out: out, logger: logger}
}

// Output returns the player streams are forwarded to.
func (p *Playlist) Output() session.HostPlayer {
	return p.out
}

// Add appends item and returns its index.
func (p *Playlist) Add(item session.MediaItem) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	item.Index = len(p.items)
	p.items = append(p.items, item)
	return item.Index
}

// Items returns a copy of the playlist.
func (p *Playlist) Items() []session.MediaItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]session.MediaItem(nil), p.items...)
}

// Item returns the entry at index.
func (p *Playlist) Item(index int) (session.MediaItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.items) {
		return session.MediaItem{}, false
	}
	return p.items[index], true
}

// Playing returns the stream url currently handed to the output, if any.
func (p *Playlist) Playing() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Play forwards url to the output player.
func (p *Playlist) Play(url string) error {
	p.mu.Lock()
	p.playing = url
	p.mu.Unlock()

	if p.out == nil {
		p.logger.Info("Stream ready", "url", url)
		return nil
	}
	return p.out.Play(url)
}

// Stop stops the output player.
func (p *Playlist) Stop() {
	p.mu.Lock()
	p.playing = ""
	p.mu.Unlock()

	if p.out != nil {
		p.out.Stop()
	}
}

// Detach is called when a session stops driving the playlist.
func (p *Playlist) Detach() {
	p.Stop()
	if d, ok := p.out.(interface{ Detach() }); ok {
		d.Detach()
	}
}
