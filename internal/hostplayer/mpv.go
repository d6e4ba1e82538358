package hostplayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/PizzaHomicide/acectl/internal/log"
	"github.com/PizzaHomicide/acectl/internal/session"
)

const (
	ipcConnectAttempts = 20
	ipcRetryDelay      = 500 * time.Millisecond
	playbackStartLimit = 30 * time.Second
)

// MPV plays engine streams in an external mpv process
type MPV struct {
	path       string
	args       []string
	socketPath string
	logger     *log.Logger
	events     chan PlaybackEvent

	mu     sync.Mutex
	cmd    *exec.Cmd
	ipc    *ipcClient
	cancel context.CancelFunc
}

// NewMPV creates an mpv player.  path defaults to "mpv" on the PATH; args are extra command line arguments.
func NewMPV(path, args string, logger *log.Logger) *MPV {
	if path == "" {
		path = "mpv"
	}
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &MPV{
		path:       path,
		args:       ParseArgs(args),
		socketPath: SocketPath(),
		logger:     logger.With("player", "mpv"),
		events:     make(chan PlaybackEvent, 16),
	}
}

// Events reports what the running mpv instance does.  Events are dropped when nobody keeps up.
func (p *MPV) Events() <-chan PlaybackEvent {
	return p.events
}

// Play starts mpv on url, replacing whatever it was playing.
func (p *MPV) Play(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.logger.Info("Starting mpv playback", "url", url)

	args := []string{
		"--no-terminal",
		"--keep-open=no",
		"--input-ipc-server=" + p.socketPath,
	}
	args = append(args, p.args...)
	args = append(args, url)

	cmd := exec.Command(p.path, args...)
	setupPlayerProcess(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start mpv: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ipc := newIPCClient(p.socketPath, p.logger)
	p.cmd = cmd
	p.ipc = ipc
	p.cancel = cancel

	go p.wait(cmd, cancel)
	go p.monitor(ctx, ipc)
	return nil
}

// Stop asks mpv to quit and kills it if it cannot be asked.
func (p *MPV) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *MPV) stopLocked() {
	if p.cmd == nil {
		return
	}
	p.cancel()
	if err := p.ipc.sendCommand("quit"); err != nil {
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Warn("Failed to kill mpv", "error", err)
		}
	}
	_ = p.ipc.close()
	p.logger.Info("Stopped mpv playback")
	p.cmd, p.ipc, p.cancel = nil, nil, nil
}

// Item reports no playlist entries; wrap MPV in a Playlist to resolve content ids by index.
func (p *MPV) Item(int) (session.MediaItem, bool) {
	return session.MediaItem{}, false
}

// Detach stops playback and removes the IPC socket.
func (p *MPV) Detach() {
	p.Stop()
	if _, err := os.Stat(p.socketPath); err == nil {
		if err := os.Remove(p.socketPath); err != nil {
			p.logger.Warn("Failed to remove mpv socket file", "path", p.socketPath, "error", err)
		}
	}
}

func (p *MPV) wait(cmd *exec.Cmd, cancel context.CancelFunc) {
	err := cmd.Wait()
	cancel()
	p.logger.Debug("mpv exited", "error", err)
	p.emit(PlaybackEvent{Type: PlaybackEnded})
}

func (p *MPV) monitor(ctx context.Context, ipc *ipcClient) {
	if err := ipc.waitForConnection(ctx, ipcConnectAttempts, ipcRetryDelay); err != nil {
		if ctx.Err() == nil {
			p.logger.Error("Failed to connect to mpv", "error", err)
			p.emit(PlaybackEvent{Type: PlaybackError, Error: err})
		}
		return
	}

	startCtx, cancel := context.WithTimeout(ctx, playbackStartLimit)
	defer cancel()
	if err := ipc.waitForPlaybackStart(startCtx); err != nil {
		if ctx.Err() == nil {
			p.logger.Error("Failed to detect mpv playback start", "error", err)
			p.emit(PlaybackEvent{Type: PlaybackError, Error: err})
		}
		return
	}
	p.emit(PlaybackEvent{Type: PlaybackStarted})

	var playbackTime, duration float64
	lastReported := -1
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ipc.events:
			if !ok {
				return
			}
			if event.Event != "property-change" {
				continue
			}
			var value float64
			if err := json.Unmarshal(event.Data, &value); err != nil {
				continue
			}
			switch event.Name {
			case "duration":
				duration = value
			case "playback-time":
				playbackTime = value
			}

			progress := progressPercentage(playbackTime, duration)
			if int(progress) != lastReported {
				lastReported = int(progress)
				p.emit(PlaybackEvent{Type: PlaybackProgress, Progress: progress})
			}
		}
	}
}

func (p *MPV) emit(ev PlaybackEvent) {
	select {
	case p.events <- ev:
	default:
		p.logger.Trace("Dropping playback event", "type", string(ev.Type))
	}
}

func progressPercentage(playbackTime, duration float64) float64 {
	if playbackTime <= 0 || duration <= 0 {
		return 0
	}
	return playbackTime / duration * 100
}
