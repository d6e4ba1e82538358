package hostplayer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/PizzaHomicide/acectl/internal/log"
)

// ipcClient provides communication with a running mpv instance
type ipcClient struct {
	socketPath string
	logger     *log.Logger
	events     chan ipcEvent

	mu   sync.Mutex
	conn net.Conn
}

// ipcEvent is one frame mpv writes to its IPC socket
type ipcEvent struct {
	Event     string          `json:"event,omitempty"`
	Name      string          `json:"name,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID int             `json:"request_id,omitempty"`
	Error     string          `json:"error,omitempty"`
}

var errNotConnected = errors.New("not connected to mpv")

func newIPCClient(socketPath string, logger *log.Logger) *ipcClient {
	return &ipcClient{
		socketPath: socketPath,
		logger:     logger,
		events:     make(chan ipcEvent, 100),
	}
}

// SocketPath returns the IPC socket path for mpv
func SocketPath() string {
	if path := os.Getenv("ACECTL_MPV_SOCKET"); path != "" {
		return path
	}

	switch runtime.GOOS {
	case "windows":
		return `\\.\pipe\acectl-mpv`
	case "darwin":
		return filepath.Join(os.TempDir(), "acectl-mpv.sock")
	default:
		if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
			return filepath.Join(runtimeDir, "acectl-mpv.sock")
		}
		return "/tmp/acectl-mpv.sock"
	}
}

// waitForConnection attempts to connect to mpv with retries
func (c *ipcClient) waitForConnection(ctx context.Context, maxAttempts int, retryDelay time.Duration) error {
	c.logger.Debug("Waiting for mpv to create socket", "socket_path", c.socketPath, "max_attempts", maxAttempts)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := dialIPC(ctx, c.socketPath)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
			go c.readEvents(conn)
			c.logger.Debug("Connected to mpv", "attempt", attempt)
			return nil
		}
		lastErr = err
		c.logger.Trace("Failed to connect to mpv", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	return fmt.Errorf("failed to connect to mpv after %d attempts: %w", maxAttempts, lastErr)
}

// close closes the connection to mpv
func (c *ipcClient) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *ipcClient) readEvents(conn net.Conn) {
	defer close(c.events)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		c.logger.Trace("Raw mpv event", "data", string(line))

		var event ipcEvent
		if err := json.Unmarshal(line, &event); err != nil {
			c.logger.Warn("Failed to unmarshal mpv event", "error", err)
			continue
		}
		select {
		case c.events <- event:
		default:
			c.logger.Trace("Dropping mpv event, nobody is reading", "event", event.Event)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("Error reading from mpv socket", "error", err)
	}
	c.logger.Debug("mpv event reader stopped")
}

// sendCommand sends a command to mpv
func (c *ipcClient) sendCommand(args ...any) error {
	data, err := json.Marshal(map[string]any{"command": args})
	if err != nil {
		return fmt.Errorf("failed to marshal mpv command: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errNotConnected
	}
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to send mpv command: %w", err)
	}
	return nil
}

// waitForPlaybackStart waits for mpv to start playing the media.  Property changes observed while waiting keep
// flowing through the events channel afterwards.
func (c *ipcClient) waitForPlaybackStart(ctx context.Context) error {
	if err := c.sendCommand("observe_property", 1, "playback-time"); err != nil {
		return fmt.Errorf("failed to observe playback time: %w", err)
	}
	if err := c.sendCommand("observe_property", 2, "duration"); err != nil {
		c.logger.Warn("Failed to observe duration", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for mpv to start playback: %w", ctx.Err())
		case event, ok := <-c.events:
			if !ok {
				return fmt.Errorf("mpv connection closed while waiting for playback")
			}
			switch event.Event {
			case "playback-restart", "file-loaded":
				return nil
			case "property-change":
				if event.Name != "playback-time" {
					continue
				}
				var playbackTime float64
				if err := json.Unmarshal(event.Data, &playbackTime); err == nil && playbackTime > 0 {
					return nil
				}
			}
		}
	}
}
