//go:build !windows

package hostplayer

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PizzaHomicide/acectl/internal/log"
)

// fakeMPV accepts one IPC connection, records the commands it receives and answers observe_property for
// playback-time with a property change.
func fakeMPV(t *testing.T) (string, <-chan []any) {
	t.Helper()
	dir, err := os.MkdirTemp("", "mpvipc")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	path := filepath.Join(dir, "mpv.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	commands := make(chan []any, 16)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var frame struct {
				Command []any `json:"command"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
				continue
			}
			commands <- frame.Command
			if len(frame.Command) == 3 && frame.Command[2] == "playback-time" {
				_, _ = conn.Write([]byte(`{"event":"property-change","id":1,"name":"playback-time","data":null}` + "\n"))
				_, _ = conn.Write([]byte(`{"event":"property-change","id":1,"name":"playback-time","data":0.5}` + "\n"))
			}
		}
	}()
	return path, commands
}

func TestIPCClient(t *testing.T) {
	path, commands := fakeMPV(t)
	c := newIPCClient(path, log.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.waitForConnection(ctx, 5, 10*time.Millisecond))
	require.NoError(t, c.waitForPlaybackStart(ctx))

	first := <-commands
	assert.Equal(t, []any{"observe_property", float64(1), "playback-time"}, first)

	require.NoError(t, c.sendCommand("quit"))
	assert.Eventually(t, func() bool {
		for {
			select {
			case cmd := <-commands:
				if len(cmd) == 1 && cmd[0] == "quit" {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, c.close())
	assert.ErrorIs(t, c.sendCommand("quit"), errNotConnected)
}

func TestIPCClientGivesUp(t *testing.T) {
	dir, err := os.MkdirTemp("", "mpvipc")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	c := newIPCClient(filepath.Join(dir, "missing.sock"), log.Discard())
	err = c.waitForConnection(context.Background(), 2, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}
