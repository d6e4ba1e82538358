//go:build !windows

package hostplayer

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"syscall"
)

// setupPlayerProcess puts mpv in its own process group so terminal signals aimed at us do not reach it
func setupPlayerProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// dialIPC connects to mpv's unix domain socket
func dialIPC(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mpv socket: %w", err)
	}
	return conn, nil
}
