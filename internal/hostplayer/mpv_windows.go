//go:build windows

package hostplayer

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"syscall"
	"time"

	"gopkg.in/natefinch/npipe.v2"
)

// setupPlayerProcess starts mpv in a new process group so console control events aimed at us do not reach it
func setupPlayerProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// dialIPC connects to mpv's named pipe
func dialIPC(ctx context.Context, path string) (net.Conn, error) {
	timeout := time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	conn, err := npipe.DialTimeout(path, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mpv pipe: %w", err)
	}
	return conn, nil
}
