//go:build windows

package engine

import (
	"context"
	"fmt"
	"net"
	"time"

	"gopkg.in/natefinch/npipe.v2"
)

const defaultPipeTimeout = 5 * time.Second

// dial establishes a connection with the engine for Windows.  Named pipes go through npipe, everything else through
// the regular dialer.
func dial(ctx context.Context, network, address string) (net.Conn, error) {
	switch network {
	case "npipe":
		timeout := defaultPipeTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		conn, err := npipe.DialTimeout(address, timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to engine pipe %s: %w", address, err)
		}
		return conn, nil
	case "tcp", "unix":
		var d net.Dialer
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to engine %s %s: %w", network, address, err)
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("unsupported engine network %q", network)
	}
}
