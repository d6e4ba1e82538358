//go:build !windows

package engine

import (
	"context"
	"fmt"
	"net"
)

// dial establishes a connection with the engine for Unix systems
func dial(ctx context.Context, network, address string) (net.Conn, error) {
	switch network {
	case "tcp", "unix":
	case "npipe":
		return nil, fmt.Errorf("named pipes are only available on windows")
	default:
		return nil, fmt.Errorf("unsupported engine network %q", network)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine %s %s: %w", network, address, err)
	}
	return conn, nil
}
