// Package session controls engine playback sessions.  A Handle owns one engine connection, tracks the engine's
// state for the content it loads, relays the engine's reports to listeners and drives a host player.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/PizzaHomicide/acectl/internal/engine"
	"github.com/PizzaHomicide/acectl/internal/log"
	"github.com/PizzaHomicide/acectl/internal/metrics"
	"github.com/PizzaHomicide/acectl/internal/version"
)

// Handle is a reference counted session.  It starts with one reference; the last Release tears it down.
type Handle struct {
	id     uuid.UUID
	rt     *Runtime
	logger *log.Logger
	refs   atomic.Int64

	client *engine.Client
	ch     *channel
	events *EventManager

	mu       sync.Mutex
	released bool
	state    State
	seq      uint64 // last load sequence handed out
	current  uint64 // load sequence reports must carry, 0 when nothing is loaded
	ad       *AdContext
	live     *LivePosition
	player   HostPlayer
	version  string
}

// Option configures a new Handle
type Option func(*Handle)

// WithHostPlayer attaches p from the start.
func WithHostPlayer(p HostPlayer) Option {
	return func(h *Handle) { h.player = p }
}

// New connects a session to the engine and performs the handshake.  The returned handle holds one reference.
func New(ctx context.Context, rt *Runtime, opts ...Option) (*Handle, error) {
	conn, err := rt.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngine, err)
	}

	id := uuid.New()
	logger := rt.logger.With("session_id", id.String())
	h := &Handle{
		id:     id,
		rt:     rt,
		logger: logger,
		client: engine.NewClient(conn, logger),
		state:  NotLaunched,
	}
	for _, o := range opts {
		o(h)
	}
	h.events = newEventManager(logger, rt.opts.ListenerQueue, rt.opts.ListenerFailureLimit, rt.opts.ListenerStallTimeout, rt.now)
	h.ch = newChannel(h.client, logger, rt.opts.CommandTimeout, rt.opts.OutboundQueue, h.sendFailed)
	go h.readReports()

	msg, err := h.ch.request(ctx, engine.Command{
		Name: engine.CmdHello,
		Params: map[string]any{
			"client":   version.ClientName(),
			"protocol": version.ProtocolVersion,
		},
	})
	if err != nil {
		h.teardown()
		return nil, fmt.Errorf("engine handshake failed: %w", err)
	}
	var hello engine.HelloData
	if err := msg.Decode(&hello); err != nil {
		logger.Warn("Engine handshake carried no version", "error", err)
	}

	h.mu.Lock()
	if h.version == "" {
		h.version = hello.Version
	}
	h.mu.Unlock()

	h.refs.Store(1)
	rt.track(h)
	metrics.ActiveSessions.Inc()
	logger.Info("Session created", "engine_version", hello.Version)
	return h, nil
}

// ID returns the handle's identity.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// State returns the current session state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Ad returns a copy of the current advertisement context, if there is one.
func (h *Handle) Ad() (AdContext, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ad == nil {
		return AdContext{}, false
	}
	return *h.ad, true
}

// Live returns the last live position the engine reported for the current load.
func (h *Handle) Live() (LivePosition, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.live == nil {
		return LivePosition{}, false
	}
	return *h.live, true
}

// Events returns the handle's event manager.
func (h *Handle) Events() *EventManager {
	return h.events
}

// Retain adds a reference.  It panics with a *ContractError if the handle was already destroyed.
func (h *Handle) Retain() {
	for {
		n := h.refs.Load()
		if n <= 0 {
			panic(&ContractError{Op: "retain", Handle: h.id})
		}
		if h.refs.CompareAndSwap(n, n+1) {
			return
		}
	}
}

// Release drops a reference and destroys the handle when it was the last one.  It panics with a *ContractError if
// the handle was already destroyed.
func (h *Handle) Release() {
	n := h.refs.Add(-1)
	switch {
	case n < 0:
		panic(&ContractError{Op: "release", Handle: h.id})
	case n == 0:
		h.destroy()
	}
}

// SetHostPlayer replaces the host player.  The previous player is detached first.
func (h *Handle) SetHostPlayer(p HostPlayer) error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return ErrReleased
	}
	prev := h.player
	h.player = p
	h.mu.Unlock()

	if d, ok := prev.(detacher); ok && prev != p {
		d.Detach()
	}
	return nil
}

func (h *Handle) destroy() {
	h.teardown()
	h.rt.untrack(h)
	metrics.ActiveSessions.Dec()
	h.logger.Info("Session released")
}

// teardown runs once.  It does not wait for the session goroutines, so it is safe to release from a listener.
func (h *Handle) teardown() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	h.current = 0
	h.ad = nil
	h.live = nil
	player := h.player
	h.player = nil
	h.mu.Unlock()

	h.ch.close()
	h.events.close()

	if d, ok := player.(detacher); ok {
		d.Detach()
	}
}
