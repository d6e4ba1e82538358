package session

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PizzaHomicide/acectl/internal/config"
	"github.com/PizzaHomicide/acectl/internal/engine"
	"github.com/PizzaHomicide/acectl/internal/log"
)

// Options tunes the sessions a Runtime creates
type Options struct {
	Network           string
	Address           string
	CommandTimeout    time.Duration
	ConnectAttempts   int
	ConnectRetryDelay time.Duration
	OutboundQueue     int

	ListenerQueue        int
	ListenerFailureLimit int
	ListenerStallTimeout time.Duration

	// Billing is used for loads that do not carry their own attribution.
	Billing Billing
}

// DefaultCommandTimeout bounds synchronous engine commands unless configured otherwise.
const DefaultCommandTimeout = 10 * time.Second

// OptionsFromConfig maps the application config onto session options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Network:              cfg.Engine.Network,
		Address:              cfg.Engine.Address,
		CommandTimeout:       cfg.Engine.CommandTimeout,
		ConnectAttempts:      cfg.Engine.ConnectAttempts,
		ConnectRetryDelay:    cfg.Engine.ConnectRetryDelay,
		OutboundQueue:        cfg.Engine.OutboundQueue,
		ListenerQueue:        cfg.Session.ListenerQueue,
		ListenerFailureLimit: cfg.Session.ListenerFailureLimit,
		ListenerStallTimeout: cfg.Session.ListenerStallTimeout,
		Billing: Billing{
			Developer: cfg.Billing.Developer,
			Affiliate: cfg.Billing.Affiliate,
			Zone:      cfg.Billing.Zone,
		},
	}
}

func (o Options) withDefaults() Options {
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}
	if o.OutboundQueue <= 0 {
		o.OutboundQueue = 32
	}
	if o.ListenerQueue <= 0 {
		o.ListenerQueue = 64
	}
	if o.ListenerFailureLimit <= 0 {
		o.ListenerFailureLimit = 5
	}
	if o.ListenerStallTimeout <= 0 {
		o.ListenerStallTimeout = 5 * time.Second
	}
	return o
}

// Dialer opens a fresh connection to the engine for one session
type Dialer func(ctx context.Context) (net.Conn, error)

// RuntimeOption customizes a Runtime
type RuntimeOption func(*Runtime)

// WithDialer replaces the network dialer, e.g. with an in-memory engine.
func WithDialer(d Dialer) RuntimeOption {
	return func(rt *Runtime) { rt.dial = d }
}

// WithClock replaces time.Now for ad skip offsets and event timestamps.
func WithClock(now func() time.Time) RuntimeOption {
	return func(rt *Runtime) { rt.now = now }
}

// Runtime scopes the resources of the sessions created from it.  It holds no session state of its own.
type Runtime struct {
	opts   Options
	logger *log.Logger
	dial   Dialer
	now    func() time.Time

	mu      sync.Mutex
	handles map[uuid.UUID]*Handle
}

// NewRuntime creates a runtime.  Without WithDialer sessions dial opts.Network/opts.Address with retries.
func NewRuntime(opts Options, logger *log.Logger, options ...RuntimeOption) *Runtime {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	rt := &Runtime{
		opts:    opts.withDefaults(),
		logger:  logger,
		now:     time.Now,
		handles: make(map[uuid.UUID]*Handle),
	}
	rt.dial = func(ctx context.Context) (net.Conn, error) {
		return engine.WaitForConnection(ctx, rt.opts.Network, rt.opts.Address, rt.opts.ConnectAttempts, rt.opts.ConnectRetryDelay, rt.logger)
	}
	for _, o := range options {
		o(rt)
	}
	return rt
}

// Options returns the effective options.
func (rt *Runtime) Options() Options {
	return rt.opts
}

// Live returns the number of handles created from rt that have not been destroyed.
func (rt *Runtime) Live() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.handles)
}

func (rt *Runtime) track(h *Handle) {
	rt.mu.Lock()
	rt.handles[h.id] = h
	rt.mu.Unlock()
}

func (rt *Runtime) untrack(h *Handle) {
	rt.mu.Lock()
	delete(rt.handles, h.id)
	rt.mu.Unlock()
}
