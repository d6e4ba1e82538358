package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PizzaHomicide/acectl/internal/engine"
	"github.com/PizzaHomicide/acectl/internal/log"
	"github.com/PizzaHomicide/acectl/internal/metrics"
)

// channel is a session's command path to the engine.  Asynchronous commands go through a bounded queue drained by a
// writer goroutine, synchronous ones are written directly and wait for their response.
type channel struct {
	client  *engine.Client
	logger  *log.Logger
	timeout time.Duration
	queue   chan engine.Command

	// sendFailed is called from the writer goroutine when a queued command could not be written.
	sendFailed func(engine.Command, error)

	// issued maps the request id of every queued command still awaiting a response to its load sequence.
	issuedMu sync.Mutex
	issued   map[uint64]uint64

	stop      chan struct{}
	closeOnce sync.Once
}

func newChannel(client *engine.Client, logger *log.Logger, timeout time.Duration, queueSize int, sendFailed func(engine.Command, error)) *channel {
	c := &channel{
		client:     client,
		logger:     logger,
		timeout:    timeout,
		queue:      make(chan engine.Command, queueSize),
		sendFailed: sendFailed,
		issued:     make(map[uint64]uint64),
		stop:       make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *channel) closed() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// post queues cmd without blocking.
func (c *channel) post(cmd engine.Command) error {
	if c.closed() {
		return ErrReleased
	}
	cmd.RequestID = c.client.NextRequestID()
	c.track(cmd)

	select {
	case c.queue <- cmd:
		metrics.CommandsTotal.WithLabelValues(cmd.Name, Async.String(), "queued").Inc()
		c.logger.Trace("Queued engine command", "command", cmd.Name, "request_id", cmd.RequestID, "load", cmd.Load)
		return nil
	default:
		c.issuedLoad(cmd.RequestID)
		metrics.CommandsTotal.WithLabelValues(cmd.Name, Async.String(), "busy").Inc()
		c.logger.Warn("Command queue full", "command", cmd.Name, "capacity", cap(c.queue))
		return fmt.Errorf("%w: %s", ErrBusy, cmd.Name)
	}
}

// maxIssued bounds the request ids remembered for commands the engine never answered.
const maxIssued = 1024

func (c *channel) track(cmd engine.Command) {
	c.issuedMu.Lock()
	defer c.issuedMu.Unlock()
	if len(c.issued) >= maxIssued {
		oldest := cmd.RequestID
		for id := range c.issued {
			oldest = min(oldest, id)
		}
		delete(c.issued, oldest)
	}
	c.issued[cmd.RequestID] = cmd.Load
}

// issuedLoad returns the load sequence a queued command was issued for and forgets it.  ok is false for request ids
// the channel did not queue or already forgot.
func (c *channel) issuedLoad(requestID uint64) (load uint64, ok bool) {
	c.issuedMu.Lock()
	defer c.issuedMu.Unlock()
	load, ok = c.issued[requestID]
	delete(c.issued, requestID)
	return load, ok
}

// forgetLoadsExcept drops the commands issued for loads other than current.  Late responses to them are then
// unknown and discarded.  Session-wide commands are kept.
func (c *channel) forgetLoadsExcept(current uint64) {
	c.issuedMu.Lock()
	defer c.issuedMu.Unlock()
	for id, load := range c.issued {
		if load != 0 && load != current {
			delete(c.issued, id)
		}
	}
}

// request sends cmd and waits for the engine's response, at most for the configured timeout.
func (c *channel) request(ctx context.Context, cmd engine.Command) (engine.Message, error) {
	if c.closed() {
		return engine.Message{}, ErrReleased
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	msg, err := c.client.Request(reqCtx, cmd)
	metrics.CommandDuration.WithLabelValues(cmd.Name).Observe(time.Since(start).Seconds())

	result := "ok"
	switch {
	case err == nil:
	case ctx.Err() != nil:
		result = "cancelled"
		err = ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
		err = fmt.Errorf("%w: %s after %s", ErrTimeout, cmd.Name, c.timeout)
	case c.closed():
		result = "released"
		err = ErrReleased
	case errors.Is(err, engine.ErrClosed):
		result = "engine_error"
		err = fmt.Errorf("%w: %s: %w", ErrEngine, cmd.Name, err)
	case errors.Is(err, engine.ErrEngine):
		result = "engine_error"
	default:
		result = "engine_error"
		err = fmt.Errorf("%w: %s: %w", ErrEngine, cmd.Name, err)
	}
	metrics.CommandsTotal.WithLabelValues(cmd.Name, Sync.String(), result).Inc()

	if err != nil {
		c.logger.Debug("Engine command failed", "command", cmd.Name, "load", cmd.Load, "error", err)
	}
	return msg, err
}

func (c *channel) run() {
	for {
		select {
		case <-c.stop:
			return
		case cmd := <-c.queue:
			if err := c.client.Send(cmd); err != nil {
				metrics.CommandsTotal.WithLabelValues(cmd.Name, Async.String(), "send_failed").Inc()
				c.logger.Error("Failed to send engine command", "command", cmd.Name, "error", err)
				if c.sendFailed != nil {
					c.sendFailed(cmd, err)
				}
			}
		}
	}
}

// close stops the writer and closes the engine connection.  Queued commands that were not written yet are dropped.
func (c *channel) close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		if err := c.client.Close(); err != nil {
			c.logger.Debug("Error closing engine connection", "error", err)
		}
	})
}
