package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PizzaHomicide/acectl/internal/log"
)

const (
	messageBuffer = 100
	maxFrameSize  = 1 << 20
	writeTimeout  = 5 * time.Second
)

// Client provides communication with a running engine over one connection
type Client struct {
	conn     net.Conn
	logger   *log.Logger
	messages chan Message

	writeMu sync.Mutex
	nextID  atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan Message
	closed    bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps an established connection and starts reading from it.
func NewClient(conn net.Conn, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	c := &Client{
		conn:     conn,
		logger:   logger,
		messages: make(chan Message, messageBuffer),
		pending:  make(map[uint64]chan Message),
		done:     make(chan struct{}),
	}
	go c.readMessages()
	return c
}

// Dial opens one connection to the engine.  network is "tcp", "unix" or, on windows, "npipe".
func Dial(ctx context.Context, network, address string) (net.Conn, error) {
	return dial(ctx, network, address)
}

// WaitForConnection attempts to connect to the engine with retries
func WaitForConnection(ctx context.Context, network, address string, maxAttempts int, retryDelay time.Duration, logger *log.Logger) (net.Conn, error) {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	logger.Debug("Connecting to engine", "network", network, "address", address, "max_attempts", maxAttempts)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := dial(ctx, network, address)
		if err == nil {
			logger.Info("Connected to engine", "attempt", attempt)
			return conn, nil
		}
		lastErr = err
		logger.Debug("Failed to connect to engine", "attempt", attempt, "error", err)

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	return nil, fmt.Errorf("failed to connect to engine after %d attempts: %w", maxAttempts, lastErr)
}

// Messages returns the channel of inbound events.  Responses nobody waits for are delivered here too.  The channel
// is closed when the connection ends.
func (c *Client) Messages() <-chan Message {
	return c.messages
}

// Done is closed once the reader has stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Send writes a command without waiting for any response.
func (c *Client) Send(cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return ErrClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	c.logger.Trace("Sent engine command", "command", cmd.Name, "request_id", cmd.RequestID, "load", cmd.Load)
	return nil
}

// Request sends a command and waits for its response or for ctx to end.  A failed response is returned as an
// ErrEngine error together with the message.
func (c *Client) Request(ctx context.Context, cmd Command) (Message, error) {
	cmd.RequestID = c.nextID.Add(1)
	reply := make(chan Message, 1)

	c.pendingMu.Lock()
	if c.closed {
		c.pendingMu.Unlock()
		return Message{}, ErrClosed
	}
	c.pending[cmd.RequestID] = reply
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, cmd.RequestID)
		c.pendingMu.Unlock()
	}()

	if err := c.Send(cmd); err != nil {
		return Message{}, err
	}

	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case msg, ok := <-reply:
		if !ok {
			return Message{}, ErrClosed
		}
		return msg, msg.Err()
	}
}

// NextRequestID reserves a request id for a command sent with Send.
func (c *Client) NextRequestID() uint64 {
	return c.nextID.Add(1)
}

// Close closes the connection to the engine.  Waiters on outstanding requests get ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.pendingMu.Lock()
		c.closed = true
		c.pendingMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) isClosed() bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return c.closed
}

// readMessages continuously reads frames from the engine
func (c *Client) readMessages() {
	defer close(c.done)
	defer close(c.messages)
	defer c.failPending()

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		c.logger.Trace("Raw engine frame", "data", string(line))

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			c.logger.Error("Failed to unmarshal engine frame", "error", err)
			continue
		}

		if msg.IsResponse() && c.deliverResponse(msg) {
			continue
		}
		c.messages <- msg
	}

	if err := scanner.Err(); err != nil && !c.isClosed() {
		c.logger.Error("Error reading from engine connection", "error", err)
	}
	c.logger.Debug("Engine reader stopped")
}

func (c *Client) deliverResponse(msg Message) bool {
	c.pendingMu.Lock()
	reply, ok := c.pending[msg.RequestID]
	if ok {
		delete(c.pending, msg.RequestID)
	}
	c.pendingMu.Unlock()

	if ok {
		reply <- msg
	}
	return ok
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.closed = true
	for id, reply := range c.pending {
		close(reply)
		delete(c.pending, id)
	}
}
