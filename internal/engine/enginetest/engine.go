// Package enginetest provides a scripted in-memory engine for tests.  Each Dial returns one end of a net.Pipe whose
// other end is served by a Conn that answers commands with canned replies and lets the test inject events.
package enginetest

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/PizzaHomicide/acectl/internal/engine"
)

const waitTimeout = 2 * time.Second

// Reply is what a handler answers a command with
type Reply struct {
	Data  any
	Error string
	// Silent suppresses the response, e.g. to provoke a timeout.
	Silent bool
}

// Handler computes the reply to one command
type Handler func(c *Conn, cmd engine.Command) Reply

// Engine hands out scripted connections
type Engine struct {
	Version string

	mu       sync.Mutex
	handlers map[string]Handler
	accepted chan *Conn
}

// New returns an engine that answers every command with success.  hello and version report e.Version, ad-volume
// reports 50 and get-cid derives a content id from the infohash.
func New() *Engine {
	e := &Engine{
		Version:  "3.2.1",
		handlers: make(map[string]Handler),
		accepted: make(chan *Conn, 16),
	}
	e.handlers[engine.CmdHello] = func(c *Conn, cmd engine.Command) Reply {
		return Reply{Data: engine.HelloData{Version: c.engine.version()}}
	}
	e.handlers[engine.CmdVersion] = e.handlers[engine.CmdHello]
	e.handlers[engine.CmdAdVolume] = func(*Conn, engine.Command) Reply {
		return Reply{Data: map[string]int{"volume": 50}}
	}
	e.handlers[engine.CmdGetCID] = func(_ *Conn, cmd engine.Command) Reply {
		hash, _ := cmd.Params["infohash"].(string)
		if len(hash) < 8 {
			return Reply{Error: "bad infohash"}
		}
		return Reply{Data: map[string]string{"cid": "cid-" + hash[:8]}}
	}
	return e
}

func (e *Engine) version() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Version
}

// Handle overrides the reply to the named command.
func (e *Engine) Handle(name string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = h
}

func (e *Engine) handler(name string) Handler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handlers[name]
}

// Dial has the signature of a session dialer.
func (e *Engine) Dial(ctx context.Context) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, server := net.Pipe()
	c := &Conn{
		engine:   e,
		conn:     server,
		Commands: make(chan engine.Command, 256),
		done:     make(chan struct{}),
	}
	go c.serve()
	e.accepted <- c
	return client, nil
}

// Accept returns the connection of the next Dial.
func (e *Engine) Accept(t testing.TB) *Conn {
	t.Helper()
	select {
	case c := <-e.accepted:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("no engine connection was dialed")
		return nil
	}
}

// Conn is the engine side of one session connection
type Conn struct {
	engine *Engine
	conn   net.Conn

	writeMu sync.Mutex

	// Commands receives every command the client sent, in order.
	Commands chan engine.Command
	done     chan struct{}
}

func (c *Conn) serve() {
	defer close(c.done)
	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		var cmd engine.Command
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			continue
		}
		select {
		case c.Commands <- cmd:
		default:
		}

		reply := Reply{}
		if h := c.engine.handler(cmd.Name); h != nil {
			reply = h(c, cmd)
		}
		if reply.Silent || cmd.RequestID == 0 {
			continue
		}
		msg := engine.Message{RequestID: cmd.RequestID, Error: "success"}
		if reply.Error != "" {
			msg.Error = reply.Error
		}
		if err := c.write(msg, reply.Data); err != nil {
			return
		}
	}
}

func (c *Conn) write(msg engine.Message, data any) error {
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		msg.Data = raw
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(append(frame, '\n'))
	return err
}

// Emit sends an event frame.
func (c *Conn) Emit(t testing.TB, event string, load uint64, data any) {
	t.Helper()
	if err := c.write(engine.Message{Event: event, Load: load}, data); err != nil {
		t.Fatalf("emit %s: %v", event, err)
	}
}

// Reply answers requestID with errMsg, e.g. a late reply to a command whose handler was Silent.  An empty errMsg is
// a success.
func (c *Conn) Reply(t testing.TB, requestID uint64, errMsg string) {
	t.Helper()
	msg := engine.Message{RequestID: requestID, Error: "success"}
	if errMsg != "" {
		msg.Error = errMsg
	}
	if err := c.write(msg, nil); err != nil {
		t.Fatalf("reply to %d: %v", requestID, err)
	}
}

// State reports an engine state for load.
func (c *Conn) State(t testing.TB, load uint64, state string) {
	t.Helper()
	c.Emit(t, engine.EvState, load, engine.StateData{State: state})
}

// Next returns the next command named name, skipping others.
func (c *Conn) Next(t testing.TB, name string) engine.Command {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case cmd := <-c.Commands:
			if cmd.Name == name {
				return cmd
			}
		case <-deadline:
			t.Fatalf("engine never received %q", name)
			return engine.Command{}
		}
	}
}

// Close drops the connection as if the engine went away.
func (c *Conn) Close() {
	_ = c.conn.Close()
	<-c.done
}
