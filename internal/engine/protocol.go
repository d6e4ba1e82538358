// Package engine speaks the streaming engine's IPC protocol: newline-delimited JSON frames over a local socket or
// named pipe.  Outbound frames are commands, inbound frames are either responses (correlated by request_id) or
// unsolicited events.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Command names understood by the engine.
const (
	CmdHello      = "hello"
	CmdLoad       = "load"
	CmdStop       = "stop"
	CmdLiveSeek   = "live-seek"
	CmdSkipAd     = "skip-ad"
	CmdAdShown    = "ad-shown"
	CmdAdClosed   = "ad-closed"
	CmdPauseAd    = "pause-ad"
	CmdAdVolume   = "ad-volume"
	CmdVideoClick = "video-click"
	CmdUserData   = "user-data"
	CmdSave       = "save"
	CmdGetCID     = "get-cid"
	CmdVersion    = "version"
)

// Event names the engine reports.
const (
	EvHello    = "hello"
	EvState    = "state"
	EvError    = "error"
	EvURL      = "url"
	EvAdParams = "ad-params"
	EvAdShown  = "ad-shown"
	EvAdClosed = "ad-closed"
	EvUserData = "user-data"
	EvLivePos  = "live-pos"
	EvStart    = "start"
)

const responseSuccess = "success"

var (
	// ErrEngine marks a failure reported by the engine itself.
	ErrEngine = errors.New("engine error")
	// ErrClosed is returned for operations on a closed connection.
	ErrClosed = errors.New("engine connection closed")
)

// Command is one outbound frame.  Load carries the load sequence the command belongs to, 0 for session-wide commands.
type Command struct {
	Name      string         `json:"command"`
	RequestID uint64         `json:"request_id,omitempty"`
	Load      uint64         `json:"load,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// Message is one inbound frame.  Load is set on events only; responses are matched to their command by RequestID.
type Message struct {
	Event     string          `json:"event,omitempty"`
	RequestID uint64          `json:"request_id,omitempty"`
	Load      uint64          `json:"load,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// IsResponse reports whether the message answers a request rather than reporting an event.
func (m Message) IsResponse() bool {
	return m.Event == "" && m.RequestID != 0
}

// Err converts a failed response into an ErrEngine error.  Nil for events and successful responses.
func (m Message) Err() error {
	if !m.IsResponse() || m.Error == "" || m.Error == responseSuccess {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrEngine, m.Error)
}

// Decode unmarshals the data payload into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("message %q has no data", m.Event)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %q data: %w", m.Event, err)
	}
	return nil
}

// Payloads of the engine's events.

type StateData struct {
	State string `json:"state"`
}

type ErrorData struct {
	Message string `json:"message"`
}

type URLData struct {
	Type int    `json:"type"`
	URL  string `json:"url"`
	ID   string `json:"id,omitempty"`
}

type AdParamsData struct {
	ID         string  `json:"id"`
	SkipOffset float64 `json:"skip_offset"` // seconds
}

type AdAckData struct {
	ID string `json:"id"`
}

type LivePosData struct {
	First  int  `json:"first"`
	Last   int  `json:"last"`
	Pos    int  `json:"pos"`
	IsLive bool `json:"is_live"`
}

type StartData struct {
	URL string `json:"url"`
}

type HelloData struct {
	Version string `json:"version"`
}
