package session

import (
	"fmt"
	"time"
)

// EventKind identifies what an Event reports
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventError
	// EventURLShown asks the host to display a url.  Deprecated by the engine but still delivered.
	EventURLShown
	EventAdParams
	EventAdShownAck
	EventAdClosedAck
	EventUserDataRequest
	EventLivePosChanged
	EventPlaybackStarted
)

var eventKindNames = [...]string{
	"state-changed", "error", "url-shown", "ad-parameters", "ad-shown-ack",
	"ad-closed-ack", "user-data-request", "live-position-changed", "playback-started",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is delivered to listeners.  Treat it as immutable.
type Event struct {
	Kind EventKind
	// Serial increases by one for every event a handle publishes.
	Serial uint64
	// Load is the load sequence the event belongs to, 0 for session-wide events.
	Load uint64
	Time time.Time

	From, To State // EventStateChanged
	Err      error // EventError

	Ad   *AdInfo       // EventAdParams, EventAdShownAck, EventAdClosedAck
	URL  *ShowURL      // EventURLShown
	Live *LivePosition // EventLivePosChanged
	// PlaybackURL is the stream address handed to the host player on EventPlaybackStarted.
	PlaybackURL string
}

// AdInfo describes the advertisement an event refers to
type AdInfo struct {
	ID         string
	SkipOffset time.Duration
}

// ShowURLType classifies url-shown requests
type ShowURLType int

const (
	ShowURLUndefined ShowURLType = iota - 1
	ShowURLAd
	ShowURLNotification
	ShowURLServices
	ShowURLOverlay
	ShowURLStopAd
)

// ShowURL is the payload of the deprecated url-shown event
type ShowURL struct {
	Type ShowURLType
	URL  string
	ID   string
}

// LivePosition is the live broadcast window reported by the engine.  Positions are engine units.
type LivePosition struct {
	First, Last, Pos int
	IsLive           bool
}

// Contains reports whether pos lies inside the live window.
func (p LivePosition) Contains(pos int) bool {
	return pos >= p.First && pos <= p.Last
}
