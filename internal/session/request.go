package session

import (
	"strconv"
	"strings"

	"github.com/PizzaHomicide/acectl/internal/content"
)

// Mode selects how a command is delivered to the engine
type Mode int

const (
	// Async queues the command and returns without waiting for the engine.
	Async Mode = iota
	// Sync waits for the engine's response, bounded by the command timeout.
	Sync
)

func (m Mode) String() string {
	if m == Sync {
		return "sync"
	}
	return "async"
}

// Billing attributes a load to a developer, affiliate and zone.  The zero value means "use the configured default".
type Billing struct {
	Developer int
	Affiliate int
	Zone      int
}

func (b Billing) params(into map[string]any) {
	into["developer"] = b.Developer
	into["affiliate"] = b.Affiliate
	into["zone"] = b.Zone
}

// LoadRequest describes one piece of content to load
type LoadRequest struct {
	ID   content.ID
	Name string
	Mode Mode
	// Options is an engine option string such as ":quality=1 :start-position=30".
	Options string
	Billing Billing
}

// LegacyStart is the argument set of the old start call.  It loads asynchronously with the selection encoded as
// options.
//
// Deprecated: use Load with an option string.
type LegacyStart struct {
	ID            content.ID
	Name          string
	Indexes       []int
	Quality       int
	StartPosition int
	Billing       Billing
}

func (s LegacyStart) loadRequest() LoadRequest {
	var opts []string
	if len(s.Indexes) > 0 {
		idx := make([]string, len(s.Indexes))
		for i, n := range s.Indexes {
			idx[i] = strconv.Itoa(n)
		}
		opts = append(opts, ":indexes="+strings.Join(idx, ","))
	}
	if s.Quality > 0 {
		opts = append(opts, ":quality="+strconv.Itoa(s.Quality))
	}
	if s.StartPosition > 0 {
		opts = append(opts, ":start-position="+strconv.Itoa(s.StartPosition))
	}
	return LoadRequest{
		ID:      s.ID,
		Name:    s.Name,
		Mode:    Async,
		Options: strings.Join(opts, " "),
		Billing: s.Billing,
	}
}

// Gender is the viewer gender reported with UserData
type Gender int

const (
	GenderMale   Gender = 1
	GenderFemale Gender = 2
)

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	}
	return "unknown"
}
