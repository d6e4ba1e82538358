package session

import "fmt"

// State is the engine state of a session.  Numeric values match the engine's public enum and carry no ordering.
type State int

const (
	NotLaunched  State = -1
	Idle         State = 0
	Prebuffering State = 1
	Downloading  State = 2
	Buffering    State = 3
	Completed    State = 4
	HashChecking State = 5
	Error        State = 6
	Connecting   State = 7
	Loading      State = 8
	Launching    State = 9
)

var stateNames = map[State]string{
	NotLaunched:  "not-launched",
	Idle:         "idle",
	Prebuffering: "prebuffering",
	Downloading:  "downloading",
	Buffering:    "buffering",
	Completed:    "completed",
	HashChecking: "hash-checking",
	Error:        "error",
	Connecting:   "connecting",
	Loading:      "loading",
	Launching:    "launching",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState maps an engine state name to its State.
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return NotLaunched, fmt.Errorf("unknown engine state %q", name)
}

// AcceptsLoad reports whether a new load may start from s.
func (s State) AcceptsLoad() bool {
	switch s {
	case NotLaunched, Idle, Error, Completed:
		return true
	}
	return false
}

// Active reports whether a load is in progress in s.
func (s State) Active() bool {
	return !s.AcceptsLoad()
}

// engineTransitions lists the transitions the engine may report.  Any active state may additionally move to Error.
var engineTransitions = map[State][]State{
	Connecting:   {Loading, Prebuffering, HashChecking},
	Loading:      {Launching, Prebuffering, HashChecking},
	Launching:    {Prebuffering, Downloading},
	Prebuffering: {Downloading, Buffering, HashChecking},
	Downloading:  {Buffering, HashChecking, Completed},
	Buffering:    {Downloading, Completed},
	HashChecking: {Completed, Downloading, Prebuffering},
}

func engineTransitionAllowed(from, to State) bool {
	if to == Error {
		return from.Active()
	}
	for _, next := range engineTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
