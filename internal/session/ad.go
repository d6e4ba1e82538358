package session

import "time"

// AdStatus tracks where an advertisement is in its lifecycle
type AdStatus int

const (
	AdPending AdStatus = iota
	AdShown
	AdClosed
)

func (s AdStatus) String() string {
	switch s {
	case AdPending:
		return "pending"
	case AdShown:
		return "shown"
	case AdClosed:
		return "closed"
	}
	return "unknown"
}

// AdContext is the state of the single advertisement a session may have at a time.  Created on the engine's
// ad-parameters event, destroyed on its ad-closed acknowledgement or when replaced.
type AdContext struct {
	ID         string
	SkipOffset time.Duration
	Status     AdStatus
	ShownAt    time.Time
}

// skippable reports whether the ad may be skipped at now.
func (a *AdContext) skippable(now time.Time) bool {
	return a.Status == AdShown && !now.Before(a.ShownAt.Add(a.SkipOffset))
}
