package session

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/PizzaHomicide/acectl/internal/log"
	"github.com/PizzaHomicide/acectl/internal/metrics"
)

// Listener receives session events on its own goroutine, in publication order.
type Listener func(Event)

// ListenerID identifies an attached listener
type ListenerID uint64

// EventManager fans a session's events out to its listeners.  It is created with the handle and lives exactly as
// long as it, and it has its own lock: attaching and detaching never touch the session lock.
//
// Delivery policy: every listener owns a bounded queue drained by a dedicated goroutine.  Publishing never blocks.
// When a queue is full the event is dropped for that listener only, logged (rate limited) and counted.  A drop counts
// as a failure only while the listener has been stuck in a single call for at least stallAfter; a listener that is
// merely behind a burst keeps its place.  A listener that panics is recovered and that counts as a failure too.
// After failureLimit consecutive failures the listener is detached.  It still receives the events that were queued
// for it before, but nothing newer.
type EventManager struct {
	logger       *log.Logger
	queueSize    int
	failureLimit int
	stallAfter   time.Duration
	now          func() time.Time
	dropLog      *rate.Limiter

	mu     sync.Mutex
	closed bool
	nextID ListenerID
	serial uint64
	subs   map[ListenerID]*subscription
}

type subscription struct {
	id       ListenerID
	fn       Listener
	kinds    map[EventKind]bool
	queue    chan Event
	failures atomic.Int32
	// busySince is the UnixNano time the current call to fn started, 0 between calls.
	busySince atomic.Int64
	// discard is set by Detach: events still queued are dropped rather than delivered.
	discard atomic.Bool
}

func newEventManager(logger *log.Logger, queueSize, failureLimit int, stallAfter time.Duration, now func() time.Time) *EventManager {
	if queueSize < 1 {
		queueSize = 1
	}
	if failureLimit < 1 {
		failureLimit = 1
	}
	return &EventManager{
		logger:       logger,
		queueSize:    queueSize,
		failureLimit: failureLimit,
		stallAfter:   stallAfter,
		now:          now,
		dropLog:      rate.NewLimiter(rate.Every(time.Second), 5),
		subs:         make(map[ListenerID]*subscription),
	}
}

// Attach registers l for the given kinds, or for every kind when none are given.
func (m *EventManager) Attach(l Listener, kinds ...EventKind) (ListenerID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrReleased
	}

	m.nextID++
	sub := &subscription{
		id:    m.nextID,
		fn:    l,
		queue: make(chan Event, m.queueSize),
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[EventKind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}
	m.subs[sub.id] = sub

	go m.run(sub)
	return sub.id, nil
}

// Detach stops delivery to the listener, including events already queued for it.  Reports whether it was attached.
func (m *EventManager) Detach(id ListenerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return false
	}
	sub.discard.Store(true)
	return m.detachLocked(id)
}

// Listeners returns the number of attached listeners.
func (m *EventManager) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *EventManager) detachLocked(id ListenerID) bool {
	sub, ok := m.subs[id]
	if !ok {
		return false
	}
	delete(m.subs, id)
	close(sub.queue)
	return true
}

// publish stamps ev and queues it for every interested listener.  The caller holds the session lock, which is what
// orders events per handle.
func (m *EventManager) publish(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.serial++
	ev.Serial = m.serial
	ev.Time = m.now()

	for id, sub := range m.subs {
		if sub.kinds != nil && !sub.kinds[ev.Kind] {
			continue
		}
		select {
		case sub.queue <- ev:
		default:
			metrics.DroppedEventsTotal.WithLabelValues(ev.Kind.String()).Inc()
			if m.dropLog.Allow() {
				m.logger.Warn("Listener queue full, dropping event", "listener", id, "kind", ev.Kind.String(), "serial", ev.Serial)
			}
			if m.stalled(sub, ev.Time) {
				m.recordFailureLocked(sub)
			}
		}
	}
}

// stalled reports whether the listener has been inside one call since at least stallAfter before now.
func (m *EventManager) stalled(sub *subscription, now time.Time) bool {
	since := sub.busySince.Load()
	return since != 0 && now.Sub(time.Unix(0, since)) >= m.stallAfter
}

// recordFailureLocked counts a failure and detaches the listener once it hits the limit.
func (m *EventManager) recordFailureLocked(sub *subscription) {
	if int(sub.failures.Add(1)) < m.failureLimit {
		return
	}
	if m.detachLocked(sub.id) {
		metrics.DetachedListenersTotal.Inc()
		m.logger.Error("Detached listener after repeated delivery failures", "listener", sub.id, "failures", m.failureLimit)
	}
}

func (m *EventManager) run(sub *subscription) {
	for ev := range sub.queue {
		if sub.discard.Load() {
			continue
		}
		if m.deliver(sub, ev) {
			sub.failures.Store(0)
			continue
		}
		metrics.DroppedEventsTotal.WithLabelValues(ev.Kind.String()).Inc()
		m.mu.Lock()
		m.recordFailureLocked(sub)
		m.mu.Unlock()
	}
}

func (m *EventManager) deliver(sub *subscription, ev Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Listener panicked", "listener", sub.id, "kind", ev.Kind.String(), "panic", r)
			ok = false
		}
	}()
	sub.busySince.Store(m.now().UnixNano())
	defer sub.busySince.Store(0)
	sub.fn(ev)
	return true
}

// close detaches everything.  Events already queued are still delivered.
func (m *EventManager) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	for id, sub := range m.subs {
		delete(m.subs, id)
		close(sub.queue)
	}
}
