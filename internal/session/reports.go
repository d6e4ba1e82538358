package session

import (
	"fmt"
	"time"

	"github.com/PizzaHomicide/acectl/internal/engine"
	"github.com/PizzaHomicide/acectl/internal/metrics"
)

// readReports applies engine messages until the connection ends
func (h *Handle) readReports() {
	for msg := range h.client.Messages() {
		h.handleMessage(msg)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.logger.Warn("Engine connection lost", "state", h.state.String())
	if h.state.Active() {
		h.failLocked(fmt.Errorf("%w: connection lost", ErrEngine))
	}
}

// handleMessage applies one engine message.  Host player calls it triggers run after the session lock is released.
func (h *Handle) handleMessage(msg engine.Message) {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	after := h.applyLocked(msg)
	h.mu.Unlock()

	if after != nil {
		after()
	}
}

func (h *Handle) applyLocked(msg engine.Message) func() {
	if msg.IsResponse() {
		h.applyResponseLocked(msg)
		return nil
	}

	switch msg.Event {
	case engine.EvHello:
		var data engine.HelloData
		if h.decodeLocked(msg, &data) {
			h.version = data.Version
		}

	case engine.EvState:
		if !h.currentLocked(msg) {
			return nil
		}
		var data engine.StateData
		if !h.decodeLocked(msg, &data) {
			return nil
		}
		to, err := ParseState(data.State)
		if err != nil {
			h.logger.Warn("Ignoring engine state report", "error", err)
			return nil
		}
		h.applyEngineStateLocked(to)

	case engine.EvError:
		if !h.currentLocked(msg) {
			return nil
		}
		var data engine.ErrorData
		_ = msg.Decode(&data)
		h.failLocked(fmt.Errorf("%w: %s", ErrEngine, data.Message))

	case engine.EvStart:
		if !h.currentLocked(msg) {
			return nil
		}
		var data engine.StartData
		if !h.decodeLocked(msg, &data) {
			return nil
		}
		h.events.publish(Event{Kind: EventPlaybackStarted, Load: h.current, PlaybackURL: data.URL})
		player := h.player
		if player == nil {
			h.logger.Debug("Playback started without a host player", "url", data.URL)
			return nil
		}
		logger := h.logger
		return func() {
			if err := player.Play(data.URL); err != nil {
				logger.Error("Host player failed to play stream", "url", data.URL, "error", err)
			}
		}

	case engine.EvLivePos:
		if !h.currentLocked(msg) {
			return nil
		}
		var data engine.LivePosData
		if !h.decodeLocked(msg, &data) {
			return nil
		}
		pos := LivePosition{First: data.First, Last: data.Last, Pos: data.Pos, IsLive: data.IsLive}
		h.live = &pos
		h.events.publish(Event{Kind: EventLivePosChanged, Load: h.current, Live: &pos})

	case engine.EvAdParams:
		if !h.sessionWideLocked(msg) {
			return nil
		}
		var data engine.AdParamsData
		if !h.decodeLocked(msg, &data) {
			return nil
		}
		ad := &AdContext{
			ID:         data.ID,
			SkipOffset: time.Duration(data.SkipOffset * float64(time.Second)),
			Status:     AdPending,
		}
		if h.ad != nil {
			h.logger.Debug("Replacing advertisement", "previous", h.ad.ID, "ad_id", ad.ID)
		}
		h.ad = ad
		h.events.publish(Event{Kind: EventAdParams, Load: msg.Load, Ad: &AdInfo{ID: ad.ID, SkipOffset: ad.SkipOffset}})

	case engine.EvAdShown:
		if !h.sessionWideLocked(msg) {
			return nil
		}
		var data engine.AdAckData
		if !h.decodeLocked(msg, &data) {
			return nil
		}
		h.events.publish(Event{Kind: EventAdShownAck, Load: msg.Load, Ad: h.adInfoLocked(data.ID)})

	case engine.EvAdClosed:
		if !h.sessionWideLocked(msg) {
			return nil
		}
		var data engine.AdAckData
		if !h.decodeLocked(msg, &data) {
			return nil
		}
		info := h.adInfoLocked(data.ID)
		if h.ad != nil && h.ad.ID == data.ID {
			h.ad = nil
		}
		h.events.publish(Event{Kind: EventAdClosedAck, Load: msg.Load, Ad: info})

	case engine.EvURL:
		if !h.sessionWideLocked(msg) {
			return nil
		}
		var data engine.URLData
		if !h.decodeLocked(msg, &data) {
			return nil
		}
		typ := ShowURLType(data.Type)
		if typ < ShowURLUndefined || typ > ShowURLStopAd {
			typ = ShowURLUndefined
		}
		h.events.publish(Event{Kind: EventURLShown, Load: msg.Load, URL: &ShowURL{Type: typ, URL: data.URL, ID: data.ID}})

	case engine.EvUserData:
		if !h.sessionWideLocked(msg) {
			return nil
		}
		h.events.publish(Event{Kind: EventUserDataRequest, Load: msg.Load})

	default:
		h.logger.Debug("Ignoring unknown engine event", "event", msg.Event)
	}
	return nil
}

// applyResponseLocked handles responses nobody waited for, i.e. those to queued commands.  The load a response
// belongs to is the one its command was issued for; responses do not carry it.
func (h *Handle) applyResponseLocked(msg engine.Message) {
	load, known := h.ch.issuedLoad(msg.RequestID)
	err := msg.Err()
	if err == nil {
		return
	}
	if !known || (load != 0 && load != h.current) {
		h.discardLocked(msg)
		return
	}
	h.logger.Warn("Engine rejected command", "request_id", msg.RequestID, "load", load, "error", err)
	if h.state.Active() {
		h.failLocked(err)
		return
	}
	h.events.publish(Event{Kind: EventError, Load: load, Err: err})
}

// sendFailed handles a queued command the writer could not deliver.
func (h *Handle) sendFailed(cmd engine.Command, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released || cmd.Load == 0 || cmd.Load != h.current || !h.state.Active() {
		return
	}
	h.failLocked(fmt.Errorf("%w: %s: %w", ErrEngine, cmd.Name, err))
}

func (h *Handle) applyEngineStateLocked(to State) {
	from := h.state
	if to == from {
		return
	}
	if !engineTransitionAllowed(from, to) {
		metrics.RejectedTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
		h.logger.Warn("Rejecting engine state transition", "from", from.String(), "to", to.String(), "load", h.current)
		return
	}
	if to == Error {
		h.failLocked(fmt.Errorf("%w: engine reported the error state", ErrEngine))
		return
	}
	h.transitionLocked(to)
}

func (h *Handle) transitionLocked(to State) {
	from := h.state
	h.state = to
	metrics.StateTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
	h.logger.Debug("Session state changed", "from", from.String(), "to", to.String(), "load", h.current)
	h.events.publish(Event{Kind: EventStateChanged, Load: h.current, From: from, To: to})
}

// failLocked moves the session to Error and reports err.
func (h *Handle) failLocked(err error) {
	h.logger.Error("Session failed", "load", h.current, "error", err)
	if h.state != Error {
		h.transitionLocked(Error)
	}
	h.events.publish(Event{Kind: EventError, Load: h.current, Err: err})
}

// stopLocked moves the session to Idle and forgets the current load.  It returns the player to stop once the lock
// is released.
func (h *Handle) stopLocked() HostPlayer {
	h.transitionLocked(Idle)
	h.current = 0
	h.ch.forgetLoadsExcept(0)
	h.ad = nil
	h.live = nil
	return h.player
}

func (h *Handle) currentLocked(msg engine.Message) bool {
	if msg.Load != 0 && msg.Load == h.current {
		return true
	}
	h.discardLocked(msg)
	return false
}

func (h *Handle) sessionWideLocked(msg engine.Message) bool {
	if msg.Load == 0 || msg.Load == h.current {
		return true
	}
	h.discardLocked(msg)
	return false
}

func (h *Handle) discardLocked(msg engine.Message) {
	metrics.StaleReportsTotal.Inc()
	h.logger.Debug("Discarding stale engine report", "event", msg.Event, "request_id", msg.RequestID, "load", msg.Load, "current", h.current)
}

func (h *Handle) decodeLocked(msg engine.Message, v any) bool {
	if err := msg.Decode(v); err != nil {
		h.logger.Warn("Malformed engine report", "event", msg.Event, "error", err)
		return false
	}
	return true
}

func (h *Handle) adInfoLocked(id string) *AdInfo {
	if h.ad != nil && h.ad.ID == id {
		return &AdInfo{ID: id, SkipOffset: h.ad.SkipOffset}
	}
	return &AdInfo{ID: id}
}
