package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/PizzaHomicide/acectl/internal/content"
	"github.com/PizzaHomicide/acectl/internal/engine"
)

// lock takes the session lock for a command.  The lock is not held when an error is returned.
func (h *Handle) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return ErrReleased
	}
	return nil
}

func (h *Handle) billing(b Billing) Billing {
	if b == (Billing{}) {
		return h.rt.opts.Billing
	}
	return b
}

// Load starts loading content.  It is accepted from idle, not-launched, error and completed; otherwise it fails
// with ErrAlreadyActive.  In Sync mode it waits for the engine to accept the load.
func (h *Handle) Load(ctx context.Context, req LoadRequest) error {
	if !req.ID.Valid() {
		return fmt.Errorf("%w: content id %q cannot be loaded", ErrValidation, req.ID.Raw())
	}
	opts, err := ParseOptions(req.Options)
	if err != nil {
		return err
	}

	params := map[string]any{
		"type": req.ID.Type().String(),
		"id":   req.ID.Raw(),
	}
	if req.Name != "" {
		params["name"] = req.Name
	}
	if len(opts) > 0 {
		params["options"] = opts
	}
	h.billing(req.Billing).params(params)

	if err := h.lock(ctx); err != nil {
		return err
	}
	if !h.state.AcceptsLoad() {
		state := h.state
		h.mu.Unlock()
		return fmt.Errorf("%w: session is %s", ErrAlreadyActive, state)
	}

	seq := h.seq + 1
	cmd := engine.Command{Name: engine.CmdLoad, Load: seq, Params: params}

	if req.Mode == Async {
		defer h.mu.Unlock()
		if err := h.ch.post(cmd); err != nil {
			return err
		}
		h.beginLoadLocked(seq)
		h.logger.Info("Loading content", "type", req.ID.Type().String(), "load", seq)
		return nil
	}

	h.beginLoadLocked(seq)
	h.mu.Unlock()
	h.logger.Info("Loading content", "type", req.ID.Type().String(), "load", seq, "mode", Sync.String())

	if _, err := h.ch.request(ctx, cmd); err != nil {
		h.abortLoad(seq, err)
		return err
	}
	return nil
}

// Start loads content the way the old start call did.
//
// Deprecated: use Load.
func (h *Handle) Start(ctx context.Context, s LegacyStart) error {
	return h.Load(ctx, s.loadRequest())
}

func (h *Handle) beginLoadLocked(seq uint64) {
	h.seq = seq
	h.current = seq
	h.ch.forgetLoadsExcept(seq)
	h.ad = nil
	h.live = nil
	h.transitionLocked(Connecting)
}

// abortLoad unwinds a synchronous load that did not complete.  Engine failures leave the session in Error, timeouts
// and cancellations behave like a stop.
func (h *Handle) abortLoad(seq uint64, cause error) {
	h.mu.Lock()
	if h.released || h.current != seq {
		h.mu.Unlock()
		return
	}
	if errors.Is(cause, ErrEngine) {
		h.failLocked(cause)
		h.mu.Unlock()
		return
	}

	if err := h.ch.post(engine.Command{Name: engine.CmdStop, Load: seq}); err != nil {
		h.logger.Warn("Could not tell the engine to stop an abandoned load", "load", seq, "error", err)
	}
	player := h.stopLocked()
	h.mu.Unlock()

	h.logger.Warn("Load abandoned", "load", seq, "error", cause)
	if player != nil {
		player.Stop()
	}
}

// Stop ends the current load.  Stopping an idle or never launched session succeeds without doing anything.  The
// session stops even if the engine cannot be told right away; its later reports for the load are then stale.
func (h *Handle) Stop(ctx context.Context) error {
	if err := h.lock(ctx); err != nil {
		return err
	}
	if h.state == Idle || h.state == NotLaunched {
		h.mu.Unlock()
		return nil
	}
	if err := h.ch.post(engine.Command{Name: engine.CmdStop, Load: h.current}); err != nil {
		h.logger.Warn("Stop command not delivered to the engine", "load", h.current, "error", err)
	}
	player := h.stopLocked()
	h.mu.Unlock()

	h.logger.Info("Session stopped")
	if player != nil {
		player.Stop()
	}
	return nil
}

// LiveSeek moves playback of a live broadcast to pos.  The session must be downloading or buffering live content
// and pos must lie in the reported live window.
func (h *Handle) LiveSeek(ctx context.Context, pos int) error {
	if err := h.lock(ctx); err != nil {
		return err
	}
	if (h.state != Downloading && h.state != Buffering) || h.live == nil || !h.live.IsLive {
		state := h.state
		h.mu.Unlock()
		return fmt.Errorf("%w: live seek needs live content that is downloading or buffering, session is %s", ErrInvalidState, state)
	}
	if !h.live.Contains(pos) {
		first, last := h.live.First, h.live.Last
		h.mu.Unlock()
		return fmt.Errorf("%w: position %d outside live window [%d, %d]", ErrValidation, pos, first, last)
	}
	cmd := engine.Command{Name: engine.CmdLiveSeek, Load: h.current, Params: map[string]any{"pos": pos}}
	h.mu.Unlock()

	_, err := h.ch.request(ctx, cmd)
	return err
}

// SkipAd skips the current advertisement once it has been shown for its skip offset.
func (h *Handle) SkipAd(ctx context.Context) error {
	if err := h.lock(ctx); err != nil {
		return err
	}
	defer h.mu.Unlock()

	if h.ad == nil {
		return ErrNoActiveAd
	}
	if !h.ad.skippable(h.rt.now()) {
		return fmt.Errorf("%w: advertisement %s is %s and not skippable yet", ErrInvalidState, h.ad.ID, h.ad.Status)
	}
	return h.ch.post(engine.Command{Name: engine.CmdSkipAd, Params: map[string]any{"id": h.ad.ID}})
}

// RegisterAdShown tells the engine the advertisement id is on screen.
func (h *Handle) RegisterAdShown(ctx context.Context, id string) error {
	if err := h.lock(ctx); err != nil {
		return err
	}
	defer h.mu.Unlock()

	if h.ad == nil || h.ad.ID != id {
		return fmt.Errorf("%w: %q", ErrNoActiveAd, id)
	}
	if h.ad.Status == AdClosed {
		return fmt.Errorf("%w: advertisement %s is already closed", ErrInvalidState, id)
	}
	if err := h.ch.post(engine.Command{Name: engine.CmdAdShown, Params: map[string]any{"id": id}}); err != nil {
		return err
	}
	if h.ad.Status == AdPending {
		h.ad.Status = AdShown
		h.ad.ShownAt = h.rt.now()
	}
	return nil
}

// RegisterAdClosed tells the engine the advertisement id was closed.  The ad context goes away with the engine's
// acknowledgement.
func (h *Handle) RegisterAdClosed(ctx context.Context, id string) error {
	if err := h.lock(ctx); err != nil {
		return err
	}
	defer h.mu.Unlock()

	if h.ad == nil || h.ad.ID != id {
		return fmt.Errorf("%w: %q", ErrNoActiveAd, id)
	}
	if err := h.ch.post(engine.Command{Name: engine.CmdAdClosed, Params: map[string]any{"id": id}}); err != nil {
		return err
	}
	h.ad.Status = AdClosed
	return nil
}

// RequestPauseAd asks the engine for a pause advertisement.
func (h *Handle) RequestPauseAd(ctx context.Context) error {
	return h.postSessionWide(ctx, engine.Command{Name: engine.CmdPauseAd})
}

// ActivateVideoClick reports a click on the video surface.
func (h *Handle) ActivateVideoClick(ctx context.Context, single bool) error {
	click := "double"
	if single {
		click = "single"
	}
	return h.postSessionWide(ctx, engine.Command{Name: engine.CmdVideoClick, Params: map[string]any{"click": click}})
}

func (h *Handle) postSessionWide(ctx context.Context, cmd engine.Command) error {
	if err := h.lock(ctx); err != nil {
		return err
	}
	defer h.mu.Unlock()
	return h.ch.post(cmd)
}

// AdVolume returns the volume the engine wants advertisements played at.
func (h *Handle) AdVolume(ctx context.Context) (int, error) {
	var resp struct {
		Volume int `json:"volume"`
	}
	if err := h.query(ctx, engine.Command{Name: engine.CmdAdVolume}, &resp); err != nil {
		return 0, err
	}
	return resp.Volume, nil
}

// UserData reports the viewer's gender and age.
func (h *Handle) UserData(ctx context.Context, gender Gender, age int) error {
	if gender != GenderMale && gender != GenderFemale {
		return fmt.Errorf("%w: gender must be male or female", ErrValidation)
	}
	if age <= 0 {
		return fmt.Errorf("%w: age must be positive, got %d", ErrValidation, age)
	}
	return h.query(ctx, engine.Command{
		Name:   engine.CmdUserData,
		Params: map[string]any{"gender": int(gender), "age": age},
	}, nil)
}

// Save asks the engine to store file index of the torrent infohash at path.
func (h *Handle) Save(ctx context.Context, infohash string, index int, path string) error {
	hash, err := content.NormalizeInfohash(infohash)
	if err != nil {
		return err
	}
	if index < 0 {
		return fmt.Errorf("%w: file index must not be negative, got %d", ErrValidation, index)
	}
	if path == "" {
		return fmt.Errorf("%w: save path is empty", ErrValidation)
	}
	return h.query(ctx, engine.Command{
		Name:   engine.CmdSave,
		Params: map[string]any{"infohash": hash, "index": index, "path": path},
	}, nil)
}

// ContentIDByIndex resolves the content id of the host player's playlist entry at index.
func (h *Handle) ContentIDByIndex(ctx context.Context, index int) (string, error) {
	if err := h.lock(ctx); err != nil {
		return "", err
	}
	player := h.player
	h.mu.Unlock()

	if player == nil {
		return "", fmt.Errorf("%w: no host player attached", ErrInvalidState)
	}
	item, ok := player.Item(index)
	if !ok {
		return "", fmt.Errorf("%w: no playlist item at index %d", ErrValidation, index)
	}
	if item.Infohash == "" {
		return "", fmt.Errorf("%w: playlist item %d has no infohash", ErrValidation, index)
	}
	return h.ContentID(ctx, item.Infohash, item.Checksum, Billing{})
}

// ContentID resolves the content id of a torrent.
//
// Deprecated: use ContentIDByIndex.
func (h *Handle) ContentID(ctx context.Context, infohash, checksum string, billing Billing) (string, error) {
	hash, err := content.NormalizeInfohash(infohash)
	if err != nil {
		return "", err
	}
	params := map[string]any{"infohash": hash}
	if checksum != "" {
		params["checksum"] = checksum
	}
	h.billing(billing).params(params)

	var resp struct {
		ContentID string `json:"cid"`
	}
	if err := h.query(ctx, engine.Command{Name: engine.CmdGetCID, Params: params}, &resp); err != nil {
		return "", err
	}
	if resp.ContentID == "" {
		return "", fmt.Errorf("%w: engine returned no content id", ErrEngine)
	}
	return resp.ContentID, nil
}

// EngineVersion returns the engine version, from the handshake when the engine sent one.
func (h *Handle) EngineVersion(ctx context.Context) (string, error) {
	if err := h.lock(ctx); err != nil {
		return "", err
	}
	cached := h.version
	h.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	var resp engine.HelloData
	if err := h.query(ctx, engine.Command{Name: engine.CmdVersion}, &resp); err != nil {
		return "", err
	}

	h.mu.Lock()
	h.version = resp.Version
	h.mu.Unlock()
	return resp.Version, nil
}

// query sends a synchronous session-wide command and decodes the response data into out, if given.
func (h *Handle) query(ctx context.Context, cmd engine.Command, out any) error {
	if err := h.lock(ctx); err != nil {
		return err
	}
	h.mu.Unlock()

	msg, err := h.ch.request(ctx, cmd)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := msg.Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrEngine, err)
	}
	return nil
}
