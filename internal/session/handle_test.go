package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PizzaHomicide/acectl/internal/content"
	"github.com/PizzaHomicide/acectl/internal/engine"
	"github.com/PizzaHomicide/acectl/internal/engine/enginetest"
	"github.com/PizzaHomicide/acectl/internal/log"
	"github.com/PizzaHomicide/acectl/internal/metrics"
)

func TestNew(t *testing.T) {
	t.Run("handshake records engine version", func(t *testing.T) {
		f := newFixture(t, nil)

		assert.Equal(t, NotLaunched, f.h.State())
		assert.Equal(t, 1, f.rt.Live())
		assert.NotEqual(t, [16]byte{}, [16]byte(f.h.ID()))

		v, err := f.h.EngineVersion(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "3.2.1", v)
	})

	t.Run("failed handshake returns no handle", func(t *testing.T) {
		eng := enginetest.New()
		eng.Handle(engine.CmdHello, func(*enginetest.Conn, engine.Command) enginetest.Reply {
			return enginetest.Reply{Error: "unsupported protocol"}
		})
		rt := NewRuntime(Options{}, log.Discard(), WithDialer(eng.Dial))

		h, err := New(context.Background(), rt)
		require.ErrorIs(t, err, ErrEngine)
		assert.Nil(t, h)
		assert.Equal(t, 0, rt.Live())
	})
}

func TestLoadStateSequence(t *testing.T) {
	f := newFixture(t, nil)

	load := f.loadAsync(t)
	assert.Equal(t, uint64(1), load)
	assert.Equal(t, Connecting, f.h.State())

	f.driveTo(t, load, Loading, Launching, Prebuffering, Downloading, Completed)
	assert.Equal(t, Completed, f.h.State())

	// completed accepts the next load, which gets a fresh sequence
	assert.Equal(t, uint64(2), f.loadAsync(t))
}

func TestLoadCommand(t *testing.T) {
	f := newFixture(t, nil)

	id, err := content.Classify("acestream://0123456789ABCDEF0123456789abcdef01234567", content.Unsupported)
	require.NoError(t, err)
	require.NoError(t, f.h.Load(context.Background(), LoadRequest{
		ID:      id,
		Name:    "Channel One",
		Mode:    Async,
		Options: `:quality=2 :title="late show"`,
	}))

	cmd := f.conn.Next(t, engine.CmdLoad)
	assert.Equal(t, "player", cmd.Params["type"])
	assert.Equal(t, "0123456789abcdef0123456789abcdef01234567", cmd.Params["id"])
	assert.Equal(t, "Channel One", cmd.Params["name"])
	assert.EqualValues(t, 7, cmd.Params["developer"], "configured billing applies when none is given")
	assert.Equal(t, map[string]any{"quality": "2", "title": "late show"}, cmd.Params["options"])
}

func TestLoadRejections(t *testing.T) {
	t.Run("already active", func(t *testing.T) {
		f := newFixture(t, nil)
		load := f.loadAsync(t)
		f.driveTo(t, load, Prebuffering, Downloading)

		id, err := content.Classify("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", content.Infohash)
		require.NoError(t, err)
		err = f.h.Load(context.Background(), LoadRequest{ID: id, Mode: Async})
		require.ErrorIs(t, err, ErrAlreadyActive)
		require.ErrorIs(t, err, ErrInvalidState)

		// the original download keeps going
		assert.Equal(t, Downloading, f.h.State())
		f.driveTo(t, load, Buffering)
	})

	t.Run("unsupported id never reaches the engine", func(t *testing.T) {
		f := newFixture(t, nil)
		err := f.h.Load(context.Background(), LoadRequest{})
		require.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, NotLaunched, f.h.State())
	})

	t.Run("malformed options", func(t *testing.T) {
		f := newFixture(t, nil)
		id, err := content.Classify("http://example.com/a.torrent", content.Unsupported)
		require.NoError(t, err)
		err = f.h.Load(context.Background(), LoadRequest{ID: id, Options: "quality=1"})
		require.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, NotLaunched, f.h.State())
	})
}

func TestSyncLoad(t *testing.T) {
	id, err := content.Classify("http://example.com/video.mp4", content.Unsupported)
	require.NoError(t, err)

	t.Run("accepted", func(t *testing.T) {
		f := newFixture(t, nil)
		require.NoError(t, f.h.Load(context.Background(), LoadRequest{ID: id, Mode: Sync}))
		assert.Equal(t, Connecting, f.h.State())
	})

	t.Run("timeout behaves like stop", func(t *testing.T) {
		eng := enginetest.New()
		eng.Handle(engine.CmdLoad, func(*enginetest.Conn, engine.Command) enginetest.Reply {
			return enginetest.Reply{Silent: true}
		})
		f := newFixture(t, eng, withTimeout(100*time.Millisecond))

		err := f.h.Load(context.Background(), LoadRequest{ID: id, Mode: Sync})
		require.ErrorIs(t, err, ErrTimeout)

		f.events.expectState(t, Connecting)
		f.events.expectState(t, Idle)
		assert.Equal(t, Idle, f.h.State())

		load := f.conn.Next(t, engine.CmdLoad).Load
		stop := f.conn.Next(t, engine.CmdStop)
		assert.Equal(t, load, stop.Load)
	})

	t.Run("engine failure moves to error", func(t *testing.T) {
		eng := enginetest.New()
		eng.Handle(engine.CmdLoad, func(*enginetest.Conn, engine.Command) enginetest.Reply {
			return enginetest.Reply{Error: "descriptor not found"}
		})
		f := newFixture(t, eng)

		err := f.h.Load(context.Background(), LoadRequest{ID: id, Mode: Sync})
		require.ErrorIs(t, err, ErrEngine)

		f.events.expectState(t, Connecting)
		f.events.expectState(t, Error)
		ev := f.events.expect(t, EventError)
		assert.ErrorIs(t, ev.Err, ErrEngine)
		assert.Equal(t, Error, f.h.State())
	})

	t.Run("caller cancellation", func(t *testing.T) {
		eng := enginetest.New()
		eng.Handle(engine.CmdLoad, func(*enginetest.Conn, engine.Command) enginetest.Reply {
			return enginetest.Reply{Silent: true}
		})
		f := newFixture(t, eng)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := f.h.Load(ctx, LoadRequest{ID: id, Mode: Sync})
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, ErrTimeout)
		assert.Equal(t, Idle, f.h.State())
	})
}

func TestStop(t *testing.T) {
	t.Run("stop while prebuffering discards later reports", func(t *testing.T) {
		player := &fakePlayer{}
		f := newFixture(t, nil)
		require.NoError(t, f.h.SetHostPlayer(player))

		load := f.loadAsync(t)
		f.driveTo(t, load, Prebuffering)

		stale := testutil.ToFloat64(metrics.StaleReportsTotal)
		require.NoError(t, f.h.Stop(context.Background()))

		ev := f.events.expectState(t, Idle)
		assert.Equal(t, Prebuffering, ev.From)
		assert.Equal(t, load, f.conn.Next(t, engine.CmdStop).Load)

		f.conn.State(t, load, Downloading.String())
		f.conn.Emit(t, engine.EvStart, load, engine.StartData{URL: "http://127.0.0.1:6878/stale"})
		// a session-wide report marks the point where the stale ones have been processed
		f.conn.Emit(t, engine.EvUserData, 0, nil)
		f.events.expect(t, EventUserDataRequest)

		assert.Equal(t, Idle, f.h.State())
		assert.Equal(t, stale+2, testutil.ToFloat64(metrics.StaleReportsTotal))

		played, stops, _ := player.snapshot()
		assert.Empty(t, played)
		assert.Equal(t, 1, stops)
	})

	t.Run("late rejection of a stopped load does not touch the next one", func(t *testing.T) {
		eng := enginetest.New()
		eng.Handle(engine.CmdLoad, func(*enginetest.Conn, engine.Command) enginetest.Reply {
			return enginetest.Reply{Silent: true}
		})
		f := newFixture(t, eng)

		first := f.loadCommand(t)
		require.NoError(t, f.h.Stop(context.Background()))
		f.events.expectState(t, Idle)

		second := f.loadAsync(t)
		stale := testutil.ToFloat64(metrics.StaleReportsTotal)

		// replies carry no load, only the request id of the command they answer
		f.conn.Reply(t, first.RequestID, "content not found")
		f.driveTo(t, second, Prebuffering)

		assert.Equal(t, Prebuffering, f.h.State())
		assert.Equal(t, stale+1, testutil.ToFloat64(metrics.StaleReportsTotal))
	})

	t.Run("rejection of the current load fails it", func(t *testing.T) {
		eng := enginetest.New()
		eng.Handle(engine.CmdLoad, func(*enginetest.Conn, engine.Command) enginetest.Reply {
			return enginetest.Reply{Silent: true}
		})
		f := newFixture(t, eng)

		cmd := f.loadCommand(t)
		f.conn.Reply(t, cmd.RequestID, "content not found")
		f.events.expectState(t, Error)
		ev := f.events.expect(t, EventError)
		assert.ErrorIs(t, ev.Err, ErrEngine)
		assert.Equal(t, cmd.Load, ev.Load)
	})

	t.Run("stop with a full command queue still stops", func(t *testing.T) {
		eng := enginetest.New()
		unblock := make(chan struct{})
		eng.Handle(engine.CmdPauseAd, func(*enginetest.Conn, engine.Command) enginetest.Reply {
			<-unblock
			return enginetest.Reply{}
		})
		f := newFixture(t, eng, withQueue(1))
		defer close(unblock)
		ctx := context.Background()

		load := f.loadAsync(t)
		f.driveTo(t, load, Prebuffering)

		var busy error
		for i := 0; i < 10 && busy == nil; i++ {
			busy = f.h.RequestPauseAd(ctx)
		}
		require.ErrorIs(t, busy, ErrBusy)

		require.NoError(t, f.h.Stop(ctx))
		f.events.expectState(t, Idle)

		f.conn.State(t, load, Downloading.String())
		f.conn.Emit(t, engine.EvUserData, 0, nil)
		f.events.expect(t, EventUserDataRequest)
		assert.Equal(t, Idle, f.h.State())
	})

	t.Run("stop when idle is a no-op", func(t *testing.T) {
		f := newFixture(t, nil)
		require.NoError(t, f.h.Stop(context.Background()))
		assert.Equal(t, NotLaunched, f.h.State())

		f.conn.Emit(t, engine.EvUserData, 0, nil)
		f.events.expect(t, EventUserDataRequest)
	})
}

func TestEngineReports(t *testing.T) {
	t.Run("transitions outside the table are rejected", func(t *testing.T) {
		f := newFixture(t, nil)
		load := f.loadAsync(t)

		rejected := testutil.ToFloat64(metrics.RejectedTransitionsTotal.WithLabelValues("connecting", "completed"))
		f.conn.State(t, load, Completed.String())
		f.conn.State(t, load, Connecting.String()) // repeat of the current state
		f.driveTo(t, load, Prebuffering)

		assert.Equal(t, rejected+1, testutil.ToFloat64(metrics.RejectedTransitionsTotal.WithLabelValues("connecting", "completed")))
	})

	t.Run("engine error report", func(t *testing.T) {
		f := newFixture(t, nil)
		load := f.loadAsync(t)
		f.driveTo(t, load, Prebuffering)

		f.conn.Emit(t, engine.EvError, load, engine.ErrorData{Message: "no peers"})
		f.events.expectState(t, Error)
		ev := f.events.expect(t, EventError)
		assert.ErrorIs(t, ev.Err, ErrEngine)
		assert.Contains(t, ev.Err.Error(), "no peers")

		// error accepts a new load
		assert.Equal(t, load+1, f.loadAsync(t))
	})

	t.Run("error state report carries an error event", func(t *testing.T) {
		f := newFixture(t, nil)
		load := f.loadAsync(t)
		f.driveTo(t, load, Prebuffering)

		f.conn.State(t, load, Error.String())
		f.events.expectState(t, Error)
		ev := f.events.expect(t, EventError)
		assert.ErrorIs(t, ev.Err, ErrEngine)
		assert.Equal(t, load, ev.Load)
	})

	t.Run("start plays on the host player", func(t *testing.T) {
		player := &fakePlayer{}
		f := newFixture(t, nil)
		require.NoError(t, f.h.SetHostPlayer(player))

		load := f.loadAsync(t)
		f.conn.Emit(t, engine.EvStart, load, engine.StartData{URL: "http://127.0.0.1:6878/content/1"})
		ev := f.events.expect(t, EventPlaybackStarted)
		assert.Equal(t, "http://127.0.0.1:6878/content/1", ev.PlaybackURL)

		assert.Eventually(t, func() bool {
			played, _, _ := player.snapshot()
			return len(played) == 1
		}, eventTimeout, 10*time.Millisecond)
	})

	t.Run("url shown", func(t *testing.T) {
		f := newFixture(t, nil)
		f.conn.Emit(t, engine.EvURL, 0, engine.URLData{Type: 1, URL: "http://example.com/notice"})
		ev := f.events.expect(t, EventURLShown)
		assert.Equal(t, ShowURLNotification, ev.URL.Type)

		f.conn.Emit(t, engine.EvURL, 0, engine.URLData{Type: 42, URL: "http://example.com/x"})
		ev = f.events.expect(t, EventURLShown)
		assert.Equal(t, ShowURLUndefined, ev.URL.Type)
	})

	t.Run("connection loss fails an active session", func(t *testing.T) {
		f := newFixture(t, nil)
		load := f.loadAsync(t)
		f.driveTo(t, load, Prebuffering)

		f.conn.Close()
		f.events.expectState(t, Error)
		ev := f.events.expect(t, EventError)
		assert.ErrorIs(t, ev.Err, ErrEngine)

		_, err := f.h.AdVolume(context.Background())
		assert.ErrorIs(t, err, ErrEngine)
	})

	t.Run("serials increase", func(t *testing.T) {
		f := newFixture(t, nil)
		load := f.loadAsync(t)
		f.conn.State(t, load, Loading.String())
		ev := f.events.expectState(t, Loading)
		assert.Equal(t, uint64(2), ev.Serial)
		assert.Equal(t, load, ev.Load)
	})
}

func TestLiveSeek(t *testing.T) {
	f := newFixture(t, nil)

	err := f.h.LiveSeek(context.Background(), 10)
	require.ErrorIs(t, err, ErrInvalidState)

	load := f.loadAsync(t)
	f.driveTo(t, load, Prebuffering, Downloading)

	// downloading but nothing says it is live yet
	require.ErrorIs(t, f.h.LiveSeek(context.Background(), 10), ErrInvalidState)

	f.conn.Emit(t, engine.EvLivePos, load, engine.LivePosData{First: 100, Last: 200, Pos: 190, IsLive: true})
	ev := f.events.expect(t, EventLivePosChanged)
	assert.Equal(t, 190, ev.Live.Pos)

	require.ErrorIs(t, f.h.LiveSeek(context.Background(), 50), ErrValidation)
	require.NoError(t, f.h.LiveSeek(context.Background(), 150))

	cmd := f.conn.Next(t, engine.CmdLiveSeek)
	assert.EqualValues(t, 150, cmd.Params["pos"])
	assert.Equal(t, load, cmd.Load)

	live, ok := f.h.Live()
	require.True(t, ok)
	assert.True(t, live.IsLive)
}

func TestAdLifecycle(t *testing.T) {
	t.Run("shown with no active ad", func(t *testing.T) {
		f := newFixture(t, nil)
		require.ErrorIs(t, f.h.RegisterAdShown(context.Background(), "ad-1"), ErrNoActiveAd)
		require.ErrorIs(t, f.h.RegisterAdClosed(context.Background(), "ad-1"), ErrNoActiveAd)
		require.ErrorIs(t, f.h.SkipAd(context.Background()), ErrNoActiveAd)
		assert.ErrorIs(t, f.h.SkipAd(context.Background()), ErrInvalidState)
		_, ok := f.h.Ad()
		assert.False(t, ok)
	})

	t.Run("full lifecycle", func(t *testing.T) {
		f := newFixture(t, nil)

		f.conn.Emit(t, engine.EvAdParams, 0, engine.AdParamsData{ID: "ad-1", SkipOffset: 5})
		ev := f.events.expect(t, EventAdParams)
		assert.Equal(t, 5*time.Second, ev.Ad.SkipOffset)

		ad, ok := f.h.Ad()
		require.True(t, ok)
		assert.Equal(t, AdPending, ad.Status)

		require.ErrorIs(t, f.h.SkipAd(context.Background()), ErrInvalidState, "not shown yet")
		require.ErrorIs(t, f.h.RegisterAdShown(context.Background(), "ad-2"), ErrNoActiveAd)

		require.NoError(t, f.h.RegisterAdShown(context.Background(), "ad-1"))
		assert.Equal(t, "ad-1", f.conn.Next(t, engine.CmdAdShown).Params["id"])

		f.clock.Advance(2 * time.Second)
		require.ErrorIs(t, f.h.SkipAd(context.Background()), ErrInvalidState, "skip offset not reached")

		f.clock.Advance(3 * time.Second)
		require.NoError(t, f.h.SkipAd(context.Background()))
		f.conn.Next(t, engine.CmdSkipAd)

		require.NoError(t, f.h.RegisterAdClosed(context.Background(), "ad-1"))
		f.conn.Next(t, engine.CmdAdClosed)
		ad, ok = f.h.Ad()
		require.True(t, ok, "context lives until the engine acknowledges")
		assert.Equal(t, AdClosed, ad.Status)

		f.conn.Emit(t, engine.EvAdClosed, 0, engine.AdAckData{ID: "ad-1"})
		ack := f.events.expect(t, EventAdClosedAck)
		assert.Equal(t, "ad-1", ack.Ad.ID)
		_, ok = f.h.Ad()
		assert.False(t, ok)
	})

	t.Run("new parameters replace the ad", func(t *testing.T) {
		f := newFixture(t, nil)
		f.conn.Emit(t, engine.EvAdParams, 0, engine.AdParamsData{ID: "ad-1"})
		f.events.expect(t, EventAdParams)
		f.conn.Emit(t, engine.EvAdParams, 0, engine.AdParamsData{ID: "ad-2"})
		f.events.expect(t, EventAdParams)

		ad, ok := f.h.Ad()
		require.True(t, ok)
		assert.Equal(t, "ad-2", ad.ID)
	})
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	hash := "0123456789abcdef0123456789abcdef01234567"

	t.Run("ad volume", func(t *testing.T) {
		f := newFixture(t, nil)
		v, err := f.h.AdVolume(ctx)
		require.NoError(t, err)
		assert.Equal(t, 50, v)
	})

	t.Run("user data", func(t *testing.T) {
		f := newFixture(t, nil)
		require.ErrorIs(t, f.h.UserData(ctx, Gender(0), 30), ErrValidation)
		require.ErrorIs(t, f.h.UserData(ctx, GenderFemale, 0), ErrValidation)
		require.NoError(t, f.h.UserData(ctx, GenderFemale, 30))

		cmd := f.conn.Next(t, engine.CmdUserData)
		assert.EqualValues(t, 2, cmd.Params["gender"])
		assert.EqualValues(t, 30, cmd.Params["age"])
	})

	t.Run("save", func(t *testing.T) {
		f := newFixture(t, nil)
		require.ErrorIs(t, f.h.Save(ctx, "nothex", 0, "/tmp/out"), ErrValidation)
		require.ErrorIs(t, f.h.Save(ctx, hash, -1, "/tmp/out"), ErrValidation)
		require.ErrorIs(t, f.h.Save(ctx, hash, 0, ""), ErrValidation)
		require.NoError(t, f.h.Save(ctx, strings.ToUpper(hash), 3, "/tmp/out"))

		cmd := f.conn.Next(t, engine.CmdSave)
		assert.Equal(t, hash, cmd.Params["infohash"])
		assert.EqualValues(t, 3, cmd.Params["index"])
	})

	t.Run("save failure reported by engine", func(t *testing.T) {
		eng := enginetest.New()
		eng.Handle(engine.CmdSave, func(*enginetest.Conn, engine.Command) enginetest.Reply {
			return enginetest.Reply{Error: "disk full"}
		})
		f := newFixture(t, eng)
		require.ErrorIs(t, f.h.Save(ctx, hash, 0, "/tmp/out"), ErrEngine)
		assert.Equal(t, NotLaunched, f.h.State())
	})

	t.Run("content id by index", func(t *testing.T) {
		f := newFixture(t, nil)

		_, err := f.h.ContentIDByIndex(ctx, 0)
		require.ErrorIs(t, err, ErrInvalidState)

		require.NoError(t, f.h.SetHostPlayer(&fakePlayer{items: []MediaItem{{Index: 0, Infohash: hash, Checksum: "abc"}}}))
		_, err = f.h.ContentIDByIndex(ctx, 4)
		require.ErrorIs(t, err, ErrValidation)

		cid, err := f.h.ContentIDByIndex(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, "cid-01234567", cid)

		cmd := f.conn.Next(t, engine.CmdGetCID)
		assert.Equal(t, "abc", cmd.Params["checksum"])
	})

	t.Run("legacy content id", func(t *testing.T) {
		f := newFixture(t, nil)
		cid, err := f.h.ContentID(ctx, hash, "", Billing{Developer: 1, Zone: 3})
		require.NoError(t, err)
		assert.Equal(t, "cid-01234567", cid)

		cmd := f.conn.Next(t, engine.CmdGetCID)
		assert.EqualValues(t, 1, cmd.Params["developer"])
		assert.EqualValues(t, 3, cmd.Params["zone"])
	})

	t.Run("engine version falls back to a query", func(t *testing.T) {
		eng := enginetest.New()
		eng.Handle(engine.CmdHello, func(*enginetest.Conn, engine.Command) enginetest.Reply {
			return enginetest.Reply{}
		})
		f := newFixture(t, eng)

		v, err := f.h.EngineVersion(ctx)
		require.NoError(t, err)
		assert.Equal(t, "3.2.1", v)
		f.conn.Next(t, engine.CmdVersion)
	})

	t.Run("sync timeout", func(t *testing.T) {
		eng := enginetest.New()
		eng.Handle(engine.CmdAdVolume, func(*enginetest.Conn, engine.Command) enginetest.Reply {
			return enginetest.Reply{Silent: true}
		})
		f := newFixture(t, eng, withTimeout(50*time.Millisecond))

		_, err := f.h.AdVolume(ctx)
		require.ErrorIs(t, err, ErrTimeout)
	})
}

func TestAsyncCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("legacy start encodes selection as options", func(t *testing.T) {
		f := newFixture(t, nil)
		id, err := content.Classify("http://example.com/pack.torrent", content.Unsupported)
		require.NoError(t, err)

		require.NoError(t, f.h.Start(ctx, LegacyStart{ID: id, Indexes: []int{0, 2}, Quality: 1}))
		cmd := f.conn.Next(t, engine.CmdLoad)
		assert.Equal(t, map[string]any{"indexes": "0,2", "quality": "1"}, cmd.Params["options"])
		assert.Equal(t, "torrent-url", cmd.Params["type"])
	})

	t.Run("video click and pause ad", func(t *testing.T) {
		f := newFixture(t, nil)
		require.NoError(t, f.h.ActivateVideoClick(ctx, false))
		assert.Equal(t, "double", f.conn.Next(t, engine.CmdVideoClick).Params["click"])

		require.NoError(t, f.h.RequestPauseAd(ctx))
		f.conn.Next(t, engine.CmdPauseAd)
	})

	t.Run("full queue is busy", func(t *testing.T) {
		eng := enginetest.New()
		unblock := make(chan struct{})
		eng.Handle(engine.CmdPauseAd, func(*enginetest.Conn, engine.Command) enginetest.Reply {
			<-unblock
			return enginetest.Reply{}
		})
		f := newFixture(t, eng, withQueue(1))
		defer close(unblock)

		var busy error
		for i := 0; i < 10 && busy == nil; i++ {
			busy = f.h.RequestPauseAd(ctx)
		}
		require.ErrorIs(t, busy, ErrBusy)
		require.ErrorIs(t, busy, ErrInvalidState)
	})

	t.Run("rejected async command reports an error", func(t *testing.T) {
		eng := enginetest.New()
		eng.Handle(engine.CmdVideoClick, func(*enginetest.Conn, engine.Command) enginetest.Reply {
			return enginetest.Reply{Error: "no video"}
		})
		f := newFixture(t, eng)

		require.NoError(t, f.h.ActivateVideoClick(ctx, true))
		ev := f.events.expect(t, EventError)
		assert.ErrorIs(t, ev.Err, ErrEngine)
		assert.Equal(t, NotLaunched, f.h.State())
	})
}

func TestRefCount(t *testing.T) {
	t.Run("concurrent retain, commands and release", func(t *testing.T) {
		f := newFixture(t, nil)
		id, err := content.Classify("http://example.com/live/stream.acelive", content.Unsupported)
		require.NoError(t, err)
		ctx := context.Background()

		const workers = 50
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				f.h.Retain()
				defer f.h.Release()

				listener, err := f.h.Events().Attach(func(Event) {})
				if err != nil {
					errs <- err
					return
				}
				defer f.h.Events().Detach(listener)

				if i%2 == 0 {
					err = f.h.Load(ctx, LoadRequest{ID: id, Mode: Async})
				} else {
					err = f.h.Stop(ctx)
				}
				if err != nil && !errors.Is(err, ErrAlreadyActive) && !errors.Is(err, ErrBusy) {
					errs <- err
				}
				_ = f.h.State()
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}

		assert.Equal(t, 1, f.rt.Live())
		f.h.Release()
		assert.Equal(t, 0, f.rt.Live())
	})

	t.Run("last release tears down once", func(t *testing.T) {
		player := &fakePlayer{}
		f := newFixture(t, nil)
		require.NoError(t, f.h.SetHostPlayer(player))
		active := testutil.ToFloat64(metrics.ActiveSessions)

		f.h.Retain()
		f.h.Release()
		assert.Equal(t, 1, f.rt.Live())

		f.h.Release()
		assert.Equal(t, 0, f.rt.Live())
		assert.Equal(t, active-1, testutil.ToFloat64(metrics.ActiveSessions))
		_, _, detached := player.snapshot()
		assert.Equal(t, 1, detached)

		ce := recoverContract(f.h.Release)
		require.NotNil(t, ce)
		assert.ErrorIs(t, ce, ErrReleased)
		assert.Equal(t, "release", ce.Op)
		assert.Equal(t, f.h.ID(), ce.Handle)

		ce = recoverContract(f.h.Retain)
		require.NotNil(t, ce)
		assert.Equal(t, "retain", ce.Op)
	})

	t.Run("operations on a destroyed handle", func(t *testing.T) {
		f := newFixture(t, nil)
		f.h.Release()

		ctx := context.Background()
		assert.ErrorIs(t, f.h.Stop(ctx), ErrReleased)
		assert.ErrorIs(t, f.h.RequestPauseAd(ctx), ErrReleased)
		_, err := f.h.AdVolume(ctx)
		assert.ErrorIs(t, err, ErrReleased)
		assert.ErrorIs(t, f.h.SetHostPlayer(&fakePlayer{}), ErrReleased)

		id, err := content.Classify("http://example.com/a.acelive", content.Unsupported)
		require.NoError(t, err)
		assert.ErrorIs(t, f.h.Load(ctx, LoadRequest{ID: id}), ErrReleased)

		_, err = f.h.Events().Attach(func(Event) {})
		assert.ErrorIs(t, err, ErrReleased)
	})

	t.Run("release from a listener", func(t *testing.T) {
		f := newFixture(t, nil)
		released := make(chan struct{})
		_, err := f.h.Events().Attach(func(ev Event) {
			if ev.Kind == EventUserDataRequest {
				f.h.Release()
				close(released)
			}
		})
		require.NoError(t, err)

		f.conn.Emit(t, engine.EvUserData, 0, nil)
		select {
		case <-released:
		case <-time.After(eventTimeout):
			t.Fatal("listener never ran")
		}
		assert.Equal(t, 0, f.rt.Live())
	})

	t.Run("replacing the host player detaches the previous one", func(t *testing.T) {
		first, second := &fakePlayer{}, &fakePlayer{}
		f := newFixture(t, nil)
		require.NoError(t, f.h.SetHostPlayer(first))
		require.NoError(t, f.h.SetHostPlayer(second))

		_, _, detached := first.snapshot()
		assert.Equal(t, 1, detached)
		_, _, detached = second.snapshot()
		assert.Equal(t, 0, detached)
	})
}
