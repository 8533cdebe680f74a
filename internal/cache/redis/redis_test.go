package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/surebot/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb), mr
}

func TestLockManager(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "detect:evt-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("surebot:lock:detect:evt-1"))

	_, err = lm.Acquire(ctx, "detect:evt-1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	assert.False(t, mr.Exists("surebot:lock:detect:evt-1"))

	again, err := lm.Acquire(ctx, "detect:evt-1", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLockManagerUnlockKeepsForeignLock(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	// The lock expires and someone else takes it.
	mr.FastForward(2 * time.Second)
	other, err := lm.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	unlock()
	assert.True(t, mr.Exists("surebot:lock:k"))
	other()
	assert.False(t, mr.Exists("surebot:lock:k"))
}

func TestRetryQueueFIFOAndBound(t *testing.T) {
	c, _ := newTestClient(t)
	q := NewRetryQueue(c, 2)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, "alpha", "leg-1"))
	require.NoError(t, q.Push(ctx, "alpha", "leg-2"))
	assert.ErrorIs(t, q.Push(ctx, "alpha", "leg-3"), domain.ErrQueueFull)
	require.NoError(t, q.Push(ctx, "beta", "leg-9"))

	n, err := q.Size(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	id, ok, err := q.Poll(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "leg-1", id)

	id, ok, err = q.Take(ctx, "alpha", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "leg-2", id)

	_, ok, err = q.Poll(ctx, "alpha")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = q.Take(ctx, "alpha", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignalBusStream(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx := context.Background()

	msgs, err := bus.StreamRead(ctx, domain.StreamCanonicalEvents, "0", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, bus.StreamAppend(ctx, domain.StreamCanonicalEvents, []byte(`{"n":1}`)))
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamCanonicalEvents, []byte(`{"n":2}`)))

	msgs, err = bus.StreamRead(ctx, domain.StreamCanonicalEvents, "0", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"n":1}`, string(msgs[0].Payload))

	msgs, err = bus.StreamRead(ctx, domain.StreamCanonicalEvents, msgs[0].ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"n":2}`, string(msgs[0].Payload))
}

func TestArbPublisher(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, domain.ChannelArbStatus)
	require.NoError(t, err)

	arb := &domain.Arb{ID: "arb-1", EventKey: "evt", Status: domain.ArbCompleted, ProfitPercent: 1.2}
	require.NoError(t, NewArbPublisher(bus).OnArbStatus(ctx, arb))

	select {
	case raw := <-ch:
		var msg ArbStatusMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "arb_status", msg.Type)
		assert.Equal(t, "arb-1", msg.Arb.ID)
		assert.Equal(t, domain.ArbCompleted, msg.Arb.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

func TestRateLimiterAllow(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "place:alpha", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "place:alpha", 3, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "place:beta", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(1100 * time.Millisecond)
	ok, err = rl.Allow(ctx, "place:alpha", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	require.NoError(t, rl.Wait(context.Background(), "k", 1, time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx, "k", 1, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// remoteAgent answers every instruction on bookmaker's stream with report.
func remoteAgent(ctx context.Context, t *testing.T, b *LegBridge, bookmaker string, report LegReport) {
	last := "0"
	for ctx.Err() == nil {
		msgs, err := b.ReadInstructions(ctx, bookmaker, last, 10, 0)
		if err != nil {
			return
		}
		for _, m := range msgs {
			last = m.ID
			r := report
			if r.Placed && r.Odds == 0 {
				r.Odds = m.Instruction.Leg.Odds
			}
			assert.NoError(t, b.Report(ctx, m.Instruction.ReplyKey, r))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLegBridgePlaced(t *testing.T) {
	c, _ := newTestClient(t)
	b := NewLegBridge(c, 2*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go remoteAgent(ctx, t, b, "alpha", LegReport{Placed: true, Reference: "ticket-7"})

	leg := domain.Leg{ID: "leg-1", Bookmaker: "alpha", Odds: 2.10, Stake: 500}
	p, err := b.Place(ctx, leg)
	require.NoError(t, err)
	assert.Equal(t, 2.10, p.Odds)
	assert.Equal(t, "ticket-7", p.Reference)
}

func TestLegBridgeRejected(t *testing.T) {
	c, _ := newTestClient(t)
	b := NewLegBridge(c, 2*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go remoteAgent(ctx, t, b, "alpha", LegReport{Rejected: true, Reason: "odds changed"})

	_, err := b.Place(ctx, domain.Leg{ID: "leg-1", Bookmaker: "alpha"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBetRejected)
	assert.Contains(t, err.Error(), "odds changed")
}

func TestLegBridgeNoAgent(t *testing.T) {
	c, _ := newTestClient(t)
	b := NewLegBridge(c, time.Second)

	_, err := b.Place(context.Background(), domain.Leg{ID: "leg-1", Bookmaker: "ghost"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrBetRejected))

	msgs, err := b.ReadInstructions(context.Background(), "ghost", "0", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "leg-1", msgs[0].Instruction.Leg.ID)
	assert.False(t, msgs[0].Instruction.Deadline.IsZero())
}
