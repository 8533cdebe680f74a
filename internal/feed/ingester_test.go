package feed

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/surebot/internal/cache/redis"
	"github.com/alanyoungcy/surebot/internal/domain"
)

type captureSink struct {
	mu     sync.Mutex
	events []domain.CanonicalEvent
}

func (c *captureSink) Submit(ev domain.CanonicalEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureSink) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type captureWatcher struct {
	mu         sync.Mutex
	bookmakers []string
}

func (c *captureWatcher) OnFreshPrice(_ context.Context, _ domain.CanonicalEvent, bookmaker string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bookmakers = append(c.bookmakers, bookmaker)
	return 0
}

func newBus(t *testing.T) *redis.SignalBus {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redis.NewSignalBus(redis.Wrap(rdb))
}

func event(bookmaker string) domain.CanonicalEvent {
	return domain.CanonicalEvent{
		EventKey:  "evt-1",
		Bookmaker: bookmaker,
		Markets: []domain.Market{{
			Category: domain.CategoryTotals,
			Line:     2.5,
			Outcomes: []domain.Outcome{{ID: bookmaker + "-over", Position: domain.PositionOver, Odds: 2.1}},
		}},
	}
}

func TestPollDeliversEventsAndSkipsGarbage(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()
	require.NoError(t, Publish(ctx, bus, event("alpha")))
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamCanonicalEvents, []byte("not json")))
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamCanonicalEvents, []byte(`{"bookmaker":"beta"}`)))
	require.NoError(t, Publish(ctx, bus, event("beta")))

	sink := &captureSink{}
	watcher := &captureWatcher{}
	ing := NewStreamIngester(IngesterConfig{Bus: bus, StartID: "0", Sink: sink, Watcher: watcher})

	n, err := ing.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	require.Equal(t, 2, sink.len())
	assert.Equal(t, "alpha", sink.events[0].Bookmaker)
	assert.Equal(t, []string{"alpha", "beta"}, watcher.bookmakers)

	n, err = ing.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPollWarnsOnRejectedEvents(t *testing.T) {
	bus := newBus(t)
	ctx := context.Background()
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamCanonicalEvents, []byte("not json")))
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamCanonicalEvents, []byte(`{"bookmaker":"beta"}`)))
	require.NoError(t, Publish(ctx, bus, event("alpha")))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ing := NewStreamIngester(IngesterConfig{Bus: bus, StartID: "0", Sink: &captureSink{}, Logger: logger})

	_, err := ing.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(buf.String(), `level=WARN msg="event dropped"`), buf.String())
}

func TestRunFollowsNewEntries(t *testing.T) {
	bus := newBus(t)
	sink := &captureSink{}
	ing := NewStreamIngester(IngesterConfig{Bus: bus, StartID: "0", Block: 50 * time.Millisecond, Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx) }()

	require.NoError(t, Publish(context.Background(), bus, event("alpha")))
	require.NoError(t, Publish(context.Background(), bus, event("beta")))
	assert.Eventually(t, func() bool { return sink.len() == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("ingester did not stop")
	}
}
