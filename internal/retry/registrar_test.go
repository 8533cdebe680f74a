package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/surebot/internal/domain"
	"github.com/alanyoungcy/surebot/internal/store/memory"
)

func failedLeg() domain.Leg {
	return domain.Leg{
		ID:        "leg-1",
		ArbID:     "arb-1",
		Bookmaker: "alpha",
		OutcomeID: "out-1",
		Odds:      2.00,
		Stake:     100,
		Status:    domain.LegFailed,
	}
}

func priceEvent(outcomeID string, odds float64) domain.CanonicalEvent {
	return domain.CanonicalEvent{
		EventKey:  "m1",
		Bookmaker: "alpha",
		Markets: []domain.Market{{
			Category: domain.CategoryTotals,
			Line:     2.5,
			Outcomes: []domain.Outcome{{ID: outcomeID, Position: domain.PositionOver, Odds: odds}},
		}},
	}
}

func newTestRegistrar(t *testing.T, legs domain.LegStore, ttl time.Duration) (*Registrar, *Queues) {
	t.Helper()
	q := NewQueues(4)
	r := NewRegistrar(Config{
		Tolerance:     0.02,
		AtLeastTarget: true,
		TTL:           ttl,
		MaxAttempts:   3,
	}, legs, q)
	return r, q
}

func TestRearmOnAcceptablePrice(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	leg := failedLeg()
	require.NoError(t, store.SaveLeg(ctx, leg))

	r, q := newTestRegistrar(t, store, time.Minute)
	require.True(t, r.RegisterFailedLeg(leg, "alpha"))

	assert.Zero(t, r.OnFreshPrice(ctx, priceEvent("out-1", 1.90), "alpha"))
	size, _ := q.Size(ctx, "alpha")
	assert.Zero(t, size)
	assert.Equal(t, 1, r.Pending())

	assert.Equal(t, 1, r.OnFreshPrice(ctx, priceEvent("out-1", 1.97), "alpha"))
	size, _ = q.Size(ctx, "alpha")
	assert.Equal(t, 1, size)
	assert.Zero(t, r.Pending())

	got, err := store.GetLeg(ctx, "leg-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LegPending, got.Status)
	assert.Equal(t, 1.97, got.Odds)
	assert.Equal(t, 1, got.Attempts)

	id, ok, err := q.Poll(ctx, "alpha")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "leg-1", id)

	assert.Zero(t, r.OnFreshPrice(ctx, priceEvent("out-1", 2.10), "alpha"), "one signal per registration")
}

func TestWithinToleranceMode(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	leg := failedLeg()
	require.NoError(t, store.SaveLeg(ctx, leg))

	q := NewQueues(4)
	r := NewRegistrar(Config{Tolerance: 0.02, TTL: time.Minute}, store, q)
	r.RegisterFailedLeg(leg, "alpha")

	assert.Zero(t, r.OnFreshPrice(ctx, priceEvent("out-1", 2.10), "alpha"))
	assert.Equal(t, 1, r.OnFreshPrice(ctx, priceEvent("out-1", 2.03), "alpha"))
}

func TestZeroTTLNeverRearms(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	leg := failedLeg()
	require.NoError(t, store.SaveLeg(ctx, leg))

	r, q := newTestRegistrar(t, store, 0)
	r.RegisterFailedLeg(leg, "alpha")

	for _, odds := range []float64{2.0, 2.5, 3.0} {
		assert.Zero(t, r.OnFreshPrice(ctx, priceEvent("out-1", odds), "alpha"))
	}
	size, _ := q.Size(ctx, "alpha")
	assert.Zero(t, size)
	assert.Zero(t, r.Pending())
}

func TestRegisterIgnoresUnusableLegs(t *testing.T) {
	r, _ := newTestRegistrar(t, memory.NewStore(), time.Minute)

	noOutcome := failedLeg()
	noOutcome.OutcomeID = ""
	assert.False(t, r.RegisterFailedLeg(noOutcome, "alpha"))

	exhausted := failedLeg()
	exhausted.Attempts = 3
	assert.False(t, r.RegisterFailedLeg(exhausted, "alpha"))
	assert.Zero(t, r.Pending())
}

func TestTerminalLegEvicted(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	leg := failedLeg()
	leg.Status = domain.LegPlaced
	require.NoError(t, store.SaveLeg(ctx, leg))

	r, q := newTestRegistrar(t, store, time.Minute)
	r.RegisterFailedLeg(failedLeg(), "alpha")

	assert.Zero(t, r.OnFreshPrice(ctx, priceEvent("out-1", 2.0), "alpha"))
	assert.Zero(t, r.Pending())
	size, _ := q.Size(ctx, "alpha")
	assert.Zero(t, size)
}

type brokenLegs struct {
	leg     domain.Leg
	loadErr error
	saveErr error
}

func (b brokenLegs) GetLeg(context.Context, string) (domain.Leg, error) { return b.leg, b.loadErr }
func (b brokenLegs) SaveLeg(context.Context, domain.Leg) error { return b.saveErr }

func TestPersistenceFailureEvicts(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		legs brokenLegs
	}{
		{"load", brokenLegs{loadErr: errors.New("db down")}},
		{"save", brokenLegs{leg: failedLeg(), saveErr: errors.New("db down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, q := newTestRegistrar(t, tt.legs, time.Minute)
			r.RegisterFailedLeg(failedLeg(), "alpha")

			assert.Zero(t, r.OnFreshPrice(ctx, priceEvent("out-1", 2.0), "alpha"))
			assert.Zero(t, r.Pending())
			size, _ := q.Size(ctx, "alpha")
			assert.Zero(t, size)
		})
	}
}

func TestFullSignalQueueEvicts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	leg := failedLeg()
	require.NoError(t, store.SaveLeg(ctx, leg))

	q := NewQueues(1)
	require.NoError(t, q.Push(ctx, "alpha", "other"))
	r := NewRegistrar(Config{Tolerance: 0.02, AtLeastTarget: true, TTL: time.Minute}, store, q)
	r.RegisterFailedLeg(leg, "alpha")

	assert.Zero(t, r.OnFreshPrice(ctx, priceEvent("out-1", 2.0), "alpha"))
	assert.Zero(t, r.Pending())
}

func TestOtherBookmakerIgnored(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.SaveLeg(ctx, failedLeg()))

	r, _ := newTestRegistrar(t, store, time.Minute)
	r.RegisterFailedLeg(failedLeg(), "alpha")
	assert.Zero(t, r.OnFreshPrice(ctx, priceEvent("out-1", 2.0), "beta"))
	assert.Equal(t, 1, r.Pending())
}

func TestSweepExpired(t *testing.T) {
	now := time.Now()
	r := NewRegistrar(Config{TTL: time.Minute, Now: func() time.Time { return now }}, memory.NewStore(), NewQueues(1))
	r.RegisterFailedLeg(failedLeg(), "alpha")

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, r.Sweep())
	assert.Zero(t, r.Pending())
}
