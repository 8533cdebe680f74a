package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/surebot/internal/domain"
)

func testArb(id string, profit float64, created time.Time) *domain.Arb {
	return &domain.Arb{
		ID:            id,
		EventKey:      "m1",
		ProfitPercent: profit,
		Status:        domain.ArbActive,
		CreatedAt:     created,
		Legs: []domain.Leg{
			{ID: id + "-a", ArbID: id, Bookmaker: "alpha", Position: domain.PositionOver, Status: domain.LegPending},
			{ID: id + "-b", ArbID: id, Bookmaker: "beta", Position: domain.PositionUnder, Status: domain.LegPending},
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.SaveArb(ctx, testArb("a1", 2, time.Now())))

	got, err := s.GetArb(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, got.Legs, 2)
	assert.Equal(t, "alpha", got.LegA().Bookmaker)
	assert.Equal(t, "beta", got.LegB().Bookmaker)

	_, err = s.GetArb(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStoreDoesNotRegressTerminalLeg(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	arb := testArb("a1", 2, time.Now())
	require.NoError(t, s.SaveArb(ctx, arb))

	placed := arb.Legs[0]
	placed.Status = domain.LegPlaced
	require.NoError(t, s.SaveLeg(ctx, placed))

	require.NoError(t, s.SaveArb(ctx, arb))
	got, err := s.GetLeg(ctx, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LegPlaced, got.Status)
}

func TestFetchTopCandidates(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()

	low := testArb("low", 1, now)
	high := testArb("high", 4, now)
	drifted := testArb("drifted", 5, now)
	drifted.RecordSnapshot(2.0, 2.0, now)
	drifted.RecordSnapshot(2.0, 1.8, now)
	done := testArb("done", 9, now)
	done.Status = domain.ArbCompleted

	for _, a := range []*domain.Arb{low, high, drifted, done} {
		require.NoError(t, s.SaveArb(ctx, a))
	}

	got, err := s.FetchTopCandidates(ctx, 1.5, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "high", got[0].ID)
	assert.Equal(t, "drifted", got[1].ID)
}

func TestListRecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()
	require.NoError(t, s.SaveArb(ctx, testArb("old", 1, now.Add(-time.Minute))))
	require.NoError(t, s.SaveArb(ctx, testArb("new", 1, now)))

	got, err := s.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}

func TestWallet(t *testing.T) {
	ctx := context.Background()
	w := NewWallet(map[string]float64{"alpha": 500})

	ok, err := w.CanAfford(ctx, "alpha", 500)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = w.CanAfford(ctx, "alpha", 550)
	assert.False(t, ok)
	ok, _ = w.CanAfford(ctx, "beta", 50)
	assert.False(t, ok)

	w.SetBalance("beta", 100)
	ok, _ = w.CanAfford(ctx, "beta", 50)
	assert.True(t, ok)
}
