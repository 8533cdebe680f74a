package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArbSetStatus(t *testing.T) {
	now := time.Now()
	arb := &Arb{ID: "a1", Status: ArbActive}

	require.NoError(t, arb.SetStatus(ArbInProgress, now))
	require.NoError(t, arb.SetStatus(ArbCompleted, now))
	assert.Equal(t, ArbCompleted, arb.Status)

	err := arb.SetStatus(ArbInProgress, now)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, ArbCompleted, arb.Status)
}

func TestArbSetStatus_CannotSkipInProgress(t *testing.T) {
	arb := &Arb{ID: "a2", Status: ArbActive}
	err := arb.SetStatus(ArbFailed, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, ArbActive, arb.Status)
}

func TestArbRecordSnapshot_Idempotent(t *testing.T) {
	arb := &Arb{}
	now := time.Now()

	assert.True(t, arb.RecordSnapshot(1.90, 2.05, now))
	assert.False(t, arb.RecordSnapshot(1.90, 2.05, now.Add(time.Second)))
	assert.True(t, arb.RecordSnapshot(1.88, 2.05, now.Add(2*time.Second)))
	assert.Len(t, arb.Snapshots, 2)
}

func TestArbClone_DoesNotShareLegs(t *testing.T) {
	arb := &Arb{Legs: []Leg{{ID: "l1", Status: LegPending}, {ID: "l2", Status: LegPending}}}
	c := arb.Clone()
	c.Legs[0].Status = LegPlaced
	assert.Equal(t, LegPending, arb.Legs[0].Status)
}

func TestOutcomePositionOpposite(t *testing.T) {
	tests := []struct {
		pos  OutcomePosition
		want OutcomePosition
		ok   bool
	}{
		{PositionOver, PositionUnder, true},
		{PositionUnder, PositionOver, true},
		{PositionHome, PositionAway, true},
		{PositionPrimary, PositionOpposite, true},
		{PositionDraw, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.pos), func(t *testing.T) {
			got, ok := tt.pos.Opposite()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSameLine(t *testing.T) {
	assert.True(t, SameLine(2.5, 2.5))
	assert.True(t, SameLine(2.5, 2.505))
	assert.False(t, SameLine(2.5, 2.52))
}

func TestCanonicalEventValidate(t *testing.T) {
	assert.NoError(t, CanonicalEvent{EventKey: "m1", Bookmaker: "bookA"}.Validate())
	assert.ErrorIs(t, CanonicalEvent{EventKey: "  ", Bookmaker: "bookA"}.Validate(), ErrInvalidEvent)
	assert.ErrorIs(t, CanonicalEvent{EventKey: "m1"}.Validate(), ErrInvalidEvent)
}

func TestRetrySpecAccepts(t *testing.T) {
	atLeast := RetrySpec{TargetOdds: 2.00, Tolerance: 0.02, AtLeastTarget: true}
	assert.False(t, atLeast.Accepts(1.90))
	assert.True(t, atLeast.Accepts(1.97))
	assert.True(t, atLeast.Accepts(2.40))

	within := RetrySpec{TargetOdds: 2.00, Tolerance: 0.02}
	assert.True(t, within.Accepts(2.03))
	assert.False(t, within.Accepts(2.10))
	assert.False(t, within.Accepts(0))
}

func TestRetrySpecExpired(t *testing.T) {
	now := time.Now()
	assert.True(t, RetrySpec{CreatedAt: now, TTL: 0}.Expired(now))
	assert.False(t, RetrySpec{CreatedAt: now, TTL: time.Minute}.Expired(now.Add(time.Second)))
}

func TestLegStatusTerminal(t *testing.T) {
	assert.False(t, LegPending.Terminal())
	assert.False(t, LegFailed.Terminal())
	assert.True(t, LegPlaced.Terminal())
	assert.True(t, LegVoid.Terminal())
}

func TestArbCandidateScorePenalisesDrift(t *testing.T) {
	now := time.Now()
	a := &Arb{ProfitPercent: 3}
	a.RecordSnapshot(2.10, 2.05, now)
	assert.Zero(t, a.OddsDrift())
	assert.Equal(t, 3.0, a.CandidateScore())

	a.RecordSnapshot(2.10, 2.00, now.Add(time.Second))
	assert.InDelta(t, 0.05/2.05, a.OddsDrift(), 1e-12)
	assert.Less(t, a.CandidateScore(), 3.0)
}
