package arbitrage

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/surebot/internal/domain"
	"github.com/alanyoungcy/surebot/internal/oddsmath"
)

func newTestBuilder(w domain.Wallet) *Builder {
	cfg := oddsmath.DefaultObfuscatorConfig()
	cfg.SwapProbability = 0
	return NewBuilder(BuilderConfig{
		TotalStake: 1000,
		Obfuscator: oddsmath.NewObfuscator(cfg, nil),
		Wallet:     w,
	})
}

func TestBuildPairsOppositeOutcomesAcrossBookmakers(t *testing.T) {
	b := newTestBuilder(richWallet("alpha", "beta"))
	events := []domain.CanonicalEvent{
		totalsEvent("m1", "alpha", 2.5, outcome("a-over", domain.PositionOver, 2.10)),
		totalsEvent("m1", "beta", 2.5, outcome("b-under", domain.PositionUnder, 2.05)),
	}

	arbs := b.Build(context.Background(), events)
	require.Len(t, arbs, 1)

	arb := arbs[0]
	want := (1/(1/2.10+1/2.05))*100 - 100
	assert.InDelta(t, want, arb.ProfitPercent, 1e-3)
	assert.Less(t, arb.ArbPercent, 100.0)
	assert.Equal(t, domain.ArbActive, arb.Status)
	assert.True(t, arb.ShouldBet)
	assert.Equal(t, "m1", arb.EventKey)
	require.Len(t, arb.Snapshots, 1)

	a, o := arb.LegA(), arb.LegB()
	assert.Equal(t, domain.PositionOver, a.Position)
	assert.Equal(t, "alpha", a.Bookmaker)
	assert.Equal(t, domain.PositionUnder, o.Position)
	assert.Equal(t, "beta", o.Bookmaker)
	for _, l := range arb.Legs {
		assert.Equal(t, arb.ID, l.ArbID)
		assert.Equal(t, domain.LegPending, l.Status)
		assert.NotEmpty(t, l.ID)
		assert.Zero(t, math.Mod(l.Stake, 50))
	}
	assert.InDelta(t, a.RawStake*a.Odds, o.RawStake*o.Odds, 1e-6)
	assert.Equal(t, a.Stake+o.Stake, arb.TotalStake)
}

func TestBuildNoArb(t *testing.T) {
	b := newTestBuilder(richWallet("alpha", "beta"))

	tests := []struct {
		name   string
		events []domain.CanonicalEvent
	}{
		{
			name: "same bookmaker",
			events: []domain.CanonicalEvent{{
				EventKey: "m1", Bookmaker: "alpha",
				Markets: []domain.Market{{Category: domain.CategoryTotals, Line: 2.5, Outcomes: []domain.Outcome{
					outcome("o", domain.PositionOver, 2.10),
					outcome("u", domain.PositionUnder, 2.05),
				}}},
			}},
		},
		{
			name: "implied probability over one",
			events: []domain.CanonicalEvent{
				totalsEvent("m1", "alpha", 2.5, outcome("o", domain.PositionOver, 1.90)),
				totalsEvent("m1", "beta", 2.5, outcome("u", domain.PositionUnder, 2.05)),
			},
		},
		{
			name: "different lines",
			events: []domain.CanonicalEvent{
				totalsEvent("m1", "alpha", 2.5, outcome("o", domain.PositionOver, 2.10)),
				totalsEvent("m1", "beta", 3.5, outcome("u", domain.PositionUnder, 2.05)),
			},
		},
		{
			name: "missing opposite",
			events: []domain.CanonicalEvent{
				totalsEvent("m1", "alpha", 2.5, outcome("o", domain.PositionOver, 2.10)),
				totalsEvent("m1", "beta", 2.5, outcome("o2", domain.PositionOver, 2.20)),
			},
		},
		{
			name: "non-positive odds",
			events: []domain.CanonicalEvent{
				totalsEvent("m1", "alpha", 2.5, outcome("o", domain.PositionOver, 0)),
				totalsEvent("m1", "beta", 2.5, outcome("u", domain.PositionUnder, 2.05)),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, b.Build(context.Background(), tt.events))
		})
	}
}

func TestBuildEvaluatesEachPairOnce(t *testing.T) {
	b := newTestBuilder(richWallet("alpha", "beta"))
	events := []domain.CanonicalEvent{
		totalsEvent("m1", "alpha", 2.5,
			outcome("a-over", domain.PositionOver, 2.10),
			outcome("a-under", domain.PositionUnder, 2.05)),
		totalsEvent("m1", "beta", 2.5,
			outcome("b-over", domain.PositionOver, 2.10),
			outcome("b-under", domain.PositionUnder, 2.05)),
	}

	arbs := b.Build(context.Background(), events)
	require.Len(t, arbs, 2)
	for _, arb := range arbs {
		assert.Equal(t, domain.PositionOver, arb.LegA().Position)
		assert.NotEqual(t, arb.LegA().Bookmaker, arb.LegB().Bookmaker)
	}
}

func TestBuildThreeWayIgnoresDraw(t *testing.T) {
	b := newTestBuilder(richWallet("alpha", "beta"))
	events := []domain.CanonicalEvent{
		{EventKey: "m1", Bookmaker: "alpha", Markets: []domain.Market{{
			Category: domain.CategoryResult1X2,
			Outcomes: []domain.Outcome{
				outcome("a-1", domain.PositionPrimary, 2.30),
				outcome("a-x", domain.PositionDraw, 3.40),
			},
		}}},
		{EventKey: "m1", Bookmaker: "beta", Markets: []domain.Market{{
			Category: domain.CategoryResult1X2,
			Outcomes: []domain.Outcome{
				outcome("b-x2", domain.PositionOpposite, 1.90),
				outcome("b-x", domain.PositionDraw, 3.60),
			},
		}}},
	}

	arbs := b.Build(context.Background(), events)
	require.Len(t, arbs, 1)
	assert.Equal(t, "a-1", arbs[0].LegA().OutcomeID)
	assert.Equal(t, "b-x2", arbs[0].LegB().OutcomeID)
}

func TestBuildShouldBet(t *testing.T) {
	events := []domain.CanonicalEvent{
		totalsEvent("m1", "alpha", 2.5, outcome("o", domain.PositionOver, 2.10)),
		totalsEvent("m1", "beta", 2.5, outcome("u", domain.PositionUnder, 2.05)),
	}

	tests := []struct {
		name   string
		wallet domain.Wallet
	}{
		{"one side short", stubWallet{funds: map[string]float64{"alpha": 1e6, "beta": 10}}},
		{"wallet error", stubWallet{err: errors.New("balance api down")}},
		{"no wallet", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arbs := newTestBuilder(tt.wallet).Build(context.Background(), events)
			require.Len(t, arbs, 1)
			assert.False(t, arbs[0].ShouldBet)
		})
	}
}
