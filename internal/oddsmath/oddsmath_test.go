package oddsmath

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArbitragePercentage(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"even money", 2.0, 2.0, 100},
		{"arb", 2.1, 2.1, 95.2381},
		{"no arb", 1.8, 2.0, 105.5556},
		{"zero odds", 0, 2.0, NoArb},
		{"negative odds", -1.5, 3.0, NoArb},
		{"infinite odds", math.Inf(1), 3.0, NoArb},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ArbitragePercentage(tt.a, tt.b), 1e-9)
		})
	}
}

func TestIsArbitrageIffBelowHundred(t *testing.T) {
	assert.True(t, IsArbitrage(2.05, 2.05))
	assert.False(t, IsArbitrage(2.0, 2.0))
	assert.False(t, IsArbitrage(1.5, 2.5))
}

func TestProfitPercentage(t *testing.T) {
	assert.InDelta(t, 5.0, ProfitPercentage(95.2381), 1e-3)
	assert.InDelta(t, 0.0, ProfitPercentage(100), 1e-12)
	assert.Less(t, ProfitPercentage(105), 0.0)
	assert.Equal(t, 0.0, ProfitPercentage(0))
}

func TestStakeSplitEqualisesPayout(t *testing.T) {
	total := decimal.NewFromInt(1000)
	pairs := [][2]float64{{2.1, 2.1}, {1.5, 3.4}, {3.25, 1.45}, {10, 1.12}}
	for _, p := range pairs {
		a := StakeForLegA(p[0], p[1], total)
		b := StakeForLegB(p[0], p[1], total)

		assert.InDelta(t, 1000, a.Add(b).InexactFloat64(), 1e-9)
		payA := a.InexactFloat64() * p[0]
		payB := b.InexactFloat64() * p[1]
		assert.InDelta(t, payA, payB, 1e-6, "odds %v", p)
	}
}

func TestStakeSplitInvalidOdds(t *testing.T) {
	assert.True(t, StakeForLegA(0, 2, decimal.NewFromInt(100)).IsZero())
	assert.True(t, StakeForLegB(2, -1, decimal.NewFromInt(100)).IsZero())
}

// fixedSource makes Float64 deterministic: 0 always swaps, MaxUint64 never does.
type fixedSource uint64

func (s fixedSource) Uint64() uint64 { return uint64(s) }

func TestObfuscateRoundingRules(t *testing.T) {
	o := NewObfuscator(DefaultObfuscatorConfig(), rand.New(fixedSource(math.MaxUint64)))

	tests := []struct {
		in, want float64
	}{
		{730, 750},     // 50 grid is closer below threshold
		{725, 700},     // tie goes to the 100 grid
		{790, 800},     // both grids agree
		{1234, 1200},   // above threshold always 100
		{1260, 1300},   // above threshold always 100
		{10, 50},       // clamped up
		{25000, 10000}, // clamped down
		{99.9, 100},    // floored to 99 then rounded
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, o.Obfuscate(tt.in), "stake %v", tt.in)
	}
}

func TestObfuscateSwapPicksAlternate(t *testing.T) {
	o := NewObfuscator(DefaultObfuscatorConfig(), rand.New(fixedSource(0)))
	assert.Equal(t, 700.0, o.Obfuscate(730))
	assert.Equal(t, 1250.0, o.Obfuscate(1234))
}

func TestObfuscateSwapProbabilityCapped(t *testing.T) {
	cfg := DefaultObfuscatorConfig()
	cfg.SwapProbability = 0.9
	o := NewObfuscator(cfg, nil)
	assert.Equal(t, MaxSwapProbability, o.Config().SwapProbability)
}

func TestObfuscateBoundsProperty(t *testing.T) {
	tests := []struct {
		name     string
		min, max float64
	}{
		{"defaults", 50, 10000},
		{"off-grid min", 75, 2480},
		{"single grid point", 60, 120},
		{"narrow", 140, 160},
		{"exact grid", 100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ObfuscatorConfig{MinStake: tt.min, MaxStake: tt.max, Threshold: 1000, SwapProbability: MaxSwapProbability}
			require.NoError(t, cfg.Validate())
			o := NewObfuscator(cfg, rand.New(rand.NewPCG(1, 2)))

			for stake := 0.0; stake <= 3000; stake += 7.3 {
				got := o.Obfuscate(stake)
				require.GreaterOrEqual(t, got, cfg.MinStake, "stake %v", stake)
				require.LessOrEqual(t, got, cfg.MaxStake, "stake %v", stake)
				require.Zero(t, math.Mod(got, 50), "stake %v -> %v", stake, got)
			}
		})
	}
}

func TestObfuscatorConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultObfuscatorConfig().Validate())
	assert.ErrorContains(t, ObfuscatorConfig{MinStake: 60, MaxStake: 90}.Validate(), "no multiple of 50")
	assert.ErrorContains(t, ObfuscatorConfig{MinStake: 0, MaxStake: 90}.Validate(), "need 0 < min <= max")
	assert.ErrorContains(t, ObfuscatorConfig{MinStake: 200, MaxStake: 100}.Validate(), "need 0 < min <= max")
}
