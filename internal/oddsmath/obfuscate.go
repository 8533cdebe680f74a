package oddsmath

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	// DefaultSwapProbability is how often the alternate rounding is chosen.
	DefaultSwapProbability = 0.18
	// MaxSwapProbability caps SwapProbability.
	MaxSwapProbability = 0.30

	stakeStep = 50.0
)

// ObfuscatorConfig bounds and tunes stake obfuscation.
type ObfuscatorConfig struct {
	MinStake        float64
	MaxStake        float64
	Threshold       float64 // at or above this, the 100-rounding is preferred
	SwapProbability float64
}

// Validate checks that the bounds are positive, ordered and hold at least
// one multiple of 50; obfuscated stakes are always on that grid.
func (c ObfuscatorConfig) Validate() error {
	if c.MinStake <= 0 || c.MaxStake < c.MinStake {
		return fmt.Errorf("need 0 < min <= max, got min=%v max=%v", c.MinStake, c.MaxStake)
	}
	if math.Floor(c.MaxStake/stakeStep)*stakeStep < c.MinStake {
		return fmt.Errorf("no multiple of %v within [%v, %v]", stakeStep, c.MinStake, c.MaxStake)
	}
	return nil
}

// DefaultObfuscatorConfig returns the production defaults.
func DefaultObfuscatorConfig() ObfuscatorConfig {
	return ObfuscatorConfig{
		MinStake:        50,
		MaxStake:        10000,
		Threshold:       1000,
		SwapProbability: DefaultSwapProbability,
	}
}

// Obfuscator rounds stakes to human-looking amounts (multiples of 50 or
// 100) and occasionally picks the other rounding so the stakes do not carry
// a fixed signature. It is safe for concurrent use.
type Obfuscator struct {
	cfg ObfuscatorConfig
	mu  sync.Mutex
	rng *rand.Rand
}

// NewObfuscator builds an Obfuscator. A nil rng is replaced by a time-seeded
// PCG generator.
func NewObfuscator(cfg ObfuscatorConfig, rng *rand.Rand) *Obfuscator {
	if cfg.SwapProbability < 0 {
		cfg.SwapProbability = 0
	}
	if cfg.SwapProbability > MaxSwapProbability {
		cfg.SwapProbability = MaxSwapProbability
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	return &Obfuscator{cfg: cfg, rng: rng}
}

// Config returns the effective configuration.
func (o *Obfuscator) Config() ObfuscatorConfig {
	return o.cfg
}

// Obfuscate returns a stake in [MinStake, MaxStake] that is a multiple of 50.
func (o *Obfuscator) Obfuscate(stake float64) float64 {
	if math.IsNaN(stake) {
		stake = o.cfg.MinStake
	}
	x := math.Floor(math.Min(math.Max(stake, o.cfg.MinStake), o.cfg.MaxStake))

	near50 := roundHalfUp(x/50) * 50
	near100 := roundHalfUp(x/100) * 100

	chosen, alt := near100, near50
	if x < o.cfg.Threshold && math.Abs(x-near50) < math.Abs(x-near100) {
		chosen, alt = near50, near100
	}

	if chosen != alt && o.cfg.SwapProbability > 0 && o.roll() < o.cfg.SwapProbability {
		chosen = alt
	}
	return o.fit(chosen)
}

func (o *Obfuscator) roll() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rng.Float64()
}

// fit pulls v back inside the configured bounds on the 50 grid.
func (o *Obfuscator) fit(v float64) float64 {
	if v < o.cfg.MinStake {
		v = math.Ceil(o.cfg.MinStake/stakeStep) * stakeStep
	}
	if v > o.cfg.MaxStake {
		v = math.Floor(o.cfg.MaxStake/stakeStep) * stakeStep
	}
	return v
}

func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
