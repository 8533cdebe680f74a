// Package oddsmath holds the pure numeric helpers behind arbitrage detection:
// implied-probability arbitrage percentage, profit percentage, proportional
// stake split and stake obfuscation.
package oddsmath

import (
	"math"

	"github.com/shopspring/decimal"
)

// NoArb is returned by ArbitragePercentage for odds that can never form an
// arbitrage.
const NoArb = 100.0

var hundred = decimal.NewFromInt(100)

// validOdds reports whether o is a usable positive decimal price.
func validOdds(o float64) bool {
	return o > 0 && !math.IsInf(o, 0) && !math.IsNaN(o)
}

// ArbitragePercentage returns (1/oddsA + 1/oddsB) * 100 rounded to four
// decimals. Values under 100 indicate an arbitrage. Non-positive odds
// return NoArb.
func ArbitragePercentage(oddsA, oddsB float64) float64 {
	if !validOdds(oddsA) || !validOdds(oddsB) {
		return NoArb
	}
	a := decimal.NewFromInt(1).DivRound(decimal.NewFromFloat(oddsA), 16)
	b := decimal.NewFromInt(1).DivRound(decimal.NewFromFloat(oddsB), 16)
	return a.Add(b).Mul(hundred).Round(4).InexactFloat64()
}

// IsArbitrage reports whether the two prices cover both outcomes for less
// than the combined stake.
func IsArbitrage(oddsA, oddsB float64) bool {
	return ArbitragePercentage(oddsA, oddsB) < NoArb
}

// ProfitPercentage converts an arbitrage percentage into the guaranteed
// return on total stake: (100/arb - 1) * 100.
func ProfitPercentage(arbPercent float64) float64 {
	if !validOdds(arbPercent) {
		return 0
	}
	p := hundred.DivRound(decimal.NewFromFloat(arbPercent), 16).Sub(decimal.NewFromInt(1)).Mul(hundred)
	return p.InexactFloat64()
}

// StakeForLegA splits total so that stakeA/stakeB = oddsB/oddsA, which pays
// out the same amount whichever leg wins. The result is not rounded.
func StakeForLegA(oddsA, oddsB float64, total decimal.Decimal) decimal.Decimal {
	return splitStake(oddsB, oddsA, oddsB, total)
}

// StakeForLegB is the complement of StakeForLegA.
func StakeForLegB(oddsA, oddsB float64, total decimal.Decimal) decimal.Decimal {
	return splitStake(oddsA, oddsA, oddsB, total)
}

func splitStake(other, oddsA, oddsB float64, total decimal.Decimal) decimal.Decimal {
	if !validOdds(oddsA) || !validOdds(oddsB) {
		return decimal.Zero
	}
	sum := decimal.NewFromFloat(oddsA).Add(decimal.NewFromFloat(oddsB))
	return total.Mul(decimal.NewFromFloat(other)).DivRound(sum, 16)
}
