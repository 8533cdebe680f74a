package domain

import (
	"sort"
	"time"
)

// LegStatus is the placement state of one side of an arb.
type LegStatus string

const (
	LegPending LegStatus = "PENDING"
	LegPlaced  LegStatus = "PLACED"
	LegFailed  LegStatus = "FAILED"
	LegWon     LegStatus = "WON"
	LegLost    LegStatus = "LOST"
	LegVoid    LegStatus = "VOID"
)

// Terminal reports whether no further placement can happen for the leg.
// FAILED is not terminal: a failed leg may be re-armed.
func (s LegStatus) Terminal() bool {
	switch s {
	case LegPlaced, LegWon, LegLost, LegVoid:
		return true
	}
	return false
}

// Leg is one side of an Arb, placed with one bookmaker.
type Leg struct {
	ID            string          `json:"id"`
	ArbID         string          `json:"arb_id"`
	Bookmaker     string          `json:"bookmaker"`
	EventKey      string          `json:"event_key"`
	Category      MarketCategory  `json:"category"`
	Line          float64         `json:"line"`
	Position      OutcomePosition `json:"position"`
	OutcomeID     string          `json:"outcome_id"`
	SourceEventID string          `json:"source_event_id"`
	Odds          float64         `json:"odds"`
	RawStake      float64         `json:"raw_stake"`
	Stake         float64         `json:"stake"`
	Status        LegStatus       `json:"status"`
	Attempts      int             `json:"attempts"`
	FailureReason string          `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Payout is the gross return of the obfuscated stake at the leg's odds.
func (l Leg) Payout() float64 {
	return l.Stake * l.Odds
}

// Placement is a bookmaker's confirmation of a placed leg.
type Placement struct {
	Odds      float64 `json:"odds"`
	Reference string  `json:"reference"`
}

// Primary reports whether p is the first-listed side of its pair.
func (p OutcomePosition) Primary() bool {
	switch p {
	case PositionOver, PositionHome, PositionPrimary:
		return true
	}
	return false
}

// SortLegs puts the primary-side leg first, as stores return legs unordered.
func SortLegs(legs []Leg) {
	sort.SliceStable(legs, func(i, j int) bool {
		return legs[i].Position.Primary() && !legs[j].Position.Primary()
	})
}
