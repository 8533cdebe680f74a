package domain

import (
	"fmt"
	"math"
	"time"
)

// ArbStatus is the lifecycle state of an Arb.
type ArbStatus string

const (
	ArbActive              ArbStatus = "ACTIVE"
	ArbInProgress          ArbStatus = "IN_PROGRESS"
	ArbCompleted           ArbStatus = "COMPLETED"
	ArbFailed              ArbStatus = "FAILED"
	ArbInsufficientBalance ArbStatus = "INSUFFICIENT_BALANCE"
)

// Terminal reports whether the status is final.
func (s ArbStatus) Terminal() bool {
	switch s {
	case ArbCompleted, ArbFailed, ArbInsufficientBalance:
		return true
	}
	return false
}

// OddsSnapshot is one entry of the arb's price-drift audit log.
type OddsSnapshot struct {
	OddsA      float64   `json:"odds_a"`
	OddsB      float64   `json:"odds_b"`
	CapturedAt time.Time `json:"captured_at"`
}

// Arb is a detected two-leg arbitrage opportunity. Legs[0] is leg A (the
// primary side), Legs[1] is leg B (the opposite side).
type Arb struct {
	ID            string         `json:"id"`
	EventKey      string         `json:"event_key"`
	Legs          []Leg          `json:"legs"`
	ArbPercent    float64        `json:"arb_percent"`
	ProfitPercent float64        `json:"profit_percent"`
	TotalStake    float64        `json:"total_stake"`
	ShouldBet     bool           `json:"should_bet"`
	Status        ArbStatus      `json:"status"`
	Cause         string         `json:"cause,omitempty"`
	Snapshots     []OddsSnapshot `json:"snapshots"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// LegA returns the primary leg.
func (a *Arb) LegA() Leg { return a.Legs[0] }

// LegB returns the opposite leg.
func (a *Arb) LegB() Leg { return a.Legs[1] }

// Bookmakers lists the bookmaker of every leg, in leg order.
func (a *Arb) Bookmakers() []string {
	out := make([]string, len(a.Legs))
	for i, l := range a.Legs {
		out[i] = l.Bookmaker
	}
	return out
}

var arbTransitions = map[ArbStatus][]ArbStatus{
	ArbActive:     {ArbInProgress},
	ArbInProgress: {ArbCompleted, ArbFailed, ArbInsufficientBalance},
}

// SetStatus moves the arb to next. Terminal states are never left and
// skipping IN_PROGRESS is rejected.
func (a *Arb) SetStatus(next ArbStatus, at time.Time) error {
	for _, allowed := range arbTransitions[a.Status] {
		if allowed == next {
			a.Status = next
			a.UpdatedAt = at
			return nil
		}
	}
	return fmt.Errorf("%w: arb %s %s -> %s", ErrInvalidTransition, a.ID, a.Status, next)
}

// RecordSnapshot appends the current leg odds to the audit log unless they
// equal the most recent entry. It returns true when an entry was added.
func (a *Arb) RecordSnapshot(oddsA, oddsB float64, at time.Time) bool {
	if n := len(a.Snapshots); n > 0 {
		last := a.Snapshots[n-1]
		if last.OddsA == oddsA && last.OddsB == oddsB {
			return false
		}
	}
	a.Snapshots = append(a.Snapshots, OddsSnapshot{OddsA: oddsA, OddsB: oddsB, CapturedAt: at})
	return true
}

// OddsDrift is the largest relative move of either leg's odds between the
// first and the last snapshot.
func (a *Arb) OddsDrift() float64 {
	n := len(a.Snapshots)
	if n < 2 {
		return 0
	}
	first, last := a.Snapshots[0], a.Snapshots[n-1]
	return math.Max(relMove(first.OddsA, last.OddsA), relMove(first.OddsB, last.OddsB))
}

func relMove(from, to float64) float64 {
	if from <= 0 {
		return 0
	}
	return math.Abs(to-from) / from
}

// CandidateScore ranks ACTIVE arbs for proactive execution: profit
// discounted by how far the odds have drifted since detection.
func (a *Arb) CandidateScore() float64 {
	return a.ProfitPercent - 100*a.OddsDrift()
}

// Clone returns a deep copy so stores and listeners never share slices with
// the orchestrator.
func (a *Arb) Clone() *Arb {
	c := *a
	c.Legs = append([]Leg(nil), a.Legs...)
	c.Snapshots = append([]OddsSnapshot(nil), a.Snapshots...)
	return &c
}
