package domain

import "time"

// RetrySpec describes a failed leg waiting for an acceptable price to
// reappear on its bookmaker.
type RetrySpec struct {
	LegID         string
	OutcomeID     string
	Bookmaker     string
	TargetOdds    float64
	Tolerance     float64 // fraction, 0.02 = 2%
	AtLeastTarget bool
	CreatedAt     time.Time
	TTL           time.Duration
	Remaining     int
}

// Expired reports whether the spec's TTL has elapsed at now. A zero TTL is
// expired from the moment it is created.
func (s RetrySpec) Expired(now time.Time) bool {
	return !now.Before(s.CreatedAt.Add(s.TTL))
}

// Accepts reports whether fresh odds are close enough to the target to
// re-arm the leg.
func (s RetrySpec) Accepts(fresh float64) bool {
	if fresh <= 0 {
		return false
	}
	if s.AtLeastTarget {
		return fresh >= s.TargetOdds*(1-s.Tolerance)
	}
	diff := fresh - s.TargetOdds
	if diff < 0 {
		diff = -diff
	}
	return diff <= s.TargetOdds*s.Tolerance
}
