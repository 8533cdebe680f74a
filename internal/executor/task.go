package executor

import (
	"sync"
	"time"

	"github.com/alanyoungcy/surebot/internal/domain"
	"github.com/alanyoungcy/surebot/internal/metrics"
)

// LegResult is what an execution agent reports for one leg.
type LegResult struct {
	Bookmaker  string
	LegID      string
	Success    bool
	Reason     string
	PlacedOdds float64
	Attempts   int
	At         time.Time
}

// ResultSlot collects one result per bookmaker for an arb. The first write
// per bookmaker wins and nothing is accepted once sealed.
type ResultSlot struct {
	mu      sync.Mutex
	results map[string]LegResult
	sealed  bool
}

func newResultSlot() *ResultSlot {
	return &ResultSlot{results: make(map[string]LegResult)}
}

// Put stores r and reports whether it was accepted.
func (s *ResultSlot) Put(r LegResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return false
	}
	if _, ok := s.results[r.Bookmaker]; ok {
		return false
	}
	s.results[r.Bookmaker] = r
	return true
}

// Seal stops accepting results and returns a copy of those recorded.
func (s *ResultSlot) Seal() map[string]LegResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
	out := make(map[string]LegResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

// LegTask is the unit of work handed to a bookmaker's execution agent.
// The agent must call Complete exactly once, whatever the outcome.
type LegTask struct {
	ArbID     string
	Bookmaker string
	Leg       domain.Leg
	// Partners are the bookmakers of the other legs of the arb.
	Partners []string
	// Deadline is when the orchestrator stops waiting for this arb.
	Deadline time.Time

	results *ResultSlot
	barrier *Barrier
	once    sync.Once
}

// Complete records the result and deregisters from the arb's barrier. Only
// the first call has an effect; it returns false when the result came too
// late to count and was discarded.
func (t *LegTask) Complete(r LegResult) bool {
	accepted := false
	t.once.Do(func() {
		r.Bookmaker = t.Bookmaker
		r.LegID = t.Leg.ID
		if r.At.IsZero() {
			r.At = time.Now().UTC()
		}
		stored := t.results.Put(r)
		arrived := t.barrier.Arrive(t.Bookmaker)
		accepted = stored && arrived
		if !accepted {
			metrics.LateLegResultsTotal.Inc()
		}
	})
	return accepted
}
