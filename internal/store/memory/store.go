// Package memory provides in-process implementations of the persistence
// and funds interfaces, used by tests and by deployments without Postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/surebot/internal/domain"
)

// Store keeps arbs and legs in memory. Legs are stored separately and
// joined back on read, the same way the Postgres store does it.
type Store struct {
	mu   sync.RWMutex
	arbs map[string]*domain.Arb
	legs map[string]domain.Leg
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		arbs: make(map[string]*domain.Arb),
		legs: make(map[string]domain.Leg),
	}
}

// SaveArb upserts arb and its legs. A leg that already reached a terminal
// status is never overwritten by a non-terminal one.
func (s *Store) SaveArb(_ context.Context, arb *domain.Arb) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := arb.Clone()
	for _, l := range c.Legs {
		s.putLegLocked(l)
	}
	c.Legs = nil
	s.arbs[c.ID] = c
	return nil
}

func (s *Store) putLegLocked(l domain.Leg) {
	if cur, ok := s.legs[l.ID]; ok && cur.Status.Terminal() && !l.Status.Terminal() {
		return
	}
	s.legs[l.ID] = l
}

// GetArb returns the arb with its current legs.
func (s *Store) GetArb(_ context.Context, id string) (*domain.Arb, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.arbs[id]
	if !ok {
		return nil, fmt.Errorf("memory: get arb %s: %w", id, domain.ErrNotFound)
	}
	return s.joinLocked(a), nil
}

func (s *Store) joinLocked(a *domain.Arb) *domain.Arb {
	c := a.Clone()
	for _, l := range s.legs {
		if l.ArbID == c.ID {
			c.Legs = append(c.Legs, l)
		}
	}
	domain.SortLegs(c.Legs)
	return c
}

// ListRecent returns the newest arbs first.
func (s *Store) ListRecent(_ context.Context, limit int) ([]*domain.Arb, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Arb, 0, len(s.arbs))
	for _, a := range s.arbs {
		out = append(out, s.joinLocked(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FetchTopCandidates returns ACTIVE arbs with at least minProfitPercent,
// best candidate score first.
func (s *Store) FetchTopCandidates(_ context.Context, minProfitPercent float64, limit int) ([]*domain.Arb, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Arb
	for _, a := range s.arbs {
		if a.Status == domain.ArbActive && a.ProfitPercent >= minProfitPercent {
			out = append(out, s.joinLocked(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CandidateScore() > out[j].CandidateScore() })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetLeg returns a leg by id.
func (s *Store) GetLeg(_ context.Context, id string) (domain.Leg, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.legs[id]
	if !ok {
		return domain.Leg{}, fmt.Errorf("memory: get leg %s: %w", id, domain.ErrNotFound)
	}
	return l, nil
}

// SaveLeg upserts a single leg.
func (s *Store) SaveLeg(_ context.Context, leg domain.Leg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLegLocked(leg)
	return nil
}

var (
	_ domain.ArbStore        = (*Store)(nil)
	_ domain.CandidateSource = (*Store)(nil)
	_ domain.LegStore        = (*Store)(nil)
)
