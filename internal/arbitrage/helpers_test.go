package arbitrage

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/surebot/internal/domain"
)

type stubWallet struct {
	funds map[string]float64
	err   error
}

func (w stubWallet) Balance(_ context.Context, bookmaker string) (float64, error) {
	return w.funds[bookmaker], w.err
}

func (w stubWallet) CanAfford(_ context.Context, bookmaker string, amount float64) (bool, error) {
	if w.err != nil {
		return false, w.err
	}
	return w.funds[bookmaker] >= amount, nil
}

func richWallet(books ...string) stubWallet {
	w := stubWallet{funds: map[string]float64{}}
	for _, b := range books {
		w.funds[b] = 1e6
	}
	return w
}

type recordingStore struct {
	mu   sync.Mutex
	arbs map[string]*domain.Arb
}

func newRecordingStore() *recordingStore {
	return &recordingStore{arbs: map[string]*domain.Arb{}}
}

func (s *recordingStore) SaveArb(_ context.Context, arb *domain.Arb) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arbs[arb.ID] = arb.Clone()
	return nil
}

func (s *recordingStore) GetArb(_ context.Context, id string) (*domain.Arb, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.arbs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *recordingStore) ListRecent(context.Context, int) ([]*domain.Arb, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Arb, 0, len(s.arbs))
	for _, a := range s.arbs {
		out = append(out, a.Clone())
	}
	return out, nil
}

func (s *recordingStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.arbs)
}

type recordingSink struct {
	mu   sync.Mutex
	arbs []*domain.Arb
	err  error
}

func (s *recordingSink) TryOffer(arb *domain.Arb) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.arbs = append(s.arbs, arb)
	return nil
}

func (s *recordingSink) offered() []*domain.Arb {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Arb(nil), s.arbs...)
}

// totalsEvent builds a single totals market event with the given outcomes.
func totalsEvent(key, bookmaker string, line float64, outcomes ...domain.Outcome) domain.CanonicalEvent {
	return domain.CanonicalEvent{
		EventKey:    key,
		Bookmaker:   bookmaker,
		LastUpdated: time.Now(),
		Markets: []domain.Market{{
			Category: domain.CategoryTotals,
			Line:     line,
			Outcomes: outcomes,
		}},
	}
}

func outcome(id string, pos domain.OutcomePosition, odds float64) domain.Outcome {
	return domain.Outcome{ID: id, SourceEventID: "src-" + id, Position: pos, Odds: odds}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
