// Package windowsync is the rendezvous execution agents use to line up the
// moment they place the legs of one arb and to learn what their partners did.
package windowsync

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL bounds how long the state of one arb is kept.
const DefaultTTL = 2 * time.Minute

// Outcome is the terminal placement result a bookmaker reports.
type Outcome string

const (
	OutcomePlaced Outcome = "placed"
	OutcomeFailed Outcome = "failed"
)

// Result is one bookmaker's terminal notification.
type Result struct {
	Outcome Outcome
	Reason  string
	At      time.Time
}

type window struct {
	parties []string // nil when the arb was never opened
	ready   map[string]bool
	results map[string]Result
	changed chan struct{}
	created time.Time
}

func newWindow(parties []string, now time.Time) *window {
	return &window{
		parties: parties,
		ready:   make(map[string]bool),
		results: make(map[string]Result),
		changed: make(chan struct{}),
		created: now,
	}
}

// broadcast wakes every waiter. Callers hold the Sync lock.
func (w *window) broadcast() {
	close(w.changed)
	w.changed = make(chan struct{})
}

func (w *window) partnersReady(self string) bool {
	if w.parties == nil {
		for b := range w.ready {
			if b != self {
				return true
			}
		}
		return false
	}
	for _, b := range w.parties {
		if b != self && !w.ready[b] {
			return false
		}
	}
	return true
}

func (w *window) allTerminal() bool {
	if w.parties == nil {
		return false
	}
	for _, b := range w.parties {
		if _, ok := w.results[b]; !ok {
			return false
		}
	}
	return true
}

// Sync tracks readiness and placement results per arb id and bookmaker.
type Sync struct {
	mu      sync.Mutex
	windows map[string]*window
	ttl     time.Duration
	now     func() time.Time
}

// New creates an empty Sync. A non-positive ttl uses DefaultTTL.
func New(ttl time.Duration) *Sync {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Sync{
		windows: make(map[string]*window),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Open declares the bookmakers taking part in arbID.
func (s *Sync) Open(arbID string, bookmakers []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parties := append([]string(nil), bookmakers...)
	if w, ok := s.windows[arbID]; ok {
		w.parties = parties
		w.broadcast()
		return
	}
	s.windows[arbID] = newWindow(parties, s.now())
}

func (s *Sync) windowLocked(arbID string) *window {
	w, ok := s.windows[arbID]
	if !ok {
		w = newWindow(nil, s.now())
		s.windows[arbID] = w
	}
	return w
}

// MarkReady records that bookmaker is about to place its leg. Repeated
// calls are no-ops.
func (s *Sync) MarkReady(arbID, bookmaker string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windowLocked(arbID)
	if w.ready[bookmaker] {
		return
	}
	w.ready[bookmaker] = true
	w.broadcast()
}

// WaitForPartnersReady blocks until every other party of arbID has marked
// ready, the timeout elapses or ctx ends. It reports whether the partners
// became ready.
func (s *Sync) WaitForPartnersReady(ctx context.Context, arbID, bookmaker string, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		w, ok := s.windows[arbID]
		if !ok {
			s.mu.Unlock()
			return false
		}
		if w.partnersReady(bookmaker) {
			s.mu.Unlock()
			return true
		}
		changed := w.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// NotifyBetPlaced records a successful placement.
func (s *Sync) NotifyBetPlaced(arbID, bookmaker string) {
	s.notify(arbID, bookmaker, Result{Outcome: OutcomePlaced})
}

// NotifyBetFailure records a failed placement.
func (s *Sync) NotifyBetFailure(arbID, bookmaker, reason string) {
	s.notify(arbID, bookmaker, Result{Outcome: OutcomeFailed, Reason: reason})
}

func (s *Sync) notify(arbID, bookmaker string, r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windowLocked(arbID)
	if _, done := w.results[bookmaker]; done {
		return
	}
	r.At = s.now()
	w.results[bookmaker] = r
	w.broadcast()
	if w.allTerminal() {
		delete(s.windows, arbID)
	}
}

// HasPartnerPlacedBet reports whether any other bookmaker of arbID has
// placed its leg.
func (s *Sync) HasPartnerPlacedBet(arbID, bookmaker string) bool {
	return s.partnerHas(arbID, bookmaker, OutcomePlaced)
}

// PartnerFailed reports whether any other bookmaker of arbID reported a
// failed placement.
func (s *Sync) PartnerFailed(arbID, bookmaker string) bool {
	return s.partnerHas(arbID, bookmaker, OutcomeFailed)
}

func (s *Sync) partnerHas(arbID, bookmaker string, outcome Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[arbID]
	if !ok {
		return false
	}
	for b, r := range w.results {
		if b != bookmaker && r.Outcome == outcome {
			return true
		}
	}
	return false
}

// Release drops all state for arbID and wakes its waiters.
func (s *Sync) Release(arbID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[arbID]; ok {
		delete(s.windows, arbID)
		w.broadcast()
	}
}

// Sweep releases windows older than the TTL and returns how many it dropped.
func (s *Sync) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for id, w := range s.windows {
		if now.Sub(w.created) >= s.ttl {
			delete(s.windows, id)
			w.broadcast()
			n++
		}
	}
	return n
}

// Run sweeps expired windows until ctx is cancelled.
func (s *Sync) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// ClearAll drops every window.
func (s *Sync) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.windows {
		delete(s.windows, id)
		w.broadcast()
	}
}

// Len returns the number of tracked arbs.
func (s *Sync) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
