package executor

import (
	"context"
	"sync"
)

// Barrier is a rendezvous for a known number of parties. Each party arrives
// at most once; Wait returns when all have arrived or ctx ends. Close tears
// the barrier down so late arrivals are rejected.
type Barrier struct {
	mu      sync.Mutex
	parties int
	arrived map[string]struct{}
	done    chan struct{}
	closed  bool
}

// NewBarrier creates a barrier for parties participants.
func NewBarrier(parties int) *Barrier {
	b := &Barrier{
		parties: parties,
		arrived: make(map[string]struct{}, parties),
		done:    make(chan struct{}),
	}
	if parties <= 0 {
		close(b.done)
	}
	return b
}

// Arrive records party's arrival. It returns false for a repeated arrival
// or after Close.
func (b *Barrier) Arrive(party string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	if _, dup := b.arrived[party]; dup {
		return false
	}
	b.arrived[party] = struct{}{}
	if len(b.arrived) == b.parties {
		close(b.done)
	}
	return true
}

// Wait blocks until every party has arrived or ctx is done.
func (b *Barrier) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once every party has arrived.
func (b *Barrier) Done() <-chan struct{} {
	return b.done
}

// Close rejects further arrivals.
func (b *Barrier) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// Arrived reports the parties that have arrived.
func (b *Barrier) Arrived() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.arrived))
	for p := range b.arrived {
		out = append(out, p)
	}
	return out
}
