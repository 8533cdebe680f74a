package executor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/surebot/internal/domain"
)

// Registry maps each bookmaker to the queue its execution agent consumes.
// Registration is rare; reads on the dispatch path are concurrent.
type Registry struct {
	mu         sync.RWMutex
	queues     map[string]chan *LegTask
	dispatchMu sync.Mutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]chan *LegTask)}
}

// Register creates the queue for bookmaker, or returns the existing one.
func (r *Registry) Register(bookmaker string, buffer int) <-chan *LegTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.queues[bookmaker]; ok {
		return q
	}
	if buffer <= 0 {
		buffer = 1
	}
	q := make(chan *LegTask, buffer)
	r.queues[bookmaker] = q
	return q
}

// Deregister removes the bookmaker. The queue is not closed; tasks already
// in it stay with the agent that owns it.
func (r *Registry) Deregister(bookmaker string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queues, bookmaker)
}

// Registered reports whether bookmaker has a queue.
func (r *Registry) Registered(bookmaker string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.queues[bookmaker]
	return ok
}

// Bookmakers lists registered bookmakers, sorted.
func (r *Registry) Bookmakers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.queues))
	for b := range r.queues {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// QueueDepths returns the number of pending tasks per bookmaker.
func (r *Registry) QueueDepths() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.queues))
	for b, q := range r.queues {
		out[b] = len(q)
	}
	return out
}

// Dispatch enqueues every task or none. It fails with domain.ErrNoWorker
// when a bookmaker has no queue and domain.ErrWorkerBusy when a queue lacks
// room.
func (r *Registry) Dispatch(tasks []*LegTask) error {
	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()

	need := make(map[string]int, len(tasks))
	for _, t := range tasks {
		q, ok := r.queues[t.Bookmaker]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrNoWorker, t.Bookmaker)
		}
		need[t.Bookmaker]++
		if cap(q)-len(q) < need[t.Bookmaker] {
			return fmt.Errorf("%w: %s", domain.ErrWorkerBusy, t.Bookmaker)
		}
	}
	for _, t := range tasks {
		// Only Dispatch sends, under dispatchMu, so the room checked above
		// cannot shrink.
		r.queues[t.Bookmaker] <- t
	}
	return nil
}
