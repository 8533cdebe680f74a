package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/surebot/internal/domain"
	"github.com/alanyoungcy/surebot/internal/metrics"
)

// DefaultQueueSize bounds each bookmaker's in-memory signal queue.
const DefaultQueueSize = 256

// Queues is the in-process RetrySignalQueue: one bounded FIFO of leg ids
// per bookmaker, created on first use.
type Queues struct {
	mu     sync.Mutex
	queues map[string]chan string
	size   int
}

// NewQueues creates queues holding up to size ids each.
func NewQueues(size int) *Queues {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queues{queues: make(map[string]chan string), size: size}
}

func (q *Queues) queue(bookmaker string) chan string {
	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.queues[bookmaker]
	if !ok {
		c = make(chan string, q.size)
		q.queues[bookmaker] = c
	}
	return c
}

// Push appends legID without blocking.
func (q *Queues) Push(_ context.Context, bookmaker, legID string) error {
	c := q.queue(bookmaker)
	select {
	case c <- legID:
		metrics.RetryQueueDepth.WithLabelValues(bookmaker).Set(float64(len(c)))
		return nil
	default:
		return fmt.Errorf("retry: push %s: %w", bookmaker, domain.ErrQueueFull)
	}
}

// Poll returns the next id without blocking.
func (q *Queues) Poll(_ context.Context, bookmaker string) (string, bool, error) {
	c := q.queue(bookmaker)
	select {
	case id := <-c:
		metrics.RetryQueueDepth.WithLabelValues(bookmaker).Set(float64(len(c)))
		return id, true, nil
	default:
		return "", false, nil
	}
}

// Take waits up to timeout for the next id.
func (q *Queues) Take(ctx context.Context, bookmaker string, timeout time.Duration) (string, bool, error) {
	c := q.queue(bookmaker)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case id := <-c:
		metrics.RetryQueueDepth.WithLabelValues(bookmaker).Set(float64(len(c)))
		return id, true, nil
	case <-timer.C:
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// Size returns the queued ids for bookmaker.
func (q *Queues) Size(_ context.Context, bookmaker string) (int, error) {
	return len(q.queue(bookmaker)), nil
}

var _ domain.RetrySignalQueue = (*Queues)(nil)
