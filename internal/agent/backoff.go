package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/surebot/internal/domain"
)

// Backoff retries a placement with exponential backoff (x1.5 per attempt,
// capped).
type Backoff struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Do runs fn until it succeeds, returns a permanent error, the attempts run
// out or ctx ends. It returns the number of attempts made.
func (b Backoff) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := b.InitialDelay
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		if errors.Is(err, domain.ErrBetRejected) || attempt == attempts {
			return attempt, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
		delay = time.Duration(float64(delay) * 1.5)
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return attempts, lastErr
}
