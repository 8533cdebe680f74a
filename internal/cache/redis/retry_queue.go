package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/surebot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// boundedPushLua pushes ARGV[1] onto KEYS[1] unless the list already holds
// ARGV[2] entries. Returns the new length, or -1 when full.
const boundedPushLua = `
if redis.call('LLEN', KEYS[1]) >= tonumber(ARGV[2]) then
    return -1
end
return redis.call('LPUSH', KEYS[1], ARGV[1])
`

// RetryQueue implements domain.RetrySignalQueue with one Redis list per
// bookmaker (LPUSH / RPOP), so re-armed legs survive a restart of the
// agent that will place them.
type RetryQueue struct {
	rdb    *redis.Client
	push   *redis.Script
	maxLen int
}

// NewRetryQueue creates a RetryQueue holding at most maxLen ids per
// bookmaker.
func NewRetryQueue(c *Client, maxLen int) *RetryQueue {
	if maxLen <= 0 {
		maxLen = 256
	}
	return &RetryQueue{
		rdb:    c.Underlying(),
		push:   redis.NewScript(boundedPushLua),
		maxLen: maxLen,
	}
}

func retryKey(bookmaker string) string {
	return "surebot:retry:" + bookmaker
}

// Push appends legID to the bookmaker's queue.
func (q *RetryQueue) Push(ctx context.Context, bookmaker, legID string) error {
	n, err := q.push.Run(ctx, q.rdb, []string{retryKey(bookmaker)}, legID, q.maxLen).Int64()
	if err != nil {
		return fmt.Errorf("redis: retry push %s: %w", bookmaker, err)
	}
	if n < 0 {
		return fmt.Errorf("redis: retry push %s: %w", bookmaker, domain.ErrQueueFull)
	}
	return nil
}

// Poll pops the oldest id without blocking.
func (q *RetryQueue) Poll(ctx context.Context, bookmaker string) (string, bool, error) {
	id, err := q.rdb.RPop(ctx, retryKey(bookmaker)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis: retry poll %s: %w", bookmaker, err)
	}
	return id, true, nil
}

// Take waits up to timeout for the oldest id. Redis rounds timeouts below
// one second up to one second.
func (q *RetryQueue) Take(ctx context.Context, bookmaker string, timeout time.Duration) (string, bool, error) {
	if timeout <= 0 {
		return q.Poll(ctx, bookmaker)
	}
	res, err := q.rdb.BRPop(ctx, timeout, retryKey(bookmaker)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis: retry take %s: %w", bookmaker, err)
	}
	// BRPOP replies with [key, value].
	if len(res) < 2 {
		return "", false, nil
	}
	return res[1], true, nil
}

// Size returns the queue length.
func (q *RetryQueue) Size(ctx context.Context, bookmaker string) (int, error) {
	n, err := q.rdb.LLen(ctx, retryKey(bookmaker)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: retry size %s: %w", bookmaker, err)
	}
	return int(n), nil
}

var _ domain.RetrySignalQueue = (*RetryQueue)(nil)
