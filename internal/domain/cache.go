package domain

import (
	"context"
	"time"
)

const (
	// ChannelArbStatus carries every persisted arb transition as JSON.
	ChannelArbStatus = "arb"
	// StreamCanonicalEvents is where normalizers append canonical events.
	StreamCanonicalEvents = "events:canonical"
)

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int, block time.Duration) ([]StreamMessage, error)
}

// RetrySignalQueue holds re-armed leg ids, one FIFO per bookmaker.
type RetrySignalQueue interface {
	Push(ctx context.Context, bookmaker, legID string) error
	// Poll returns the next leg id without blocking; ok is false when empty.
	Poll(ctx context.Context, bookmaker string) (legID string, ok bool, err error)
	// Take blocks up to timeout for the next leg id.
	Take(ctx context.Context, bookmaker string, timeout time.Duration) (legID string, ok bool, err error)
	Size(ctx context.Context, bookmaker string) (int, error)
}

// RateLimiter throttles actions per key with a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}
