package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/surebot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// streamMaxLen caps every stream this package writes (XADD MAXLEN ~).
const streamMaxLen int64 = 10000

// subscriberBuffer is how many status messages a slow subscriber may lag.
const subscriberBuffer = 128

// SignalBus implements domain.SignalBus: Pub/Sub carries arb status
// transitions and a stream carries the canonical events written by the
// normalizers.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish sends payload to channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns the payloads published on channel. The subscription is
// confirmed before Subscribe returns and is closed, together with the
// returned channel, when ctx ends.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := sb.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, subscriberBuffer)
	go relay(ctx, pubsub, out)
	return out, nil
}

func relay(ctx context.Context, pubsub *redis.PubSub, out chan<- []byte) {
	defer close(out)
	defer pubsub.Close()

	in := pubsub.Channel()
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			msg = m
		}
		select {
		case out <- []byte(msg.Payload):
		case <-ctx.Done():
			return
		}
	}
}

// StreamAppend adds payload to stream, trimming it to about streamMaxLen
// entries.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after lastID ("0" for the start,
// "$" for new entries only). A positive block waits that long for data.
// An empty read is a nil slice, not an error.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int, block time.Duration) ([]domain.StreamMessage, error) {
	msgs, err := readStream(ctx, sb.rdb, stream, lastID, count, block)
	if err != nil {
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}
	out := make([]domain.StreamMessage, 0, len(msgs))
	for _, m := range msgs {
		if data, ok := payloadOf(m); ok {
			out = append(out, domain.StreamMessage{ID: m.ID, Payload: data})
		}
	}
	return out, nil
}

// readStream runs XREAD on a single stream; a timed-out block is no data.
func readStream(ctx context.Context, rdb *redis.Client, stream, lastID string, count int, block time.Duration) ([]redis.XMessage, error) {
	args := &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
		Block:   -1,
	}
	if block > 0 {
		args.Block = block
	}
	streams, err := rdb.XRead(ctx, args).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []redis.XMessage
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

// payloadOf extracts the "payload" field every writer in this package sets.
func payloadOf(m redis.XMessage) ([]byte, bool) {
	switch v := m.Values["payload"].(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	}
	return nil, false
}

var _ domain.SignalBus = (*SignalBus)(nil)
