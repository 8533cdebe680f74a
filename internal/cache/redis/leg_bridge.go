package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/surebot/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LegInstruction is what a remote browser agent receives on
// "surebot:legs:<bookmaker>".
type LegInstruction struct {
	Leg      domain.Leg `json:"leg"`
	ReplyKey string     `json:"reply_key"`
	Deadline time.Time  `json:"deadline,omitempty"`
}

// LegReport is the remote agent's answer, pushed onto the instruction's
// reply key.
type LegReport struct {
	Placed    bool    `json:"placed"`
	Rejected  bool    `json:"rejected,omitempty"`
	Odds      float64 `json:"odds,omitempty"`
	Reference string  `json:"reference,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// InstructionMessage is one instruction read back from a bookmaker stream.
type InstructionMessage struct {
	ID          string
	Instruction LegInstruction
}

// LegBridge places legs through remote browser agents: the instruction is
// appended to the bookmaker's stream and the report is awaited on a
// per-attempt reply list.
type LegBridge struct {
	rdb     *redis.Client
	timeout time.Duration
}

// NewLegBridge creates a LegBridge that waits up to timeout for a report.
func NewLegBridge(c *Client, timeout time.Duration) *LegBridge {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &LegBridge{rdb: c.Underlying(), timeout: timeout}
}

func legStream(bookmaker string) string {
	return "surebot:legs:" + bookmaker
}

// Place sends leg to the bookmaker's remote agent and waits for its report.
func (b *LegBridge) Place(ctx context.Context, leg domain.Leg) (domain.Placement, error) {
	wait := b.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < wait {
			wait = left
		}
	}
	if wait <= 0 {
		return domain.Placement{}, fmt.Errorf("redis: place leg %s: %w", leg.ID, context.DeadlineExceeded)
	}

	ins := LegInstruction{
		Leg:      leg,
		ReplyKey: "surebot:leg_result:" + leg.ID + ":" + uuid.NewString(),
		Deadline: time.Now().Add(wait).UTC(),
	}
	payload, err := json.Marshal(ins)
	if err != nil {
		return domain.Placement{}, fmt.Errorf("redis: encode leg %s: %w", leg.ID, err)
	}
	err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: legStream(leg.Bookmaker),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}).Err()
	if err != nil {
		return domain.Placement{}, fmt.Errorf("redis: send leg %s: %w", leg.ID, err)
	}

	res, err := b.rdb.BLPop(ctx, wait, ins.ReplyKey).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Placement{}, fmt.Errorf("redis: leg %s: no report within %s", leg.ID, wait)
	}
	if err != nil {
		return domain.Placement{}, fmt.Errorf("redis: await leg %s: %w", leg.ID, err)
	}
	if len(res) < 2 {
		return domain.Placement{}, fmt.Errorf("redis: leg %s: empty report", leg.ID)
	}

	var rep LegReport
	if err := json.Unmarshal([]byte(res[1]), &rep); err != nil {
		return domain.Placement{}, fmt.Errorf("redis: decode report for leg %s: %w", leg.ID, err)
	}
	switch {
	case rep.Placed:
		return domain.Placement{Odds: rep.Odds, Reference: rep.Reference}, nil
	case rep.Rejected:
		return domain.Placement{}, fmt.Errorf("%w: %s", domain.ErrBetRejected, rep.Reason)
	default:
		return domain.Placement{}, fmt.Errorf("redis: leg %s: %s", leg.ID, rep.Reason)
	}
}

// ReadInstructions returns instructions for bookmaker after lastID. It is
// the remote agent's side of the bridge. Undecodable entries are skipped.
func (b *LegBridge) ReadInstructions(ctx context.Context, bookmaker, lastID string, count int, block time.Duration) ([]InstructionMessage, error) {
	msgs, err := readStream(ctx, b.rdb, legStream(bookmaker), lastID, count, block)
	if err != nil {
		return nil, fmt.Errorf("redis: read instructions %s: %w", bookmaker, err)
	}
	var out []InstructionMessage
	for _, m := range msgs {
		raw, ok := payloadOf(m)
		if !ok {
			continue
		}
		var ins LegInstruction
		if err := json.Unmarshal(raw, &ins); err != nil {
			continue
		}
		out = append(out, InstructionMessage{ID: m.ID, Instruction: ins})
	}
	return out, nil
}

// Report answers an instruction. The reply list expires if nobody waits.
func (b *LegBridge) Report(ctx context.Context, replyKey string, rep LegReport) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("redis: encode report: %w", err)
	}
	pipe := b.rdb.TxPipeline()
	pipe.RPush(ctx, replyKey, payload)
	pipe.Expire(ctx, replyKey, time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: report %s: %w", replyKey, err)
	}
	return nil
}
