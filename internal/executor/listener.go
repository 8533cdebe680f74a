package executor

import (
	"context"

	"github.com/alanyoungcy/surebot/internal/domain"
)

// StatusListener is told about every persisted arb transition. Listeners
// receive a copy and must not block for long.
type StatusListener interface {
	OnArbStatus(ctx context.Context, arb *domain.Arb) error
}

// StatusListenerFunc adapts a function to StatusListener.
type StatusListenerFunc func(ctx context.Context, arb *domain.Arb) error

// OnArbStatus calls f.
func (f StatusListenerFunc) OnArbStatus(ctx context.Context, arb *domain.Arb) error {
	return f(ctx, arb)
}
