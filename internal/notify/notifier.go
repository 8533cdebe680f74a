// Package notify pushes operator alerts for finished arbs to chat webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/surebot/internal/domain"
)

// Level colours an alert.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// Message is one alert.
type Message struct {
	Title string
	Body  string
	Level Level
}

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Notifier turns terminal arb transitions into alerts for every sender.
// Only statuses in the allowed set are sent; an empty set allows every
// terminal status.
type Notifier struct {
	senders []Sender
	allowed map[domain.ArbStatus]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. statuses are arb status names such as
// "COMPLETED" or "FAILED".
func NewNotifier(senders []Sender, statuses []string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[domain.ArbStatus]bool, len(statuses))
	for _, s := range statuses {
		allowed[domain.ArbStatus(strings.ToUpper(strings.TrimSpace(s)))] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// OnArbStatus sends an alert when arb reaches an allowed terminal status.
func (n *Notifier) OnArbStatus(ctx context.Context, arb *domain.Arb) error {
	if !arb.Status.Terminal() {
		return nil
	}
	if len(n.allowed) > 0 && !n.allowed[arb.Status] {
		n.logger.DebugContext(ctx, "status filtered out",
			slog.String("arb_id", arb.ID),
			slog.String("status", string(arb.Status)),
		)
		return nil
	}
	return n.dispatch(ctx, FormatArb(arb))
}

// FormatArb renders the alert for a finished arb.
func FormatArb(arb *domain.Arb) Message {
	msg := Message{
		Title: fmt.Sprintf("Arb %s %s", arb.ID, arb.Status),
		Level: LevelInfo,
	}
	switch arb.Status {
	case domain.ArbFailed:
		msg.Level = LevelError
	case domain.ArbInsufficientBalance:
		msg.Level = LevelWarn
	}

	var b strings.Builder
	fmt.Fprintf(&b, "event %s, profit %.2f%%, stake %.0f", arb.EventKey, arb.ProfitPercent, arb.TotalStake)
	if arb.Cause != "" {
		fmt.Fprintf(&b, ", cause %s", arb.Cause)
	}
	for _, l := range arb.Legs {
		fmt.Fprintf(&b, "\n%s %s @ %.2f x %.0f: %s", l.Bookmaker, l.Position, l.Odds, l.Stake, l.Status)
		if l.FailureReason != "" {
			fmt.Fprintf(&b, " (%s)", l.FailureReason)
		}
	}
	msg.Body = b.String()
	return msg
}

// dispatch delivers msg to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", msg.Title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
