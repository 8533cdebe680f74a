// Package feed moves canonical events written by the normalizers into the
// detector and the retry registrar.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/surebot/internal/domain"
	"github.com/alanyoungcy/surebot/internal/metrics"
)

// EventSink receives every decoded event. *arbitrage.Detector satisfies it.
type EventSink interface {
	Submit(ev domain.CanonicalEvent) error
}

// PriceWatcher is told about every fresh price. *retry.Registrar satisfies
// it.
type PriceWatcher interface {
	OnFreshPrice(ctx context.Context, ev domain.CanonicalEvent, bookmaker string) int
}

// IngesterConfig configures a StreamIngester. Sink and Watcher are each
// optional, so detect-only and execute-only processes share the ingester.
type IngesterConfig struct {
	Bus     domain.SignalBus
	Stream  string
	StartID string
	Batch   int
	Block   time.Duration
	Sink    EventSink
	Watcher PriceWatcher
	Logger  *slog.Logger
}

// StreamIngester tails the canonical-event stream.
type StreamIngester struct {
	cfg    IngesterConfig
	lastID string
	logger *slog.Logger
}

// NewStreamIngester creates a StreamIngester. By default it starts at the
// stream tail ("$") and reads 100 events per call, blocking up to a second.
func NewStreamIngester(cfg IngesterConfig) *StreamIngester {
	if cfg.Stream == "" {
		cfg.Stream = domain.StreamCanonicalEvents
	}
	if cfg.StartID == "" {
		cfg.StartID = "$"
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.Block <= 0 {
		cfg.Block = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &StreamIngester{
		cfg:    cfg,
		lastID: cfg.StartID,
		logger: cfg.Logger.With(slog.String("component", "ingester"), slog.String("stream", cfg.Stream)),
	}
}

// Run reads until ctx ends. Read errors are logged and retried after a
// short pause.
func (s *StreamIngester) Run(ctx context.Context) error {
	s.logger.Info("ingester started")
	defer s.logger.Info("ingester stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := s.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("stream read failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// Poll performs one read and handles every message. It returns how many
// messages were read.
func (s *StreamIngester) Poll(ctx context.Context) (int, error) {
	msgs, err := s.cfg.Bus.StreamRead(ctx, s.cfg.Stream, s.lastID, s.cfg.Batch, s.cfg.Block)
	if err != nil {
		return 0, err
	}
	for _, m := range msgs {
		s.lastID = m.ID
		if err := s.handle(ctx, m.Payload); err != nil {
			s.logger.Warn("event dropped",
				slog.String("id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return len(msgs), nil
}

// LastID is the id of the last message read.
func (s *StreamIngester) LastID() string {
	return s.lastID
}

func (s *StreamIngester) handle(ctx context.Context, payload []byte) error {
	var ev domain.CanonicalEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		metrics.EventsRejectedTotal.WithLabelValues("undecodable").Inc()
		return fmt.Errorf("feed: decode: %w", err)
	}
	if strings.TrimSpace(ev.EventKey) == "" || strings.TrimSpace(ev.Bookmaker) == "" {
		metrics.EventsRejectedTotal.WithLabelValues("keyless").Inc()
		return fmt.Errorf("feed: %w: missing event key or bookmaker", domain.ErrInvalidEvent)
	}

	if s.cfg.Watcher != nil {
		if n := s.cfg.Watcher.OnFreshPrice(ctx, ev, ev.Bookmaker); n > 0 {
			s.logger.Info("legs re-armed",
				slog.String("event_key", ev.EventKey),
				slog.String("bookmaker", ev.Bookmaker),
				slog.Int("count", n),
			)
		}
	}
	if s.cfg.Sink != nil {
		if err := s.cfg.Sink.Submit(ev); err != nil && !errors.Is(err, domain.ErrShuttingDown) {
			return err
		}
	}
	return nil
}

// Publish appends ev to the canonical-event stream. Normalizers written in
// Go use it; the tests use it to feed the ingester.
func Publish(ctx context.Context, bus domain.SignalBus, ev domain.CanonicalEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("feed: encode %s/%s: %w", ev.Bookmaker, ev.EventKey, err)
	}
	return bus.StreamAppend(ctx, domain.StreamCanonicalEvents, payload)
}
