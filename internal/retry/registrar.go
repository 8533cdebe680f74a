// Package retry re-arms failed legs once their bookmaker quotes an
// acceptable price again.
package retry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/surebot/internal/domain"
	"github.com/alanyoungcy/surebot/internal/metrics"
)

// Config holds the retry policy applied to every registered leg.
type Config struct {
	// Tolerance is a fraction of the target odds (0.02 = 2%).
	Tolerance     float64
	AtLeastTarget bool
	TTL           time.Duration
	MaxAttempts   int
	Logger        *slog.Logger
	Now           func() time.Time
}

type specKey struct {
	bookmaker string
	outcomeID string
}

type entry struct {
	spec domain.RetrySpec
	busy bool
}

// Registrar holds one RetrySpec per (bookmaker, outcome id) and turns fresh
// prices into retry signals.
type Registrar struct {
	cfg     Config
	legs    domain.LegStore
	signals domain.RetrySignalQueue
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	specs map[specKey]*entry
}

// NewRegistrar creates a Registrar that reads and writes legs through legs
// and signals re-armed legs on signals.
func NewRegistrar(cfg Config, legs domain.LegStore, signals domain.RetrySignalQueue) *Registrar {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Registrar{
		cfg:     cfg,
		legs:    legs,
		signals: signals,
		logger:  cfg.Logger.With(slog.String("component", "retry_registrar")),
		now:     cfg.Now,
		specs:   make(map[specKey]*entry),
	}
}

// RegisterFailedLeg stores a spec targeting the leg's odds at failure time.
// Legs without an outcome id or with no attempts left are ignored. It
// reports whether a spec was stored.
func (r *Registrar) RegisterFailedLeg(leg domain.Leg, bookmaker string) bool {
	if leg.OutcomeID == "" || leg.ID == "" {
		return false
	}
	remaining := r.cfg.MaxAttempts - leg.Attempts
	if remaining <= 0 {
		r.logger.Info("leg out of attempts",
			slog.String("leg_id", leg.ID),
			slog.Int("attempts", leg.Attempts),
		)
		return false
	}

	spec := domain.RetrySpec{
		LegID:         leg.ID,
		OutcomeID:     leg.OutcomeID,
		Bookmaker:     bookmaker,
		TargetOdds:    leg.Odds,
		Tolerance:     r.cfg.Tolerance,
		AtLeastTarget: r.cfg.AtLeastTarget,
		CreatedAt:     r.now(),
		TTL:           r.cfg.TTL,
		Remaining:     remaining,
	}
	r.mu.Lock()
	r.specs[specKey{bookmaker, leg.OutcomeID}] = &entry{spec: spec}
	r.mu.Unlock()

	r.logger.Info("failed leg registered",
		slog.String("leg_id", leg.ID),
		slog.String("bookmaker", bookmaker),
		slog.Float64("target_odds", leg.Odds),
		slog.Int("remaining", remaining),
	)
	return true
}

// OnFreshPrice checks every outcome of ev against the specs registered for
// bookmaker and re-arms the legs whose price is acceptable again. It
// returns the number of legs re-armed. With nothing registered it is a
// cheap no-op.
func (r *Registrar) OnFreshPrice(ctx context.Context, ev domain.CanonicalEvent, bookmaker string) int {
	if r.Pending() == 0 {
		return 0
	}
	rearmed := 0
	for _, m := range ev.Markets {
		for _, o := range m.Outcomes {
			e, ok := r.claim(specKey{bookmaker, o.ID}, o.Odds)
			if !ok {
				continue
			}
			if r.rearm(ctx, e, o.Odds) {
				rearmed++
			}
		}
	}
	return rearmed
}

// claim returns the entry for k when its spec is live and accepts fresh,
// marking it busy so concurrent prices cannot re-arm the same leg twice.
func (r *Registrar) claim(k specKey, fresh float64) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.specs[k]
	if !ok || e.busy {
		return nil, false
	}
	switch {
	case e.spec.Expired(r.now()):
		r.evictLocked(k, e, "ttl")
		return nil, false
	case e.spec.Remaining <= 0:
		r.evictLocked(k, e, "exhausted")
		return nil, false
	case !e.spec.Accepts(fresh):
		return nil, false
	}
	e.busy = true
	return e, true
}

func (r *Registrar) rearm(ctx context.Context, e *entry, fresh float64) bool {
	spec := e.spec
	k := specKey{spec.Bookmaker, spec.OutcomeID}
	log := r.logger.With(
		slog.String("leg_id", spec.LegID),
		slog.String("bookmaker", spec.Bookmaker),
	)

	leg, err := r.legs.GetLeg(ctx, spec.LegID)
	if err != nil {
		log.Warn("load leg failed, dropping retry", slog.String("error", err.Error()))
		r.evict(k, e, "load_failed")
		return false
	}
	if leg.Status.Terminal() {
		log.Debug("leg already terminal", slog.String("status", string(leg.Status)))
		r.evict(k, e, "terminal")
		return false
	}

	leg.Odds = fresh
	leg.Status = domain.LegPending
	leg.Attempts++
	leg.FailureReason = ""
	leg.UpdatedAt = r.now()
	if err := r.legs.SaveLeg(ctx, leg); err != nil {
		log.Warn("persist re-armed leg failed, dropping retry", slog.String("error", err.Error()))
		r.evict(k, e, "persist_failed")
		return false
	}
	if err := r.signals.Push(ctx, spec.Bookmaker, leg.ID); err != nil {
		log.Error("retry signal failed, dropping retry", slog.String("error", err.Error()))
		r.evict(k, e, "signal_failed")
		return false
	}
	r.evict(k, e, "")
	metrics.RetryRearmsTotal.WithLabelValues(spec.Bookmaker).Inc()
	log.Info("leg re-armed",
		slog.Float64("target_odds", spec.TargetOdds),
		slog.Float64("fresh_odds", fresh),
		slog.Float64("payout", leg.Payout()),
		slog.Int("attempt", leg.Attempts),
	)
	return true
}

func (r *Registrar) evict(k specKey, e *entry, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked(k, e, reason)
}

// evictLocked removes e unless a newer spec replaced it. An empty reason
// marks a successful re-arm.
func (r *Registrar) evictLocked(k specKey, e *entry, reason string) {
	if r.specs[k] == e {
		delete(r.specs, k)
	}
	if reason != "" {
		metrics.RetryEvictionsTotal.WithLabelValues(reason).Inc()
	}
}

// Sweep evicts expired specs and returns how many were removed.
func (r *Registrar) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	n := 0
	for k, e := range r.specs {
		if !e.busy && e.spec.Expired(now) {
			r.evictLocked(k, e, "ttl")
			n++
		}
	}
	return n
}

// Run sweeps expired specs until ctx is cancelled.
func (r *Registrar) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("expired retries swept", slog.Int("count", n))
			}
		}
	}
}

// Pending returns the number of registered specs.
func (r *Registrar) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.specs)
}

// Signals returns the queue re-armed legs are pushed to.
func (r *Registrar) Signals() domain.RetrySignalQueue {
	return r.signals
}
