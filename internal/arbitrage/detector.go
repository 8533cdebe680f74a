package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/surebot/internal/domain"
	"github.com/alanyoungcy/surebot/internal/metrics"
)

// Sink receives detected arbs without blocking. The orchestrator implements it.
type Sink interface {
	TryOffer(arb *domain.Arb) error
}

// OpportunityBuilder turns a snapshot of one logical event into arbs.
type OpportunityBuilder interface {
	Build(ctx context.Context, events []domain.CanonicalEvent) []*domain.Arb
}

// DetectorConfig configures the detector.
type DetectorConfig struct {
	Pool    *Pool
	Builder OpportunityBuilder
	// Store persists every emitted arb before it is offered. Optional.
	Store domain.ArbStore
	// Sink receives emitted arbs. Optional in detect-only deployments.
	Sink Sink
	// Lock serializes detection of one key across processes. Optional.
	Lock          domain.LockManager
	LockTTL       time.Duration
	Parallelism   int
	SweepInterval time.Duration
	DedupTTL      time.Duration
	Logger        *slog.Logger
}

// keyState tracks one logical event's detection. pending is set when an
// insert arrives while a pass is running so the pass loops once more.
type keyState struct {
	pending bool
}

// Detector schedules detection passes per logical event key. At most one
// pass runs per key; inserts that race a running pass coalesce into a single
// follow-up pass that sees them.
type Detector struct {
	pool    *Pool
	builder OpportunityBuilder
	store   domain.ArbStore
	sink    Sink
	lock    domain.LockManager
	lockTTL time.Duration
	sweep   time.Duration
	dedup   *Dedup
	sem     *semaphore.Weighted
	logger  *slog.Logger

	mu       sync.Mutex
	inflight map[string]*keyState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDetector creates a Detector. Passes start as soon as events are
// submitted; Run drives the sweep and owns shutdown.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Detector{
		pool:     cfg.Pool,
		builder:  cfg.Builder,
		store:    cfg.Store,
		sink:     cfg.Sink,
		lock:     cfg.Lock,
		lockTTL:  cfg.LockTTL,
		sweep:    cfg.SweepInterval,
		dedup:    NewDedup(cfg.DedupTTL),
		sem:      semaphore.NewWeighted(int64(cfg.Parallelism)),
		logger:   cfg.Logger.With(slog.String("component", "arb_detector")),
		inflight: make(map[string]*keyState),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Submit pools ev and schedules a detection pass once two or more
// bookmakers hold fresh prices for its key. Invalid events are logged and
// rejected.
func (d *Detector) Submit(ev domain.CanonicalEvent) error {
	if d.ctx.Err() != nil {
		return domain.ErrShuttingDown
	}
	sources, err := d.pool.Add(ev)
	if err != nil {
		metrics.EventsRejectedTotal.WithLabelValues("invalid").Inc()
		d.logger.Warn("event rejected",
			slog.String("bookmaker", ev.Bookmaker),
			slog.String("event_key", ev.EventKey),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("arbitrage: submit: %w", err)
	}
	metrics.EventsIngestedTotal.WithLabelValues(ev.Bookmaker).Inc()
	if sources >= 2 {
		d.trigger(ev.EventKey)
	}
	return nil
}

func (d *Detector) trigger(key string) {
	d.mu.Lock()
	if d.ctx.Err() != nil {
		d.mu.Unlock()
		return
	}
	if st, ok := d.inflight[key]; ok {
		st.pending = true
		d.mu.Unlock()
		return
	}
	d.inflight[key] = &keyState{}
	d.wg.Add(1)
	d.mu.Unlock()

	go d.runKey(key)
}

func (d *Detector) runKey(key string) {
	defer d.wg.Done()
	for {
		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			d.release(key)
			return
		}
		d.detect(key)
		d.sem.Release(1)

		d.mu.Lock()
		st := d.inflight[key]
		if st.pending && d.ctx.Err() == nil {
			st.pending = false
			d.mu.Unlock()
			continue
		}
		delete(d.inflight, key)
		d.mu.Unlock()
		return
	}
}

func (d *Detector) release(key string) {
	d.mu.Lock()
	delete(d.inflight, key)
	d.mu.Unlock()
}

func (d *Detector) detect(key string) {
	start := time.Now()
	err := d.detectOnce(key)
	metrics.DetectionDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DetectionPassesTotal.WithLabelValues("error").Inc()
		d.logger.Warn("detection failed",
			slog.String("event_key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	metrics.DetectionPassesTotal.WithLabelValues("ok").Inc()
}

func (d *Detector) detectOnce(key string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("arbitrage: detect %s: panic: %v", key, r)
		}
	}()

	if d.lock != nil {
		unlock, err := d.lock.Acquire(d.ctx, "detect:"+key, d.lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			d.logger.Debug("detection held elsewhere", slog.String("event_key", key))
			return nil
		}
		if err != nil {
			return fmt.Errorf("arbitrage: detect %s: %w", key, err)
		}
		defer unlock()
	}

	events := d.pool.Snapshot(key)
	if len(events) < 2 {
		return nil
	}
	for _, arb := range d.builder.Build(d.ctx, events) {
		d.emit(arb)
	}
	return nil
}

func (d *Detector) emit(arb *domain.Arb) {
	if d.dedup.IsDuplicate(Fingerprint(arb)) {
		metrics.ArbsDroppedTotal.WithLabelValues("duplicate").Inc()
		return
	}
	metrics.ArbsDetectedTotal.Inc()
	metrics.ArbProfitPercent.Observe(arb.ProfitPercent)

	log := d.logger.With(
		slog.String("arb_id", arb.ID),
		slog.String("event_key", arb.EventKey),
	)
	log.Info("arb detected",
		slog.String("bookmaker_a", arb.LegA().Bookmaker),
		slog.Float64("odds_a", arb.LegA().Odds),
		slog.String("bookmaker_b", arb.LegB().Bookmaker),
		slog.Float64("odds_b", arb.LegB().Odds),
		slog.Float64("profit_pct", arb.ProfitPercent),
		slog.Bool("should_bet", arb.ShouldBet),
	)

	if d.store != nil {
		if err := d.store.SaveArb(d.ctx, arb.Clone()); err != nil {
			log.Warn("persist arb failed", slog.String("error", err.Error()))
		}
	}
	if d.sink == nil {
		return
	}
	if err := d.sink.TryOffer(arb); err != nil {
		metrics.ArbsDroppedTotal.WithLabelValues(dropReason(err)).Inc()
		log.Warn("arb not offered", slog.String("error", err.Error()))
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInboxFull):
		return "inbox_full"
	case errors.Is(err, domain.ErrShuttingDown):
		return "shutting_down"
	default:
		return "error"
	}
}

// Run sweeps stale events until ctx is cancelled, then stops scheduling
// passes and waits for running ones.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info("arb detector started")
	defer d.logger.Info("arb detector stopped")

	ticker := time.NewTicker(d.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.Close()
			return ctx.Err()
		case <-ticker.C:
			events, groups := d.pool.Sweep()
			d.dedup.Cleanup()
			if events > 0 {
				d.logger.Debug("pool swept",
					slog.Int("events", events),
					slog.Int("groups", groups),
				)
			}
		}
	}
}

// Close stops new passes and waits for running ones. It is idempotent.
func (d *Detector) Close() {
	d.mu.Lock()
	d.cancel()
	d.mu.Unlock()
	d.wg.Wait()
}

// Wait blocks until no pass is running or scheduled. Used by tests and by
// detect-only shutdown.
func (d *Detector) Wait() {
	d.wg.Wait()
}

// Inflight returns the number of keys with a running or scheduled pass.
func (d *Detector) Inflight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// Pool returns the event pool.
func (d *Detector) Pool() *Pool {
	return d.pool
}
