// Package executor dispatches the legs of each arb to per-bookmaker
// execution agents and runs the bounded-time joint-commit wait that decides
// the arb's final status.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/surebot/internal/arbitrage"
	"github.com/alanyoungcy/surebot/internal/domain"
	"github.com/alanyoungcy/surebot/internal/metrics"
	"github.com/alanyoungcy/surebot/internal/windowsync"
)

// Causes recorded on a terminal arb.
const (
	CauseCompleted           = "completed"
	CauseInsufficientBalance = "insufficient_balance"
	CauseNoWorker            = "no_worker"
	CauseWorkerBusy          = "worker_busy"
	CauseLegFailure          = "leg_failure"
	CauseTimeout             = "timeout"
	CauseShutdown            = "shutdown"
)

// OrchestratorConfig configures the orchestrator.
type OrchestratorConfig struct {
	InboxSize  int
	LegTimeout time.Duration
	// ShutdownGrace is how long an in-flight arb may keep waiting after
	// the run context is cancelled.
	ShutdownGrace time.Duration

	// Candidates is polled when the inbox is empty. Optional.
	Candidates       domain.CandidateSource
	MinProfitPercent float64
	CandidateLimit   int
	PollInterval     time.Duration
	// RecentTTL is how long a handled arb id is remembered so a candidate
	// is never handled twice.
	RecentTTL time.Duration

	Registry  *Registry
	Store     domain.ArbStore
	Window    *windowsync.Sync
	Listeners []StatusListener
	Logger    *slog.Logger
	Now       func() time.Time
}

// Orchestrator owns the inbox of candidate arbs and drives each one through
// IN_PROGRESS to a terminal status. A single Run loop processes arbs one at
// a time.
type Orchestrator struct {
	cfg       OrchestratorConfig
	inbox     chan *domain.Arb
	registry  *Registry
	store     domain.ArbStore
	window    *windowsync.Sync
	listeners []StatusListener
	recent    *arbitrage.Dedup
	logger    *slog.Logger
	now       func() time.Time

	closing   chan struct{}
	closeOnce sync.Once
	force     context.Context
	forceStop context.CancelFunc
	started   atomic.Bool
	done      chan struct{}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 64
	}
	if cfg.LegTimeout <= 0 {
		cfg.LegTimeout = 30 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.RecentTTL <= 0 {
		cfg.RecentTTL = 10 * time.Minute
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	force, forceStop := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:       cfg,
		inbox:     make(chan *domain.Arb, cfg.InboxSize),
		registry:  cfg.Registry,
		store:     cfg.Store,
		window:    cfg.Window,
		listeners: cfg.Listeners,
		recent:    arbitrage.NewDedup(cfg.RecentTTL),
		logger:    cfg.Logger.With(slog.String("component", "orchestrator")),
		now:       cfg.Now,
		closing:   make(chan struct{}),
		force:     force,
		forceStop: forceStop,
		done:      make(chan struct{}),
	}
}

// Registry returns the worker registry.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// AddListener registers l. Must be called before Run.
func (o *Orchestrator) AddListener(l StatusListener) {
	o.listeners = append(o.listeners, l)
}

// Offer enqueues arb, blocking while the inbox is full. It returns
// domain.ErrShuttingDown once Stop has been called, including for callers
// already blocked.
func (o *Orchestrator) Offer(ctx context.Context, arb *domain.Arb) error {
	select {
	case <-o.closing:
		return domain.ErrShuttingDown
	default:
	}
	select {
	case o.inbox <- arb:
		metrics.InboxDepth.Set(float64(len(o.inbox)))
		return nil
	case <-o.closing:
		return domain.ErrShuttingDown
	case <-ctx.Done():
		return fmt.Errorf("executor: offer %s: %w", arb.ID, ctx.Err())
	}
}

// TryOffer enqueues arb without blocking and fails with domain.ErrInboxFull
// when there is no room.
func (o *Orchestrator) TryOffer(arb *domain.Arb) error {
	select {
	case <-o.closing:
		return domain.ErrShuttingDown
	default:
	}
	select {
	case o.inbox <- arb:
		metrics.InboxDepth.Set(float64(len(o.inbox)))
		return nil
	default:
		return fmt.Errorf("%w: arb %s", domain.ErrInboxFull, arb.ID)
	}
}

// InboxDepth returns the number of queued arbs.
func (o *Orchestrator) InboxDepth() int {
	return len(o.inbox)
}

// Run processes arbs until ctx is cancelled or Stop is called. Cancelling
// ctx behaves like Stop with the configured grace.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return errors.New("executor: orchestrator already running")
	}
	defer close(o.done)

	o.logger.Info("orchestrator started",
		slog.Int("inbox_size", cap(o.inbox)),
		slog.Duration("leg_timeout", o.cfg.LegTimeout),
	)
	defer o.logger.Info("orchestrator stopped")

	go func() {
		select {
		case <-ctx.Done():
			o.Stop(o.cfg.ShutdownGrace)
		case <-o.done:
		}
	}()

	for {
		if o.isClosing() {
			o.abandonInbox(0)
			return nil
		}
		select {
		case arb := <-o.inbox:
			if !o.start(arb) {
				return nil
			}
			continue
		default:
		}

		if o.pullCandidates(ctx) {
			continue
		}

		timer := time.NewTimer(o.cfg.PollInterval)
		select {
		case <-o.closing:
			timer.Stop()
			o.abandonInbox(0)
			return nil
		case arb := <-o.inbox:
			timer.Stop()
			if !o.start(arb) {
				return nil
			}
		case <-timer.C:
			o.recent.Cleanup()
		}
	}
}

func (o *Orchestrator) isClosing() bool {
	select {
	case <-o.closing:
		return true
	default:
		return false
	}
}

// start handles an arb taken from the inbox unless Stop raced the receive,
// in which case arb is left ACTIVE with the rest of the inbox and start
// reports false.
func (o *Orchestrator) start(arb *domain.Arb) bool {
	metrics.InboxDepth.Set(float64(len(o.inbox)))
	if o.isClosing() {
		o.abandonInbox(1)
		return false
	}
	o.handle(arb)
	return true
}

// pullCandidates processes ranked ACTIVE arbs from the candidate source and
// reports whether any were handled.
func (o *Orchestrator) pullCandidates(ctx context.Context) bool {
	if o.cfg.Candidates == nil {
		return false
	}
	arbs, err := o.cfg.Candidates.FetchTopCandidates(ctx, o.cfg.MinProfitPercent, o.cfg.CandidateLimit)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("fetch candidates failed", slog.String("error", err.Error()))
		}
		return false
	}
	handled := false
	for _, arb := range arbs {
		if o.isClosing() {
			return handled
		}
		if arb.Status != domain.ArbActive {
			continue
		}
		o.handle(arb)
		handled = true
	}
	return handled
}

// abandonInbox logs arbs left queued at shutdown. They are still ACTIVE in
// the store and can be picked up as candidates by the next run. taken counts
// arbs already received but not started.
func (o *Orchestrator) abandonInbox(taken int) {
	n := taken
	for {
		select {
		case <-o.inbox:
			n++
		default:
			if n > 0 {
				o.logger.Warn("arbs left in inbox at shutdown", slog.Int("count", n))
			}
			metrics.InboxDepth.Set(0)
			return
		}
	}
}

func (o *Orchestrator) handle(arb *domain.Arb) {
	if o.recent.IsDuplicate(arb.ID) {
		o.logger.Debug("arb already handled", slog.String("arb_id", arb.ID))
		return
	}
	log := o.logger.With(
		slog.String("arb_id", arb.ID),
		slog.String("event_key", arb.EventKey),
	)

	if err := arb.SetStatus(domain.ArbInProgress, o.now()); err != nil {
		log.Warn("arb not startable", slog.String("error", err.Error()))
		return
	}
	o.persist(log, arb)

	if !arb.ShouldBet {
		o.finish(log, arb, domain.ArbInsufficientBalance, CauseInsufficientBalance)
		return
	}

	deadline := o.now().Add(o.cfg.LegTimeout)
	barrier := NewBarrier(len(arb.Legs))
	slot := newResultSlot()
	tasks := make([]*LegTask, len(arb.Legs))
	bookmakers := arb.Bookmakers()
	for i, leg := range arb.Legs {
		tasks[i] = &LegTask{
			ArbID:     arb.ID,
			Bookmaker: leg.Bookmaker,
			Leg:       leg,
			Partners:  partnersOf(bookmakers, leg.Bookmaker),
			Deadline:  deadline,
			results:   slot,
			barrier:   barrier,
		}
	}

	if o.window != nil {
		o.window.Open(arb.ID, bookmakers)
	}
	if err := o.registry.Dispatch(tasks); err != nil {
		if o.window != nil {
			o.window.Release(arb.ID)
		}
		cause := CauseNoWorker
		if errors.Is(err, domain.ErrWorkerBusy) {
			cause = CauseWorkerBusy
		}
		log.Warn("dispatch rejected", slog.String("error", err.Error()))
		o.finish(log, arb, domain.ArbFailed, cause)
		return
	}
	log.Info("legs dispatched", slog.Any("bookmakers", bookmakers))

	status, cause := o.awaitLegs(log, arb, barrier, slot)
	o.finish(log, arb, status, cause)
}

// awaitLegs is the joint-commit wait. Legs without a result by the deadline
// count as failed for the arb but keep their own status; their agents may
// still finish later.
func (o *Orchestrator) awaitLegs(log *slog.Logger, arb *domain.Arb, barrier *Barrier, slot *ResultSlot) (domain.ArbStatus, string) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(o.force, o.cfg.LegTimeout)
	defer cancel()

	waitErr := barrier.Wait(ctx)
	barrier.Close()
	results := slot.Seal()
	metrics.JointCommitSeconds.Observe(time.Since(start).Seconds())

	now := o.now()
	allPlaced := true
	for i := range arb.Legs {
		leg := &arb.Legs[i]
		r, ok := results[leg.Bookmaker]
		if !ok {
			allPlaced = false
			continue
		}
		leg.UpdatedAt = now
		if r.Attempts > leg.Attempts {
			leg.Attempts = r.Attempts
		}
		if r.Success {
			leg.Status = domain.LegPlaced
			if r.PlacedOdds > 0 {
				leg.Odds = r.PlacedOdds
			}
			continue
		}
		allPlaced = false
		leg.Status = domain.LegFailed
		leg.FailureReason = r.Reason
	}

	switch {
	case waitErr == nil && allPlaced:
		return domain.ArbCompleted, CauseCompleted
	case waitErr == nil:
		return domain.ArbFailed, CauseLegFailure
	case errors.Is(waitErr, context.DeadlineExceeded):
		log.Warn("joint-commit wait timed out",
			slog.Int("arrived", len(barrier.Arrived())),
			slog.Int("legs", len(arb.Legs)),
		)
		return domain.ArbFailed, CauseTimeout
	default:
		return domain.ArbFailed, CauseShutdown
	}
}

func (o *Orchestrator) finish(log *slog.Logger, arb *domain.Arb, status domain.ArbStatus, cause string) {
	if err := arb.SetStatus(status, o.now()); err != nil {
		log.Error("final transition rejected", slog.String("error", err.Error()))
		return
	}
	arb.Cause = cause
	o.persist(log, arb)
	metrics.ArbOutcomesTotal.WithLabelValues(string(status), cause).Inc()
	log.Info("arb finished",
		slog.String("status", string(status)),
		slog.String("cause", cause),
	)
}

// persist saves the arb and fans the transition out to listeners. It runs
// on a fresh context so a shutdown never skips recording a transition.
func (o *Orchestrator) persist(log *slog.Logger, arb *domain.Arb) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if o.store != nil {
		if err := o.store.SaveArb(ctx, arb.Clone()); err != nil {
			log.Error("persist arb failed",
				slog.String("status", string(arb.Status)),
				slog.String("error", err.Error()),
			)
		}
	}
	for _, l := range o.listeners {
		if err := l.OnArbStatus(ctx, arb.Clone()); err != nil {
			log.Warn("status listener failed", slog.String("error", err.Error()))
		}
	}
}

// Stop stops accepting arbs, gives the in-flight arb up to grace to finish
// and then cuts its wait short. It returns once Run has exited and is safe
// to call more than once.
func (o *Orchestrator) Stop(grace time.Duration) {
	o.closeOnce.Do(func() { close(o.closing) })
	if !o.started.Load() {
		o.forceStop()
		return
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-o.done:
	case <-timer.C:
		o.forceStop()
		<-o.done
	}
	o.forceStop()
}

func partnersOf(bookmakers []string, self string) []string {
	out := make([]string, 0, len(bookmakers)-1)
	for _, b := range bookmakers {
		if b != self {
			out = append(out, b)
		}
	}
	return out
}
