// Package agent is the execution-agent harness: it consumes the leg tasks
// dispatched to one bookmaker, lines placement up with the partner legs and
// reports results back to the orchestrator and the retry registrar.
package agent

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/surebot/internal/domain"
	"github.com/alanyoungcy/surebot/internal/executor"
	"github.com/alanyoungcy/surebot/internal/metrics"
	"github.com/alanyoungcy/surebot/internal/retry"
	"github.com/alanyoungcy/surebot/internal/windowsync"
)

// Placer puts one leg on the bookmaker's site. A definitive refusal wraps
// domain.ErrBetRejected and is not retried.
type Placer interface {
	Place(ctx context.Context, leg domain.Leg) (domain.Placement, error)
}

// Config configures one bookmaker's agent.
type Config struct {
	Bookmaker        string
	QueueSize        int
	ReadyTimeout     time.Duration
	Backoff          Backoff
	RetryPollTimeout time.Duration
	// PlaceLimit placements per PlaceWindow, enforced when a rate limiter
	// is set.
	PlaceLimit  int
	PlaceWindow time.Duration
}

// Agent drives a Placer for one bookmaker.
type Agent struct {
	cfg       Config
	tasks     <-chan *executor.LegTask
	placer    Placer
	window    *windowsync.Sync
	registrar *retry.Registrar
	legs      domain.LegStore
	limiter   domain.RateLimiter
	logger    *slog.Logger
}

// New registers the bookmaker with registry and returns its agent.
func New(
	cfg Config,
	registry *executor.Registry,
	placer Placer,
	window *windowsync.Sync,
	registrar *retry.Registrar,
	legs domain.LegStore,
	logger *slog.Logger,
) *Agent {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 5 * time.Second
	}
	if cfg.RetryPollTimeout <= 0 {
		cfg.RetryPollTimeout = 2 * time.Second
	}
	return &Agent{
		cfg:       cfg,
		tasks:     registry.Register(cfg.Bookmaker, cfg.QueueSize),
		placer:    placer,
		window:    window,
		registrar: registrar,
		legs:      legs,
		logger: logger.With(
			slog.String("component", "agent"),
			slog.String("bookmaker", cfg.Bookmaker),
		),
	}
}

// SetRateLimiter throttles placements on this bookmaker. Must be called
// before Run.
func (a *Agent) SetRateLimiter(l domain.RateLimiter) {
	if a.cfg.PlaceLimit <= 0 || a.cfg.PlaceWindow <= 0 {
		return
	}
	a.limiter = l
}

// Run consumes dispatched tasks and re-armed legs until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent started")
	defer a.logger.Info("agent stopped")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.taskLoop(ctx) })
	if a.registrar != nil {
		g.Go(func() error { return a.retryLoop(ctx) })
	}
	return g.Wait()
}

func (a *Agent) taskLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-a.tasks:
			a.HandleTask(ctx, task)
		}
	}
}

// HandleTask runs the placement protocol for one task and completes it
// exactly once.
func (a *Agent) HandleTask(ctx context.Context, task *executor.LegTask) {
	if !task.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, task.Deadline)
		defer cancel()
	}
	leg := task.Leg
	log := a.logger.With(
		slog.String("arb_id", task.ArbID),
		slog.String("leg_id", leg.ID),
	)

	a.window.MarkReady(task.ArbID, a.cfg.Bookmaker)
	if !a.window.WaitForPartnersReady(ctx, task.ArbID, a.cfg.Bookmaker, a.cfg.ReadyTimeout) {
		a.fail(ctx, log, task, leg, 0, "partners_not_ready")
		return
	}

	placement, attempts, err := a.place(ctx, leg)
	if err != nil {
		a.fail(ctx, log, task, leg, attempts, err.Error())
		return
	}

	a.window.NotifyBetPlaced(task.ArbID, a.cfg.Bookmaker)
	leg.Status = domain.LegPlaced
	leg.Odds = placement.Odds
	leg.Attempts += attempts
	leg.UpdatedAt = time.Now().UTC()
	a.saveLeg(log, leg)

	if !task.Complete(executor.LegResult{Success: true, PlacedOdds: placement.Odds, Attempts: leg.Attempts}) {
		log.Warn("leg placed after the arb was settled")
	}
	log.Info("leg placed",
		slog.Float64("odds", placement.Odds),
		slog.String("reference", placement.Reference),
	)
}

func (a *Agent) place(ctx context.Context, leg domain.Leg) (domain.Placement, int, error) {
	var placement domain.Placement
	attempts, err := a.cfg.Backoff.Do(ctx, func(ctx context.Context) error {
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx, "place:"+a.cfg.Bookmaker, a.cfg.PlaceLimit, a.cfg.PlaceWindow); err != nil {
				return err
			}
		}
		p, err := a.placer.Place(ctx, leg)
		if err != nil {
			metrics.LegPlacementsTotal.WithLabelValues(a.cfg.Bookmaker, "error").Inc()
			return err
		}
		metrics.LegPlacementsTotal.WithLabelValues(a.cfg.Bookmaker, "placed").Inc()
		placement = p
		return nil
	})
	if err == nil && placement.Odds <= 0 {
		placement.Odds = leg.Odds
	}
	return placement, attempts, err
}

// fail records a failed leg. Unless the partner already failed too, the
// leg is handed to the retry registrar; when the partner has placed its
// bet that retry is the compensation for an unhedged position.
func (a *Agent) fail(ctx context.Context, log *slog.Logger, task *executor.LegTask, leg domain.Leg, attempts int, reason string) {
	partnerPlaced := a.window.HasPartnerPlacedBet(task.ArbID, a.cfg.Bookmaker)
	partnerFailed := a.window.PartnerFailed(task.ArbID, a.cfg.Bookmaker)
	a.window.NotifyBetFailure(task.ArbID, a.cfg.Bookmaker, reason)

	leg.Status = domain.LegFailed
	leg.Attempts += attempts
	leg.FailureReason = reason
	leg.UpdatedAt = time.Now().UTC()
	a.saveLeg(log, leg)

	task.Complete(executor.LegResult{Success: false, Reason: reason, Attempts: leg.Attempts})

	log.Warn("leg failed",
		slog.String("reason", reason),
		slog.Bool("partner_placed", partnerPlaced),
	)
	if partnerFailed || a.registrar == nil {
		return
	}
	if a.registrar.RegisterFailedLeg(leg, a.cfg.Bookmaker) && partnerPlaced {
		log.Warn("partner leg is exposed, compensating retry armed")
	}
}

func (a *Agent) retryLoop(ctx context.Context) error {
	signals := a.registrar.Signals()
	for {
		legID, ok, err := signals.Take(ctx, a.cfg.Bookmaker, a.cfg.RetryPollTimeout)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			a.logger.Warn("retry signal read failed", slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}
		a.HandleRetry(ctx, legID)
	}
}

// HandleRetry re-places a re-armed leg. Signals for legs that are no
// longer PENDING are stale and ignored.
func (a *Agent) HandleRetry(ctx context.Context, legID string) {
	log := a.logger.With(slog.String("leg_id", legID))
	leg, err := a.legs.GetLeg(ctx, legID)
	if err != nil {
		log.Warn("load re-armed leg failed", slog.String("error", err.Error()))
		return
	}
	if leg.Status != domain.LegPending {
		log.Debug("stale retry signal", slog.String("status", string(leg.Status)))
		return
	}

	placement, attempts, err := a.place(ctx, leg)
	leg.UpdatedAt = time.Now().UTC()
	if err != nil {
		leg.Status = domain.LegFailed
		leg.FailureReason = err.Error()
		leg.Attempts += attempts - 1
		a.saveLeg(log, leg)
		log.Warn("retry placement failed", slog.String("error", err.Error()))
		a.registrar.RegisterFailedLeg(leg, a.cfg.Bookmaker)
		return
	}
	leg.Status = domain.LegPlaced
	leg.Odds = placement.Odds
	leg.Attempts += attempts - 1
	a.saveLeg(log, leg)
	log.Info("re-armed leg placed", slog.Float64("odds", placement.Odds))
}

func (a *Agent) saveLeg(log *slog.Logger, leg domain.Leg) {
	if a.legs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.legs.SaveLeg(ctx, leg); err != nil {
		log.Error("persist leg failed", slog.String("error", err.Error()))
	}
}
