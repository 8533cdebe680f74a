package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/surebot/internal/agent"
	"github.com/alanyoungcy/surebot/internal/arbitrage"
	"github.com/alanyoungcy/surebot/internal/executor"
	"github.com/alanyoungcy/surebot/internal/feed"
	"github.com/alanyoungcy/surebot/internal/oddsmath"
	"github.com/alanyoungcy/surebot/internal/retry"
	"github.com/alanyoungcy/surebot/internal/server"
	"github.com/alanyoungcy/surebot/internal/server/handler"
	"github.com/alanyoungcy/surebot/internal/server/ws"
	"github.com/alanyoungcy/surebot/internal/windowsync"
)

const serverShutdownTimeout = 5 * time.Second

// execution is the execute side of the pipeline: the orchestrator, the
// shared placement window, the retry registrar and one agent per bookmaker.
type execution struct {
	orch      *executor.Orchestrator
	window    *windowsync.Sync
	registrar *retry.Registrar
	agents    []*agent.Agent
}

// DetectMode ingests canonical events, pools them and persists every
// detected arb as ACTIVE for an execute process to pick up.
func (a *App) DetectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting detect mode")

	g, ctx := errgroup.WithContext(ctx)

	det := a.buildDetector(deps, nil)
	ing := feed.NewStreamIngester(feed.IngesterConfig{
		Bus:    deps.SignalBus,
		Sink:   det,
		Logger: a.logger,
	})

	g.Go(func() error { return det.Run(ctx) })
	g.Go(func() error { return ing.Run(ctx) })
	a.serve(ctx, g, deps, det, nil)

	return g.Wait()
}

// ExecuteMode pulls ranked ACTIVE arbs from the store, drives them through
// the agents and re-arms failed legs from the price stream.
func (a *App) ExecuteMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting execute mode")

	g, ctx := errgroup.WithContext(ctx)

	ex := a.buildExecution(deps)
	ing := feed.NewStreamIngester(feed.IngesterConfig{
		Bus:     deps.SignalBus,
		Watcher: ex.registrar,
		Logger:  a.logger,
	})

	a.runExecution(ctx, g, ex)
	g.Go(func() error { return ing.Run(ctx) })
	a.serve(ctx, g, deps, nil, ex)

	err := g.Wait()
	a.teardown(ex)
	return err
}

// FullMode runs detection and execution in one process; detected arbs go
// straight into the orchestrator's inbox.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	ex := a.buildExecution(deps)
	det := a.buildDetector(deps, ex.orch)
	ing := feed.NewStreamIngester(feed.IngesterConfig{
		Bus:     deps.SignalBus,
		Sink:    det,
		Watcher: ex.registrar,
		Logger:  a.logger,
	})

	a.runExecution(ctx, g, ex)
	g.Go(func() error { return det.Run(ctx) })
	g.Go(func() error { return ing.Run(ctx) })
	a.serve(ctx, g, deps, det, ex)

	err := g.Wait()
	a.teardown(ex)
	return err
}

// buildDetector assembles pool, builder and detector. sink may be nil.
func (a *App) buildDetector(deps *Dependencies, sink arbitrage.Sink) *arbitrage.Detector {
	dc := a.cfg.Detector
	builder := arbitrage.NewBuilder(arbitrage.BuilderConfig{
		TotalStake: a.cfg.Stake.Total,
		Obfuscator: oddsmath.NewObfuscator(oddsmath.ObfuscatorConfig{
			MinStake:        a.cfg.Stake.Min,
			MaxStake:        a.cfg.Stake.Max,
			Threshold:       a.cfg.Stake.Threshold,
			SwapProbability: a.cfg.Stake.SwapProbability,
		}, nil),
		Wallet: deps.Wallet,
		Logger: a.logger,
	})

	cfg := arbitrage.DetectorConfig{
		Pool: arbitrage.NewPool(arbitrage.PoolConfig{
			MaxPerKey: dc.MaxEventsPerKey,
			Freshness: dc.Freshness.Duration,
		}),
		Builder:       builder,
		Store:         deps.ArbStore,
		Sink:          sink,
		Parallelism:   dc.Parallelism,
		SweepInterval: dc.SweepInterval.Duration,
		DedupTTL:      dc.DedupTTL.Duration,
		Logger:        a.logger,
	}
	if dc.LockTTL.Duration > 0 {
		cfg.Lock = deps.LockManager
		cfg.LockTTL = dc.LockTTL.Duration
	}
	return arbitrage.NewDetector(cfg)
}

// buildExecution registers one agent per configured bookmaker against a
// fresh orchestrator. Placement goes through the Redis leg bridge.
func (a *App) buildExecution(deps *Dependencies) *execution {
	oc, rc, ac := a.cfg.Orchestrator, a.cfg.Retry, a.cfg.Agent

	window := windowsync.New(a.cfg.Window.TTL.Duration)
	registrar := retry.NewRegistrar(retry.Config{
		Tolerance:     rc.Tolerance,
		AtLeastTarget: rc.AtLeastTarget,
		TTL:           rc.TTL.Duration,
		MaxAttempts:   rc.MaxAttempts,
		Logger:        a.logger,
	}, deps.LegStore, deps.RetrySignals)

	listeners := []executor.StatusListener{deps.Publisher, deps.Notifier}
	if deps.Archiver != nil {
		listeners = append(listeners, deps.Archiver)
	}

	orch := executor.NewOrchestrator(executor.OrchestratorConfig{
		InboxSize:        oc.InboxSize,
		LegTimeout:       oc.LegTimeout.Duration,
		ShutdownGrace:    oc.ShutdownGrace.Duration,
		Candidates:       deps.Candidates,
		MinProfitPercent: oc.MinProfitPercent,
		CandidateLimit:   oc.CandidateLimit,
		PollInterval:     oc.PollInterval.Duration,
		Store:            deps.ArbStore,
		Window:           window,
		Listeners:        listeners,
		Logger:           a.logger,
	})

	ex := &execution{orch: orch, window: window, registrar: registrar}
	for _, bm := range a.cfg.BookmakerNames() {
		ag := agent.New(agent.Config{
			Bookmaker:    bm,
			QueueSize:    ac.QueueSize,
			ReadyTimeout: ac.ReadyTimeout.Duration,
			Backoff: agent.Backoff{
				MaxAttempts:  ac.MaxLegRetries,
				InitialDelay: ac.RetryBackoff.Duration,
				MaxDelay:     ac.MaxBackoff.Duration,
			},
			RetryPollTimeout: ac.RetryPollTimeout.Duration,
			PlaceLimit:       ac.PlaceLimit,
			PlaceWindow:      ac.PlaceWindow.Duration,
		}, orch.Registry(), deps.LegBridge, window, registrar, deps.LegStore, a.logger)
		ag.SetRateLimiter(deps.RateLimiter)
		ex.agents = append(ex.agents, ag)
	}
	return ex
}

// runExecution starts the execute side on g. Agents outlive ctx until the
// orchestrator has drained so the in-flight arb can still settle within
// its shutdown grace.
func (a *App) runExecution(ctx context.Context, g *errgroup.Group, ex *execution) {
	agentCtx, stopAgents := context.WithCancel(context.WithoutCancel(ctx))

	g.Go(func() error {
		defer stopAgents()
		return ex.orch.Run(ctx)
	})
	for _, ag := range ex.agents {
		g.Go(func() error {
			if err := ag.Run(agentCtx); err != nil && agentCtx.Err() == nil {
				return err
			}
			return nil
		})
	}
	g.Go(func() error { return ex.window.Run(ctx, a.cfg.Window.SweepInterval.Duration) })
	g.Go(func() error { return ex.registrar.Run(ctx, a.cfg.Retry.SweepInterval.Duration) })
}

// teardown clears the process-wide execution state once every goroutine has
// returned.
func (a *App) teardown(ex *execution) {
	for _, bm := range ex.orch.Registry().Bookmakers() {
		ex.orch.Registry().Deregister(bm)
	}
	ex.window.ClearAll()
	a.logger.Info("execution state cleared")
}

// serve starts the HTTP API when enabled. det and ex may be nil depending on
// the mode.
func (a *App) serve(ctx context.Context, g *errgroup.Group, deps *Dependencies, det *arbitrage.Detector, ex *execution) {
	if !a.cfg.Server.Enabled {
		return
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Checks, a.logger),
		Status: handler.NewStatusHandler(a.cfg.Mode, a.startedAt, a.statusFunc(deps, det, ex)),
		Arbs:   handler.NewArbHandler(deps.ArbStore, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error { return hub.Run(ctx) })
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func (a *App) statusFunc(deps *Dependencies, det *arbitrage.Detector, ex *execution) handler.StatusFunc {
	return func(ctx context.Context) handler.Status {
		var s handler.Status
		if det != nil {
			s.PoolGroups = det.Pool().Groups()
			s.DetectorInflight = det.Inflight()
		}
		if ex == nil {
			return s
		}
		s.InboxDepth = ex.orch.InboxDepth()
		s.Workers = ex.orch.Registry().QueueDepths()
		s.RetryPending = ex.registrar.Pending()
		s.RetryQueues = make(map[string]int, len(a.cfg.Bookmakers))
		for _, bm := range a.cfg.BookmakerNames() {
			n, err := deps.RetrySignals.Size(ctx, bm)
			if err != nil {
				a.logger.WarnContext(ctx, "retry queue size unavailable",
					slog.String("bookmaker", bm),
					slog.String("error", err.Error()),
				)
				continue
			}
			s.RetryQueues[bm] = n
		}
		return s
	}
}
