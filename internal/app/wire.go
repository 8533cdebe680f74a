package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/surebot/internal/blob/s3"
	"github.com/alanyoungcy/surebot/internal/cache/redis"
	"github.com/alanyoungcy/surebot/internal/config"
	"github.com/alanyoungcy/surebot/internal/domain"
	"github.com/alanyoungcy/surebot/internal/notify"
	"github.com/alanyoungcy/surebot/internal/retry"
	"github.com/alanyoungcy/surebot/internal/server/handler"
	"github.com/alanyoungcy/surebot/internal/store/memory"
	"github.com/alanyoungcy/surebot/internal/store/postgres"
)

// Dependencies bundles the infrastructure the modes run on. It is built by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	ArbStore   domain.ArbStore
	Candidates domain.CandidateSource
	LegStore   domain.LegStore
	Wallet     domain.Wallet

	// Redis
	LockManager  domain.LockManager
	SignalBus    domain.SignalBus
	RateLimiter  domain.RateLimiter
	RetrySignals domain.RetrySignalQueue
	LegBridge    *redis.LegBridge

	// Status listeners; Archiver is nil when S3 is disabled.
	Publisher *redis.ArbPublisher
	Archiver  *s3blob.Archiver
	Notifier  *notify.Notifier

	// Checks probes every connected backend for /api/health.
	Checks map[string]handler.Check
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- PostgreSQL, or the in-memory store for a single-process run ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		db := pgClient.DB()
		arbs := postgres.NewArbStore(db, cfg.Orchestrator.CandidateMaxAge.Duration)
		deps.ArbStore = arbs
		deps.Candidates = arbs
		deps.LegStore = postgres.NewLegStore(db)
		deps.Wallet = postgres.NewBalanceStore(db)
		deps.Checks["postgres"] = pgClient.Ping
	} else {
		logger.Warn("postgres disabled, arbs and legs are kept in memory")
		store := memory.NewStore()
		deps.ArbStore = store
		deps.Candidates = store
		deps.LegStore = store

		balances := make(map[string]float64, len(cfg.Bookmakers))
		for _, b := range cfg.Bookmakers {
			balances[b.Name] = b.Balance
		}
		deps.Wallet = memory.NewWallet(balances)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Checks["redis"] = redisClient.Ping

	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LegBridge = redis.NewLegBridge(redisClient, cfg.Agent.BridgeTimeout.Duration)
	deps.Publisher = redis.NewArbPublisher(deps.SignalBus)
	if cfg.Retry.Durable {
		deps.RetrySignals = redis.NewRetryQueue(redisClient, cfg.Retry.QueueSize)
	} else {
		deps.RetrySignals = retry.NewQueues(cfg.Retry.QueueSize)
	}

	// --- S3 archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client, 0), cfg.S3.Prefix, logger)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Statuses, logger)

	return deps, cleanup, nil
}
