package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path over the built-in defaults,
// loads .env if present, applies SUREBOT_* environment overrides and
// returns the Config. An empty path skips the file. The result has NOT been
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets operators inject secrets and per-host settings at
// deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Detector ──
	setInt(&cfg.Detector.Parallelism, "SUREBOT_DETECTOR_PARALLELISM")
	setDuration(&cfg.Detector.Freshness, "SUREBOT_DETECTOR_FRESHNESS")
	setDuration(&cfg.Detector.DedupTTL, "SUREBOT_DETECTOR_DEDUP_TTL")

	// ── Stake ──
	setFloat64(&cfg.Stake.Total, "SUREBOT_STAKE_TOTAL")
	setFloat64(&cfg.Stake.SwapProbability, "SUREBOT_STAKE_SWAP_PROBABILITY")

	// ── Orchestrator ──
	setDuration(&cfg.Orchestrator.LegTimeout, "SUREBOT_ORCHESTRATOR_LEG_TIMEOUT")
	setFloat64(&cfg.Orchestrator.MinProfitPercent, "SUREBOT_ORCHESTRATOR_MIN_PROFIT_PERCENT")

	// ── Retry ──
	setFloat64(&cfg.Retry.Tolerance, "SUREBOT_RETRY_TOLERANCE")
	setBool(&cfg.Retry.AtLeastTarget, "SUREBOT_RETRY_AT_LEAST_TARGET")
	setDuration(&cfg.Retry.TTL, "SUREBOT_RETRY_TTL")
	setInt(&cfg.Retry.MaxAttempts, "SUREBOT_RETRY_MAX_ATTEMPTS")
	setBool(&cfg.Retry.Durable, "SUREBOT_RETRY_DURABLE")

	// ── Agent ──
	setInt(&cfg.Agent.MaxLegRetries, "SUREBOT_AGENT_MAX_LEG_RETRIES")
	setDuration(&cfg.Agent.RetryBackoff, "SUREBOT_AGENT_RETRY_BACKOFF")
	setDuration(&cfg.Agent.BridgeTimeout, "SUREBOT_AGENT_BRIDGE_TIMEOUT")

	// ── Bookmakers ── (names only; balances come from the store)
	var names []string
	setStringSlice(&names, "SUREBOT_BOOKMAKERS")
	if len(names) > 0 {
		cfg.Bookmakers = cfg.Bookmakers[:0]
		for _, n := range names {
			cfg.Bookmakers = append(cfg.Bookmakers, BookmakerConfig{Name: n})
		}
	}

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SUREBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SUREBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SUREBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SUREBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SUREBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SUREBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SUREBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SUREBOT_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "SUREBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SUREBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SUREBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SUREBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SUREBOT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "SUREBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SUREBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SUREBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SUREBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "SUREBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SUREBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SUREBOT_S3_SECRET_KEY")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SUREBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SUREBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "SUREBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "SUREBOT_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.DiscordWebhookURL, "SUREBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Statuses, "SUREBOT_NOTIFY_STATUSES")

	// ── Top-level ──
	setStr(&cfg.Mode, "SUREBOT_MODE")
	setStr(&cfg.LogLevel, "SUREBOT_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// set, non-empty and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
