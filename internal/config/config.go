// Package config defines the surebot configuration, its defaults and
// validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/surebot/internal/oddsmath"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SUREBOT_* environment variables.
type Config struct {
	Detector     DetectorConfig     `toml:"detector"`
	Stake        StakeConfig        `toml:"stake"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Retry        RetryConfig        `toml:"retry"`
	Window       WindowConfig       `toml:"window"`
	Agent        AgentConfig        `toml:"agent"`
	Bookmakers   []BookmakerConfig  `toml:"bookmakers"`
	Postgres     PostgresConfig     `toml:"postgres"`
	Redis        RedisConfig        `toml:"redis"`
	S3           S3Config           `toml:"s3"`
	Server       ServerConfig       `toml:"server"`
	Notify       NotifyConfig       `toml:"notify"`
	Mode         string             `toml:"mode"`
	LogLevel     string             `toml:"log_level"`
}

// DetectorConfig tunes the event pool and the detection passes.
type DetectorConfig struct {
	Parallelism     int      `toml:"parallelism"`
	Freshness       Duration `toml:"freshness"`
	MaxEventsPerKey int      `toml:"max_events_per_key"`
	SweepInterval   Duration `toml:"sweep_interval"`
	DedupTTL        Duration `toml:"dedup_ttl"`
	// LockTTL bounds the cross-process detection lock; zero disables it.
	LockTTL Duration `toml:"lock_ttl"`
}

// StakeConfig sizes and obfuscates the stake of every arb.
type StakeConfig struct {
	Total           float64 `toml:"total"`
	Min             float64 `toml:"min"`
	Max             float64 `toml:"max"`
	Threshold       float64 `toml:"threshold"`
	SwapProbability float64 `toml:"swap_probability"`
}

// OrchestratorConfig tunes arb execution.
type OrchestratorConfig struct {
	InboxSize        int      `toml:"inbox_size"`
	LegTimeout       Duration `toml:"leg_timeout"`
	ShutdownGrace    Duration `toml:"shutdown_grace"`
	MinProfitPercent float64  `toml:"min_profit_percent"`
	CandidateLimit   int      `toml:"candidate_limit"`
	PollInterval     Duration `toml:"poll_interval"`
	CandidateMaxAge  Duration `toml:"candidate_max_age"`
}

// RetryConfig tunes failed-leg re-arming.
type RetryConfig struct {
	Tolerance     float64  `toml:"tolerance"`
	AtLeastTarget bool     `toml:"at_least_target"`
	TTL           Duration `toml:"ttl"`
	MaxAttempts   int      `toml:"max_attempts"`
	QueueSize     int      `toml:"queue_size"`
	SweepInterval Duration `toml:"sweep_interval"`
	// Durable keeps retry signals in Redis lists instead of memory.
	Durable bool `toml:"durable"`
}

// WindowConfig tunes the cross-agent placement window.
type WindowConfig struct {
	TTL           Duration `toml:"ttl"`
	SweepInterval Duration `toml:"sweep_interval"`
}

// AgentConfig applies to every bookmaker's execution agent.
type AgentConfig struct {
	QueueSize        int      `toml:"queue_size"`
	ReadyTimeout     Duration `toml:"ready_timeout"`
	MaxLegRetries    int      `toml:"max_leg_retries"`
	RetryBackoff     Duration `toml:"retry_backoff"`
	MaxBackoff       Duration `toml:"max_backoff"`
	RetryPollTimeout Duration `toml:"retry_poll_timeout"`
	PlaceLimit       int      `toml:"place_limit"`
	PlaceWindow      Duration `toml:"place_window"`
	// BridgeTimeout is how long a remote agent may take to report a leg.
	BridgeTimeout Duration `toml:"bridge_timeout"`
}

// BookmakerConfig names a bookmaker the execute side drives. Balance seeds
// the in-memory wallet when Postgres is disabled.
type BookmakerConfig struct {
	Name    string  `toml:"name"`
	Balance float64 `toml:"balance"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible archive storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  Duration `toml:"rate_window"`
}

// NotifyConfig holds alert settings.
type NotifyConfig struct {
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	// Statuses limits alerts to these terminal arb statuses; empty means all.
	Statuses []string `toml:"statuses"`
}

// Duration is a time.Duration decoded from TOML strings such as "5s".
type Duration struct {
	time.Duration
}

// D builds a Duration.
func D(d time.Duration) Duration {
	return Duration{d}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Modes.
const (
	ModeDetect  = "detect"
	ModeExecute = "execute"
	ModeFull    = "full"
)

// Defaults returns a Config with every field set to a sensible default.
func Defaults() Config {
	return Config{
		Detector: DetectorConfig{
			Parallelism:     4,
			Freshness:       D(5 * time.Second),
			MaxEventsPerKey: 50,
			SweepInterval:   D(10 * time.Second),
			DedupTTL:        D(30 * time.Second),
			LockTTL:         D(5 * time.Second),
		},
		Stake: StakeConfig{
			Total:           1000,
			Min:             50,
			Max:             10000,
			Threshold:       1000,
			SwapProbability: 0.18,
		},
		Orchestrator: OrchestratorConfig{
			InboxSize:        64,
			LegTimeout:       D(30 * time.Second),
			ShutdownGrace:    D(10 * time.Second),
			MinProfitPercent: 1.0,
			CandidateLimit:   5,
			PollInterval:     D(2 * time.Second),
			CandidateMaxAge:  D(2 * time.Minute),
		},
		Retry: RetryConfig{
			Tolerance:     0.02,
			TTL:           D(10 * time.Minute),
			MaxAttempts:   3,
			QueueSize:     256,
			SweepInterval: D(30 * time.Second),
		},
		Window: WindowConfig{
			TTL:           D(2 * time.Minute),
			SweepInterval: D(30 * time.Second),
		},
		Agent: AgentConfig{
			QueueSize:        4,
			ReadyTimeout:     D(5 * time.Second),
			MaxLegRetries:    3,
			RetryBackoff:     D(500 * time.Millisecond),
			MaxBackoff:       D(5 * time.Second),
			RetryPollTimeout: D(2 * time.Second),
			PlaceLimit:       10,
			PlaceWindow:      D(time.Minute),
			BridgeTimeout:    D(20 * time.Second),
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "surebot",
			User:          "surebot",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Prefix:         "surebot",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:    true,
			Port:       8080,
			RateLimit:  120,
			RateWindow: D(time.Minute),
		},
		Mode:     ModeFull,
		LogLevel: "info",
	}
}

var validModes = map[string]bool{ModeDetect: true, ModeExecute: true, ModeFull: true}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Executes reports whether the mode runs the orchestrator and agents.
func (c *Config) Executes() bool {
	return c.Mode == ModeExecute || c.Mode == ModeFull
}

// Detects reports whether the mode runs ingestion and detection.
func (c *Config) Detects() bool {
	return c.Mode == ModeDetect || c.Mode == ModeFull
}

// BookmakerNames lists the configured bookmakers in order.
func (c *Config) BookmakerNames() []string {
	out := make([]string, len(c.Bookmakers))
	for i, b := range c.Bookmakers {
		out[i] = b.Name
	}
	return out
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if !validModes[c.Mode] {
		add("unknown mode %q (valid: detect, execute, full)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	if c.Detector.Parallelism < 1 {
		add("detector: parallelism must be >= 1")
	}
	if c.Detector.Freshness.Duration <= 0 {
		add("detector: freshness must be > 0")
	}

	if c.Stake.Total <= 0 {
		add("stake: total must be > 0")
	}
	bounds := oddsmath.ObfuscatorConfig{MinStake: c.Stake.Min, MaxStake: c.Stake.Max}
	if err := bounds.Validate(); err != nil {
		add("stake: %v", err)
	}
	if c.Stake.SwapProbability < 0 || c.Stake.SwapProbability > 0.30 {
		add("stake: swap_probability must be within [0, 0.30], got %v", c.Stake.SwapProbability)
	}

	if c.Orchestrator.InboxSize < 1 {
		add("orchestrator: inbox_size must be >= 1")
	}
	if c.Orchestrator.LegTimeout.Duration <= 0 {
		add("orchestrator: leg_timeout must be > 0")
	}

	if c.Retry.Tolerance < 0 {
		add("retry: tolerance must be >= 0")
	}
	if c.Retry.TTL.Duration < 0 {
		add("retry: ttl must be >= 0")
	}
	if c.Retry.MaxAttempts < 1 {
		add("retry: max_attempts must be >= 1")
	}

	if c.Retry.SweepInterval.Duration <= 0 {
		add("retry: sweep_interval must be > 0")
	}
	if c.Window.SweepInterval.Duration <= 0 {
		add("window: sweep_interval must be > 0")
	}

	if c.Agent.MaxLegRetries < 1 {
		add("agent: max_leg_retries must be >= 1")
	}

	seen := make(map[string]bool, len(c.Bookmakers))
	for i, b := range c.Bookmakers {
		name := strings.TrimSpace(b.Name)
		if name == "" {
			add("bookmakers[%d]: name must not be empty", i)
			continue
		}
		if seen[name] {
			add("bookmakers: duplicate name %q", name)
		}
		seen[name] = true
	}
	if c.Executes() && len(c.Bookmakers) < 2 {
		add("bookmakers: mode %s needs at least two bookmakers", c.Mode)
	}

	// Split deployments share arbs through Postgres. Every mode reads the
	// canonical-event stream from Redis.
	if c.Mode != ModeFull && !c.Postgres.Enabled {
		add("postgres: must be enabled for mode %s", c.Mode)
	}
	if !c.Redis.Enabled {
		add("redis: must be enabled for mode %s", c.Mode)
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		add("redis: addr must not be empty")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			add("s3: region must not be empty")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		add("server: port must be 1-65535, got %d", c.Server.Port)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
