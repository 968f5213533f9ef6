// Package config provides configuration for payguard.
package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Ledger backends.
const (
	LedgerSQLite = "sqlite"
	LedgerRedis  = "redis"
)

// Config holds the service configuration, read from environment variables.
type Config struct {
	// Server settings
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Storage
	DatabaseURL string `envconfig:"DATABASE_URL" default:"file:payguard.db?cache=shared&mode=rwc"`
	RulesFile   string `envconfig:"RULES_FILE"`

	// Ledger
	LedgerBackend string `envconfig:"LEDGER_BACKEND" default:"sqlite"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Payment execution; an empty URL selects the mock executor.
	ExecutorURL         string        `envconfig:"EXECUTOR_URL"`
	MockExecutorLatency time.Duration `envconfig:"MOCK_EXECUTOR_LATENCY" default:"200ms"`

	// Timeouts
	ExecutionTimeout  time.Duration `envconfig:"EXECUTION_TIMEOUT" default:"30s"`
	ApprovalTimeout   time.Duration `envconfig:"APPROVAL_TIMEOUT" default:"24h"`
	SweepInterval     time.Duration `envconfig:"SWEEP_INTERVAL" default:"5s"`
	SimulationTimeout time.Duration `envconfig:"SIMULATION_TIMEOUT" default:"1m"`

	// Blast radius fallback when a guard carries no limit.
	DefaultDailyExposure decimal.Decimal `envconfig:"DEFAULT_DAILY_EXPOSURE" default:"10000"`

	// Event stream websocket settings
	WSPingInterval   time.Duration `envconfig:"WS_PING_INTERVAL" default:"30s"`
	WSWriteTimeout   time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"10s"`
	WSReadTimeout    time.Duration `envconfig:"WS_READ_TIMEOUT" default:"60s"`
	WSMaxMessageSize int64         `envconfig:"WS_MAX_MESSAGE_SIZE" default:"4096"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env vars")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	switch c.LedgerBackend {
	case LedgerSQLite, LedgerRedis:
	default:
		return errors.Newf("LEDGER_BACKEND must be %q or %q, got %q", LedgerSQLite, LedgerRedis, c.LedgerBackend)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return errors.Newf("HTTP_PORT out of range: %d", c.HTTPPort)
	}
	if c.ExecutionTimeout <= 0 {
		return errors.New("EXECUTION_TIMEOUT must be positive")
	}
	if c.ApprovalTimeout <= 0 {
		return errors.New("APPROVAL_TIMEOUT must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive")
	}
	if c.SimulationTimeout <= 0 {
		return errors.New("SIMULATION_TIMEOUT must be positive")
	}
	if c.DefaultDailyExposure.IsNegative() {
		return errors.New("DEFAULT_DAILY_EXPOSURE must not be negative")
	}
	return nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
