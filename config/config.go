// Package config loads the process-wide configuration for the sync
// storage admission service from the environment: secrets, per-request
// size/record limits, the HAWK clock-skew tolerance, logging, and the
// batch pool's backing store.
//
// Unlike the single-binary services this code is descended from, this
// package is imported by a request-admission library that is also unit
// tested in isolation, so loading is an explicit Load() call rather than
// a package-level init() that would os.Exit any test binary that merely
// imports the package.
package config

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/vrischmann/envconfig"
)

// LogConfig controls the structured logger wired up in package web.
type LogConfig struct {
	// Level is one of panic, fatal, error, warn, info, debug.
	Level string `envconfig:"default=info"`

	// Mozlog switches the formatter to Mozilla's mozlog JSON envelope.
	Mozlog bool `envconfig:"default=true"`

	// DisableHTTP turns off the per-request access log line entirely.
	DisableHTTP bool `envconfig:"default=false"`

	// OnlyHTTPErrors filters the access log to non-2xx/3xx responses.
	OnlyHTTPErrors bool `envconfig:"default=false"`
}

// ServerLimits are the request-admission limits enforced by C8/C9/C10.
// Field names match the §3 ServerLimits data model; envconfig derives
// SYNC_LIMIT_MAX_POST_RECORDS etc. from the struct nesting below.
type ServerLimits struct {
	MaxRequestBytes       int `envconfig:"default=2097152"`
	MaxPostRecords        int `envconfig:"default=100"`
	MaxPostBytes          int `envconfig:"default=2097152"`
	MaxTotalRecords       int `envconfig:"default=1000"`
	MaxTotalBytes         int `envconfig:"default=20971520"`
	MaxBatchTTL           int `envconfig:"default=7200"`
	MaxRecordPayloadBytes int `envconfig:"default=2097152"`
}

// PoolConfig configures the reference BatchPool (package storage). The
// admission core itself never reads these fields directly.
type PoolConfig struct {
	DSN string `envconfig:"default=:memory:"`
}

// Config is the fully validated, process-wide configuration.
type Config struct {
	Host string `envconfig:"default=0.0.0.0"`
	Port int    `envconfig:"default=8000"`

	// Secrets is an ordered list of master secrets; oldest entries support
	// rotating in a new secret while old tokens are still outstanding.
	Secrets []string

	Log   LogConfig
	Limit ServerLimits
	Pool  PoolConfig

	// HawkTimestampMaxSkewSeconds is intentionally enormous (52 weeks by
	// default, see §4.3/§9): Sync tokens, not the HAWK ts, are the expiry
	// authority.
	HawkTimestampMaxSkewSeconds int `envconfig:"default=31449600"`
}

// Load reads Config from the environment (prefix SYNC_) and validates it.
// Callers should treat a non-nil error as fatal to the process.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.InitWithPrefix(&c, "sync"); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: PORT invalid: %d", c.Port)
	}
	if len(c.Secrets) == 0 {
		return fmt.Errorf("config: SECRETS must have at least one entry")
	}
	switch c.Log.Level {
	case "panic", "fatal", "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("config: LOG_LEVEL must be one of [panic, fatal, error, warn, info, debug], got %q", c.Log.Level)
	}
	if c.Limit.MaxPostRecords < 1 {
		return fmt.Errorf("config: LIMIT_MAX_POST_RECORDS must be >= 1")
	}
	if c.Limit.MaxPostBytes < 1 {
		return fmt.Errorf("config: LIMIT_MAX_POST_BYTES must be >= 1")
	}
	if c.Limit.MaxTotalRecords < 1 {
		return fmt.Errorf("config: LIMIT_MAX_TOTAL_RECORDS must be >= 1")
	}
	if c.Limit.MaxTotalBytes < 1 {
		return fmt.Errorf("config: LIMIT_MAX_TOTAL_BYTES must be >= 1")
	}
	if c.Limit.MaxBatchTTL < 10 {
		return fmt.Errorf("config: LIMIT_MAX_BATCH_TTL must be >= 10")
	}
	if c.Limit.MaxRecordPayloadBytes < 1 {
		return fmt.Errorf("config: LIMIT_MAX_RECORD_PAYLOAD_BYTES must be >= 1")
	}
	if c.HawkTimestampMaxSkewSeconds < 60 {
		return fmt.Errorf("config: HAWK_TIMESTAMP_MAX_SKEW_SECONDS must be >= 60")
	}
	return nil
}

// NewLogger builds a logger at LogConfig.Level. It does not apply the
// Mozlog formatter or the HTTP access-log switches; server.go does that.
func (c *Config) NewLogger() (*log.Logger, error) {
	logger := log.New()
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	return logger, nil
}
