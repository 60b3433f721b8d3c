// Package config loads the configuration of the workq binary from a YAML
// file, WORKQ_ environment variables and command-line flags, in increasing
// order of precedence, and validates it.
package config

import (
	"time"

	"github.com/xraph/workq"
	"github.com/xraph/workq/queue"
)

// Config holds all configuration of the workq binary.
type Config struct {
	Log     LogConfig     `mapstructure:"log"     validate:"required"`
	Store   StoreConfig   `mapstructure:"store"   validate:"required"`
	Worker  WorkerConfig  `mapstructure:"worker"  validate:"required"`
	Backoff BackoffConfig `mapstructure:"backoff" validate:"required"`
	API     APIConfig     `mapstructure:"api"`
	Audit   AuditConfig   `mapstructure:"audit"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// StoreConfig selects and addresses the job store backend. DSN is a Redis
// URL, a Postgres connection string, or a SQLite file path.
type StoreConfig struct {
	Driver  string `mapstructure:"driver"  validate:"required,oneof=memory redis postgres sqlite"`
	DSN     string `mapstructure:"dsn"     validate:"required_unless=Driver memory"`
	Prefix  string `mapstructure:"prefix"  validate:"omitempty,max=64"`
	Migrate bool   `mapstructure:"migrate"`
}

// WorkerConfig mirrors workq.Config plus the engine-wide job timeout.
type WorkerConfig struct {
	Count             int           `mapstructure:"count"              validate:"gt=0,lte=1024"`
	PollInterval      time.Duration `mapstructure:"poll_interval"      validate:"gt=0"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout" validate:"gt=0"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"gte=0,ltfield=VisibilityTimeout"`
	RecoveryInterval  time.Duration `mapstructure:"recovery_interval"  validate:"gte=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"   validate:"gte=0"`
	MaxRetries        int           `mapstructure:"max_retries"        validate:"gte=0"`
	ClaimRate         float64       `mapstructure:"claim_rate"         validate:"gte=0"`
	ClaimBurst        int           `mapstructure:"claim_burst"        validate:"gte=0"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"        validate:"gte=0"`

	// Queues sets per-job-type concurrency and rate limits.
	Queues []queue.Config `mapstructure:"queues" validate:"dive"`
}

// BackoffConfig selects the retry delay strategy.
type BackoffConfig struct {
	Kind    string        `mapstructure:"kind"    validate:"oneof=none constant linear exponential jitter"`
	Initial time.Duration `mapstructure:"initial" validate:"gte=0"`
	Max     time.Duration `mapstructure:"max"     validate:"gte=0"`
}

// APIConfig controls the admin HTTP server. An empty Addr disables it.
type APIConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// AuditConfig enables the audit trail of job lifecycle events, written to
// the process log.
type AuditConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Actions []string `mapstructure:"actions" validate:"dive,oneof=job.enqueued job.claimed job.completed job.retrying job.dead_lettered job.recovered job.report_race"`
}

// Engine converts the worker section into a workq.Config.
func (c WorkerConfig) Engine() workq.Config {
	return workq.Config{
		WorkerCount:       c.Count,
		PollInterval:      c.PollInterval,
		VisibilityTimeout: c.VisibilityTimeout,
		HeartbeatInterval: c.HeartbeatInterval,
		RecoveryInterval:  c.RecoveryInterval,
		ShutdownTimeout:   c.ShutdownTimeout,
		DefaultMaxRetries: c.MaxRetries,
		ClaimRate:         c.ClaimRate,
		ClaimBurst:        c.ClaimBurst,
	}
}
