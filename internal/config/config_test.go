package config_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/xraph/workq/internal/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workq.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != "memory" || cfg.Log.Format != "json" || cfg.Backoff.Kind != "none" {
		t.Errorf("cfg = %+v", cfg)
	}
	ec := cfg.Worker.Engine()
	if ec.WorkerCount != 2 || ec.VisibilityTimeout != 5*time.Minute || ec.DefaultMaxRetries != 3 {
		t.Errorf("engine config = %+v", ec)
	}
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
store:
  driver: redis
  dsn: redis://localhost:6379/0
worker:
  count: 8
  poll_interval: 250ms
  queues:
    - job_type: send-email
      max_concurrency: 4
    - job_type: generate-report
      rate_limit: 0.5
backoff:
  kind: exponential
  initial: 2s
audit:
  enabled: true
  actions: [job.dead_lettered]
`)
	t.Setenv("WORKQ_WORKER_COUNT", "16")
	t.Setenv("WORKQ_STORE_PREFIX", "jobs")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("backoff", "none", "")
	flags.String("dsn", "", "")
	if err := flags.Parse([]string{"--backoff=jitter"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := config.Load(path, flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Store.Driver != "redis" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Worker.PollInterval != 250*time.Millisecond || cfg.Backoff.Initial != 2*time.Second {
		t.Errorf("durations = %s, %s", cfg.Worker.PollInterval, cfg.Backoff.Initial)
	}
	if cfg.Worker.Count != 16 || cfg.Store.Prefix != "jobs" {
		t.Errorf("env override: count=%d prefix=%q", cfg.Worker.Count, cfg.Store.Prefix)
	}
	if len(cfg.Worker.Queues) != 2 || cfg.Worker.Queues[0].MaxConcurrency != 4 || cfg.Worker.Queues[1].RateLimit != 0.5 {
		t.Errorf("queues = %+v", cfg.Worker.Queues)
	}
	if !cfg.Audit.Enabled || len(cfg.Audit.Actions) != 1 {
		t.Errorf("audit = %+v", cfg.Audit)
	}
	if cfg.Backoff.Kind != "jitter" {
		t.Errorf("flag override: backoff=%q", cfg.Backoff.Kind)
	}
	if cfg.Store.DSN != "redis://localhost:6379/0" {
		t.Errorf("unset flag clobbered dsn: %q", cfg.Store.DSN)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "store:\n  driver: cassandra\n"},
		{"dsn required", "store:\n  driver: postgres\n"},
		{"zero workers", "worker:\n  count: 0\n"},
		{"heartbeat exceeds lease", "worker:\n  visibility_timeout: 10s\n  heartbeat_interval: 20s\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"bad api addr", "api:\n  addr: not an address\n"},
		{"queue without type", "worker:\n  queues:\n    - max_concurrency: 2\n"},
		{"unknown audit action", "audit:\n  actions: [job.exploded]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := config.Load(writeFile(t, tt.body), nil); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := config.NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("dropped")
	logger.Warn("kept", "job_id", "job_1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "kept" || rec["job_id"] != "job_1" {
		t.Errorf("record = %v", rec)
	}

	buf.Reset()
	config.NewLogger(config.LogConfig{Level: "info", Format: "text"}, &buf).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output = %q", buf.String())
	}
}
