package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/xraph/workq"
)

// EnvPrefix prefixes every environment variable Load reads, e.g.
// WORKQ_STORE_DSN for store.dsn.
const EnvPrefix = "WORKQ"

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":   "log.level",
	"log-format":  "log.format",
	"store":       "store.driver",
	"dsn":         "store.dsn",
	"prefix":      "store.prefix",
	"migrate":     "store.migrate",
	"workers":     "worker.count",
	"job-timeout": "worker.job_timeout",
	"backoff":     "backoff.kind",
	"api-addr":    "api.addr",
	"claim-rate":  "worker.claim_rate",
	"poll":        "worker.poll_interval",
	"visibility":  "worker.visibility_timeout",
	"audit":       "audit.enabled",
}

func setDefaults(v *viper.Viper) {
	d := workq.DefaultConfig()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.prefix", "workq")
	v.SetDefault("store.migrate", true)
	v.SetDefault("worker.count", d.WorkerCount)
	v.SetDefault("worker.poll_interval", d.PollInterval)
	v.SetDefault("worker.visibility_timeout", d.VisibilityTimeout)
	v.SetDefault("worker.heartbeat_interval", d.HeartbeatInterval)
	v.SetDefault("worker.recovery_interval", d.RecoveryInterval)
	v.SetDefault("worker.shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("worker.max_retries", d.DefaultMaxRetries)
	v.SetDefault("worker.claim_rate", 0)
	v.SetDefault("worker.claim_burst", 1)
	v.SetDefault("worker.job_timeout", 0)
	v.SetDefault("backoff.kind", "none")
	v.SetDefault("backoff.initial", "1s")
	v.SetDefault("backoff.max", "1m")
	v.SetDefault("api.addr", "")
	v.SetDefault("audit.enabled", false)
}

// Load reads configuration. An empty path looks for workq.yaml in the
// working directory and /etc/workq, and tolerates its absence; an explicit
// path must exist. Flags that were set on the command line override file
// and environment values.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("workq")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/workq")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its validate tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}
