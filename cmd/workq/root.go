package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	audithook "github.com/xraph/workq/audit_hook"
	"github.com/xraph/workq/backoff"
	"github.com/xraph/workq/engine"
	"github.com/xraph/workq/handlers"
	"github.com/xraph/workq/internal/config"
	"github.com/xraph/workq/job"
	"github.com/xraph/workq/store"
	"github.com/xraph/workq/store/memory"
	"github.com/xraph/workq/store/postgres"
	redisstore "github.com/xraph/workq/store/redis"
	"github.com/xraph/workq/store/sqlite"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "workq",
		Short:         "Durable job queue and worker pool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath, cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = config.NewLogger(cfg.Log, cmd.ErrOrStderr())
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to workq.yaml")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "json", "log format: json or text")
	pf.String("store", "memory", "store driver: memory, redis, postgres, sqlite")
	pf.String("dsn", "", "store address: Redis URL, Postgres connection string or SQLite path")
	pf.String("prefix", "workq", "Redis key prefix")
	pf.Bool("migrate", true, "apply store migrations on startup")

	cmd.AddCommand(
		newWorkerCmd(a),
		newEnqueueCmd(a),
		newStatsCmd(a),
		newJobsCmd(a),
		newDLQCmd(a),
		newRecoverCmd(a),
	)
	return cmd
}

// openStore connects to the configured backend. The returned close function
// releases the store and any client it created.
func (a *app) openStore(ctx context.Context) (store.Store, func(), error) {
	sc := a.cfg.Store
	var (
		s       store.Store
		cleanup = func() {}
	)
	switch sc.Driver {
	case "memory":
		s = memory.New()
	case "redis":
		opts, err := goredis.ParseURL(sc.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		s = redisstore.New(client, redisstore.WithPrefix(sc.Prefix), redisstore.WithLogger(a.logger))
		cleanup = func() { _ = client.Close() }
	case "postgres":
		pg, err := postgres.New(ctx, sc.DSN, postgres.WithLogger(a.logger))
		if err != nil {
			return nil, nil, err
		}
		s = pg
	case "sqlite":
		lite, err := sqlite.New(sc.DSN, sqlite.WithLogger(a.logger))
		if err != nil {
			return nil, nil, err
		}
		s = lite
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}

	closeAll := func() {
		if err := s.Close(); err != nil {
			a.logger.Warn("close store", slog.String("error", err.Error()))
		}
		cleanup()
	}
	if err := s.Ping(ctx); err != nil {
		closeAll()
		return nil, nil, err
	}
	if sc.Migrate {
		if err := s.Migrate(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return s, closeAll, nil
}

// newEngine builds an engine over s with the bundled handlers registered.
func (a *app) newEngine(s store.Store) (*engine.Engine, error) {
	bo, err := backoff.FromConfig(a.cfg.Backoff.Kind, a.cfg.Backoff.Initial, a.cfg.Backoff.Max)
	if err != nil {
		return nil, err
	}
	reg := job.NewRegistry()
	if err := handlers.RegisterAll(reg, handlers.Deps{Logger: a.logger}); err != nil {
		return nil, err
	}
	opts := []engine.Option{
		engine.WithConfig(a.cfg.Worker.Engine()),
		engine.WithLogger(a.logger),
		engine.WithBackoff(bo),
		engine.WithJobTimeout(a.cfg.Worker.JobTimeout),
	}
	if len(a.cfg.Worker.Queues) > 0 {
		opts = append(opts, engine.WithQueues(a.cfg.Worker.Queues...))
	}
	if a.cfg.Audit.Enabled {
		var auditOpts []audithook.Option
		if len(a.cfg.Audit.Actions) > 0 {
			auditOpts = append(auditOpts, audithook.WithActions(a.cfg.Audit.Actions...))
		}
		auditOpts = append(auditOpts, audithook.WithLogger(a.logger))
		opts = append(opts, engine.WithExtension(audithook.New(audithook.NewSlogRecorder(a.logger), auditOpts...)))
	}
	return engine.New(s, reg, opts...)
}

// withEngine opens the store, builds an engine and runs fn.
func (a *app) withEngine(ctx context.Context, fn func(*engine.Engine) error) error {
	s, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	eng, err := a.newEngine(s)
	if err != nil {
		return err
	}
	return fn(eng)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
