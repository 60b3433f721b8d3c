package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xraph/workq"
	"github.com/xraph/workq/ext"
	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
)

// Pool runs a fixed number of peer dispatchers against one store, plus a
// sweeper that returns jobs with expired leases to pending.
type Pool struct {
	store      job.Store
	executor   *Executor
	extensions *ext.Registry
	logger     *slog.Logger

	concurrency       int
	pollInterval      time.Duration
	visibilityTimeout time.Duration
	heartbeatInterval time.Duration
	recoveryInterval  time.Duration
	claimRate         float64
	claimBurst        int

	mu          sync.Mutex
	running     bool
	dispatchers []*Dispatcher
	stopClaims  context.CancelFunc
	abort       context.CancelFunc
	done        chan struct{}
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of dispatcher loops.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPollInterval sets how long an idle dispatcher waits before polling again.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithVisibilityTimeout sets the lease requested on every claim.
func WithVisibilityTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.visibilityTimeout = d }
}

// WithHeartbeatInterval sets how often running jobs have their lease
// extended. A zero value disables heartbeats.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithRecoveryInterval sets how often expired leases are swept. A zero
// value disables the sweep.
func WithRecoveryInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.recoveryInterval = d }
}

// WithClaimRate caps claims per second across all dispatchers of the pool.
// Zero means unlimited.
func WithClaimRate(perSecond float64, burst int) PoolOption {
	return func(p *Pool) {
		p.claimRate = perSecond
		p.claimBurst = burst
	}
}

// WithConfig applies every pool-related field of cfg.
func WithConfig(cfg workq.Config) PoolOption {
	return func(p *Pool) {
		p.concurrency = cfg.WorkerCount
		p.pollInterval = cfg.PollInterval
		p.visibilityTimeout = cfg.VisibilityTimeout
		p.heartbeatInterval = cfg.HeartbeatInterval
		p.recoveryInterval = cfg.RecoveryInterval
		p.claimRate = cfg.ClaimRate
		p.claimBurst = cfg.ClaimBurst
	}
}

// NewPool creates a worker pool. Defaults come from workq.DefaultConfig.
func NewPool(
	store job.Store,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if extensions == nil {
		extensions = ext.NewRegistry(logger)
	}
	p := &Pool{
		store:      store,
		executor:   executor,
		extensions: extensions,
		logger:     logger,
	}
	WithConfig(workq.DefaultConfig())(p)
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	return p
}

// WorkerIDs returns the identities of the pool's dispatchers. It is empty
// before Start.
func (p *Pool) WorkerIDs() []id.WorkerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]id.WorkerID, len(p.dispatchers))
	for i, d := range p.dispatchers {
		ids[i] = d.WorkerID()
	}
	return ids
}

// Running reports whether the pool has been started and not yet stopped.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start launches the dispatchers and the recovery sweeper. It returns
// immediately; a second call is a no-op.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	claimCtx, stopClaims := context.WithCancel(context.Background())
	jobCtx, abort := context.WithCancel(context.Background())
	p.stopClaims = stopClaims
	p.abort = abort
	p.done = make(chan struct{})

	var limiter *rate.Limiter
	if p.claimRate > 0 {
		burst := p.claimBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(p.claimRate), burst)
	}

	p.dispatchers = make([]*Dispatcher, p.concurrency)
	for i := range p.dispatchers {
		p.dispatchers[i] = NewDispatcher(p.store, p.executor, p.extensions, p.logger,
			WithDispatcherPollInterval(p.pollInterval),
			WithLease(p.visibilityTimeout),
			WithHeartbeat(p.heartbeatInterval),
			WithLimiter(limiter),
			WithBaseContext(jobCtx),
		)
	}

	p.logger.Info("worker pool starting",
		slog.Int("concurrency", p.concurrency),
		slog.Duration("poll_interval", p.pollInterval),
		slog.Duration("visibility_timeout", p.visibilityTimeout),
	)

	var g errgroup.Group
	for _, d := range p.dispatchers {
		g.Go(func() error { return d.Run(claimCtx) })
	}
	if p.recoveryInterval > 0 {
		g.Go(func() error {
			p.recoveryLoop(claimCtx)
			return nil
		})
	}

	done := p.done
	go func() {
		_ = g.Wait() //nolint:errcheck // dispatchers and the sweeper never return errors
		close(done)
	}()

	return nil
}

// Stop stops claiming and waits for running handlers to finish. When ctx
// expires first, the handlers' contexts are cancelled and Stop waits for
// them to return. Stop is a no-op on a pool that is not running.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stopClaims, abort, done := p.stopClaims, p.abort, p.done
	p.mu.Unlock()

	p.logger.Info("worker pool stopping")
	p.extensions.EmitShutdown(ctx)

	stopClaims()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		abort()
		<-done
	}
	abort()

	return nil
}

// Recover runs one lease recovery sweep and returns the recovered job IDs.
func (p *Pool) Recover(ctx context.Context) ([]id.JobID, error) {
	return RecoverExpired(ctx, p.store, p.extensions, p.logger)
}

func (p *Pool) recoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(p.recoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Recover(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("lease recovery failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RecoverExpired returns every in-flight job whose lease has expired to the
// head of pending, logging and emitting JobRecovered for each one. Retry
// counts are left untouched.
func RecoverExpired(ctx context.Context, store job.Store, extensions *ext.Registry, logger *slog.Logger) ([]id.JobID, error) {
	ids, err := store.RecoverExpired(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	for _, jobID := range ids {
		logger.Warn("recovered job with expired lease", slog.String("job_id", jobID.String()))
		if extensions != nil {
			extensions.EmitJobRecovered(ctx, jobID)
		}
	}
	return ids, nil
}
