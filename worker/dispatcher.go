package worker

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/workq/ext"
	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
)

// Dispatcher is a single claim loop. It repeatedly claims the next pending
// job, runs it through the Executor and returns to polling. Dispatchers are
// peers: several may share one store without knowing about each other.
type Dispatcher struct {
	store        job.Store
	executor     *Executor
	extensions   *ext.Registry
	workerID     id.WorkerID
	pollInterval time.Duration
	lease        time.Duration
	heartbeat    time.Duration
	limiter      *rate.Limiter
	base         context.Context
	logger       *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherPollInterval sets how long the dispatcher sleeps when the
// queue is empty or the store fails.
func WithDispatcherPollInterval(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.pollInterval = d }
}

// WithLease sets the visibility timeout requested on every claim.
func WithLease(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.lease = d }
}

// WithHeartbeat sets how often the lease of the running job is extended.
// Zero disables lease extension.
func WithHeartbeat(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.heartbeat = d }
}

// WithLimiter caps the dispatcher's claim rate. A limiter may be shared by
// several dispatchers to cap the whole process.
func WithLimiter(l *rate.Limiter) DispatcherOption {
	return func(disp *Dispatcher) { disp.limiter = l }
}

// WithBaseContext sets the parent context of every handler invocation.
// Cancelling it aborts running handlers; it does not stop the claim loop.
func WithBaseContext(ctx context.Context) DispatcherOption {
	return func(disp *Dispatcher) { disp.base = ctx }
}

// WithWorkerID sets the identity recorded on claimed jobs.
func WithWorkerID(wid id.WorkerID) DispatcherOption {
	return func(disp *Dispatcher) { disp.workerID = wid }
}

// NewDispatcher creates a dispatcher with defaults of a one second poll
// interval and a five minute lease extended every 100 seconds.
func NewDispatcher(
	store job.Store,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...DispatcherOption,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if extensions == nil {
		extensions = ext.NewRegistry(logger)
	}
	d := &Dispatcher{
		store:        store,
		executor:     executor,
		extensions:   extensions,
		workerID:     id.NewWorkerID(),
		pollInterval: time.Second,
		lease:        5 * time.Minute,
		heartbeat:    100 * time.Second,
		base:         context.Background(),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WorkerID returns the identity this dispatcher claims jobs under.
func (d *Dispatcher) WorkerID() id.WorkerID { return d.workerID }

// Run loops until ctx is cancelled. Cancellation stops new claims; a handler
// that is already running finishes first. Run always returns nil.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Debug("dispatcher started", slog.String("worker_id", d.workerID.String()))
	defer d.logger.Debug("dispatcher stopped", slog.String("worker_id", d.workerID.String()))

	for {
		if ctx.Err() != nil {
			return nil
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return nil //nolint:nilerr // cancelled while waiting for a token
			}
		}

		dispatched, err := d.Poll(ctx)
		if err != nil {
			d.logger.Error("claim failed",
				slog.String("worker_id", d.workerID.String()),
				slog.String("error", err.Error()),
			)
			d.sleep(ctx)
			continue
		}
		if !dispatched {
			d.sleep(ctx)
		}
	}
}

// Poll performs one Claiming step. It reports whether a job was claimed and
// dispatched. The error is non-nil only when the claim itself failed.
func (d *Dispatcher) Poll(ctx context.Context) (bool, error) {
	j, err := d.store.Claim(ctx, d.workerID, d.lease)
	if err != nil {
		return false, err
	}
	if j == nil {
		return false, nil
	}

	d.dispatch(j)
	return true, nil
}

// dispatch runs a claimed job with its lease kept alive.
func (d *Dispatcher) dispatch(j *job.Job) {
	ctx, cancel := context.WithCancel(d.base)
	defer cancel()

	d.extensions.EmitJobClaimed(ctx, j)

	stop := d.keepAlive(ctx, j)
	outcome, err := d.executor.Execute(ctx, j)
	stop()

	if err != nil {
		d.logger.Error("job outcome not reported",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("error", err.Error()),
		)
		return
	}
	d.logger.Debug("job dispatched",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.String("outcome", outcome.String()),
	)
}

// keepAlive extends the job's lease every heartbeat until the returned stop
// function is called.
func (d *Dispatcher) keepAlive(ctx context.Context, j *job.Job) (stop func()) {
	if d.heartbeat <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(d.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := d.store.ExtendLease(context.WithoutCancel(ctx), j.ID, d.workerID, d.lease)
				switch {
				case err != nil:
					d.logger.Warn("lease extension failed",
						slog.String("job_id", j.ID.String()),
						slog.String("error", err.Error()),
					)
				case !ok:
					d.logger.Warn("lease lost",
						slog.String("job_id", j.ID.String()),
						slog.String("worker_id", d.workerID.String()),
					)
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}

func (d *Dispatcher) sleep(ctx context.Context) {
	t := time.NewTimer(d.pollInterval)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
