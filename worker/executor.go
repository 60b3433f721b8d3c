package worker

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/workq"
	"github.com/xraph/workq/backoff"
	"github.com/xraph/workq/ext"
	"github.com/xraph/workq/job"
	"github.com/xraph/workq/middleware"
)

// Executor runs a single claimed job through middleware and the registered
// handler, then reports completion or failure to the store and emits
// lifecycle events.
type Executor struct {
	registry   *job.Registry
	extensions *ext.Registry
	store      job.Store
	backoff    backoff.Strategy
	mw         middleware.Middleware
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies. A nil
// backoff strategy means retries are immediately claimable.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	store job.Store,
	bo backoff.Strategy,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	if bo == nil {
		bo = backoff.DefaultStrategy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if extensions == nil {
		extensions = ext.NewRegistry(logger)
	}
	return &Executor{
		registry:   registry,
		extensions: extensions,
		store:      store,
		backoff:    bo,
		mw:         middleware.Chain(mws...),
		tracer:     otel.Tracer(middleware.InstrumentationName),
		logger:     logger,
	}
}

// SetTracer replaces the tracer for the "workq.job.process" span that
// covers an attempt and its report to the store.
func (e *Executor) SetTracer(t trace.Tracer) {
	if t != nil {
		e.tracer = t
	}
}

// Execute runs j and reports its outcome.
//
// A job whose type has no handler fails with ErrHandlerMissing and takes the
// normal retry path. Handler errors are absorbed: the returned error is
// non-nil only when the outcome could not be reported to the store, in which
// case the job stays in flight until its lease expires.
func (e *Executor) Execute(ctx context.Context, j *job.Job) (outcome job.Outcome, err error) {
	ctx, span := e.tracer.Start(ctx, "workq.job.process",
		trace.WithAttributes(middleware.ClaimAttributes(j)...),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer func() {
		span.SetAttributes(attribute.String("workq.report.outcome", outcome.String()))
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	handler, ok := e.registry.Lookup(j.Type)
	if !ok {
		e.logger.Warn("no handler for job type",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
		)
		return e.fail(ctx, j, workq.ErrHandlerMissing)
	}

	start := time.Now()
	jobErr := e.mw(ctx, j, func(ctx context.Context) error {
		return handler.Handle(ctx, j)
	})
	elapsed := time.Since(start)

	if jobErr != nil {
		return e.fail(ctx, j, jobErr)
	}
	return e.complete(ctx, j, elapsed)
}

// complete reports success. Reports run on a context detached from
// cancellation so a shutdown does not strand a finished job in flight.
func (e *Executor) complete(ctx context.Context, j *job.Job, elapsed time.Duration) (job.Outcome, error) {
	rctx := context.WithoutCancel(ctx)

	ok, err := e.store.Complete(rctx, j.ID, j.WorkerID)
	if err != nil {
		e.logger.Error("failed to report job completion",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("error", err.Error()),
		)
		return job.OutcomeNone, err
	}
	if !ok {
		e.reportRace(rctx, j, "complete")
		return job.OutcomeNone, nil
	}

	j.State = job.StateCompleted
	e.extensions.EmitJobCompleted(rctx, j, elapsed)
	return job.OutcomeCompleted, nil
}

// fail reports a failed attempt. The store decides between retry and
// dead-letter; the backoff delay only matters when the job is retried.
func (e *Executor) fail(ctx context.Context, j *job.Job, jobErr error) (job.Outcome, error) {
	rctx := context.WithoutCancel(ctx)
	attempt := j.RetryCount + 1
	delay := e.backoff.Delay(attempt)

	outcome, err := e.store.Fail(rctx, j.ID, j.WorkerID, jobErr.Error(), delay)
	if err != nil {
		e.logger.Error("failed to report job failure",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.String("error", err.Error()),
		)
		return job.OutcomeNone, err
	}

	if outcome == job.OutcomeNone {
		e.reportRace(rctx, j, "fail")
		return outcome, nil
	}

	j.RetryCount = attempt
	j.ErrorMessage = jobErr.Error()

	switch outcome {
	case job.OutcomeRetried, job.OutcomeScheduled:
		j.State = job.StatePending
		if outcome == job.OutcomeRetried {
			delay = 0
		}
		e.logger.Info("job scheduled for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.Int("retry_count", j.RetryCount),
			slog.Int("max_retries", j.MaxRetries),
			slog.Duration("delay", delay),
		)
		e.extensions.EmitJobRetrying(rctx, j, j.RetryCount, delay)
	case job.OutcomeDeadLettered:
		j.State = job.StateDeadLetter
		e.logger.Warn("job dead-lettered after exhausting retries",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.Int("retry_count", j.RetryCount),
			slog.String("error", jobErr.Error()),
		)
		e.extensions.EmitJobDeadLettered(rctx, j, jobErr)
	}

	return outcome, nil
}

// reportRace logs a report that found no in-flight record held by this
// worker. The job was already resolved, or its lease expired and it was
// recovered, possibly reclaimed by another worker.
func (e *Executor) reportRace(ctx context.Context, j *job.Job, op string) {
	e.logger.Warn("reporting race: job not in flight under this worker",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.Type),
		slog.String("worker_id", j.WorkerID.String()),
		slog.String("op", op),
	)
	middleware.RecordReportRace(ctx, j, op)
	e.extensions.EmitReportRace(ctx, j, op)
}
