package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/workq/job"
)

// InstrumentationName scopes every tracer and meter workq creates.
const InstrumentationName = "github.com/xraph/workq"

// Span and event names.
const (
	SpanExecute     = "workq.job.execute"
	EventReportRace = "workq.job.report_race"
)

// Tracing runs each attempt in a "workq.job.execute" span on the global
// TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(InstrumentationName))
}

// TracingWithTracer runs each attempt in a span from tracer. The span
// carries the claim (worker, lease deadline, queue wait) and the attempt's
// place in the retry budget; a failure adds the outcome it leads to and the
// failure kind.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, SpanExecute,
			trace.WithAttributes(ClaimAttributes(j)...),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		err := next(ctx)
		if err == nil {
			span.SetAttributes(attribute.String("workq.job.outcome", job.OutcomeCompleted.String()))
			span.SetStatus(codes.Ok, "")
			return nil
		}

		span.SetAttributes(
			attribute.String("workq.job.outcome", AttemptOf(j).OnFailure().String()),
			attribute.String("workq.job.failure", FailureKind(err)),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
}

// ClaimAttributes describes a claimed job and the lease it runs under.
func ClaimAttributes(j *job.Job) []attribute.KeyValue {
	attempt := AttemptOf(j)
	attrs := []attribute.KeyValue{
		attribute.String("workq.job.id", j.ID.String()),
		attribute.String("workq.job.type", j.Type),
		attribute.Int("workq.job.attempt", attempt.Number),
		attribute.Int("workq.job.max_retries", attempt.MaxRetries),
		attribute.Bool("workq.job.final_attempt", attempt.Final),
	}
	if !j.WorkerID.IsNil() {
		attrs = append(attrs, attribute.String("workq.worker.id", j.WorkerID.String()))
	}
	if j.LeaseExpiresAt != nil {
		attrs = append(attrs, attribute.String("workq.lease.expires_at", j.LeaseExpiresAt.UTC().Format(time.RFC3339Nano)))
	}
	if wait, ok := queueWait(j); ok {
		attrs = append(attrs, attribute.Int64("workq.job.queue_wait_ms", wait.Milliseconds()))
	}
	return attrs
}

// RecordReportRace adds a report-race event to the span in ctx: op found
// the job no longer in flight under the worker that ran it.
func RecordReportRace(ctx context.Context, j *job.Job, op string) {
	trace.SpanFromContext(ctx).AddEvent(EventReportRace, trace.WithAttributes(
		attribute.String("workq.report.op", op),
		attribute.String("workq.job.id", j.ID.String()),
		attribute.String("workq.worker.id", j.WorkerID.String()),
	))
}
