package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/workq/job"
)

// Metrics records attempts on the global MeterProvider.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(InstrumentationName))
}

// MetricsWithMeter records attempts on meter:
//
//   - workq.job.executions: attempts by job_type and outcome
//     (completed, retried, dead_lettered), plus failure on failed attempts
//   - workq.job.duration: handler time in seconds, same attributes
//   - workq.job.queue_wait: seconds a job was claimable before its claim,
//     by job_type
func MetricsWithMeter(meter metric.Meter) Middleware {
	// The OTel API hands back noop instruments alongside any error.
	executions, _ := meter.Int64Counter("workq.job.executions", //nolint:errcheck // noop on error
		metric.WithDescription("Job execution attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	duration, _ := meter.Float64Histogram("workq.job.duration", //nolint:errcheck // noop on error
		metric.WithDescription("Handler time per attempt"),
		metric.WithUnit("s"),
	)
	waits, _ := meter.Float64Histogram("workq.job.queue_wait", //nolint:errcheck // noop on error
		metric.WithDescription("Time a job was claimable before a dispatcher claimed it"),
		metric.WithUnit("s"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		jobType := attribute.String("job_type", j.Type)
		if wait, ok := queueWait(j); ok {
			waits.Record(ctx, wait.Seconds(), metric.WithAttributes(jobType))
		}

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		attrs := metric.WithAttributes(outcomeAttributes(j, jobType, err)...)
		executions.Add(ctx, 1, attrs)
		duration.Record(ctx, elapsed.Seconds(), attrs)
		return err
	}
}

func outcomeAttributes(j *job.Job, jobType attribute.KeyValue, err error) []attribute.KeyValue {
	if err == nil {
		return []attribute.KeyValue{jobType, attribute.String("outcome", job.OutcomeCompleted.String())}
	}
	return []attribute.KeyValue{
		jobType,
		attribute.String("outcome", AttemptOf(j).OnFailure().String()),
		attribute.String("failure", FailureKind(err)),
	}
}
