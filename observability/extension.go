package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/workq/ext"
	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
)

const meterName = "github.com/xraph/workq/observability"

// Compile-time interface checks.
var (
	_ ext.Extension       = (*MetricsExtension)(nil)
	_ ext.JobEnqueued     = (*MetricsExtension)(nil)
	_ ext.JobClaimed      = (*MetricsExtension)(nil)
	_ ext.JobCompleted    = (*MetricsExtension)(nil)
	_ ext.JobRetrying     = (*MetricsExtension)(nil)
	_ ext.JobDeadLettered = (*MetricsExtension)(nil)
	_ ext.JobRecovered    = (*MetricsExtension)(nil)
	_ ext.ReportRace      = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters through an OTel
// meter. Register it with an ext.Registry to track enqueue rates, completion
// counts, retries, dead letters and lease recoveries.
type MetricsExtension struct {
	JobEnqueued     metric.Int64Counter
	JobClaimed      metric.Int64Counter
	JobCompleted    metric.Int64Counter
	JobRetried      metric.Int64Counter
	JobDeadLettered metric.Int64Counter
	JobRecovered    metric.Int64Counter
	ReportRaces     metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	return &MetricsExtension{
		JobEnqueued:     counter(meter, "workq.job.enqueued", "Jobs accepted into the pending partition"),
		JobClaimed:      counter(meter, "workq.job.claimed", "Jobs claimed by a dispatcher"),
		JobCompleted:    counter(meter, "workq.job.completed", "Jobs completed successfully"),
		JobRetried:      counter(meter, "workq.job.retried", "Failed jobs returned to pending"),
		JobDeadLettered: counter(meter, "workq.job.dead_lettered", "Jobs moved to the dead-letter partition"),
		JobRecovered:    counter(meter, "workq.job.recovered", "In-flight jobs recovered after lease expiry"),
		ReportRaces:     counter(meter, "workq.job.report_races", "Reports that found no in-flight record"),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	// On error the API returns a noop instrument.
	c, _ := meter.Int64Counter(name, //nolint:errcheck // noop fallback guaranteed by OTel API contract
		metric.WithDescription(desc),
		metric.WithUnit("{job}"),
	)
	return c
}

func typeAttr(j *job.Job) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_type", j.Type))
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.JobEnqueued.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobClaimed implements ext.JobClaimed.
func (m *MetricsExtension) OnJobClaimed(ctx context.Context, j *job.Job) error {
	m.JobClaimed.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.JobCompleted.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Duration) error {
	m.JobRetried.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (m *MetricsExtension) OnJobDeadLettered(ctx context.Context, j *job.Job, _ error) error {
	m.JobDeadLettered.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobRecovered implements ext.JobRecovered.
func (m *MetricsExtension) OnJobRecovered(ctx context.Context, _ id.JobID) error {
	m.JobRecovered.Add(ctx, 1)
	return nil
}

// OnReportRace implements ext.ReportRace.
func (m *MetricsExtension) OnReportRace(ctx context.Context, j *job.Job, op string) error {
	m.ReportRaces.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", j.Type),
		attribute.String("op", op),
	))
	return nil
}
