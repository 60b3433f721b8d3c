package ext

import (
	"context"
	"time"

	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobEnqueued is called after a job is successfully enqueued.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobClaimed is called when a dispatcher claims a job, before the handler runs.
type JobClaimed interface {
	OnJobClaimed(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called when a failed job is returned to pending.
// delay is zero when the job is immediately claimable.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, delay time.Duration) error
}

// JobDeadLettered is called when a job exhausts its retries.
type JobDeadLettered interface {
	OnJobDeadLettered(ctx context.Context, j *job.Job, err error) error
}

// JobRecovered is called for every job the recovery sweep returns to pending.
type JobRecovered interface {
	OnJobRecovered(ctx context.Context, jobID id.JobID) error
}

// ReportRace is called when a completion or failure report finds no
// matching in-flight record.
type ReportRace interface {
	OnReportRace(ctx context.Context, j *job.Job, op string) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
