package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/workq/job"
)

// Attempt places one execution of a job within its retry budget.
type Attempt struct {
	// Number is 1 for the first execution.
	Number     int
	MaxRetries int
	// Final is set when a failure of this attempt dead-letters the job.
	Final bool
}

// AttemptOf returns the attempt a claimed job is on.
func AttemptOf(j *job.Job) Attempt {
	n := j.RetryCount + 1
	return Attempt{
		Number:     n,
		MaxRetries: j.MaxRetries,
		Final:      !job.ShouldRetry(n, j.MaxRetries),
	}
}

// OnFailure is the outcome the store applies if this attempt fails, unless
// the report races a lease recovery. Retried covers scheduled retries too.
func (a Attempt) OnFailure() job.Outcome {
	if a.Final {
		return job.OutcomeDeadLettered
	}
	return job.OutcomeRetried
}

// LogValue implements slog.LogValuer.
func (a Attempt) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("number", a.Number),
		slog.Int("max_retries", a.MaxRetries),
		slog.Bool("final", a.Final),
	)
}

// Failure kinds used as labels on failed attempts.
const (
	FailurePanic    = "panic"
	FailureTimeout  = "timeout"
	FailureCanceled = "canceled"
	FailureError    = "error"
)

// FailureKind classifies a handler error.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, ErrPanic):
		return FailurePanic
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	default:
		return FailureError
	}
}

// leaseLogAttrs describes who holds the job and until when.
func leaseLogAttrs(j *job.Job) []any {
	attrs := []any{slog.String("worker_id", j.WorkerID.String())}
	if j.LeaseExpiresAt != nil {
		attrs = append(attrs, slog.Time("lease_expires_at", *j.LeaseExpiresAt))
	}
	return attrs
}

// queueWait is how long the job was claimable before it was claimed.
func queueWait(j *job.Job) (time.Duration, bool) {
	if j.ClaimedAt == nil {
		return 0, false
	}
	return max(j.ClaimedAt.Sub(j.RunAt), 0), true
}
