package job

import (
	"context"
	"time"

	"github.com/xraph/workq/id"
)

// ListOpts controls pagination for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// Store defines the persistence contract for jobs. It is the single source
// of truth for queue state and is shared by every producer and dispatcher.
//
// List order is per state: pending jobs in the order they will be claimed
// (due jobs first, then parked ones by RunAt), in-flight jobs by lease
// deadline, terminal jobs most recently finished first.
type Store interface {
	// Enqueue persists a new job at the head of pending.
	Enqueue(ctx context.Context, j *Job) error

	// Claim atomically moves the job at the tail of pending to in-flight,
	// owned by workerID with a lease of the given length. Due parked jobs
	// are promoted to the head of pending first. Returns (nil, nil) when
	// nothing is pending.
	Claim(ctx context.Context, workerID id.WorkerID, lease time.Duration) (*Job, error)

	// Complete moves a job held by workerID to completed. It returns false
	// when no in-flight record held by workerID matches, for example after a
	// duplicate report or once the lease was recovered and reclaimed.
	Complete(ctx context.Context, jobID id.JobID, workerID id.WorkerID) (bool, error)

	// Fail records reason, increments the retry count, and either re-pends
	// the job (after delay, if positive) or dead-letters it. It returns
	// OutcomeNone when no in-flight record held by workerID matches.
	Fail(ctx context.Context, jobID id.JobID, workerID id.WorkerID, reason string, delay time.Duration) (Outcome, error)

	// ExtendLease pushes the lease deadline of an in-flight job held by
	// workerID to now+lease. It returns false if the job is no longer
	// in flight under that worker.
	ExtendLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) (bool, error)

	// RecoverExpired returns every in-flight job whose lease ended before
	// now to the head of pending, leaving its retry count untouched.
	RecoverExpired(ctx context.Context, now time.Time) ([]id.JobID, error)

	// Get retrieves a job by ID. Returns workq.ErrJobNotFound if absent.
	Get(ctx context.Context, jobID id.JobID) (*Job, error)

	// List returns jobs in the given state.
	List(ctx context.Context, state State, opts ListOpts) ([]*Job, error)

	// Count returns the number of jobs in the given state.
	Count(ctx context.Context, state State) (int64, error)

	// Purge deletes terminal jobs that finished before the given time.
	// Returns workq.ErrInvalidState for non-terminal states.
	Purge(ctx context.Context, state State, before time.Time) (int64, error)
}
