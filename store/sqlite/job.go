package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/workq"
	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
)

const jobColumns = `
	id, type, payload, state, retry_count, max_retries, error_message,
	worker_id, timeout, created_at, updated_at, run_at,
	claimed_at, lease_expires_at, finished_at`

// nextSeq orders a row behind everything already queued.
const nextSeq = `(SELECT COALESCE(MAX(seq), 0) + 1 FROM workq_jobs)`

// Enqueue persists a new job at the head of pending.
func (s *Store) Enqueue(ctx context.Context, j *job.Job) error {
	payload := j.Payload
	if payload == nil {
		payload = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workq_jobs (
			id, seq, type, payload, state, retry_count, max_retries, error_message,
			timeout, created_at, updated_at, run_at
		) VALUES (?, `+nextSeq+`, ?, ?, 'pending', ?, ?, ?, ?, ?, ?, ?)`,
		j.ID.String(), j.Type, payload, j.RetryCount, j.MaxRetries, j.ErrorMessage,
		j.Timeout.Nanoseconds(), millis(j.CreatedAt), millis(j.UpdatedAt), millis(j.RunAt),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return workq.ErrJobAlreadyExists
		}
		return unavailable("enqueue job", err)
	}
	return nil
}

// Claim promotes due scheduled retries to the head of pending, then moves
// the row at the tail to in-flight. Only scheduled rows are filtered by
// run_at, so a producer's clock never hides a fresh job.
func (s *Store) Claim(ctx context.Context, workerID id.WorkerID, lease time.Duration) (*job.Job, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("claim job", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `
		UPDATE workq_jobs SET scheduled = 0, seq = `+nextSeq+`
		WHERE state = 'pending' AND scheduled = 1 AND run_at <= ?`,
		millis(now),
	); err != nil {
		return nil, unavailable("promote scheduled", err)
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE workq_jobs
		SET state = 'in_flight', worker_id = ?1, claimed_at = ?2,
		    lease_expires_at = ?3, updated_at = ?2
		WHERE id = (
			SELECT id FROM workq_jobs
			WHERE state = 'pending' AND scheduled = 0
			ORDER BY seq
			LIMIT 1
		)
		RETURNING`+jobColumns,
		workerID.String(), millis(now), millis(now.Add(lease)),
	)

	j, err := scanJob(row)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, unavailable("claim job", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, unavailable("claim job", err)
	}
	return j, nil
}

// Complete moves a row held by workerID to completed.
func (s *Store) Complete(ctx context.Context, jobID id.JobID, workerID id.WorkerID) (bool, error) {
	now := millis(time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE workq_jobs
		SET state = 'completed', lease_expires_at = NULL, finished_at = ?3, updated_at = ?3
		WHERE id = ?1 AND state = 'in_flight' AND worker_id = ?2`,
		jobID.String(), workerID.String(), now,
	)
	if err != nil {
		return false, unavailable("complete job", err)
	}
	return affected(res) == 1, nil
}

// Fail applies the retry policy to a row held by workerID in a single statement.
func (s *Store) Fail(ctx context.Context, jobID id.JobID, workerID id.WorkerID, reason string, delay time.Duration) (job.Outcome, error) {
	now := time.Now().UTC()
	runAt := now
	if delay > 0 {
		runAt = now.Add(delay)
	}

	var state string
	err := s.db.QueryRowContext(ctx, `
		UPDATE workq_jobs SET
			retry_count      = retry_count + 1,
			error_message    = ?2,
			lease_expires_at = NULL,
			updated_at       = ?3,
			state       = CASE WHEN retry_count + 1 < max_retries THEN 'pending' ELSE 'dead_letter' END,
			worker_id   = CASE WHEN retry_count + 1 < max_retries THEN NULL ELSE worker_id END,
			claimed_at  = CASE WHEN retry_count + 1 < max_retries THEN NULL ELSE claimed_at END,
			run_at      = CASE WHEN retry_count + 1 < max_retries THEN ?4 ELSE run_at END,
			scheduled   = CASE WHEN retry_count + 1 < max_retries THEN ?5 ELSE 0 END,
			seq         = CASE WHEN retry_count + 1 < max_retries THEN `+nextSeq+` ELSE seq END,
			finished_at = CASE WHEN retry_count + 1 < max_retries THEN NULL ELSE ?3 END
		WHERE id = ?1 AND state = 'in_flight' AND worker_id = ?6
		RETURNING state`,
		jobID.String(), reason, millis(now), millis(runAt), delay > 0, workerID.String(),
	).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return job.OutcomeNone, nil
		}
		return job.OutcomeNone, unavailable("fail job", err)
	}

	switch {
	case job.State(state) == job.StateDeadLetter:
		return job.OutcomeDeadLettered, nil
	case delay > 0:
		return job.OutcomeScheduled, nil
	default:
		return job.OutcomeRetried, nil
	}
}

// ExtendLease renews the lease of a row still held by workerID.
func (s *Store) ExtendLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE workq_jobs SET lease_expires_at = ?3, updated_at = ?4
		WHERE id = ?1 AND state = 'in_flight' AND worker_id = ?2`,
		jobID.String(), workerID.String(), millis(now.Add(lease)), millis(now),
	)
	if err != nil {
		return false, unavailable("extend lease", err)
	}
	return affected(res) == 1, nil
}

// RecoverExpired returns expired in-flight rows to the head of pending.
func (s *Store) RecoverExpired(ctx context.Context, now time.Time) ([]id.JobID, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE workq_jobs SET
			state = 'pending', worker_id = NULL, claimed_at = NULL, lease_expires_at = NULL,
			run_at = ?2, updated_at = ?2, seq = `+nextSeq+`
		WHERE state = 'in_flight' AND lease_expires_at < ?1
		RETURNING id`,
		millis(now), millis(time.Now()),
	)
	if err != nil {
		return nil, unavailable("recover expired", err)
	}
	defer rows.Close()

	var ids []id.JobID
	for rows.Next() {
		var jID id.JobID
		if err := rows.Scan(&jID); err != nil {
			return nil, unavailable("recover expired", err)
		}
		ids = append(ids, jID)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("recover expired", err)
	}
	return ids, nil
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT`+jobColumns+` FROM workq_jobs WHERE id = ?`, jobID.String())

	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, workq.ErrJobNotFound
		}
		return nil, unavailable("get job", err)
	}
	return j, nil
}

// List returns jobs in the given state.
func (s *Store) List(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	var order string
	switch state {
	case job.StatePending:
		order = "scheduled, CASE WHEN scheduled = 1 THEN run_at END, seq"
	case job.StateInFlight:
		order = "lease_expires_at, seq"
	case job.StateCompleted, job.StateDeadLetter:
		order = "finished_at DESC, seq DESC"
	default:
		return nil, fmt.Errorf("workq/sqlite: list %q: %w", state, workq.ErrInvalidState)
	}

	limit := -1
	if opts.Limit > 0 {
		limit = opts.Limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT`+jobColumns+`
		FROM workq_jobs
		WHERE state = ?
		ORDER BY `+order+`
		LIMIT ? OFFSET ?`,
		string(state), limit, opts.Offset,
	)
	if err != nil {
		return nil, unavailable("list jobs", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, unavailable("scan job", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate jobs", err)
	}
	return jobs, nil
}

// Count returns the number of jobs in the given state.
func (s *Store) Count(ctx context.Context, state job.State) (int64, error) {
	if _, ok := job.ParseState(string(state)); !ok {
		return 0, fmt.Errorf("workq/sqlite: count %q: %w", state, workq.ErrInvalidState)
	}

	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workq_jobs WHERE state = ?`, string(state)).Scan(&n)
	if err != nil {
		return 0, unavailable("count jobs", err)
	}
	return n, nil
}

// Purge deletes terminal jobs that finished before the given time.
func (s *Store) Purge(ctx context.Context, state job.State, before time.Time) (int64, error) {
	if !state.IsTerminal() {
		return 0, fmt.Errorf("workq/sqlite: purge %q: %w", state, workq.ErrInvalidState)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM workq_jobs WHERE state = ? AND finished_at < ?`,
		string(state), millis(before),
	)
	if err != nil {
		return 0, unavailable("purge jobs", err)
	}
	return affected(res), nil
}

// ── helpers ──

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*job.Job, error) {
	var (
		j                              job.Job
		state                          string
		timeout                        int64
		createdAt, updatedAt, runAt    int64
		claimedAt, leaseAt, finishedAt sql.NullInt64
	)
	err := row.Scan(
		&j.ID, &j.Type, &j.Payload, &state, &j.RetryCount, &j.MaxRetries, &j.ErrorMessage,
		&j.WorkerID, &timeout, &createdAt, &updatedAt, &runAt,
		&claimedAt, &leaseAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	j.State = job.State(state)
	j.Timeout = time.Duration(timeout)
	j.CreatedAt = time.UnixMilli(createdAt).UTC()
	j.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	j.RunAt = time.UnixMilli(runAt).UTC()
	j.ClaimedAt = nullTime(claimedAt)
	j.LeaseExpiresAt = nullTime(leaseAt)
	j.FinishedAt = nullTime(finishedAt)
	return &j, nil
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func affected(res sql.Result) int64 {
	n, _ := res.RowsAffected() //nolint:errcheck // sqlite always reports rows affected
	return n
}
