package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/workq"
	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
)

const jobColumns = `
	id, type, payload, state, retry_count, max_retries, error_message,
	worker_id, timeout, created_at, updated_at, run_at,
	claimed_at, lease_expires_at, finished_at`

// Enqueue persists a new job at the head of pending.
func (s *Store) Enqueue(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workq_jobs (
			id, type, payload, state, retry_count, max_retries, error_message,
			timeout, created_at, updated_at, run_at
		) VALUES ($1, $2, $3, 'pending', $4, $5, $6, $7, $8, $9, $10)`,
		j.ID.String(), j.Type, payloadBytes(j.Payload), j.RetryCount, j.MaxRetries, j.ErrorMessage,
		j.Timeout.Nanoseconds(), j.CreatedAt, j.UpdatedAt, j.RunAt,
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
// run_at, so a producer's clock never hides a fresh job. SKIP LOCKED lets
// concurrent dispatchers pass over a row another transaction is claiming.
func (s *Store) Claim(ctx context.Context, workerID id.WorkerID, lease time.Duration) (*job.Job, error) {
	now := time.Now().UTC()

	var claimed *job.Job
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE workq_jobs SET scheduled = FALSE, seq = nextval('workq_job_seq')
			WHERE state = 'pending' AND scheduled AND run_at <= $1`,
			now,
		); err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			UPDATE workq_jobs
			SET state = 'in_flight', worker_id = $1, claimed_at = $2,
			    lease_expires_at = $3, updated_at = $2
			WHERE id = (
				SELECT id FROM workq_jobs
				WHERE state = 'pending' AND NOT scheduled
				ORDER BY seq
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			)
			RETURNING`+jobColumns,
			workerID.String(), now, now.Add(lease),
		)
		j, err := scanJob(row)
		if err != nil {
			if isNoRows(err) {
				return nil
			}
			return err
		}
		claimed = j
		return nil
	})
	if err != nil {
		return nil, unavailable("claim job", err)
	}
	return claimed, nil
}

// Complete moves a row held by workerID to completed.
func (s *Store) Complete(ctx context.Context, jobID id.JobID, workerID id.WorkerID) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE workq_jobs
		SET state = 'completed', lease_expires_at = NULL, finished_at = $3, updated_at = $3
		WHERE id = $1 AND state = 'in_flight' AND worker_id = $2`,
		jobID.String(), workerID.String(), now,
	)
	if err != nil {
		return false, unavailable("complete job", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Fail applies the retry policy to a row held by workerID in a single
// statement. Every SET expression sees the row as it was before the update.
func (s *Store) Fail(ctx context.Context, jobID id.JobID, workerID id.WorkerID, reason string, delay time.Duration) (job.Outcome, error) {
	now := time.Now().UTC()
	runAt := now
	if delay > 0 {
		runAt = now.Add(delay)
	}

	var state string
	err := s.pool.QueryRow(ctx, `
		UPDATE workq_jobs SET
			retry_count      = retry_count + 1,
			error_message    = $2,
			lease_expires_at = NULL,
			updated_at       = $3,
			state       = CASE WHEN retry_count + 1 < max_retries THEN 'pending' ELSE 'dead_letter' END,
			worker_id   = CASE WHEN retry_count + 1 < max_retries THEN NULL ELSE worker_id END,
			claimed_at  = CASE WHEN retry_count + 1 < max_retries THEN NULL ELSE claimed_at END,
			run_at      = CASE WHEN retry_count + 1 < max_retries THEN $4 ELSE run_at END,
			scheduled   = retry_count + 1 < max_retries AND $5,
			seq         = CASE WHEN retry_count + 1 < max_retries THEN nextval('workq_job_seq') ELSE seq END,
			finished_at = CASE WHEN retry_count + 1 < max_retries THEN NULL ELSE $3 END
		WHERE id = $1 AND state = 'in_flight' AND worker_id = $6
		RETURNING state`,
		jobID.String(), reason, now, runAt, delay > 0, workerID.String(),
	).Scan(&state)
	if err != nil {
		if isNoRows(err) {
			return job.OutcomeNone, nil
		}
		return job.OutcomeNone, unavailable("fail job", err)
	}
	return failOutcome(job.State(state), delay), nil
}

// ExtendLease renews the lease of a row still held by workerID.
func (s *Store) ExtendLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE workq_jobs SET lease_expires_at = $3, updated_at = $4
		WHERE id = $1 AND state = 'in_flight' AND worker_id = $2`,
		jobID.String(), workerID.String(), now.Add(lease), now,
	)
	if err != nil {
		return false, unavailable("extend lease", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecoverExpired returns expired in-flight rows to the head of pending.
func (s *Store) RecoverExpired(ctx context.Context, now time.Time) ([]id.JobID, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE workq_jobs SET
			state = 'pending', worker_id = NULL, claimed_at = NULL, lease_expires_at = NULL,
			run_at = $2, updated_at = $2, seq = nextval('workq_job_seq')
		WHERE state = 'in_flight' AND lease_expires_at < $1
		RETURNING id`,
		now.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return nil, unavailable("recover expired", err)
	}

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (id.JobID, error) {
		var jID id.JobID
		return jID, row.Scan(&jID)
	})
	if err != nil {
		return nil, unavailable("recover expired", err)
	}
	return ids, nil
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+jobColumns+` FROM workq_jobs WHERE id = $1`, jobID.String())

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, workq.ErrJobNotFound
		}
		return nil, unavailable("get job", err)
	}
	return j, nil
}

// List returns jobs in the given state.
func (s *Store) List(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	order, err := listOrder(state)
	if err != nil {
		return nil, err
	}

	var limit *int
	if opts.Limit > 0 {
		limit = &opts.Limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT`+jobColumns+`
		FROM workq_jobs
		WHERE state = $1
		ORDER BY `+order+`
		LIMIT $2 OFFSET $3`,
		string(state), limit, opts.Offset,
	)
	if err != nil {
		return nil, unavailable("list jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// Count returns the number of jobs in the given state.
func (s *Store) Count(ctx context.Context, state job.State) (int64, error) {
	if _, ok := job.ParseState(string(state)); !ok {
		return 0, fmt.Errorf("workq/postgres: count %q: %w", state, workq.ErrInvalidState)
	}

	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM workq_jobs WHERE state = $1`, string(state)).Scan(&n)
	if err != nil {
		return 0, unavailable("count jobs", err)
	}
	return n, nil
}

// Purge deletes terminal jobs that finished before the given time.
func (s *Store) Purge(ctx context.Context, state job.State, before time.Time) (int64, error) {
	if !state.IsTerminal() {
		return 0, fmt.Errorf("workq/postgres: purge %q: %w", state, workq.ErrInvalidState)
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM workq_jobs WHERE state = $1 AND finished_at < $2`,
		string(state), before.UTC(),
	)
	if err != nil {
		return 0, unavailable("purge jobs", err)
	}
	return tag.RowsAffected(), nil
}

// ── helpers ──

func listOrder(state job.State) (string, error) {
	switch state {
	case job.StatePending:
		return "scheduled, CASE WHEN scheduled THEN run_at END, seq", nil
	case job.StateInFlight:
		return "lease_expires_at, seq", nil
	case job.StateCompleted, job.StateDeadLetter:
		return "finished_at DESC, seq DESC", nil
	default:
		return "", fmt.Errorf("workq/postgres: list %q: %w", state, workq.ErrInvalidState)
	}
}

func failOutcome(state job.State, delay time.Duration) job.Outcome {
	switch {
	case state == job.StateDeadLetter:
		return job.OutcomeDeadLettered
	case delay > 0:
		return job.OutcomeScheduled
	default:
		return job.OutcomeRetried
	}
}

func payloadBytes(p []byte) []byte {
	if p == nil {
		return []byte{}
	}
	return p
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j       job.Job
		state   string
		timeout int64
	)
	err := row.Scan(
		&j.ID, &j.Type, &j.Payload, &state, &j.RetryCount, &j.MaxRetries, &j.ErrorMessage,
		&j.WorkerID, &timeout, &j.CreatedAt, &j.UpdatedAt, &j.RunAt,
		&j.ClaimedAt, &j.LeaseExpiresAt, &j.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	j.State = job.State(state)
	j.Timeout = time.Duration(timeout)
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
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
