package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/workq"
	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
)

// Enqueue stores the job as a Hash and pushes its id to the head of pending.
func (s *Store) Enqueue(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()

	fields := jobToMap(j)
	args := make([]any, 0, 1+2*len(fields))
	args = append(args, jID)
	for k, v := range fields {
		args = append(args, k, v)
	}

	created, err := enqueueScript.Run(ctx, s.client,
		[]string{s.keys.job(jID), s.keys.pending}, args...).Int64()
	if err != nil {
		return unavailable("enqueue job", err)
	}
	if created == 0 {
		return workq.ErrJobAlreadyExists
	}
	return nil
}

// Claim moves the tail of pending to in-flight in one script.
func (s *Store) Claim(ctx context.Context, workerID id.WorkerID, lease time.Duration) (*job.Job, error) {
	now := time.Now().UTC()
	res, err := claimScript.Run(ctx, s.client,
		[]string{s.keys.pending, s.keys.inFlight, s.keys.scheduled},
		now.UnixMilli(), now.Add(lease).UnixMilli(), workerID.String(), s.keys.jobPrefix,
	).Slice()
	if errors.Is(err, goredis.Nil) {
		return nil, nil //nolint:nilnil // empty queue is not an error
	}
	if err != nil {
		return nil, unavailable("claim job", err)
	}
	return mapToJob(pairsToMap(res))
}

// Complete moves a job held by workerID to completed.
func (s *Store) Complete(ctx context.Context, jobID id.JobID, workerID id.WorkerID) (bool, error) {
	jID := jobID.String()
	n, err := completeScript.Run(ctx, s.client,
		[]string{s.keys.inFlight, s.keys.completed},
		jID, s.keys.job(jID), time.Now().UTC().UnixMilli(), workerID.String(),
	).Int64()
	if err != nil {
		return false, unavailable("complete job", err)
	}
	return n == 1, nil
}

// Fail applies the retry policy to a job held by workerID in one script.
func (s *Store) Fail(ctx context.Context, jobID id.JobID, workerID id.WorkerID, reason string, delay time.Duration) (job.Outcome, error) {
	jID := jobID.String()
	now := time.Now().UTC()
	runAt := now
	if delay > 0 {
		runAt = now.Add(delay)
	}

	n, err := failScript.Run(ctx, s.client,
		[]string{s.keys.inFlight, s.keys.pending, s.keys.scheduled, s.keys.deadLetter},
		jID, s.keys.job(jID), now.UnixMilli(), reason, runAt.UnixMilli(), workerID.String(),
	).Int64()
	if err != nil {
		return job.OutcomeNone, unavailable("fail job", err)
	}
	return job.Outcome(n), nil
}

// ExtendLease renews the lease of a job still held by workerID.
func (s *Store) ExtendLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) (bool, error) {
	jID := jobID.String()
	now := time.Now().UTC()
	n, err := extendScript.Run(ctx, s.client,
		[]string{s.keys.inFlight},
		jID, s.keys.job(jID), workerID.String(), now.Add(lease).UnixMilli(), now.UnixMilli(),
	).Int64()
	if err != nil {
		return false, unavailable("extend lease", err)
	}
	return n == 1, nil
}

// RecoverExpired returns expired in-flight jobs to the head of pending.
func (s *Store) RecoverExpired(ctx context.Context, now time.Time) ([]id.JobID, error) {
	raw, err := recoverScript.Run(ctx, s.client,
		[]string{s.keys.inFlight, s.keys.pending},
		now.UTC().UnixMilli(), s.keys.jobPrefix,
	).StringSlice()
	if err != nil {
		return nil, unavailable("recover expired", err)
	}

	ids := make([]id.JobID, 0, len(raw))
	for _, v := range raw {
		jID, parseErr := id.ParseJobID(v)
		if parseErr != nil {
			s.logger.Warn("redis: skipping malformed job id", slog.String("id", v))
			continue
		}
		ids = append(ids, jID)
	}
	return ids, nil
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, s.keys.job(jobID.String())).Result()
	if err != nil {
		return nil, unavailable("get job", err)
	}
	if len(vals) == 0 {
		return nil, workq.ErrJobNotFound
	}
	return mapToJob(vals)
}

// List returns jobs in the given state, reading ids from the partition that
// holds them.
func (s *Store) List(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.listIDs(ctx, state, opts)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, jID := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.keys.job(jID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable("list jobs", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue // purged between reads
		}
		j, err := mapToJob(vals)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (s *Store) listIDs(ctx context.Context, state job.State, opts job.ListOpts) ([]string, error) {
	start := int64(opts.Offset)
	stop := int64(-1)
	if opts.Limit > 0 {
		stop = start + int64(opts.Limit) - 1
	}

	switch state {
	case job.StatePending:
		return s.listPendingIDs(ctx, start, opts.Limit)
	case job.StateInFlight:
		ids, err := s.client.ZRange(ctx, s.keys.inFlight, start, stop).Result()
		if err != nil {
			return nil, unavailable("list in-flight", err)
		}
		return ids, nil
	case job.StateCompleted, job.StateDeadLetter:
		ids, err := s.client.LRange(ctx, s.listKey(state), start, stop).Result()
		if err != nil {
			return nil, unavailable("list "+string(state), err)
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("workq/redis: list %q: %w", state, workq.ErrInvalidState)
	}
}

// listPendingIDs walks pending from the tail, then the scheduled set.
func (s *Store) listPendingIDs(ctx context.Context, offset int64, limit int) ([]string, error) {
	ready, err := s.client.LLen(ctx, s.keys.pending).Result()
	if err != nil {
		return nil, unavailable("list pending", err)
	}

	var ids []string
	want := int64(limit)
	if offset < ready {
		// Index -1 is the tail, the next job to claim.
		stop := ready - 1
		if limit > 0 && offset+want < ready {
			stop = offset + want - 1
		}
		page, err := s.client.LRange(ctx, s.keys.pending, -stop-1, -offset-1).Result()
		if err != nil {
			return nil, unavailable("list pending", err)
		}
		for i := len(page) - 1; i >= 0; i-- {
			ids = append(ids, page[i])
		}
	}

	if limit > 0 && int64(len(ids)) >= want {
		return ids, nil
	}
	zStart := max(offset-ready, 0)
	zStop := int64(-1)
	if limit > 0 {
		zStop = zStart + want - int64(len(ids)) - 1
	}
	parked, err := s.client.ZRange(ctx, s.keys.scheduled, zStart, zStop).Result()
	if err != nil {
		return nil, unavailable("list scheduled", err)
	}
	return append(ids, parked...), nil
}

// Count returns the number of jobs in the given state.
func (s *Store) Count(ctx context.Context, state job.State) (int64, error) {
	switch state {
	case job.StatePending:
		pipe := s.client.Pipeline()
		ready := pipe.LLen(ctx, s.keys.pending)
		parked := pipe.ZCard(ctx, s.keys.scheduled)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, unavailable("count pending", err)
		}
		return ready.Val() + parked.Val(), nil
	case job.StateInFlight:
		n, err := s.client.ZCard(ctx, s.keys.inFlight).Result()
		if err != nil {
			return 0, unavailable("count in-flight", err)
		}
		return n, nil
	case job.StateCompleted, job.StateDeadLetter:
		n, err := s.client.LLen(ctx, s.listKey(state)).Result()
		if err != nil {
			return 0, unavailable("count "+string(state), err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("workq/redis: count %q: %w", state, workq.ErrInvalidState)
	}
}

// Purge deletes terminal jobs that finished before the given time.
func (s *Store) Purge(ctx context.Context, state job.State, before time.Time) (int64, error) {
	if !state.IsTerminal() {
		return 0, fmt.Errorf("workq/redis: purge %q: %w", state, workq.ErrInvalidState)
	}
	n, err := purgeScript.Run(ctx, s.client,
		[]string{s.listKey(state)}, before.UTC().UnixMilli(), s.keys.jobPrefix,
	).Int64()
	if err != nil {
		return 0, unavailable("purge "+string(state), err)
	}
	return n, nil
}

func (s *Store) listKey(state job.State) string {
	if state == job.StateDeadLetter {
		return s.keys.deadLetter
	}
	return s.keys.completed
}

// ── helpers ──

func jobToMap(j *job.Job) map[string]any {
	return map[string]any{
		"id":               j.ID.String(),
		"type":             j.Type,
		"payload":          j.Payload,
		"state":            string(job.StatePending),
		"retry_count":      strconv.Itoa(j.RetryCount),
		"max_retries":      strconv.Itoa(j.MaxRetries),
		"error_message":    j.ErrorMessage,
		"worker_id":        "",
		"timeout":          strconv.FormatInt(int64(j.Timeout), 10),
		"created_at":       formatMillis(&j.CreatedAt),
		"updated_at":       formatMillis(&j.UpdatedAt),
		"run_at":           formatMillis(&j.RunAt),
		"claimed_at":       "",
		"lease_expires_at": "",
		"finished_at":      "",
	}
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("workq/redis: parse job id: %w", err)
	}

	maxRetries, _ := strconv.Atoi(m["max_retries"])      //nolint:errcheck // best-effort parse from trusted Redis data
	retryCount, _ := strconv.Atoi(m["retry_count"])      //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		ID:             jID,
		Type:           m["type"],
		Payload:        []byte(m["payload"]),
		State:          job.State(m["state"]),
		RetryCount:     retryCount,
		MaxRetries:     maxRetries,
		ErrorMessage:   m["error_message"],
		Timeout:        time.Duration(timeout),
		ClaimedAt:      parseMillis(m["claimed_at"]),
		LeaseExpiresAt: parseMillis(m["lease_expires_at"]),
		FinishedAt:     parseMillis(m["finished_at"]),
	}
	if t := parseMillis(m["created_at"]); t != nil {
		j.CreatedAt = *t
	}
	if t := parseMillis(m["updated_at"]); t != nil {
		j.UpdatedAt = *t
	}
	if t := parseMillis(m["run_at"]); t != nil {
		j.RunAt = *t
	}
	if wid := m["worker_id"]; wid != "" {
		j.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	return j, nil
}

// pairsToMap converts an HGETALL reply returned from a script.
func pairsToMap(pairs []any) map[string]string {
	m := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		v, _ := pairs[i+1].(string)
		m[k] = v
	}
	return m
}

func formatMillis(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) *time.Time {
	if s == "" {
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
