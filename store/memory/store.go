// Package memory implements store.Store in process memory. It is safe for
// concurrent access and intended for unit tests and single-process use.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/xraph/workq"
	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
)

// Ensure Store implements job.Store at compile time.
// We can't import store here (import cycle), so we verify the subsystem.
var _ job.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
//
// pending is ordered tail first: index 0 is the next job to claim, and a push
// to the head appends. completed and deadLetter are in arrival order.
type Store struct {
	mu sync.Mutex

	jobs       map[string]*job.Job
	pending    []string
	scheduled  map[string]struct{}
	inFlight   map[string]struct{}
	completed  []string
	deadLetter []string

	closed bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:      make(map[string]*job.Job),
		scheduled: make(map[string]struct{}),
		inFlight:  make(map[string]struct{}),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping fails only after Close.
func (m *Store) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.check()
}

// Close marks the store closed. Later operations return workq.ErrStoreClosed.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Store) check() error {
	if m.closed {
		return workq.ErrStoreClosed
	}
	return nil
}

// ──────────────────────────────────────────────────
// Producer / dispatcher operations
// ──────────────────────────────────────────────────

// Enqueue pushes a new job to the head of pending.
func (m *Store) Enqueue(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return workq.ErrJobAlreadyExists
	}
	cp := j.Clone()
	cp.State = job.StatePending
	m.jobs[key] = cp
	m.pending = append(m.pending, key)
	return nil
}

// Claim pops the tail of pending into in-flight.
func (m *Store) Claim(_ context.Context, workerID id.WorkerID, lease time.Duration) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	m.promoteDue(now)

	if len(m.pending) == 0 {
		return nil, nil //nolint:nilnil // empty queue is not an error
	}
	key := m.pending[0]
	m.pending = m.pending[1:]

	j := m.jobs[key]
	claimed := now
	expires := now.Add(lease)
	j.State = job.StateInFlight
	j.WorkerID = workerID
	j.ClaimedAt = &claimed
	j.LeaseExpiresAt = &expires
	j.UpdatedAt = now
	m.inFlight[key] = struct{}{}

	return j.Clone(), nil
}

// promoteDue moves parked jobs whose RunAt has passed to the head of
// pending, earliest first.
func (m *Store) promoteDue(now time.Time) {
	var due []*job.Job
	for key := range m.scheduled {
		if j := m.jobs[key]; !j.RunAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(a, b int) bool {
		if !due[a].RunAt.Equal(due[b].RunAt) {
			return due[a].RunAt.Before(due[b].RunAt)
		}
		return due[a].ID.String() < due[b].ID.String()
	})
	for _, j := range due {
		key := j.ID.String()
		delete(m.scheduled, key)
		m.pending = append(m.pending, key)
	}
}

// Complete moves a job held by workerID to completed.
func (m *Store) Complete(_ context.Context, jobID id.JobID, workerID id.WorkerID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return false, err
	}

	j, ok := m.heldBy(jobID, workerID)
	if !ok {
		return false, nil
	}
	key := jobID.String()
	delete(m.inFlight, key)

	now := time.Now().UTC()
	j.State = job.StateCompleted
	j.LeaseExpiresAt = nil
	j.FinishedAt = &now
	j.UpdatedAt = now
	m.completed = append(m.completed, key)
	return true, nil
}

// Fail applies the retry policy to a job held by workerID.
func (m *Store) Fail(_ context.Context, jobID id.JobID, workerID id.WorkerID, reason string, delay time.Duration) (job.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return job.OutcomeNone, err
	}

	j, ok := m.heldBy(jobID, workerID)
	if !ok {
		return job.OutcomeNone, nil
	}
	key := jobID.String()
	delete(m.inFlight, key)

	now := time.Now().UTC()
	j.RetryCount++
	j.ErrorMessage = reason
	j.LeaseExpiresAt = nil
	j.UpdatedAt = now

	if !job.ShouldRetry(j.RetryCount, j.MaxRetries) {
		j.State = job.StateDeadLetter
		j.FinishedAt = &now
		m.deadLetter = append(m.deadLetter, key)
		return job.OutcomeDeadLettered, nil
	}

	j.State = job.StatePending
	j.WorkerID = id.Nil
	j.ClaimedAt = nil
	if delay > 0 {
		j.RunAt = now.Add(delay)
		m.scheduled[key] = struct{}{}
		return job.OutcomeScheduled, nil
	}
	j.RunAt = now
	m.pending = append(m.pending, key)
	return job.OutcomeRetried, nil
}

// ExtendLease renews the lease of a job still held by workerID.
func (m *Store) ExtendLease(_ context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return false, err
	}

	j, ok := m.heldBy(jobID, workerID)
	if !ok {
		return false, nil
	}
	now := time.Now().UTC()
	expires := now.Add(lease)
	j.LeaseExpiresAt = &expires
	j.UpdatedAt = now
	return true, nil
}

// heldBy returns the in-flight job if workerID owns its lease.
func (m *Store) heldBy(jobID id.JobID, workerID id.WorkerID) (*job.Job, bool) {
	key := jobID.String()
	if _, ok := m.inFlight[key]; !ok {
		return nil, false
	}
	j := m.jobs[key]
	if j.WorkerID != workerID {
		return nil, false
	}
	return j, true
}

// RecoverExpired returns expired in-flight jobs to the head of pending.
func (m *Store) RecoverExpired(_ context.Context, now time.Time) ([]id.JobID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	var expired []*job.Job
	for key := range m.inFlight {
		j := m.jobs[key]
		if j.LeaseExpiresAt != nil && j.LeaseExpiresAt.Before(now) {
			expired = append(expired, j)
		}
	}
	sort.Slice(expired, func(a, b int) bool {
		return expired[a].LeaseExpiresAt.Before(*expired[b].LeaseExpiresAt)
	})

	ids := make([]id.JobID, 0, len(expired))
	for _, j := range expired {
		key := j.ID.String()
		delete(m.inFlight, key)
		j.State = job.StatePending
		j.WorkerID = id.Nil
		j.ClaimedAt = nil
		j.LeaseExpiresAt = nil
		j.UpdatedAt = now.UTC()
		m.pending = append(m.pending, key)
		ids = append(ids, j.ID)
	}
	return ids, nil
}

// ──────────────────────────────────────────────────
// Inspection
// ──────────────────────────────────────────────────

// Get retrieves a job by ID.
func (m *Store) Get(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, workq.ErrJobNotFound
	}
	return j.Clone(), nil
}

// List returns jobs in the given state.
func (m *Store) List(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	keys, err := m.ordered(state)
	if err != nil {
		return nil, err
	}

	keys = page(keys, opts)
	result := make([]*job.Job, 0, len(keys))
	for _, key := range keys {
		result = append(result, m.jobs[key].Clone())
	}
	return result, nil
}

// Count returns the number of jobs in the given state.
func (m *Store) Count(_ context.Context, state job.State) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return 0, err
	}

	switch state {
	case job.StatePending:
		return int64(len(m.pending) + len(m.scheduled)), nil
	case job.StateInFlight:
		return int64(len(m.inFlight)), nil
	case job.StateCompleted:
		return int64(len(m.completed)), nil
	case job.StateDeadLetter:
		return int64(len(m.deadLetter)), nil
	default:
		return 0, fmt.Errorf("workq/memory: count %q: %w", state, workq.ErrInvalidState)
	}
}

// Purge deletes terminal jobs that finished before the given time.
func (m *Store) Purge(_ context.Context, state job.State, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return 0, err
	}

	var list *[]string
	switch state {
	case job.StateCompleted:
		list = &m.completed
	case job.StateDeadLetter:
		list = &m.deadLetter
	default:
		return 0, fmt.Errorf("workq/memory: purge %q: %w", state, workq.ErrInvalidState)
	}

	var n int64
	*list = slices.DeleteFunc(*list, func(key string) bool {
		j := m.jobs[key]
		if j.FinishedAt != nil && j.FinishedAt.Before(before) {
			delete(m.jobs, key)
			n++
			return true
		}
		return false
	})
	return n, nil
}

// ordered returns the keys of a state in List order.
func (m *Store) ordered(state job.State) ([]string, error) {
	switch state {
	case job.StatePending:
		keys := slices.Clone(m.pending)
		parked := make([]*job.Job, 0, len(m.scheduled))
		for key := range m.scheduled {
			parked = append(parked, m.jobs[key])
		}
		sort.Slice(parked, func(a, b int) bool { return parked[a].RunAt.Before(parked[b].RunAt) })
		for _, j := range parked {
			keys = append(keys, j.ID.String())
		}
		return keys, nil
	case job.StateInFlight:
		held := make([]*job.Job, 0, len(m.inFlight))
		for key := range m.inFlight {
			held = append(held, m.jobs[key])
		}
		sort.Slice(held, func(a, b int) bool { return held[a].LeaseExpiresAt.Before(*held[b].LeaseExpiresAt) })
		keys := make([]string, 0, len(held))
		for _, j := range held {
			keys = append(keys, j.ID.String())
		}
		return keys, nil
	case job.StateCompleted:
		keys := slices.Clone(m.completed)
		slices.Reverse(keys)
		return keys, nil
	case job.StateDeadLetter:
		keys := slices.Clone(m.deadLetter)
		slices.Reverse(keys)
		return keys, nil
	default:
		return nil, fmt.Errorf("workq/memory: list %q: %w", state, workq.ErrInvalidState)
	}
}

func page(keys []string, opts job.ListOpts) []string {
	if opts.Offset > 0 {
		if opts.Offset >= len(keys) {
			return nil
		}
		keys = keys[opts.Offset:]
	}
	if opts.Limit > 0 && len(keys) > opts.Limit {
		keys = keys[:opts.Limit]
	}
	return keys
}
