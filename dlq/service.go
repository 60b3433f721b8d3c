package dlq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/workq"
	"github.com/xraph/workq/ext"
	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
)

// Service provides high-level dead-letter operations over a job store.
type Service struct {
	store      job.Store
	extensions *ext.Registry
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithExtensions sets the registry notified when a replayed job is enqueued.
func WithExtensions(r *ext.Registry) Option {
	return func(s *Service) { s.extensions = r }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a DLQ service.
func NewService(store job.Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.extensions == nil {
		s.extensions = ext.NewRegistry(s.logger)
	}
	return s
}

// List returns dead-lettered jobs, most recently failed first.
func (s *Service) List(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return s.store.List(ctx, job.StateDeadLetter, opts)
}

// Count returns the number of dead-lettered jobs.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx, job.StateDeadLetter)
}

// Get returns a dead-lettered job. A job that exists in another state is
// reported as ErrJobNotFound.
func (s *Service) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.State != job.StateDeadLetter {
		return nil, fmt.Errorf("workq/dlq: %s is %s: %w", jobID, j.State, workq.ErrJobNotFound)
	}
	return j, nil
}

// Replay enqueues a copy of a dead-lettered job as a new pending job with a
// fresh ID and zero retry count. The dead-letter record is not modified.
func (s *Service) Replay(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	dead, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	j := job.New(dead.Type, dead.Payload, job.Options{
		MaxRetries: dead.MaxRetries,
		Timeout:    dead.Timeout,
	})
	if err := s.store.Enqueue(ctx, j); err != nil {
		return nil, fmt.Errorf("workq/dlq: replay %s: %w", jobID, err)
	}

	s.logger.Info("dead-lettered job replayed",
		slog.String("job_id", jobID.String()),
		slog.String("new_job_id", j.ID.String()),
		slog.String("job_type", j.Type),
	)
	s.extensions.EmitJobEnqueued(ctx, j)

	return j, nil
}

// Purge deletes dead-lettered jobs that finished before the cutoff and
// returns how many were removed. A zero cutoff removes every record.
func (s *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	if before.IsZero() {
		before = time.Now().Add(time.Second)
	}
	n, err := s.store.Purge(ctx, job.StateDeadLetter, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("dead-lettered jobs purged",
			slog.Int64("count", n),
			slog.Time("before", before),
		)
	}
	return n, nil
}
