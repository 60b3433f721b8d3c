package queue

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-queue limits.
type Config struct {
	// JobType is the queue identifier.
	JobType string `mapstructure:"job_type" validate:"required"`

	// MaxConcurrency limits how many jobs of this type may run at once in
	// this process. Zero means no limit.
	MaxConcurrency int `mapstructure:"max_concurrency" validate:"gte=0"`

	// RateLimit is the maximum sustained job starts per second. Zero
	// disables rate limiting.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`

	// RateBurst is the token-bucket burst. Defaults to 1 when RateLimit is
	// set.
	RateBurst int `mapstructure:"rate_burst" validate:"gte=0"`
}

// queueState tracks runtime state for a single queue.
type queueState struct {
	config  Config
	limiter *rate.Limiter
	slots   chan struct{} // nil = unlimited
}

// Manager controls per-queue rate limiting and concurrency. It is safe for
// concurrent use.
type Manager struct {
	mu     sync.RWMutex
	queues map[string]*queueState
}

// NewManager creates a Manager with the given queue configurations.
// A later config for the same job type replaces an earlier one.
func NewManager(configs ...Config) *Manager {
	m := &Manager{queues: make(map[string]*queueState, len(configs))}
	for _, cfg := range configs {
		m.queues[cfg.JobType] = newQueueState(cfg)
	}
	return m
}

func newQueueState(cfg Config) *queueState {
	qs := &queueState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		qs.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	if cfg.MaxConcurrency > 0 {
		qs.slots = make(chan struct{}, cfg.MaxConcurrency)
	}
	return qs
}

func (m *Manager) state(jobType string) *queueState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queues[jobType]
}

// Acquire blocks until a job of jobType may start, or ctx ends. On success
// the caller MUST call Release when the job finishes.
func (m *Manager) Acquire(ctx context.Context, jobType string) error {
	qs := m.state(jobType)
	if qs == nil {
		return nil
	}
	if qs.slots != nil {
		select {
		case qs.slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if qs.limiter != nil {
		if err := qs.limiter.Wait(ctx); err != nil {
			qs.release()
			return err
		}
	}
	return nil
}

// TryAcquire is the non-blocking form of Acquire. It reports whether a job
// of jobType may start now; if so the caller MUST call Release.
func (m *Manager) TryAcquire(jobType string) bool {
	qs := m.state(jobType)
	if qs == nil {
		return true
	}
	if qs.slots != nil {
		select {
		case qs.slots <- struct{}{}:
		default:
			return false
		}
	}
	if qs.limiter != nil && !qs.limiter.Allow() {
		qs.release()
		return false
	}
	return true
}

// Release frees the slot taken by a successful Acquire or TryAcquire.
func (m *Manager) Release(jobType string) {
	if qs := m.state(jobType); qs != nil {
		qs.release()
	}
}

func (qs *queueState) release() {
	if qs.slots == nil {
		return
	}
	select {
	case <-qs.slots:
	default:
	}
}

// ActiveCount returns the number of jobs of jobType currently holding a
// slot. Always zero for queues without a concurrency limit.
func (m *Manager) ActiveCount(jobType string) int {
	if qs := m.state(jobType); qs != nil && qs.slots != nil {
		return len(qs.slots)
	}
	return 0
}

// Configs returns the configured queues.
func (m *Manager) Configs() []Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Config, 0, len(m.queues))
	for _, qs := range m.queues {
		out = append(out, qs.config)
	}
	return out
}
