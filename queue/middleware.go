package queue

import (
	"context"
	"fmt"

	"github.com/xraph/workq/job"
	mw "github.com/xraph/workq/middleware"
)

// Middleware holds each job until its queue has capacity. A job whose
// context ends while waiting fails with the context error.
func Middleware(m *Manager) mw.Middleware {
	return func(ctx context.Context, j *job.Job, next mw.Handler) error {
		if err := m.Acquire(ctx, j.Type); err != nil {
			return fmt.Errorf("queue %s saturated: %w", j.Type, err)
		}
		defer m.Release(j.Type)
		return next(ctx)
	}
}
