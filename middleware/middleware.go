package middleware

import (
	"context"

	"github.com/xraph/workq/job"
)

// Handler runs the rest of the chain for the job being executed.
type Handler func(ctx context.Context) error

// Middleware wraps one execution attempt of a claimed job. It sees the job
// as claimed, including its worker and lease, and must call next unless it
// deliberately fails the attempt without running the handler.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain composes middleware so that mws[0] is the outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	switch len(mws) {
	case 0:
		return func(ctx context.Context, _ *job.Job, next Handler) error { return next(ctx) }
	case 1:
		return mws[0]
	}
	outer, inner := mws[0], Chain(mws[1:]...)
	return func(ctx context.Context, j *job.Job, next Handler) error {
		return outer(ctx, j, func(ctx context.Context) error {
			return inner(ctx, j, next)
		})
	}
}
