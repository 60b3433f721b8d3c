package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/workq/job"
)

// Timeout returns middleware that puts a deadline on the handler's context.
// The job's own Timeout wins; fallback applies to jobs without one, and zero
// means no deadline. Handlers are not preempted: one that ignores ctx.Done
// runs to completion.
func Timeout(logger *slog.Logger, fallback time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		d := j.Timeout
		if d <= 0 {
			d = fallback
		}
		if d > 0 {
			logger.Debug("job timeout set",
				slog.String("job_id", j.ID.String()),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
