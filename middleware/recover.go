package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/workq/job"
)

// ErrPanic wraps the value recovered from a panicking handler.
var ErrPanic = errors.New("job handler panicked")

// Recover turns a panic below it into an attempt failure wrapping ErrPanic.
// The log line says whether that failure dead-letters the job.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			attempt := AttemptOf(j)
			logger.Error("job handler panicked",
				append([]any{
					slog.String("job_id", j.ID.String()),
					slog.String("job_type", j.Type),
					slog.Any("attempt", attempt),
					slog.String("next", attempt.OnFailure().String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				}, leaseLogAttrs(j)...)...,
			)
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}()
		return next(ctx)
	}
}
