package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/workq/job"
)

// Logging logs each attempt with its place in the retry budget and the
// lease it runs under. A failed final attempt logs at error level since the
// job is about to be dead-lettered; earlier failures log at warn.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		attempt := AttemptOf(j)
		log := logger.With(
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.Type),
			slog.Any("attempt", attempt),
		)

		startAttrs := leaseLogAttrs(j)
		if wait, ok := queueWait(j); ok {
			startAttrs = append(startAttrs, slog.Duration("queue_wait", wait))
		}
		log.Info("job attempt started", startAttrs...)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err == nil {
			log.Info("job attempt succeeded", slog.Duration("elapsed", elapsed))
			return nil
		}

		level := slog.LevelWarn
		if attempt.Final {
			level = slog.LevelError
		}
		log.Log(ctx, level, "job attempt failed",
			slog.Duration("elapsed", elapsed),
			slog.String("failure", FailureKind(err)),
			slog.String("next", attempt.OnFailure().String()),
			slog.String("error", err.Error()),
		)
		return err
	}
}
