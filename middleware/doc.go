// Package middleware provides composable middleware for job execution.
//
// A [Middleware] is a function that wraps a job handler. Middleware are
// composed into a chain using [Chain] and applied before each job executes.
// They are applied right-to-left: the first middleware in the slice is the
// outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// Observers sit outside [Recover] so they see a panic as an [ErrPanic]
// failure.
//
// # Built-in Middleware
//
//   - [Recover] converts handler panics into errors wrapping [ErrPanic]
//   - [Logging] logs each attempt against the retry budget and its lease
//   - [Timeout] puts a deadline on the handler context
//   - [Tracing] wraps execution in an OpenTelemetry span with claim attributes
//   - [Metrics] records attempts, duration and queue wait by outcome
//
// [AttemptOf] and [FailureKind] give the attempt number, whether a failure
// dead-letters the job, and how the handler failed.
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting (e.g., circuit breaker, rate limiting).
package middleware
