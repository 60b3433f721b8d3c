// Package queue enforces per-queue concurrency and rate limits inside one
// worker process. Each job type is its own logical queue, so limits are keyed
// by job type.
//
//	m := queue.NewManager(
//	    queue.Config{JobType: "send-email", MaxConcurrency: 5},
//	    queue.Config{JobType: "generate-report", RateLimit: 2, RateBurst: 4},
//	)
//
// [Middleware] applies the limits around every handler call: a job whose
// queue is saturated waits, holding its lease, until a slot frees up or its
// context ends. Job types without a [Config] run unthrottled; pool-wide
// concurrency still applies.
package queue
