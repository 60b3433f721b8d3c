// Package dlq provides operator access to the dead-letter partition: jobs
// that exhausted their retry budget. It supports inspection, replay and
// purging.
//
// Dead-lettered records are terminal and never mutated. The original
// payload, final error message and retry counts stay as they were at the
// last failure.
//
// # Service
//
//	svc := dlq.NewService(store)
//
//	jobs, err := svc.List(ctx, job.ListOpts{Limit: 50})
//	n, err := svc.Count(ctx)
//
// # Replay
//
// Replaying enqueues a new pending job with a fresh ID, zero retry count
// and the dead job's type, payload, max retries and timeout. The
// dead-letter record itself is left in place.
//
//	replayed, err := svc.Replay(ctx, jobID)
//
// # Purge
//
// Purge deletes dead-letter records that finished before a cutoff.
//
//	removed, err := svc.Purge(ctx, time.Now().Add(-7*24*time.Hour))
//
// # Admin API
//
// The DLQ is exposed via the HTTP admin API:
//   - GET    /v1/dlq             list entries
//   - POST   /v1/dlq/{id}/replay replay one entry
//   - DELETE /v1/dlq?before=     purge entries
package dlq
