// Package workq provides a durable, shared job queue consumed by a pool of
// independent workers. It moves slow or unreliable work (sending email,
// charging a card, rendering a report) off an application's request path.
//
// workq is a library. Pick a store, register handlers for the job types you
// know at startup, and run as many workers as you need against the same store.
//
// # Quick Start
//
//	reg := job.NewRegistry()
//	err := job.RegisterTyped(reg, "send-email", nil, handlers.SendEmail(mailer))
//
//	eng, err := engine.New(redisstore.New(rdb), reg,
//	    engine.WithConfig(workq.DefaultConfig()),
//	)
//	if err != nil { ... }
//	_ = eng.Start(ctx)
//	defer eng.Stop(ctx)
//
//	jobID, err := eng.Client().Enqueue(ctx, "send-email", payload)
//
// # Architecture
//
// A job moves between four logical partitions of the store:
//
//	pending → in-flight → completed
//	pending → in-flight → pending (retry)
//	pending → in-flight → dead-letter
//
// The claim (pending → in-flight) is a single atomic store operation, so two
// dispatchers never hold the same job. Claims carry a lease; a job whose
// worker disappeared is returned to pending once the lease expires.
//
// All entity IDs are prefixed, K-sortable UUIDv7 strings such as
// "job_0190d3b4-...".
package workq
