// Package job defines the job entity, its queue states, the handler registry,
// and the store contract every backend implements.
//
// # Job Entity
//
// A [Job] is a unit of deferred work: a type tag selecting the handler and an
// opaque payload the queue never inspects. A job lives in exactly one queue
// state at a time:
//
//	pending → in_flight → completed
//	pending → in_flight → pending (retry, retry_count+1)
//	pending → in_flight → dead_letter (retries exhausted)
//	in_flight → pending (lease expired, retry_count unchanged)
//
// completed and dead_letter are terminal. No store operation mutates a job
// once it reaches either.
//
// # Registry
//
// [Registry] maps job types to [Handler] values. Build one at startup and
// pass it to every dispatcher:
//
//	reg := job.NewRegistry()
//	reg.MustRegister("send-email", job.HandlerFunc(sendEmail))
//	_ = job.RegisterTyped(reg, "generate-report", codec.JSON{}, renderReport)
package job
