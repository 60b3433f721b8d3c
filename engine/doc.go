// Package engine wires the workq subsystems together: the job store, the
// handler registry, the middleware chain, the worker pool, the producer
// client, the DLQ service and the extension registry.
//
// # Building an Engine
//
//	reg := job.NewRegistry()
//	handlers.RegisterAll(reg, handlers.Deps{})
//
//	eng, err := engine.New(pgStore, reg,
//	    engine.WithConfig(cfg),
//	    engine.WithBackoff(backoff.NewExponential(time.Second, time.Minute)),
//	    engine.WithExtension(myExtension),
//	)
//
//	eng.Start(ctx)
//	defer eng.Stop(shutdownCtx)
//
// # Enqueuing Jobs
//
//	jobID, err := eng.Enqueue(ctx, "send-email", raw)
//	jobID, err = engine.EnqueueValue(ctx, eng, "send-email", handlers.Email{To: "a@b.c"})
//
// # Middleware
//
// Every job runs through recover → tracing → metrics → logging → timeout,
// followed by any middleware added with [WithMiddleware].
//
// # Options
//
//   - [WithConfig] operational configuration (workers, poll interval, leases)
//   - [WithLogger] structured logger
//   - [WithExtension] register a lifecycle extension
//   - [WithMiddleware] add a middleware to the execution chain
//   - [WithBackoff] retry delay strategy (default: none)
//   - [WithCodec] payload codec for EnqueueValue
//   - [WithJobTimeout] deadline for jobs enqueued without one
//   - [WithTracerProvider] / [WithMeterProvider] OTel providers
package engine
