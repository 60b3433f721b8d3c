// Package worker provides the job execution engine.
//
// An [Executor] resolves a claimed job's handler, runs it through the
// middleware chain and reports the outcome to the store. A [Dispatcher] is
// one claim loop: it polls the store, hands each claimed job to the
// Executor and keeps the job's lease alive while the handler runs. A [Pool]
// runs several peer dispatchers plus the lease recovery sweep.
//
// Handler errors, missing handlers and reporting races never stop a
// dispatcher. Store errors while claiming are logged and retried after the
// poll interval.
package worker
