// Package ext defines the extension system for workq.
//
// Extensions are notified of job lifecycle events and can react to them:
// recording metrics, emitting webhooks, alerting on dead letters.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobDeadLettered(ctx context.Context, j *job.Job, err error) error {
//	    log.Printf("job %s dead-lettered: %v", j.ID, err)
//	    return nil
//	}
//
// # Lifecycle Hooks
//
//   - [JobEnqueued] job was accepted into the pending partition
//   - [JobClaimed] a dispatcher took ownership of the job
//   - [JobCompleted] the handler returned without error
//   - [JobRetrying] the job failed and went back to pending
//   - [JobDeadLettered] the job exhausted its retries
//   - [JobRecovered] an expired lease returned the job to pending
//   - [ReportRace] complete or fail found no in-flight record
//   - [Shutdown] the worker pool is shutting down
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never reach the dispatcher.
package ext
