// Package audithook is a workq extension that turns job lifecycle hooks into
// audit events and hands them to a [Recorder].
//
// Severity follows the outcome: info for normal progress, warning for
// retries, recoveries and report races, critical for dead-lettering.
//
//	eng, _ := engine.New(store, reg,
//	    engine.WithExtension(audithook.New(audithook.NewSlogRecorder(logger))),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobRetrying,
//	        audithook.ActionJobDeadLettered,
//	    ),
//	)
package audithook
