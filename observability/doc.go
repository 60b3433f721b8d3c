// Package observability provides an OpenTelemetry metrics extension for
// workq. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for enqueue, claim, completion, retry, dead-letter,
// lease recovery and reporting-race events.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
