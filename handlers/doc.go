// Package handlers holds the example job handlers that ship with workq:
// sending email, processing a payment and generating a CSV report.
//
// Each handler depends on a small interface (Mailer, Gateway, ReportSink)
// so the side effect can be swapped out. RegisterAll wires all three into
// a job.Registry, substituting logging implementations for missing
// dependencies.
//
//	reg := job.NewRegistry()
//	err := handlers.RegisterAll(reg, handlers.Deps{Mailer: smtpMailer})
//
// Handlers must tolerate at-least-once delivery. ProcessPayment passes the
// order ID to the gateway as an idempotency key for that reason.
package handlers
