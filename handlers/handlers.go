package handlers

import (
	"fmt"
	"log/slog"

	"github.com/xraph/workq/codec"
	"github.com/xraph/workq/job"
)

// Job types registered by RegisterAll.
const (
	TypeSendEmail      = "send-email"
	TypeProcessPayment = "process-payment"
	TypeGenerateReport = "generate-report"
)

// Deps are the side-effect implementations used by the example handlers.
// Nil fields fall back to logging implementations.
type Deps struct {
	Mailer  Mailer
	Gateway Gateway
	Sink    ReportSink
	Codec   codec.Codec
	Logger  *slog.Logger
}

// RegisterAll registers every example handler with reg.
func RegisterAll(reg *job.Registry, deps Deps) error {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Mailer == nil {
		deps.Mailer = LogMailer{Logger: logger}
	}
	if deps.Gateway == nil {
		deps.Gateway = LogGateway{Logger: logger}
	}
	if deps.Sink == nil {
		deps.Sink = LogSink{Logger: logger}
	}

	if err := job.RegisterTyped(reg, TypeSendEmail, deps.Codec, SendEmail(deps.Mailer)); err != nil {
		return fmt.Errorf("handlers: %w", err)
	}
	if err := job.RegisterTyped(reg, TypeProcessPayment, deps.Codec, ProcessPayment(deps.Gateway, logger)); err != nil {
		return fmt.Errorf("handlers: %w", err)
	}
	if err := job.RegisterTyped(reg, TypeGenerateReport, deps.Codec, GenerateReport(deps.Sink)); err != nil {
		return fmt.Errorf("handlers: %w", err)
	}
	return nil
}
