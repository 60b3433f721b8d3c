package handlers

import (
	"context"
	"errors"
	"log/slog"
)

// Email is the payload of a send-email job.
type Email struct {
	To      string `json:"to" msgpack:"to"`
	Subject string `json:"subject" msgpack:"subject"`
	Body    string `json:"body,omitempty" msgpack:"body,omitempty"`
}

// Mailer delivers an email.
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// ErrNoRecipient is returned for an email without a recipient.
var ErrNoRecipient = errors.New("handlers: email has no recipient")

// SendEmail returns a handler that delivers the payload through m.
func SendEmail(m Mailer) func(context.Context, Email) error {
	return func(ctx context.Context, msg Email) error {
		if msg.To == "" {
			return ErrNoRecipient
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return m.Send(ctx, msg)
	}
}

// LogMailer writes emails to a logger instead of sending them.
type LogMailer struct {
	Logger *slog.Logger
}

// Send implements Mailer.
func (l LogMailer) Send(_ context.Context, msg Email) error {
	l.Logger.Info("email sent",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}
