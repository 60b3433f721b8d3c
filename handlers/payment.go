package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Payment is the payload of a process-payment job. Amounts are in minor
// currency units.
type Payment struct {
	OrderID     string `json:"order_id" msgpack:"order_id"`
	AmountCents int64  `json:"amount_cents" msgpack:"amount_cents"`
	Currency    string `json:"currency" msgpack:"currency"`
}

// Gateway charges a payment and returns the gateway's reference. OrderID
// is the idempotency key: charging the same order twice must not double
// charge.
type Gateway interface {
	Charge(ctx context.Context, p Payment) (string, error)
}

// ErrInvalidAmount is returned for a payment with a non-positive amount.
// Retrying cannot fix it, so the job dead-letters once its retries run out.
var ErrInvalidAmount = errors.New("handlers: payment amount must be positive")

// ProcessPayment returns a handler that charges the payload through g.
func ProcessPayment(g Gateway, logger *slog.Logger) func(context.Context, Payment) error {
	return func(ctx context.Context, p Payment) error {
		if p.AmountCents <= 0 {
			return fmt.Errorf("order %s: %w", p.OrderID, ErrInvalidAmount)
		}
		if p.OrderID == "" {
			return errors.New("handlers: payment has no order id")
		}
		ref, err := g.Charge(ctx, p)
		if err != nil {
			return fmt.Errorf("charge order %s: %w", p.OrderID, err)
		}
		logger.Info("payment charged",
			slog.String("order_id", p.OrderID),
			slog.Int64("amount_cents", p.AmountCents),
			slog.String("reference", ref),
		)
		return nil
	}
}

// LogGateway logs charges and returns a reference derived from the order ID.
type LogGateway struct {
	Logger *slog.Logger
}

// Charge implements Gateway.
func (l LogGateway) Charge(_ context.Context, p Payment) (string, error) {
	ref := "ch_" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(p.OrderID)).String()
	l.Logger.Debug("charging payment",
		slog.String("order_id", p.OrderID),
		slog.String("currency", p.Currency),
	)
	return ref, nil
}
