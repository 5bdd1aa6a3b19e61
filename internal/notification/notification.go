package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	// KindTopupSettled is sent to the owner when a top-up is credited.
	KindTopupSettled = "topup.settled"
	// KindTransferSent is sent to the sender of a completed transfer.
	KindTransferSent = "transfer.sent"
	// KindTransferReceived is sent to the recipient of a completed transfer.
	KindTransferReceived = "transfer.received"
)

// Message describes a notification payload.
type Message struct {
	Kind        string    `json:"kind"`
	Destination string    `json:"destination"`
	Body        string    `json:"body"`
	Amount      int64     `json:"amount"`
	Reference   string    `json:"reference"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier delivers notifications to downstream systems. Delivery happens
// after the ledger commit; a failed Send never undoes a balance change.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"destination", message.Destination,
		"reference", message.Reference,
		"amount", message.Amount,
		"body", message.Body)
	return nil
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, message Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
