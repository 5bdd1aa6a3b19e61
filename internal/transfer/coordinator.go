package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/congo-pay/topup-ledger/internal/clock"
	"github.com/congo-pay/topup-ledger/internal/ledger"
	"github.com/congo-pay/topup-ledger/internal/logging"
	"github.com/congo-pay/topup-ledger/internal/metrics"
	"github.com/congo-pay/topup-ledger/internal/money"
	"github.com/congo-pay/topup-ledger/internal/notification"
	"github.com/congo-pay/topup-ledger/internal/store"
)

const maxDescriptionLen = 255

var (
	ErrInvalidAmount     = errors.New("transfer amount must be positive")
	ErrSelfTransfer      = errors.New("cannot transfer to your own wallet")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrDescriptionLength = fmt.Errorf("description longer than %d characters", maxDescriptionLen)

	// ErrInsufficientFunds aborts the whole transfer; neither side changes.
	ErrInsufficientFunds = ledger.ErrInsufficientFunds
)

// Coordinator moves money between wallets. The debit, the credit and the
// records describing them commit together or not at all.
type Coordinator struct {
	tx       store.TxManager
	ledger   ledger.Store
	notifier notification.Notifier
	metrics  *metrics.Metrics
	clock    clock.Clock
	logger   *slog.Logger
}

// NewCoordinator constructs a transfer coordinator.
func NewCoordinator(tx store.TxManager, l ledger.Store, notifier notification.Notifier, m *metrics.Metrics, clk clock.Clock, logger *slog.Logger) *Coordinator {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Coordinator{
		tx:       tx,
		ledger:   l,
		notifier: notifier,
		metrics:  m,
		clock:    clk,
		logger:   logging.Component(logger, "transfer"),
	}
}

// Input captures the data needed to move funds between wallets.
type Input struct {
	SenderID string
	// RecipientIdentifier is an owner id or a wallet number.
	RecipientIdentifier string
	Amount              int64
	Description         string
}

// Result describes a committed transfer.
type Result struct {
	Transfer         ledger.MoneyTransfer
	SenderBalance    int64
	RecipientBalance int64
}

// Transfer validates the request and applies it in one unit of work.
func (c *Coordinator) Transfer(ctx context.Context, in Input) (Result, error) {
	res, err := c.transfer(ctx, in)
	if err != nil {
		c.metrics.ObserveTransfer(outcome(err), in.Amount)
		level := slog.LevelError
		if outcome(err) != "error" {
			level = slog.LevelInfo
		}
		c.logger.Log(ctx, level, "transfer rejected",
			slog.String("sender_id", in.SenderID),
			slog.Int64("amount", in.Amount),
			slog.String("reason", err.Error()))
		return Result{}, err
	}
	c.metrics.ObserveTransfer("completed", in.Amount)
	c.logger.Info("transfer completed",
		slog.String("transfer_id", res.Transfer.ID),
		slog.String("sender_id", res.Transfer.SenderID),
		slog.String("recipient_id", res.Transfer.RecipientID),
		slog.Int64("amount", res.Transfer.Amount))
	c.notify(ctx, res.Transfer)
	return res, nil
}

func (c *Coordinator) transfer(ctx context.Context, in Input) (Result, error) {
	if in.Amount <= 0 {
		return Result{}, ErrInvalidAmount
	}
	if in.SenderID == "" {
		return Result{}, errors.New("sender is required")
	}
	description := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return Result{}, ErrDescriptionLength
	}
	identifier := strings.TrimSpace(in.RecipientIdentifier)
	if identifier == "" {
		return Result{}, ErrRecipientNotFound
	}

	recipient, err := c.ledger.ResolveRecipient(ctx, identifier)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return Result{}, ErrRecipientNotFound
		}
		return Result{}, fmt.Errorf("resolve recipient: %w", err)
	}
	if recipient.OwnerID == in.SenderID {
		return Result{}, ErrSelfTransfer
	}
	if _, err := c.ledger.EnsureWallet(ctx, in.SenderID); err != nil {
		return Result{}, fmt.Errorf("ensure sender wallet: %w", err)
	}

	t := ledger.MoneyTransfer{
		ID:          uuid.NewString(),
		SenderID:    in.SenderID,
		RecipientID: recipient.OwnerID,
		Amount:      in.Amount,
		Status:      ledger.TransferStatusCompleted,
		Description: description,
		CreatedAt:   c.clock.Now(),
	}

	var res Result
	err = c.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := c.ledger.LockWallets(ctx, t.SenderID, t.RecipientID); err != nil {
			return err
		}
		senderBalance, err := c.ledger.ApplyDelta(ctx, ledger.Delta{
			Owner:      t.SenderID,
			Amount:     -t.Amount,
			Category:   ledger.CategoryTransferOut,
			TransferID: t.ID,
		})
		if err != nil {
			return err
		}
		recipientBalance, err := c.ledger.ApplyDelta(ctx, ledger.Delta{
			Owner:      t.RecipientID,
			Amount:     t.Amount,
			Category:   ledger.CategoryTransferIn,
			TransferID: t.ID,
		})
		if err != nil {
			return err
		}
		if err := c.ledger.RecordTransfer(ctx, t); err != nil {
			return err
		}
		res = Result{Transfer: t, SenderBalance: senderBalance, RecipientBalance: recipientBalance}
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) || errors.Is(err, ledger.ErrInvalidAmount) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("apply transfer: %w", err)
	}
	return res, nil
}

func (c *Coordinator) notify(ctx context.Context, t ledger.MoneyTransfer) {
	if c.notifier == nil {
		return
	}
	amount := money.FormatMinor(t.Amount)
	msgs := []notification.Message{
		{
			Kind:        notification.KindTransferSent,
			Destination: t.SenderID,
			Body:        fmt.Sprintf("You sent %s to %s", amount, t.RecipientID),
			Amount:      t.Amount,
			Reference:   t.ID,
			OccurredAt:  t.CreatedAt,
		},
		{
			Kind:        notification.KindTransferReceived,
			Destination: t.RecipientID,
			Body:        fmt.Sprintf("You received %s from %s", amount, t.SenderID),
			Amount:      t.Amount,
			Reference:   t.ID,
			OccurredAt:  t.CreatedAt,
		},
	}
	for _, m := range msgs {
		if err := c.notifier.Send(ctx, m); err != nil {
			c.logger.Warn("transfer notification failed",
				slog.String("transfer_id", t.ID),
				slog.String("kind", m.Kind),
				slog.String("error", err.Error()))
		}
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrDescriptionLength):
		return "invalid"
	case errors.Is(err, ErrSelfTransfer):
		return "self_transfer"
	case errors.Is(err, ErrRecipientNotFound):
		return "recipient_not_found"
	default:
		return "error"
	}
}
