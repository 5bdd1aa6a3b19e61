package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInsufficientFunds occurs when applying a debit would drive the wallet
	// balance below zero. Nothing is written.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrWalletNotFound indicates no wallet row exists for the owner. Callers
	// create one with EnsureWallet and retry.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInvalidAmount rejects zero deltas and amounts that cannot be stored.
	ErrInvalidAmount = errors.New("invalid amount")
)

// TxType is the semantic direction of a Transaction.
type TxType string

const (
	TypeIncome  TxType = "income"
	TypeExpense TxType = "expense"
)

const (
	CategoryTopup       = "topup"
	CategoryTransferIn  = "transfer_in"
	CategoryTransferOut = "transfer_out"
	CategoryAdjustment  = "adjustment"

	// TransferStatusCompleted is the only status a MoneyTransfer is ever
	// persisted with.
	TransferStatusCompleted = "completed"
)

// Wallet is a user's stored balance in minor currency units.
type Wallet struct {
	OwnerID   string
	Number    string
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is an append-only record of one balance change.
type Transaction struct {
	ID         string
	OwnerID    string
	Type       TxType
	Amount     int64
	Category   string
	SessionID  string
	TransferID string
	CreatedAt  time.Time
}

// MoneyTransfer records a completed wallet-to-wallet movement.
type MoneyTransfer struct {
	ID          string
	SenderID    string
	RecipientID string
	Amount      int64
	Status      string
	Description string
	CreatedAt   time.Time
}

// Delta describes one signed balance change and the Transaction that documents it.
type Delta struct {
	Owner      string
	Amount     int64
	Category   string
	SessionID  string
	TransferID string
}

// Store is the only legitimate path for mutating wallet balances.
type Store interface {
	// EnsureWallet creates a zero-balance wallet if none exists and returns it.
	EnsureWallet(ctx context.Context, owner string) (Wallet, error)
	Wallet(ctx context.Context, owner string) (Wallet, error)
	// ResolveRecipient finds a wallet by owner id or by wallet number.
	ResolveRecipient(ctx context.Context, identifier string) (Wallet, error)
	// ApplyDelta increments the stored balance server-side and appends the
	// matching Transaction in the same unit of work. It returns the new balance.
	ApplyDelta(ctx context.Context, d Delta) (int64, error)
	// LockWallets takes row locks in a stable order. Only meaningful inside a
	// unit of work.
	LockWallets(ctx context.Context, owners ...string) error
	RecordTransfer(ctx context.Context, t MoneyTransfer) error
	Transactions(ctx context.Context, owner string, limit int) ([]Transaction, error)
	Transfers(ctx context.Context, owner string, limit int) ([]MoneyTransfer, error)
}

func newTransaction(d Delta, at time.Time) Transaction {
	tx := Transaction{
		ID:         uuid.NewString(),
		OwnerID:    d.Owner,
		Type:       TypeIncome,
		Amount:     d.Amount,
		Category:   d.Category,
		SessionID:  d.SessionID,
		TransferID: d.TransferID,
		CreatedAt:  at,
	}
	if d.Amount < 0 {
		tx.Type = TypeExpense
		tx.Amount = -d.Amount
	}
	return tx
}

func newWalletNumber() string {
	return "W" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

const defaultHistoryLimit = 50

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultHistoryLimit
	}
	return limit
}
