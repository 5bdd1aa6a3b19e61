package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/congo-pay/topup-ledger/internal/clock"
	"github.com/congo-pay/topup-ledger/internal/store"
)

// walletNumberAttempts bounds retries when a generated wallet number collides.
const walletNumberAttempts = 3

// PostgresLedger persists wallets, transactions and transfers in PostgreSQL.
// Balances are only ever changed by a conditional server-side increment.
type PostgresLedger struct {
	db    *store.Postgres
	clock clock.Clock
}

// NewPostgresLedger constructs a Postgres-backed ledger store.
func NewPostgresLedger(db *store.Postgres, clk clock.Clock) *PostgresLedger {
	if clk == nil {
		clk = clock.Real{}
	}
	return &PostgresLedger{db: db, clock: clk}
}

// EnsureWallet inserts a zero-balance wallet unless the owner already has one.
func (l *PostgresLedger) EnsureWallet(ctx context.Context, owner string) (Wallet, error) {
	for attempt := 0; attempt < walletNumberAttempts; attempt++ {
		now := l.clock.Now()
		_, err := l.db.Conn(ctx).Exec(ctx, `INSERT INTO wallets (owner_id, wallet_number, balance, created_at, updated_at)
        VALUES ($1, $2, 0, $3, $3)
        ON CONFLICT DO NOTHING`, owner, newWalletNumber(), now)
		if err != nil {
			return Wallet{}, fmt.Errorf("ensure wallet: %w", err)
		}

		w, err := l.Wallet(ctx, owner)
		if errors.Is(err, ErrWalletNotFound) {
			// wallet_number collided with another owner's; try a fresh one.
			continue
		}
		return w, err
	}
	return Wallet{}, fmt.Errorf("ensure wallet %s: wallet number collisions", owner)
}

const walletColumns = `owner_id, wallet_number, balance, created_at, updated_at`

// Wallet fetches the owner's wallet.
func (l *PostgresLedger) Wallet(ctx context.Context, owner string) (Wallet, error) {
	row := l.db.Conn(ctx).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1`, owner)
	return scanWallet(row)
}

// ResolveRecipient matches the identifier against owner ids first, then wallet numbers.
func (l *PostgresLedger) ResolveRecipient(ctx context.Context, identifier string) (Wallet, error) {
	row := l.db.Conn(ctx).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE owner_id = $1 OR wallet_number = $1
        ORDER BY (owner_id = $1) DESC
        LIMIT 1`, identifier)
	return scanWallet(row)
}

// ApplyDelta adds d.Amount to the stored balance in a single conditional
// UPDATE and appends the Transaction row in the same database transaction.
func (l *PostgresLedger) ApplyDelta(ctx context.Context, d Delta) (int64, error) {
	if d.Amount == 0 {
		return 0, ErrInvalidAmount
	}
	sessionID, err := nullableUUID(d.SessionID)
	if err != nil {
		return 0, fmt.Errorf("session id: %w", err)
	}
	transferID, err := nullableUUID(d.TransferID)
	if err != nil {
		return 0, fmt.Errorf("transfer id: %w", err)
	}

	var balance int64
	err = l.db.WithinTx(ctx, func(ctx context.Context) error {
		conn := l.db.Conn(ctx)
		now := l.clock.Now()

		err := conn.QueryRow(ctx, `UPDATE wallets
            SET balance = balance + $2, updated_at = GREATEST(updated_at, $3)
            WHERE owner_id = $1 AND balance + $2 >= 0
            RETURNING balance`, d.Owner, d.Amount, now).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE owner_id = $1)`, d.Owner).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrWalletNotFound
			}
			return ErrInsufficientFunds
		}
		if err != nil {
			return fmt.Errorf("apply delta: %w", err)
		}

		tx := newTransaction(d, now)
		if _, err := conn.Exec(ctx, `INSERT INTO transactions
            (id, owner_id, type, amount, category, topup_session_id, money_transfer_id, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.MustParse(tx.ID), tx.OwnerID, string(tx.Type), tx.Amount, tx.Category, sessionID, transferID, tx.CreatedAt); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// LockWallets locks the owners' rows in ascending owner order.
func (l *PostgresLedger) LockWallets(ctx context.Context, owners ...string) error {
	sorted := append([]string(nil), owners...)
	sort.Strings(sorted)

	rows, err := l.db.Conn(ctx).Query(ctx, `SELECT owner_id FROM wallets
        WHERE owner_id = ANY($1)
        ORDER BY owner_id
        FOR UPDATE`, sorted)
	if err != nil {
		return fmt.Errorf("lock wallets: %w", err)
	}
	rows.Close()
	return rows.Err()
}

// RecordTransfer inserts the MoneyTransfer row.
func (l *PostgresLedger) RecordTransfer(ctx context.Context, t MoneyTransfer) error {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return fmt.Errorf("transfer id: %w", err)
	}
	_, err = l.db.Conn(ctx).Exec(ctx, `INSERT INTO money_transfers
        (id, sender_id, recipient_id, amount, status, description, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, t.SenderID, t.RecipientID, t.Amount, t.Status, t.Description, t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// Transactions lists the owner's most recent transactions.
func (l *PostgresLedger) Transactions(ctx context.Context, owner string, limit int) ([]Transaction, error) {
	rows, err := l.db.Conn(ctx).Query(ctx, `SELECT id, owner_id, type, amount, category,
            COALESCE(topup_session_id::text, ''), COALESCE(money_transfer_id::text, ''), created_at
        FROM transactions
        WHERE owner_id = $1
        ORDER BY created_at DESC, id
        LIMIT $2`, owner, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var (
			tx  Transaction
			id  uuid.UUID
			typ string
		)
		if err := rows.Scan(&id, &tx.OwnerID, &typ, &tx.Amount, &tx.Category, &tx.SessionID, &tx.TransferID, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.ID = id.String()
		tx.Type = TxType(typ)
		tx.CreatedAt = tx.CreatedAt.UTC()
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Transfers lists transfers the owner sent or received.
func (l *PostgresLedger) Transfers(ctx context.Context, owner string, limit int) ([]MoneyTransfer, error) {
	rows, err := l.db.Conn(ctx).Query(ctx, `SELECT id, sender_id, recipient_id, amount, status, description, created_at
        FROM money_transfers
        WHERE sender_id = $1 OR recipient_id = $1
        ORDER BY created_at DESC, id
        LIMIT $2`, owner, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MoneyTransfer
	for rows.Next() {
		var (
			t  MoneyTransfer
			id uuid.UUID
		)
		if err := rows.Scan(&id, &t.SenderID, &t.RecipientID, &t.Amount, &t.Status, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.ID = id.String()
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w                    Wallet
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&w.OwnerID, &w.Number, &w.Balance, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	w.CreatedAt = createdAt.UTC()
	w.UpdatedAt = updatedAt.UTC()
	return w, nil
}

func nullableUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
