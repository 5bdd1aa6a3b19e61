package ledger

import (
	"context"
	"math"
	"sort"

	"github.com/congo-pay/topup-ledger/internal/clock"
	"github.com/congo-pay/topup-ledger/internal/store"
)

// Memory keeps wallets in process. All writes happen under the shared
// store.Memory lock and register undo steps so they roll back with the
// surrounding unit of work.
type Memory struct {
	db    *store.Memory
	clock clock.Clock

	wallets   map[string]*Wallet
	numbers   map[string]string
	txs       []Transaction
	transfers []MoneyTransfer
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests
// and development runs without Postgres.
func NewInMemory(db *store.Memory, clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Memory{
		db:      db,
		clock:   clk,
		wallets: make(map[string]*Wallet),
		numbers: make(map[string]string),
	}
}

func (l *Memory) EnsureWallet(ctx context.Context, owner string) (Wallet, error) {
	unlock := l.db.Lock(ctx)
	defer unlock()

	if w, ok := l.wallets[owner]; ok {
		return *w, nil
	}
	now := l.clock.Now()
	w := &Wallet{OwnerID: owner, Number: newWalletNumber(), CreatedAt: now, UpdatedAt: now}
	for _, taken := l.numbers[w.Number]; taken; _, taken = l.numbers[w.Number] {
		w.Number = newWalletNumber()
	}
	l.wallets[owner] = w
	l.numbers[w.Number] = owner
	l.db.OnRollback(ctx, func() {
		delete(l.wallets, owner)
		delete(l.numbers, w.Number)
	})
	return *w, nil
}

func (l *Memory) Wallet(ctx context.Context, owner string) (Wallet, error) {
	unlock := l.db.Lock(ctx)
	defer unlock()

	w, ok := l.wallets[owner]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return *w, nil
}

func (l *Memory) ResolveRecipient(ctx context.Context, identifier string) (Wallet, error) {
	unlock := l.db.Lock(ctx)
	defer unlock()

	if w, ok := l.wallets[identifier]; ok {
		return *w, nil
	}
	if owner, ok := l.numbers[identifier]; ok {
		return *l.wallets[owner], nil
	}
	return Wallet{}, ErrWalletNotFound
}

func (l *Memory) ApplyDelta(ctx context.Context, d Delta) (int64, error) {
	if d.Amount == 0 {
		return 0, ErrInvalidAmount
	}

	var balance int64
	err := l.db.WithinTx(ctx, func(ctx context.Context) error {
		w, ok := l.wallets[d.Owner]
		if !ok {
			return ErrWalletNotFound
		}
		if d.Amount > 0 && w.Balance > math.MaxInt64-d.Amount {
			return ErrInvalidAmount
		}
		if w.Balance+d.Amount < 0 {
			return ErrInsufficientFunds
		}

		prevBalance, prevUpdated := w.Balance, w.UpdatedAt
		now := l.clock.Now()
		w.Balance += d.Amount
		if now.After(w.UpdatedAt) {
			w.UpdatedAt = now
		}
		l.db.OnRollback(ctx, func() {
			w.Balance = prevBalance
			w.UpdatedAt = prevUpdated
		})

		n := len(l.txs)
		l.txs = append(l.txs, newTransaction(d, now))
		l.db.OnRollback(ctx, func() { l.txs = l.txs[:n] })

		balance = w.Balance
		return nil
	})
	return balance, err
}

// LockWallets is a no-op: the memory unit of work already serialises writers.
func (l *Memory) LockWallets(context.Context, ...string) error {
	return nil
}

func (l *Memory) RecordTransfer(ctx context.Context, t MoneyTransfer) error {
	unlock := l.db.Lock(ctx)
	defer unlock()

	n := len(l.transfers)
	l.transfers = append(l.transfers, t)
	l.db.OnRollback(ctx, func() { l.transfers = l.transfers[:n] })
	return nil
}

func (l *Memory) Transactions(ctx context.Context, owner string, limit int) ([]Transaction, error) {
	unlock := l.db.Lock(ctx)
	defer unlock()

	var out []Transaction
	for i := len(l.txs) - 1; i >= 0; i-- {
		if l.txs[i].OwnerID == owner {
			out = append(out, l.txs[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *Memory) Transfers(ctx context.Context, owner string, limit int) ([]MoneyTransfer, error) {
	unlock := l.db.Lock(ctx)
	defer unlock()

	var out []MoneyTransfer
	for i := len(l.transfers) - 1; i >= 0; i-- {
		if t := l.transfers[i]; t.SenderID == owner || t.RecipientID == owner {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TotalBalance sums every wallet. Used by conservation checks in tests.
func (l *Memory) TotalBalance() int64 {
	unlock := l.db.Lock(context.Background())
	defer unlock()

	var total int64
	for _, w := range l.wallets {
		total += w.Balance
	}
	return total
}
