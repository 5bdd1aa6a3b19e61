package store

import (
	"context"
	"sync"
)

type memTxKey struct{}

type memTx struct {
	owner *Memory
	undo  []func()
}

// Memory is the in-process twin of Postgres. A unit of work holds one mutex
// for its whole duration and undoes registered writes when fn fails, which
// gives the memory repositories the same all-or-nothing behaviour as a
// database transaction.
type Memory struct {
	mu sync.Mutex
}

// NewMemory builds an empty memory unit-of-work manager.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.active(ctx) {
		return fn(ctx)
	}

	m.mu.Lock()
	tx := &memTx{owner: m}
	committed := false
	// Runs on error and on panic alike; a panic keeps unwinding afterwards.
	defer func() {
		if !committed {
			for i := len(tx.undo) - 1; i >= 0; i-- {
				tx.undo[i]()
			}
		}
		m.mu.Unlock()
	}()

	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		return err
	}
	committed = true
	return nil
}

// Lock serialises a single repository call. Inside WithinTx the lock is
// already held and the returned func is a no-op.
func (m *Memory) Lock(ctx context.Context) func() {
	if m.active(ctx) {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// OnRollback records undo to run if the surrounding unit of work fails.
// Writes made outside a unit of work are final.
func (m *Memory) OnRollback(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok && tx.owner == m {
		tx.undo = append(tx.undo, undo)
	}
}

func (m *Memory) active(ctx context.Context) bool {
	tx, ok := ctx.Value(memTxKey{}).(*memTx)
	return ok && tx.owner == m
}
