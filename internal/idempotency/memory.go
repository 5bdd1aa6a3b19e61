package idempotency

import (
	"context"
	"time"

	"github.com/congo-pay/topup-ledger/internal/clock"
	"github.com/congo-pay/topup-ledger/internal/store"
)

// MemoryGuard keeps claims in process. Claims made inside a store.Memory unit
// of work are undone if it fails. A zero ttl keeps claims forever.
type MemoryGuard struct {
	db     *store.Memory
	clock  clock.Clock
	ttl    time.Duration
	claims map[string]time.Time
}

// NewMemoryGuard builds an in-process guard.
func NewMemoryGuard(db *store.Memory, clk clock.Clock, ttl time.Duration) *MemoryGuard {
	if clk == nil {
		clk = clock.Real{}
	}
	return &MemoryGuard{db: db, clock: clk, ttl: ttl, claims: make(map[string]time.Time)}
}

func (g *MemoryGuard) Claim(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	unlock := g.db.Lock(ctx)
	defer unlock()

	now := g.clock.Now()
	if at, ok := g.claims[key]; ok {
		if g.ttl <= 0 || now.Sub(at) < g.ttl {
			return false, nil
		}
	}

	prev, hadPrev := g.claims[key]
	g.claims[key] = now
	g.db.OnRollback(ctx, func() {
		if hadPrev {
			g.claims[key] = prev
			return
		}
		delete(g.claims, key)
	})
	return true, nil
}

// Seen reports an unexpired claim without taking one.
func (g *MemoryGuard) Seen(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	unlock := g.db.Lock(ctx)
	defer unlock()
	at, ok := g.claims[key]
	return ok && (g.ttl <= 0 || g.clock.Now().Sub(at) < g.ttl), nil
}
