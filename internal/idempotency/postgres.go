package idempotency

import (
	"context"
	"fmt"

	"github.com/congo-pay/topup-ledger/internal/clock"
	"github.com/congo-pay/topup-ledger/internal/store"
)

// PostgresGuard inserts claims into settlement_claims under its primary key.
// When called inside a unit of work the claim commits or rolls back together
// with the guarded writes.
type PostgresGuard struct {
	db    *store.Postgres
	clock clock.Clock
}

// NewPostgresGuard builds a durable guard.
func NewPostgresGuard(db *store.Postgres, clk clock.Clock) *PostgresGuard {
	if clk == nil {
		clk = clock.Real{}
	}
	return &PostgresGuard{db: db, clock: clk}
}

func (g *PostgresGuard) Claim(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	tag, err := g.db.Conn(ctx).Exec(ctx, `INSERT INTO settlement_claims (claim_key, claimed_at)
        VALUES ($1, $2)
        ON CONFLICT (claim_key) DO NOTHING`, key, g.clock.Now())
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}
