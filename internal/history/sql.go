package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// SQLReader runs reporting queries through database/sql so they stay off the
// pgx pool used by the write path.
type SQLReader struct {
	db *sqlx.DB
}

// NewSQLReader wraps an existing sqlx handle.
func NewSQLReader(db *sqlx.DB) *SQLReader {
	return &SQLReader{db: db}
}

// OpenSQLReader builds a reader on top of a pgx pool.
func OpenSQLReader(pool *pgxpool.Pool) *SQLReader {
	return NewSQLReader(sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx"))
}

func (r *SQLReader) Summary(ctx context.Context, owner string) (Summary, error) {
	query := `
		SELECT category, type, COALESCE(SUM(amount), 0)::bigint AS total, COUNT(*) AS count
		FROM transactions
		WHERE owner_id = $1
		GROUP BY category, type
		ORDER BY category, type
	`
	var totals []CategoryTotal
	if err := sqlx.SelectContext(ctx, r.db, &totals, query, owner); err != nil {
		return Summary{}, fmt.Errorf("summarize %s: %w", owner, err)
	}
	return summarize(owner, totals), nil
}

// Close releases the database/sql handle. The underlying pool is not closed.
func (r *SQLReader) Close() error {
	return r.db.Close()
}
