package topup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/congo-pay/topup-ledger/internal/store"
)

// Repository persists sessions keyed by the provider's session id.
type Repository interface {
	Create(ctx context.Context, s Session) error
	GetByExternalID(ctx context.Context, externalID string) (Session, error)
	// Transition moves a pending session to a terminal status. A session in
	// any other state yields ErrSessionNotPending and is not modified.
	Transition(ctx context.Context, externalID string, to Status, at time.Time) (Session, error)
	ListByOwner(ctx context.Context, owner string, limit int) ([]Session, error)
}

// PostgresRepository stores sessions in PostgreSQL.
type PostgresRepository struct {
	db *store.Postgres
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *store.Postgres) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, external_session_id, owner_id, amount, currency, status, checkout_url, created_at, updated_at`

// Create inserts a session record.
func (r *PostgresRepository) Create(ctx context.Context, s Session) error {
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Conn(ctx).Exec(ctx, `INSERT INTO topup_sessions (`+sessionColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, s.ExternalID, s.OwnerID, s.Amount, s.Currency, string(s.Status), s.CheckoutURL, s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	return err
}

// GetByExternalID fetches a session by provider session id.
func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalID string) (Session, error) {
	row := r.db.Conn(ctx).QueryRow(ctx, `SELECT `+sessionColumns+` FROM topup_sessions WHERE external_session_id = $1`, externalID)
	return scanSession(row)
}

// Transition performs a conditional pending -> to update.
func (r *PostgresRepository) Transition(ctx context.Context, externalID string, to Status, at time.Time) (Session, error) {
	if !to.Terminal() {
		return Session{}, fmt.Errorf("%w: to %s", ErrInvalidTransition, to)
	}
	row := r.db.Conn(ctx).QueryRow(ctx, `UPDATE topup_sessions
        SET status = $2, updated_at = GREATEST(updated_at, $3)
        WHERE external_session_id = $1 AND status = 'pending'
        RETURNING `+sessionColumns, externalID, string(to), at.UTC())
	s, err := scanSession(row)
	if !errors.Is(err, ErrSessionNotFound) {
		return s, err
	}

	current, err := r.GetByExternalID(ctx, externalID)
	if err != nil {
		return Session{}, err
	}
	return current, fmt.Errorf("%w: status %s", ErrSessionNotPending, current.Status)
}

// ListByOwner returns the owner's newest sessions first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, owner string, limit int) ([]Session, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `SELECT `+sessionColumns+` FROM topup_sessions
        WHERE owner_id = $1
        ORDER BY created_at DESC
        LIMIT $2`, owner, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		s                    Session
		id                   uuid.UUID
		status               string
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &s.ExternalID, &s.OwnerID, &s.Amount, &s.Currency, &status, &s.CheckoutURL, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	s.ID = id.String()
	s.Status = Status(status)
	s.CreatedAt = createdAt.UTC()
	s.UpdatedAt = updatedAt.UTC()
	return s, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
