package topup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/congo-pay/topup-ledger/internal/store"
)

type memoryRepository struct {
	db      *store.Memory
	storage map[string]*Session
}

// NewMemoryRepository constructs an in-memory repository sharing db's unit of work.
func NewMemoryRepository(db *store.Memory) Repository {
	return &memoryRepository{db: db, storage: make(map[string]*Session)}
}

func (r *memoryRepository) Create(ctx context.Context, s Session) error {
	unlock := r.db.Lock(ctx)
	defer unlock()
	if _, exists := r.storage[s.ExternalID]; exists {
		return errors.New("topup session exists")
	}
	stored := s
	r.storage[s.ExternalID] = &stored
	r.db.OnRollback(ctx, func() { delete(r.storage, s.ExternalID) })
	return nil
}

func (r *memoryRepository) GetByExternalID(ctx context.Context, externalID string) (Session, error) {
	unlock := r.db.Lock(ctx)
	defer unlock()
	s, ok := r.storage[externalID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *s, nil
}

func (r *memoryRepository) Transition(ctx context.Context, externalID string, to Status, at time.Time) (Session, error) {
	if !to.Terminal() {
		return Session{}, fmt.Errorf("%w: to %s", ErrInvalidTransition, to)
	}
	unlock := r.db.Lock(ctx)
	defer unlock()

	s, ok := r.storage[externalID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if s.Status != StatusPending {
		return *s, fmt.Errorf("%w: status %s", ErrSessionNotPending, s.Status)
	}

	prevStatus, prevUpdated := s.Status, s.UpdatedAt
	s.Status = to
	if at.After(s.UpdatedAt) {
		s.UpdatedAt = at
	}
	r.db.OnRollback(ctx, func() {
		s.Status = prevStatus
		s.UpdatedAt = prevUpdated
	})
	return *s, nil
}

func (r *memoryRepository) ListByOwner(ctx context.Context, owner string, limit int) ([]Session, error) {
	unlock := r.db.Lock(ctx)
	defer unlock()

	var out []Session
	for _, s := range r.storage {
		if s.OwnerID == owner {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
