package topup

import (
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned when no session matches the external id.
	ErrSessionNotFound = errors.New("topup session not found")

	// ErrSessionNotPending reports an attempted transition out of a terminal
	// state. The session is left as it was.
	ErrSessionNotPending = errors.New("topup session is not pending")

	ErrInvalidTransition   = errors.New("invalid topup session transition")
	ErrInvalidAmount       = errors.New("invalid topup amount")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Session tracks one external checkout attempt.
type Session struct {
	ID          string
	ExternalID  string
	OwnerID     string
	Amount      int64
	Currency    string
	Status      Status
	CheckoutURL string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
