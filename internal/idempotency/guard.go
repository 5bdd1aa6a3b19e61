// Package idempotency deduplicates settlement attempts. A claim is an atomic
// insert-if-absent: among any number of concurrent or repeated claims for one
// key exactly one observes firstClaim == true.
package idempotency

import (
	"context"
	"errors"
)

// ErrEmptyKey rejects claims without a key.
var ErrEmptyKey = errors.New("idempotency key is required")

// Guard records claims.
type Guard interface {
	// Claim reports whether this call is the first to claim key.
	Claim(ctx context.Context, key string) (firstClaim bool, err error)
}

// Recorder marks keys whose work has finished. Callers check Seen before the
// work and Claim only after it succeeded, so work interrupted in between is
// redone on retry.
type Recorder interface {
	Guard
	Seen(ctx context.Context, key string) (bool, error)
}

// SessionKey is the durable claim key for settling a provider session.
func SessionKey(externalSessionID string) string {
	return "session:" + externalSessionID
}

// EventKey marks a provider webhook event id as processed.
func EventKey(eventID string) string {
	return "event:" + eventID
}
