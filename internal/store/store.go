// Package store provides the unit of work shared by the ledger, session and
// idempotency repositories. A transaction opened by WithinTx travels in the
// context, so every repository call made with that context joins it.
package store

import "context"

// TxManager runs fn inside a single atomic unit of work. Calls nested inside
// an active unit join it instead of opening a new one.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
