package ledger

import "context"

// SeedBalance is a test helper that creates the owner's wallet if needed and
// credits it through ApplyDelta with an adjustment entry.
func SeedBalance(ctx context.Context, l Store, owner string, amount int64) error {
	if _, err := l.EnsureWallet(ctx, owner); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	_, err := l.ApplyDelta(ctx, Delta{Owner: owner, Amount: amount, Category: CategoryAdjustment})
	return err
}
