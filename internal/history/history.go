// Package history serves the read side of the wallet: balance, statements and
// per-category totals.
package history

import (
	"context"

	"github.com/congo-pay/topup-ledger/internal/ledger"
)

// CategoryTotal aggregates an owner's transactions for one category and
// direction.
type CategoryTotal struct {
	Category string `db:"category" json:"category"`
	Type     string `db:"type" json:"type"`
	Total    int64  `db:"total" json:"total"`
	Count    int64  `db:"count" json:"count"`
}

// Summary is the owner's lifetime activity.
type Summary struct {
	OwnerID      string          `json:"ownerId"`
	ToppedUp     int64           `json:"toppedUp"`
	Sent         int64           `json:"sent"`
	Received     int64           `json:"received"`
	Transactions int64           `json:"transactions"`
	ByCategory   []CategoryTotal `json:"byCategory"`
}

// Reader computes summaries.
type Reader interface {
	Summary(ctx context.Context, owner string) (Summary, error)
}

func summarize(owner string, totals []CategoryTotal) Summary {
	s := Summary{OwnerID: owner, ByCategory: totals}
	if s.ByCategory == nil {
		s.ByCategory = []CategoryTotal{}
	}
	for _, t := range totals {
		s.Transactions += t.Count
		switch t.Category {
		case ledger.CategoryTopup:
			s.ToppedUp += t.Total
		case ledger.CategoryTransferOut:
			s.Sent += t.Total
		case ledger.CategoryTransferIn:
			s.Received += t.Total
		}
	}
	return s
}
