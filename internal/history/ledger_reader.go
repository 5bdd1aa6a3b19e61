package history

import (
	"context"
	"sort"

	"github.com/congo-pay/topup-ledger/internal/ledger"
)

// maxScan matches the ledger's largest history page.
const maxScan = 500

// LedgerReader derives summaries from ledger.Store history. It backs
// development runs without Postgres and only sees the latest maxScan entries.
type LedgerReader struct {
	ledger ledger.Store
}

func NewLedgerReader(l ledger.Store) *LedgerReader {
	return &LedgerReader{ledger: l}
}

func (r *LedgerReader) Summary(ctx context.Context, owner string) (Summary, error) {
	txs, err := r.ledger.Transactions(ctx, owner, maxScan)
	if err != nil {
		return Summary{}, err
	}
	byKey := map[[2]string]*CategoryTotal{}
	for _, tx := range txs {
		key := [2]string{tx.Category, string(tx.Type)}
		t, ok := byKey[key]
		if !ok {
			t = &CategoryTotal{Category: tx.Category, Type: string(tx.Type)}
			byKey[key] = t
		}
		t.Total += tx.Amount
		t.Count++
	}
	totals := make([]CategoryTotal, 0, len(byKey))
	for _, t := range byKey {
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Category != totals[j].Category {
			return totals[i].Category < totals[j].Category
		}
		return totals[i].Type < totals[j].Type
	})
	return summarize(owner, totals), nil
}
