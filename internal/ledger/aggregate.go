package ledger

import (
	"sort"

	"ledger/internal/core"
)

// ComputeAggregates derives the snapshot from the full record sequence.
//
// Sums are accumulated in integer cents so the result does not depend on the
// order records are visited. When zeroFill is set every expense category is
// present in CategoryTotals, otherwise only categories with records are.
func ComputeAggregates(records []core.Transaction, zeroFill bool) core.Snapshot {
	snap := core.Snapshot{
		CategoryTotals: make(map[core.Category]core.Money),
		Count:          len(records),
	}
	if zeroFill {
		for _, c := range core.ExpenseCategories() {
			snap.CategoryTotals[c] = core.Money{}
		}
	}

	for _, r := range records {
		switch r.Type {
		case core.Income:
			snap.TotalIncome = snap.TotalIncome.Add(r.Amount)
		case core.Expense:
			snap.TotalExpense = snap.TotalExpense.Add(r.Amount)
			snap.CategoryTotals[r.Category] = snap.CategoryTotals[r.Category].Add(r.Amount)
		}
	}
	snap.Balance = snap.TotalIncome.Sub(snap.TotalExpense)
	return snap
}

// TopExpensesByCategory ranks categories by descending expense total, ties
// broken by name ascending. limit <= 0 returns every category with spending.
func TopExpensesByCategory(records []core.Transaction, limit int) []core.CategoryAmount {
	totals := ComputeAggregates(records, false).CategoryTotals

	out := make([]core.CategoryAmount, 0, len(totals))
	for name, amount := range totals {
		if amount.IsZero() {
			continue
		}
		out = append(out, core.CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
