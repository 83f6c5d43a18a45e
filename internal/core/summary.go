package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   Category
	Amount Money
}

// Snapshot is the derived view of a ledger. It is a cache of the record set
// and is always recomputed from it, never updated incrementally.
type Snapshot struct {
	Balance        Money // may be negative
	TotalIncome    Money
	TotalExpense   Money
	CategoryTotals map[Category]Money
	Count          int
}

// Clone returns a copy that shares no map with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.CategoryTotals = make(map[Category]Money, len(s.CategoryTotals))
	for k, v := range s.CategoryTotals {
		out.CategoryTotals[k] = v
	}
	return out
}

// Equal reports whether both snapshots hold identical values.
func (s Snapshot) Equal(o Snapshot) bool {
	if s.Balance != o.Balance || s.TotalIncome != o.TotalIncome ||
		s.TotalExpense != o.TotalExpense || s.Count != o.Count ||
		len(s.CategoryTotals) != len(o.CategoryTotals) {
		return false
	}
	for k, v := range s.CategoryTotals {
		if ov, ok := o.CategoryTotals[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
