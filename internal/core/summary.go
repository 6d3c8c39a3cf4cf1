package core

import "sort"

// DefaultTopCategories is how many categories the top-categories view keeps.
const DefaultTopCategories = 6

// Stats are the derived totals for a (usually period-filtered) ledger.
type Stats struct {
	Income  Money `json:"income"`
	Expense Money `json:"expense"`
	Balance Money `json:"balance"`
}

// CategoryAmount is an amount aggregated by category name.
type CategoryAmount struct {
	Category string `json:"category"`
	Amount   Money  `json:"amount"`
}

// Aggregate computes income, expense and balance sums over the ledger.
// An empty ledger yields all zeros.
func Aggregate(l Ledger) Stats {
	var s Stats
	for _, t := range l {
		switch t.Type {
		case Income:
			s.Income.Cents += t.Amount.Cents
		case Expense:
			s.Expense.Cents += t.Amount.Cents
		}
	}
	s.Balance.Cents = s.Income.Cents - s.Expense.Cents
	return s
}

// TopCategories sums amounts per category across both transaction types and
// returns the n largest, descending by total. Ties keep first-encountered
// order.
func TopCategories(l Ledger, n int) []CategoryAmount {
	if n <= 0 {
		n = DefaultTopCategories
	}

	totals := make(map[string]int64)
	order := make([]string, 0)
	for _, t := range l {
		if _, seen := totals[t.Category]; !seen {
			order = append(order, t.Category)
		}
		totals[t.Category] += t.Amount.Cents
	}

	out := make([]CategoryAmount, 0, len(order))
	for _, cat := range order {
		out = append(out, CategoryAmount{Category: cat, Amount: Money{Cents: totals[cat]}})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Amount.Cents > out[j].Amount.Cents
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
