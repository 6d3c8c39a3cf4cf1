package core

import "time"

const (
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodAll   Period = "all"
)

// Period selects the time window derived views are computed over.
type Period string

// Normalize maps any unrecognized value to PeriodAll, matching how the
// stored data treated unknown period selectors.
func (p Period) Normalize() Period {
	switch p {
	case PeriodMonth, PeriodYear:
		return p
	default:
		return PeriodAll
	}
}

// FilterByPeriod returns the order-preserving subsequence of the ledger
// falling inside the period relative to now. Entries with a zero date are
// dropped for month and year windows.
func FilterByPeriod(l Ledger, p Period, now time.Time) Ledger {
	p = p.Normalize()
	if p == PeriodAll {
		return append(Ledger(nil), l...)
	}

	out := make(Ledger, 0, len(l))
	for _, t := range l {
		if t.Date.IsZero() {
			continue
		}
		switch p {
		case PeriodMonth:
			if t.Date.Year() == now.Year() && t.Date.Month() == now.Month() {
				out = append(out, t)
			}
		case PeriodYear:
			if t.Date.Year() == now.Year() {
				out = append(out, t)
			}
		}
	}
	return out
}
