package model

import "time"

// CarryStrategy controls how a budget propagates unspent or overspent
// amounts into the following month's ledger.
type CarryStrategy string

// Carry strategy constants.
const (
	CarryNone      CarryStrategy = "none"
	CarryUnspent   CarryStrategy = "carry-unspent"
	CarryOverspend CarryStrategy = "carry-overspend"
)

// ValidCarryStrategy reports whether s is a known carry strategy.
func ValidCarryStrategy(s CarryStrategy) bool {
	switch s {
	case CarryNone, CarryUnspent, CarryOverspend:
		return true
	}
	return false
}

// Budget caps spending for one category in one calendar month.
// At most one budget may exist per (CategoryID, Month) pair.
type Budget struct {
	Envelope
	CategoryID    string        `json:"categoryId"`
	Month         string        `json:"month"` // YYYY-MM
	CarryStrategy CarryStrategy `json:"carryStrategy"`
	Amount        float64       `json:"amount"`
}

// ParseMonth parses a YYYY-MM month key into the first instant of that month.
func ParseMonth(month string) (time.Time, error) {
	return time.Parse("2006-01", month)
}

// NextMonth returns the month key following the given YYYY-MM key.
// The input must already be validated.
func NextMonth(month string) string {
	t, err := ParseMonth(month)
	if err != nil {
		return month
	}
	return t.AddDate(0, 1, 0).Format("2006-01")
}
