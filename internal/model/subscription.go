package model

import "time"

// Cadence describes how often a subscription recurs.
type Cadence string

// Cadence constants. Custom cadences carry their interval in days.
const (
	CadenceMonthly Cadence = "monthly"
	CadenceYearly  Cadence = "yearly"
	CadenceCustom  Cadence = "custom"
)

// ValidCadence reports whether c is a known cadence.
func ValidCadence(c Cadence) bool {
	switch c {
	case CadenceMonthly, CadenceYearly, CadenceCustom:
		return true
	}
	return false
}

// Subscription is a recurring payment tracked independently of the
// transactions it produces.
type Subscription struct {
	Envelope
	NextDueDate time.Time `json:"nextDueDate"`
	Name        string    `json:"name"`
	Cadence     Cadence   `json:"cadence"`
	Currency    string    `json:"currency"`
	AccountID   string    `json:"accountId,omitempty"`
	CategoryID  string    `json:"categoryId,omitempty"`
	Amount      float64   `json:"amount"`
	CustomDays  int       `json:"customDays,omitempty"`
}

// Advance moves NextDueDate forward by one cadence interval.
func (s *Subscription) Advance() {
	switch s.Cadence {
	case CadenceMonthly:
		s.NextDueDate = s.NextDueDate.AddDate(0, 1, 0)
	case CadenceYearly:
		s.NextDueDate = s.NextDueDate.AddDate(1, 0, 0)
	case CadenceCustom:
		days := s.CustomDays
		if days <= 0 {
			days = 30
		}
		s.NextDueDate = s.NextDueDate.AddDate(0, 0, days)
	}
}
