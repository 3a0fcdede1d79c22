package model

import "time"

// AccountType classifies an account for display and reporting.
type AccountType string

// Account type constants.
const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCredit     AccountType = "credit"
	AccountCash       AccountType = "cash"
	AccountInvestment AccountType = "investment"
	AccountLoan       AccountType = "loan"
	AccountOther      AccountType = "other"
)

// ValidAccountType reports whether t is a known account type.
func ValidAccountType(t AccountType) bool {
	switch t {
	case AccountChecking, AccountSavings, AccountCredit, AccountCash,
		AccountInvestment, AccountLoan, AccountOther:
		return true
	}
	return false
}

// Account is a container for transactions. Accounts are archived rather
// than deleted while transactions still reference them; at most one
// account is the default at a time.
type Account struct {
	Envelope
	ArchivedAt *time.Time  `json:"archivedAt,omitempty"`
	Name       string      `json:"name"`
	Type       AccountType `json:"type"`
	Currency   string      `json:"currency"`
	Balance    float64     `json:"balance"`
	IsDefault  bool        `json:"isDefault,omitempty"`
}

// Archived reports whether the account has been archived.
func (a *Account) Archived() bool { return a.ArchivedAt != nil }
