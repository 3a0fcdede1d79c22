package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Transaction represents a single financial movement on an account.
// Amount is signed: positive for income, negative for expenses.
type Transaction struct {
	Envelope
	Date           time.Time      `json:"date"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	AccountID      string         `json:"accountId"`
	CategoryID     string         `json:"categoryId,omitempty"`
	Currency       string         `json:"currency"`
	Description    string         `json:"description"`
	Merchant       string         `json:"merchant,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Amount         float64        `json:"amount"`
	IsSubscription bool           `json:"isSubscription,omitempty"`
}

// Income reports whether the transaction increases the account balance.
func (t *Transaction) Income() bool { return t.Amount > 0 }

// Expense reports whether the transaction decreases the account balance.
func (t *Transaction) Expense() bool { return t.Amount < 0 }

// Month returns the transaction's calendar month as "YYYY-MM".
func (t *Transaction) Month() string { return t.Date.Format("2006-01") }

// Fingerprint creates a stable hash over the fields used for duplicate
// pre-checks during import.
func (t *Transaction) Fingerprint() string {
	data := fmt.Sprintf("%s:%.2f:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.Merchant,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// HasTag reports whether the transaction carries the given tag.
func (t *Transaction) HasTag(tag string) bool {
	for _, have := range t.Tags {
		if have == tag {
			return true
		}
	}
	return false
}
