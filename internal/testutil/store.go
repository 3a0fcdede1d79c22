// Package testutil provides shared helpers for tests: migrated throwaway
// stores and seeded entities with sensible defaults.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/repo"
	"github.com/chudeemeke/kite-pfm/internal/store"
)

// TestActor is the audit actor used by seed helpers.
const TestActor = "test"

// SetupStore creates an in-memory migrated store that closes with the test.
func SetupStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.New(":memory:", store.Options{})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test store: %v", err)
	}

	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// SetupRepos creates a migrated store with the full repository bundle.
func SetupRepos(t *testing.T) *repo.Repos {
	t.Helper()
	return repo.NewRepos(SetupStore(t))
}

// SeedAccount creates a checking account, applying any customization first.
func SeedAccount(t *testing.T, r *repo.Repos, mutate ...func(*model.Account)) *model.Account {
	t.Helper()

	account := &model.Account{
		Name:     "Test Checking",
		Type:     model.AccountChecking,
		Currency: "USD",
	}
	for _, fn := range mutate {
		fn(account)
	}
	if err := r.Accounts.Create(context.Background(), account, TestActor); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	return account
}

// SeedCategory creates a category.
func SeedCategory(t *testing.T, r *repo.Repos, name string, mutate ...func(*model.Category)) *model.Category {
	t.Helper()

	category := &model.Category{Name: name}
	for _, fn := range mutate {
		fn(category)
	}
	if err := r.Categories.Create(context.Background(), category, TestActor); err != nil {
		t.Fatalf("failed to seed category %q: %v", name, err)
	}
	return category
}

// SeedTransaction creates an expense transaction on the account.
func SeedTransaction(t *testing.T, r *repo.Repos, accountID string, mutate ...func(*model.Transaction)) *model.Transaction {
	t.Helper()

	txn := &model.Transaction{
		Date:        time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
		AccountID:   accountID,
		Currency:    "USD",
		Description: "Coffee",
		Merchant:    "Cafe Roast",
		Amount:      -4.50,
	}
	for _, fn := range mutate {
		fn(txn)
	}
	if err := r.Transactions.Create(context.Background(), txn, TestActor); err != nil {
		t.Fatalf("failed to seed transaction: %v", err)
	}
	return txn
}

// SeedRule creates an enabled categorization rule.
func SeedRule(t *testing.T, r *repo.Repos, name string, mutate ...func(*model.Rule)) *model.Rule {
	t.Helper()

	rule := &model.Rule{
		Name:    name,
		Enabled: true,
		Actions: []model.Action{{Type: model.ActionAppendNote, Note: "matched"}},
		Conditions: []model.Condition{
			{Field: model.FieldMerchant, Op: model.OpContains, Value: "cafe"},
		},
	}
	for _, fn := range mutate {
		fn(rule)
	}
	if err := r.Rules.Create(context.Background(), rule, TestActor); err != nil {
		t.Fatalf("failed to seed rule %q: %v", name, err)
	}
	return rule
}
