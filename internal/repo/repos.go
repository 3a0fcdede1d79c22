package repo

import (
	"context"

	"github.com/chudeemeke/kite-pfm/internal/budget"
	"github.com/chudeemeke/kite-pfm/internal/store"
	"github.com/chudeemeke/kite-pfm/internal/syncq"
)

// Repos bundles every domain repository over one store, sharing a single
// change-notification broker. Construct one per store instance; tests build
// isolated bundles against throwaway databases.
type Repos struct {
	Broker        *Broker
	Accounts      *Accounts
	Categories    *Categories
	Transactions  *Transactions
	Budgets       *Budgets
	Rules         *Rules
	Subscriptions *Subscriptions
}

// NewRepos wires the domain repositories over st.
func NewRepos(st *store.Store) *Repos {
	broker := NewBroker()
	r := &Repos{
		Broker:     broker,
		Accounts:   NewAccounts(st, broker),
		Categories: NewCategories(st, broker),
		Budgets:    NewBudgets(st, broker),
		Rules:      NewRules(st, broker),
	}
	r.Transactions = NewTransactions(st, broker, r.Rules)
	r.Subscriptions = NewSubscriptions(st, broker)
	return r
}

// JournalTo records every successful mutation across the bundle into the
// offline sync queue, so local writes can be replayed against a sync target
// later.
func (r *Repos) JournalTo(q *syncq.Queue) {
	r.Accounts.JournalTo(q)
	r.Categories.JournalTo(q)
	r.Transactions.JournalTo(q)
	r.Budgets.JournalTo(q)
	r.Rules.JournalTo(q)
	r.Subscriptions.JournalTo(q)
}

// BudgetLedger builds the month-by-month budget ledger of one category over
// an inclusive YYYY-MM range, feeding the stored budgets and the category's
// visible transactions into the carryover calculation.
func (r *Repos) BudgetLedger(ctx context.Context, categoryID, fromMonth, toMonth string) ([]budget.Line, error) {
	budgets, err := r.Budgets.ForCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	txns, err := r.Transactions.ByMonth(ctx, categoryID, fromMonth, toMonth)
	if err != nil {
		return nil, err
	}
	return budget.Ledger(categoryID, fromMonth, toMonth, budgets, txns)
}
