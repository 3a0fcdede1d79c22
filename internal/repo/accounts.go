package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/store"
)

// Accounts is the account repository. Accounts do not soft-delete: they are
// archived while transactions still reference them, and hard-deleted only
// once empty.
type Accounts struct {
	*Repository[model.Account, *model.Account]
}

// NewAccounts builds the account repository with its validation rules and
// deletion guard.
func NewAccounts(st *store.Store, broker *Broker) *Accounts {
	cfg := Config[model.Account]{
		Table:      store.TableAccounts,
		SoftDelete: false,
		Rules: []FieldRule[model.Account]{
			{Field: "name", Check: func(a *model.Account) string {
				if a.Name == "" {
					return "name is required"
				}
				return ""
			}},
			{Field: "type", Check: func(a *model.Account) string {
				if !model.ValidAccountType(a.Type) {
					return fmt.Sprintf("unknown account type %q", a.Type)
				}
				return ""
			}},
			{Field: "currency", Check: func(a *model.Account) string {
				if len(a.Currency) != 3 {
					return "currency must be a 3-letter code"
				}
				return ""
			}},
		},
		Relations: []Relation[model.Account]{
			{
				Name:         "transactions",
				Table:        store.TableTransactions,
				Kind:         HasMany,
				ForeignField: "accountId",
			},
		},
		BeforeDelete: accountDeleteGuard(st),
	}
	return &Accounts{Repository: New[model.Account, *model.Account](st, broker, cfg)}
}

// accountDeleteGuard refuses to delete an account that still has live
// transactions.
func accountDeleteGuard(st *store.Store) Hook[model.Account] {
	return func(ctx context.Context, q store.Queryable, account *model.Account) error {
		var n int
		row := q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM transactions WHERE account_id = ? AND is_deleted = 0`,
			account.ID)
		if err := row.Scan(&n); err != nil {
			return fmt.Errorf("failed to count transactions for account %s: %w", account.ID, err)
		}
		if n > 0 {
			return common.NewConflictError(store.TableAccounts, account.ID,
				fmt.Sprintf("account has %d transactions; archive it instead", n))
		}
		return nil
	}
}

// ListActive returns the non-archived accounts, default first, then by name.
func (a *Accounts) ListActive(ctx context.Context) ([]model.Account, error) {
	return a.List(ctx, ListOptions[model.Account]{
		Where: func(acct *model.Account) bool { return !acct.Archived() },
		Less: func(x, y *model.Account) bool {
			if x.IsDefault != y.IsDefault {
				return x.IsDefault
			}
			return x.Name < y.Name
		},
	})
}

// Default returns the default account, or a NotFoundError when none is set.
func (a *Accounts) Default(ctx context.Context) (*model.Account, error) {
	accounts, err := a.List(ctx, ListOptions[model.Account]{
		Where: func(acct *model.Account) bool { return acct.IsDefault && !acct.Archived() },
	})
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, common.NewNotFoundError(store.TableAccounts, "default")
	}
	return &accounts[0], nil
}

// SetDefault marks the given account as the default and clears the flag on
// every other account in the same transaction, so at most one default exists
// at any observable moment.
func (a *Accounts) SetDefault(ctx context.Context, id, actor string) error {
	accounts, err := a.List(ctx, ListOptions[model.Account]{})
	if err != nil {
		return err
	}

	err = a.store.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		found := false
		for i := range accounts {
			acct := &accounts[i]
			switch {
			case acct.ID == id:
				found = true
				if acct.Archived() {
					return common.NewValidationError("id", "archived account cannot be the default")
				}
				if acct.IsDefault {
					continue
				}
				if _, err := a.updateTx(ctx, tx, acct.ID, func(cur *model.Account) error {
					cur.IsDefault = true
					return nil
				}, actor, nil); err != nil {
					return err
				}
			case acct.IsDefault:
				if _, err := a.updateTx(ctx, tx, acct.ID, func(cur *model.Account) error {
					cur.IsDefault = false
					return nil
				}, actor, nil); err != nil {
					return err
				}
			}
		}
		if !found {
			return common.NewNotFoundError(store.TableAccounts, id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.invalidate()
	a.publish(EventUpdated, id)
	return nil
}

// Archive marks the account archived. Archived accounts keep their history
// but are hidden from active listings and cannot receive new transactions.
func (a *Accounts) Archive(ctx context.Context, id, actor string) (*model.Account, error) {
	now := time.Now()
	return a.Update(ctx, id, func(acct *model.Account) error {
		if acct.Archived() {
			return common.NewConflictError(store.TableAccounts, id, "account is already archived")
		}
		acct.ArchivedAt = &now
		acct.IsDefault = false
		return nil
	}, actor, nil)
}

// Unarchive clears the archived marker.
func (a *Accounts) Unarchive(ctx context.Context, id, actor string) (*model.Account, error) {
	return a.Update(ctx, id, func(acct *model.Account) error {
		if !acct.Archived() {
			return common.NewConflictError(store.TableAccounts, id, "account is not archived")
		}
		acct.ArchivedAt = nil
		return nil
	}, actor, nil)
}

// AdjustBalance applies a signed delta to the stored opening balance. The
// opening balance anchors running-balance replays and import reconciliation;
// transaction rows themselves are never touched.
func (a *Accounts) AdjustBalance(ctx context.Context, id string, delta float64, actor string) (*model.Account, error) {
	return a.Update(ctx, id, func(acct *model.Account) error {
		acct.Balance += delta
		return nil
	}, actor, nil)
}
