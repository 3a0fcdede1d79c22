package repo

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/store"
)

// Transactions is the transaction repository: CRUD with referential checks
// plus search, statistics, duplicate handling, categorization, and import.
type Transactions struct {
	*Repository[model.Transaction, *model.Transaction]
	rules    *Rules
	refGuard Hook[model.Transaction]
}

// NewTransactions builds the transaction repository. The rules repository
// feeds auto-categorization.
func NewTransactions(st *store.Store, broker *Broker, rules *Rules) *Transactions {
	guard := transactionRefGuard(st)
	cfg := Config[model.Transaction]{
		Table:      store.TableTransactions,
		SoftDelete: true,
		Rules: []FieldRule[model.Transaction]{
			{Field: "accountId", Check: func(t *model.Transaction) string {
				if t.AccountID == "" {
					return "accountId is required"
				}
				return ""
			}},
			{Field: "date", Check: func(t *model.Transaction) string {
				if t.Date.IsZero() {
					return "date is required"
				}
				return ""
			}},
			{Field: "description", Check: func(t *model.Transaction) string {
				if t.Description == "" {
					return "description is required"
				}
				return ""
			}},
			{Field: "currency", Check: func(t *model.Transaction) string {
				if len(t.Currency) != 3 {
					return "currency must be a 3-letter code"
				}
				return ""
			}},
		},
		Relations: []Relation[model.Transaction]{
			{
				Name:  "account",
				Table: store.TableAccounts,
				Kind:  BelongsTo,
				Keys: func(t *model.Transaction) []string {
					return []string{t.AccountID}
				},
			},
			{
				Name:  "category",
				Table: store.TableCategories,
				Kind:  BelongsTo,
				Keys: func(t *model.Transaction) []string {
					return []string{t.CategoryID}
				},
			},
		},
		BeforeCreate: guard,
		BeforeUpdate: guard,
	}
	return &Transactions{
		Repository: New[model.Transaction, *model.Transaction](st, broker, cfg),
		rules:      rules,
		refGuard:   guard,
	}
}

// transactionRefGuard requires the referenced account to exist and be
// active, and the referenced category (when set) to exist.
func transactionRefGuard(st *store.Store) Hook[model.Transaction] {
	return func(ctx context.Context, q store.Queryable, txn *model.Transaction) error {
		rec, err := st.GetRecord(ctx, q, store.TableAccounts, txn.AccountID)
		if err != nil {
			return common.NewValidationError("accountId", fmt.Sprintf("account %s does not exist", txn.AccountID))
		}
		var account model.Account
		if err := unmarshalRecord(*rec, &account); err != nil {
			return err
		}
		if account.Archived() {
			return common.NewValidationError("accountId", fmt.Sprintf("account %s is archived", txn.AccountID))
		}

		if txn.CategoryID != "" {
			cat, err := st.GetRecord(ctx, q, store.TableCategories, txn.CategoryID)
			if err != nil || cat.IsDeleted {
				return common.NewValidationError("categoryId", fmt.Sprintf("category %s does not exist", txn.CategoryID))
			}
		}
		return nil
	}
}

// Transaction type filter values.
const (
	TypeIncome   = "income"
	TypeExpense  = "expense"
	TypeTransfer = "transfer"
)

// SearchFilters narrows a transaction search. Zero-valued fields are
// ignored; Query matches merchant, description, and notes
// case-insensitively; Merchants matches any of the given names exactly
// (case-insensitive).
type SearchFilters struct {
	From          *time.Time
	To            *time.Time
	MinAmount     *float64
	MaxAmount     *float64
	AccountID     string
	CategoryID    string
	Type          string
	Query         string
	Merchants     []string
	Tags          []string
	Uncategorized bool
	Subscriptions bool
	Offset        int
	Limit         int
}

// Search returns transactions matching the filters, newest first. Results
// are served from a short-lived cache keyed by the filter set; callers that
// just wrote must read through Get or List instead.
func (t *Transactions) Search(ctx context.Context, filters SearchFilters) ([]model.Transaction, error) {
	switch filters.Type {
	case "", TypeIncome, TypeExpense, TypeTransfer:
	default:
		return nil, common.NewValidationError("type", fmt.Sprintf("unknown transaction type %q", filters.Type))
	}

	query := strings.ToLower(filters.Query)

	return t.List(ctx, ListOptions[model.Transaction]{
		Where: func(txn *model.Transaction) bool {
			return matchesFilters(txn, filters, query)
		},
		Less: func(a, b *model.Transaction) bool {
			if !a.Date.Equal(b.Date) {
				return a.Date.After(b.Date)
			}
			return a.ID < b.ID
		},
		CacheKey: filters.cacheKey(),
		CacheTTL: 30 * time.Second,
		Offset:   filters.Offset,
		Limit:    filters.Limit,
	})
}

func matchesFilters(txn *model.Transaction, filters SearchFilters, query string) bool {
	if filters.AccountID != "" && txn.AccountID != filters.AccountID {
		return false
	}
	if filters.CategoryID != "" && txn.CategoryID != filters.CategoryID {
		return false
	}
	if filters.Uncategorized && txn.CategoryID != "" {
		return false
	}
	if filters.Subscriptions && !txn.IsSubscription {
		return false
	}
	switch filters.Type {
	case TypeIncome:
		if txn.Amount <= 0 {
			return false
		}
	case TypeExpense:
		if txn.Amount >= 0 {
			return false
		}
	case TypeTransfer:
		flagged, _ := txn.Metadata["transfer"].(bool)
		if !flagged {
			return false
		}
	}
	if len(filters.Merchants) > 0 {
		found := false
		for _, merchant := range filters.Merchants {
			if strings.EqualFold(merchant, txn.Merchant) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filters.From != nil && txn.Date.Before(*filters.From) {
		return false
	}
	if filters.To != nil && txn.Date.After(*filters.To) {
		return false
	}
	if filters.MinAmount != nil && txn.Amount < *filters.MinAmount {
		return false
	}
	if filters.MaxAmount != nil && txn.Amount > *filters.MaxAmount {
		return false
	}
	for _, tag := range filters.Tags {
		if !txn.HasTag(tag) {
			return false
		}
	}
	if query != "" {
		haystack := strings.ToLower(txn.Merchant + " " + txn.Description + " " + txn.Notes)
		if !strings.Contains(haystack, query) {
			return false
		}
	}
	return true
}

// cacheKey hashes the serialized filter set so equal filters share a cache
// slot regardless of field size.
func (f SearchFilters) cacheKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s|%t|%t|%v|%v",
		f.AccountID, f.CategoryID, f.Type, f.Query, f.Uncategorized, f.Subscriptions, f.Merchants, f.Tags)
	if f.From != nil {
		fmt.Fprintf(&b, "|from=%d", f.From.Unix())
	}
	if f.To != nil {
		fmt.Fprintf(&b, "|to=%d", f.To.Unix())
	}
	if f.MinAmount != nil {
		fmt.Fprintf(&b, "|min=%.2f", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		fmt.Fprintf(&b, "|max=%.2f", *f.MaxAmount)
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(b.String()))
	return fmt.Sprintf("search:%x", h.Sum64())
}

// ByMonth returns the visible transactions of one YYYY-MM month for a
// category, oldest first. The budget ledger reads spending through this.
func (t *Transactions) ByMonth(ctx context.Context, categoryID, fromMonth, toMonth string) ([]model.Transaction, error) {
	return t.List(ctx, ListOptions[model.Transaction]{
		Where: func(txn *model.Transaction) bool {
			if categoryID != "" && txn.CategoryID != categoryID {
				return false
			}
			month := txn.Month()
			return month >= fromMonth && month <= toMonth
		},
		Less: func(a, b *model.Transaction) bool { return a.Date.Before(b.Date) },
	})
}
