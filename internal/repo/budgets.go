package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/store"
)

// Budgets is the budget repository. At most one budget exists per
// (category, month) pair; the partial unique index backs the check.
type Budgets struct {
	*Repository[model.Budget, *model.Budget]
}

// NewBudgets builds the budget repository.
func NewBudgets(st *store.Store, broker *Broker) *Budgets {
	cfg := Config[model.Budget]{
		Table:      store.TableBudgets,
		SoftDelete: true,
		Rules: []FieldRule[model.Budget]{
			{Field: "categoryId", Check: func(b *model.Budget) string {
				if b.CategoryID == "" {
					return "categoryId is required"
				}
				return ""
			}},
			{Field: "month", Check: func(b *model.Budget) string {
				if _, err := model.ParseMonth(b.Month); err != nil {
					return "month must be formatted YYYY-MM"
				}
				return ""
			}},
			{Field: "amount", Check: func(b *model.Budget) string {
				if b.Amount < 0 {
					return "amount must not be negative"
				}
				return ""
			}},
			{Field: "carryStrategy", Check: func(b *model.Budget) string {
				if b.CarryStrategy != "" && !model.ValidCarryStrategy(b.CarryStrategy) {
					return fmt.Sprintf("unknown carry strategy %q", b.CarryStrategy)
				}
				return ""
			}},
		},
		Relations: []Relation[model.Budget]{
			{
				Name:  "category",
				Table: store.TableCategories,
				Kind:  BelongsTo,
				Keys: func(b *model.Budget) []string {
					return []string{b.CategoryID}
				},
			},
		},
		BeforeCreate: budgetUniqueGuard(st),
		BeforeUpdate: budgetUniqueGuard(st),
	}
	return &Budgets{Repository: New[model.Budget, *model.Budget](st, broker, cfg)}
}

// budgetUniqueGuard enforces one live budget per (category, month) and a
// live referenced category.
func budgetUniqueGuard(st *store.Store) Hook[model.Budget] {
	return func(ctx context.Context, q store.Queryable, b *model.Budget) error {
		cat, err := st.GetRecord(ctx, q, store.TableCategories, b.CategoryID)
		if err != nil || cat.IsDeleted {
			return common.NewValidationError("categoryId", fmt.Sprintf("category %s does not exist", b.CategoryID))
		}

		var existingID string
		row := q.QueryRowContext(ctx,
			`SELECT id FROM budgets WHERE category_id = ? AND month = ? AND is_deleted = 0 AND id != ?`,
			b.CategoryID, b.Month, b.ID)
		switch err := row.Scan(&existingID); err {
		case nil:
			return common.NewConflictError(store.TableBudgets, existingID,
				fmt.Sprintf("budget already exists for category %s in %s", b.CategoryID, b.Month))
		case sql.ErrNoRows:
			return nil
		default:
			return fmt.Errorf("failed to check budget uniqueness: %w", err)
		}
	}
}

// ForMonth returns the live budgets of one YYYY-MM month, sorted by
// category id.
func (b *Budgets) ForMonth(ctx context.Context, month string) ([]model.Budget, error) {
	if _, err := model.ParseMonth(month); err != nil {
		return nil, common.NewValidationError("month", "month must be formatted YYYY-MM")
	}
	return b.List(ctx, ListOptions[model.Budget]{
		Where: func(bud *model.Budget) bool { return bud.Month == month },
		Less:  func(x, y *model.Budget) bool { return x.CategoryID < y.CategoryID },
	})
}

// ForCategory returns every live budget of a category, oldest month first.
func (b *Budgets) ForCategory(ctx context.Context, categoryID string) ([]model.Budget, error) {
	return b.List(ctx, ListOptions[model.Budget]{
		Where: func(bud *model.Budget) bool { return bud.CategoryID == categoryID },
		Less:  func(x, y *model.Budget) bool { return x.Month < y.Month },
	})
}
