package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/store"
)

// Categories is the category repository. Categories form a tree via
// ParentID and are hard-deleted, guarded against dangling references.
type Categories struct {
	*Repository[model.Category, *model.Category]
}

// NewCategories builds the category repository.
func NewCategories(st *store.Store, broker *Broker) *Categories {
	cfg := Config[model.Category]{
		Table:      store.TableCategories,
		SoftDelete: false,
		Rules: []FieldRule[model.Category]{
			{Field: "name", Check: func(c *model.Category) string {
				if c.Name == "" {
					return "name is required"
				}
				return ""
			}},
			{Field: "parentId", Check: func(c *model.Category) string {
				if c.ParentID != "" && c.ParentID == c.ID {
					return "category cannot be its own parent"
				}
				return ""
			}},
		},
		Relations: []Relation[model.Category]{
			{
				Name:  "parent",
				Table: store.TableCategories,
				Kind:  BelongsTo,
				Keys: func(c *model.Category) []string {
					return []string{c.ParentID}
				},
			},
			{
				Name:         "transactions",
				Table:        store.TableTransactions,
				Kind:         HasMany,
				ForeignField: "categoryId",
			},
		},
		BeforeCreate: categoryParentGuard(st),
		BeforeDelete: categoryDeleteGuard(st),
	}
	return &Categories{Repository: New[model.Category, *model.Category](st, broker, cfg)}
}

// categoryParentGuard requires a referenced parent to exist and be live.
func categoryParentGuard(st *store.Store) Hook[model.Category] {
	return func(ctx context.Context, q store.Queryable, cat *model.Category) error {
		if cat.ParentID == "" {
			return nil
		}
		parent, err := st.GetRecord(ctx, q, store.TableCategories, cat.ParentID)
		if err != nil {
			return common.NewValidationError("parentId", fmt.Sprintf("parent category %s does not exist", cat.ParentID))
		}
		if parent.IsDeleted {
			return common.NewValidationError("parentId", fmt.Sprintf("parent category %s is deleted", cat.ParentID))
		}
		return nil
	}
}

// categoryDeleteGuard refuses to delete a category that still has children
// or is referenced by live transactions or budgets.
func categoryDeleteGuard(st *store.Store) Hook[model.Category] {
	return func(ctx context.Context, q store.Queryable, cat *model.Category) error {
		children, err := st.ScanTable(ctx, q, store.TableCategories, false)
		if err != nil {
			return err
		}
		for _, rec := range children {
			var other model.Category
			if err := unmarshalRecord(rec, &other); err != nil {
				return err
			}
			if other.ParentID == cat.ID {
				return common.NewConflictError(store.TableCategories, cat.ID,
					fmt.Sprintf("category has child %s", other.ID))
			}
		}

		for _, ref := range []struct {
			table  string
			column string
		}{
			{store.TableTransactions, "category_id"},
			{store.TableBudgets, "category_id"},
		} {
			var n int
			row := q.QueryRowContext(ctx,
				fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ? AND is_deleted = 0`, ref.table, ref.column),
				cat.ID)
			if err := row.Scan(&n); err != nil {
				return fmt.Errorf("failed to count %s for category %s: %w", ref.table, cat.ID, err)
			}
			if n > 0 {
				return common.NewConflictError(store.TableCategories, cat.ID,
					fmt.Sprintf("category is referenced by %d %s", n, ref.table))
			}
		}
		return nil
	}
}

// Tree returns all categories grouped by parent id, roots under the empty
// key. Each group is sorted by name.
func (c *Categories) Tree(ctx context.Context) (map[string][]model.Category, error) {
	cats, err := c.List(ctx, ListOptions[model.Category]{
		Less: func(a, b *model.Category) bool { return a.Name < b.Name },
	})
	if err != nil {
		return nil, err
	}

	tree := make(map[string][]model.Category)
	for _, cat := range cats {
		tree[cat.ParentID] = append(tree[cat.ParentID], cat)
	}
	return tree, nil
}

// Reparent moves a category under a new parent (or to the root with an
// empty parent id), rejecting moves that would introduce a cycle.
func (c *Categories) Reparent(ctx context.Context, id, newParentID, actor string) (*model.Category, error) {
	if newParentID == id {
		return nil, common.NewValidationError("parentId", "category cannot be its own parent")
	}

	if newParentID != "" {
		cats, err := c.List(ctx, ListOptions[model.Category]{})
		if err != nil {
			return nil, err
		}
		byID := make(map[string]model.Category, len(cats))
		for _, cat := range cats {
			byID[cat.ID] = cat
		}
		if _, ok := byID[newParentID]; !ok {
			return nil, common.NewNotFoundError(store.TableCategories, newParentID)
		}

		// Walk up from the new parent; hitting id means the move would
		// put the category below one of its own descendants.
		seen := make(map[string]bool)
		for cur := newParentID; cur != ""; {
			if cur == id {
				return nil, common.NewValidationError("parentId",
					fmt.Sprintf("moving %s under %s would create a cycle", id, newParentID))
			}
			if seen[cur] {
				break
			}
			seen[cur] = true
			cur = byID[cur].ParentID
		}
	}

	return c.Update(ctx, id, func(cat *model.Category) error {
		cat.ParentID = newParentID
		return nil
	}, actor, nil)
}

func unmarshalRecord(rec store.Record, dst any) error {
	if err := json.Unmarshal(rec.Data, dst); err != nil {
		return fmt.Errorf("failed to decode record %s: %w", rec.ID, err)
	}
	return nil
}
