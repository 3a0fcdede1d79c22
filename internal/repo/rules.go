package repo

import (
	"context"
	"fmt"
	"regexp"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/rules"
	"github.com/chudeemeke/kite-pfm/internal/store"
)

// Rules is the categorization-rule repository.
type Rules struct {
	*Repository[model.Rule, *model.Rule]
}

// NewRules builds the rule repository.
func NewRules(st *store.Store, broker *Broker) *Rules {
	cfg := Config[model.Rule]{
		Table:      store.TableRules,
		SoftDelete: true,
		Rules: []FieldRule[model.Rule]{
			{Field: "name", Check: func(r *model.Rule) string {
				if r.Name == "" {
					return "name is required"
				}
				return ""
			}},
			{Field: "conditions", Check: checkConditions},
			{Field: "actions", Check: checkActions},
		},
		BeforeCreate: ruleCategoryGuard(st),
		BeforeUpdate: ruleCategoryGuard(st),
	}
	return &Rules{Repository: New[model.Rule, *model.Rule](st, broker, cfg)}
}

func checkConditions(r *model.Rule) string {
	for i, cond := range r.Conditions {
		switch cond.Field {
		case model.FieldMerchant, model.FieldDescription:
			switch cond.Op {
			case model.OpEquals, model.OpContains, model.OpStartsWith, model.OpEndsWith:
				if cond.Value == "" {
					return fmt.Sprintf("condition %d needs a value", i)
				}
			case model.OpRegex:
				if _, err := regexp.Compile("(?i)" + cond.Value); err != nil {
					return fmt.Sprintf("condition %d has an invalid pattern: %v", i, err)
				}
			default:
				return fmt.Sprintf("condition %d: operator %q does not apply to %s", i, cond.Op, cond.Field)
			}
		case model.FieldAmount:
			switch cond.Op {
			case model.OpEquals:
				if cond.Min == nil {
					return fmt.Sprintf("condition %d needs min as the amount to match", i)
				}
			case model.OpRange:
				if cond.Min == nil && cond.Max == nil {
					return fmt.Sprintf("condition %d needs min or max", i)
				}
				if cond.Min != nil && cond.Max != nil && *cond.Min > *cond.Max {
					return fmt.Sprintf("condition %d has min above max", i)
				}
			default:
				return fmt.Sprintf("condition %d: operator %q does not apply to amount", i, cond.Op)
			}
		default:
			return fmt.Sprintf("condition %d has unknown field %q", i, cond.Field)
		}
	}
	return ""
}

func checkActions(r *model.Rule) string {
	if len(r.Actions) == 0 {
		return "rule needs at least one action"
	}
	for i, action := range r.Actions {
		switch action.Type {
		case model.ActionSetCategory:
			if action.CategoryID == "" {
				return fmt.Sprintf("action %d needs a categoryId", i)
			}
		case model.ActionAppendNote:
			if action.Note == "" {
				return fmt.Sprintf("action %d needs a note", i)
			}
		case model.ActionSetSubscription:
		default:
			return fmt.Sprintf("action %d has unknown type %q", i, action.Type)
		}
	}
	return ""
}

// ruleCategoryGuard requires every setCategory action to reference a live
// category.
func ruleCategoryGuard(st *store.Store) Hook[model.Rule] {
	return func(ctx context.Context, q store.Queryable, r *model.Rule) error {
		for _, action := range r.Actions {
			if action.Type != model.ActionSetCategory {
				continue
			}
			cat, err := st.GetRecord(ctx, q, store.TableCategories, action.CategoryID)
			if err != nil || cat.IsDeleted {
				return common.NewValidationError("actions",
					fmt.Sprintf("category %s does not exist", action.CategoryID))
			}
		}
		return nil
	}
}

// Ordered returns the live rules in evaluation order: ascending priority,
// ties by name.
func (r *Rules) Ordered(ctx context.Context) ([]model.Rule, error) {
	return r.List(ctx, ListOptions[model.Rule]{
		Less: func(a, b *model.Rule) bool {
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
			return a.Name < b.Name
		},
	})
}

// Engine builds an evaluation engine over the current enabled rules.
func (r *Rules) Engine(ctx context.Context) (*rules.Engine, error) {
	ruleSet, err := r.Ordered(ctx)
	if err != nil {
		return nil, err
	}
	return rules.NewEngine(ruleSet), nil
}

// Test evaluates a single rule against a sample transaction without
// persisting anything. Used by the CLI's dry-run mode.
func (r *Rules) Test(rule model.Rule, txn *model.Transaction) rules.Outcome {
	rule.Enabled = true
	engine := rules.NewEngine([]model.Rule{rule})
	return engine.Evaluate(txn)
}
