package rules

import (
	"testing"

	"github.com/chudeemeke/kite-pfm/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func rule(id, name string, priority int, conds []model.Condition, actions []model.Action) model.Rule {
	r := model.Rule{
		Name:       name,
		Conditions: conds,
		Actions:    actions,
		Priority:   priority,
		Enabled:    true,
	}
	r.ID = id
	return r
}

func coffeeTxn() *model.Transaction {
	return &model.Transaction{
		Merchant:    "Starbucks Store 123",
		Description: "Morning coffee",
		Amount:      -5.25,
	}
}

func TestEngine_DropsDisabledRules(t *testing.T) {
	disabled := rule("r1", "off", 1,
		[]model.Condition{{Field: model.FieldMerchant, Op: model.OpContains, Value: "starbucks"}},
		[]model.Action{{Type: model.ActionSetCategory, CategoryID: "coffee"}})
	disabled.Enabled = false

	engine := NewEngine([]model.Rule{disabled})
	out := engine.Evaluate(coffeeTxn())
	assert.False(t, out.Mutated())
}

func TestEngine_OrderIsPriorityThenName(t *testing.T) {
	rules := []model.Rule{
		rule("b", "beta", 10, nil, nil),
		rule("a", "alpha", 10, nil, nil),
		rule("c", "gamma", 1, nil, nil),
	}

	engine := NewEngine(rules)
	ordered := engine.Rules()
	require.Len(t, ordered, 3)
	assert.Equal(t, "gamma", ordered[0].Name)
	assert.Equal(t, "alpha", ordered[1].Name)
	assert.Equal(t, "beta", ordered[2].Name)
}

func TestEngine_EmptyConditionsNeverMatch(t *testing.T) {
	engine := NewEngine([]model.Rule{
		rule("r1", "catch-all", 1, nil,
			[]model.Action{{Type: model.ActionSetCategory, CategoryID: "misc"}}),
	})

	out := engine.Evaluate(coffeeTxn())
	assert.False(t, out.CategoryAssigned)
	assert.Empty(t, out.MatchedRuleIDs)
}

func TestEngine_StringOperators(t *testing.T) {
	tests := []struct {
		name  string
		cond  model.Condition
		match bool
	}{
		{"equals case-insensitive", model.Condition{Field: model.FieldMerchant, Op: model.OpEquals, Value: "STARBUCKS STORE 123"}, true},
		{"equals mismatch", model.Condition{Field: model.FieldMerchant, Op: model.OpEquals, Value: "starbucks"}, false},
		{"contains", model.Condition{Field: model.FieldMerchant, Op: model.OpContains, Value: "StArBuCkS"}, true},
		{"startsWith", model.Condition{Field: model.FieldMerchant, Op: model.OpStartsWith, Value: "star"}, true},
		{"endsWith", model.Condition{Field: model.FieldMerchant, Op: model.OpEndsWith, Value: "123"}, true},
		{"regex", model.Condition{Field: model.FieldMerchant, Op: model.OpRegex, Value: `starbucks store \d+`}, true},
		{"regex no match", model.Condition{Field: model.FieldDescription, Op: model.OpRegex, Value: `^evening`}, false},
		{"description contains", model.Condition{Field: model.FieldDescription, Op: model.OpContains, Value: "coffee"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine([]model.Rule{
				rule("r1", "test", 1, []model.Condition{tt.cond},
					[]model.Action{{Type: model.ActionSetCategory, CategoryID: "coffee"}}),
			})

			out := engine.Evaluate(coffeeTxn())
			assert.Equal(t, tt.match, out.CategoryAssigned)
		})
	}
}

func TestEngine_AmountOperators(t *testing.T) {
	tests := []struct {
		name  string
		cond  model.Condition
		match bool
	}{
		{"equals", model.Condition{Field: model.FieldAmount, Op: model.OpEquals, Min: ptr(-5.25)}, true},
		{"equals mismatch", model.Condition{Field: model.FieldAmount, Op: model.OpEquals, Min: ptr(-5.26)}, false},
		{"range inclusive lower", model.Condition{Field: model.FieldAmount, Op: model.OpRange, Min: ptr(-5.25), Max: ptr(0.0)}, true},
		{"range inclusive upper", model.Condition{Field: model.FieldAmount, Op: model.OpRange, Min: ptr(-10.0), Max: ptr(-5.25)}, true},
		{"range outside", model.Condition{Field: model.FieldAmount, Op: model.OpRange, Min: ptr(-4.0), Max: ptr(0.0)}, false},
		{"range min only", model.Condition{Field: model.FieldAmount, Op: model.OpRange, Min: ptr(-6.0)}, true},
		{"range max only", model.Condition{Field: model.FieldAmount, Op: model.OpRange, Max: ptr(-5.0)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine([]model.Rule{
				rule("r1", "test", 1, []model.Condition{tt.cond},
					[]model.Action{{Type: model.ActionSetCategory, CategoryID: "x"}}),
			})

			out := engine.Evaluate(coffeeTxn())
			assert.Equal(t, tt.match, out.CategoryAssigned)
		})
	}
}

func TestEngine_ConditionsAreANDed(t *testing.T) {
	engine := NewEngine([]model.Rule{
		rule("r1", "both", 1,
			[]model.Condition{
				{Field: model.FieldMerchant, Op: model.OpContains, Value: "starbucks"},
				{Field: model.FieldAmount, Op: model.OpRange, Min: ptr(-1.0), Max: ptr(0.0)},
			},
			[]model.Action{{Type: model.ActionSetCategory, CategoryID: "coffee"}}),
	})

	// Merchant matches but amount is outside the range.
	out := engine.Evaluate(coffeeTxn())
	assert.False(t, out.CategoryAssigned)
}

func TestEngine_LastCategoryWinsNotesAccumulate(t *testing.T) {
	cond := []model.Condition{{Field: model.FieldMerchant, Op: model.OpContains, Value: "starbucks"}}

	engine := NewEngine([]model.Rule{
		rule("r1", "first", 1, cond, []model.Action{
			{Type: model.ActionSetCategory, CategoryID: "dining"},
			{Type: model.ActionAppendNote, Note: "matched first"},
		}),
		rule("r2", "second", 2, cond, []model.Action{
			{Type: model.ActionSetCategory, CategoryID: "coffee"},
			{Type: model.ActionAppendNote, Note: "matched second"},
		}),
	})

	out := engine.Evaluate(coffeeTxn())
	require.True(t, out.CategoryAssigned)
	assert.Equal(t, "coffee", out.CategoryID)
	assert.Equal(t, []string{"matched first", "matched second"}, out.Notes)
	assert.Equal(t, []string{"r1", "r2"}, out.MatchedRuleIDs)
}

func TestEngine_StopProcessingHalts(t *testing.T) {
	cond := []model.Condition{{Field: model.FieldMerchant, Op: model.OpContains, Value: "starbucks"}}

	stopper := rule("r1", "first", 1, cond,
		[]model.Action{{Type: model.ActionSetCategory, CategoryID: "dining"}})
	stopper.StopProcessing = true

	engine := NewEngine([]model.Rule{
		stopper,
		rule("r2", "second", 2, cond,
			[]model.Action{{Type: model.ActionSetCategory, CategoryID: "coffee"}}),
	})

	out := engine.Evaluate(coffeeTxn())
	assert.Equal(t, "dining", out.CategoryID)
	assert.Equal(t, []string{"r1"}, out.MatchedRuleIDs)
}

func TestEngine_SubscriptionAction(t *testing.T) {
	engine := NewEngine([]model.Rule{
		rule("r1", "netflix", 1,
			[]model.Condition{{Field: model.FieldMerchant, Op: model.OpContains, Value: "netflix"}},
			[]model.Action{{Type: model.ActionSetSubscription, Subscription: true}}),
	})

	txn := &model.Transaction{Merchant: "NETFLIX.COM", Amount: -15.99}
	out := engine.Evaluate(txn)
	require.NotNil(t, out.Subscription)
	assert.True(t, *out.Subscription)
	assert.False(t, out.CategoryAssigned)
}

func TestEngine_IsDeterministic(t *testing.T) {
	cond := []model.Condition{{Field: model.FieldDescription, Op: model.OpContains, Value: "coffee"}}
	ruleSet := []model.Rule{
		rule("b", "beta", 5, cond, []model.Action{{Type: model.ActionSetCategory, CategoryID: "b"}}),
		rule("a", "alpha", 5, cond, []model.Action{{Type: model.ActionSetCategory, CategoryID: "a"}}),
	}

	first := NewEngine(ruleSet).Evaluate(coffeeTxn())
	for i := 0; i < 10; i++ {
		again := NewEngine(ruleSet).Evaluate(coffeeTxn())
		assert.Equal(t, first, again)
	}
	// Name breaks the priority tie, so beta evaluates last and wins.
	assert.Equal(t, "b", first.CategoryID)
}
