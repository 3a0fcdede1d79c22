package repo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }

func TestRuleCreate_Validation(t *testing.T) {
	repos := testutil.SetupRepos(t)
	ctx := context.Background()

	category := testutil.SeedCategory(t, repos, "Coffee")
	note := []model.Action{{Type: model.ActionAppendNote, Note: "n"}}

	tests := []struct {
		name string
		rule model.Rule
	}{
		{"missing name", model.Rule{Actions: note}},
		{"no actions", model.Rule{Name: "r"}},
		{"setCategory without id", model.Rule{Name: "r",
			Actions: []model.Action{{Type: model.ActionSetCategory}}}},
		{"appendNote without note", model.Rule{Name: "r",
			Actions: []model.Action{{Type: model.ActionAppendNote}}}},
		{"unknown action type", model.Rule{Name: "r",
			Actions: []model.Action{{Type: "explode"}}}},
		{"string condition without value", model.Rule{Name: "r", Actions: note,
			Conditions: []model.Condition{{Field: model.FieldMerchant, Op: model.OpContains}}}},
		{"bad regex", model.Rule{Name: "r", Actions: note,
			Conditions: []model.Condition{{Field: model.FieldMerchant, Op: model.OpRegex, Value: "("}}}},
		{"amount equals without min", model.Rule{Name: "r", Actions: note,
			Conditions: []model.Condition{{Field: model.FieldAmount, Op: model.OpEquals}}}},
		{"amount range without bounds", model.Rule{Name: "r", Actions: note,
			Conditions: []model.Condition{{Field: model.FieldAmount, Op: model.OpRange}}}},
		{"amount range min above max", model.Rule{Name: "r", Actions: note,
			Conditions: []model.Condition{{Field: model.FieldAmount, Op: model.OpRange,
				Min: floatPtr(100), Max: floatPtr(10)}}}},
		{"string operator on amount", model.Rule{Name: "r", Actions: note,
			Conditions: []model.Condition{{Field: model.FieldAmount, Op: model.OpContains, Value: "5"}}}},
		{"unknown condition field", model.Rule{Name: "r", Actions: note,
			Conditions: []model.Condition{{Field: "mood", Op: model.OpEquals, Value: "good"}}}},
		{"setCategory with dead category", model.Rule{Name: "r",
			Actions: []model.Action{{Type: model.ActionSetCategory, CategoryID: "ghost"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := tt.rule
			err := repos.Rules.Create(ctx, &rule, testutil.TestActor)
			assert.True(t, errors.Is(err, common.ErrValidation), "got %v", err)
		})
	}

	// A well-formed rule against a live category passes.
	good := model.Rule{
		Name:    "coffee",
		Enabled: true,
		Conditions: []model.Condition{
			{Field: model.FieldMerchant, Op: model.OpContains, Value: "cafe"},
			{Field: model.FieldAmount, Op: model.OpRange, Min: floatPtr(1), Max: floatPtr(20)},
		},
		Actions: []model.Action{{Type: model.ActionSetCategory, CategoryID: category.ID}},
	}
	require.NoError(t, repos.Rules.Create(ctx, &good, testutil.TestActor))
}

func TestRulesOrdered(t *testing.T) {
	repos := testutil.SetupRepos(t)
	ctx := context.Background()

	testutil.SeedRule(t, repos, "zeta", func(r *model.Rule) { r.Priority = 10 })
	testutil.SeedRule(t, repos, "alpha", func(r *model.Rule) { r.Priority = 20 })
	testutil.SeedRule(t, repos, "beta", func(r *model.Rule) { r.Priority = 10 })

	ordered, err := repos.Rules.Ordered(ctx)
	require.NoError(t, err)
	require.Len(t, ordered, 3)

	names := []string{ordered[0].Name, ordered[1].Name, ordered[2].Name}
	assert.Equal(t, []string{"beta", "zeta", "alpha"}, names)
}

func TestRuleTest_DryRun(t *testing.T) {
	repos := testutil.SetupRepos(t)

	rule := model.Rule{
		Name: "coffee",
		Conditions: []model.Condition{
			{Field: model.FieldMerchant, Op: model.OpContains, Value: "cafe"},
		},
		Actions: []model.Action{{Type: model.ActionAppendNote, Note: "caffeine"}},
	}

	hit := repos.Rules.Test(rule, &model.Transaction{Merchant: "Cafe Roast", Amount: -4})
	assert.True(t, hit.Mutated())
	assert.Contains(t, hit.Notes, "caffeine")

	miss := repos.Rules.Test(rule, &model.Transaction{Merchant: "Gas Station", Amount: -40})
	assert.False(t, miss.Mutated())
}
