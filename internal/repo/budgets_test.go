package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetCreate_Validation(t *testing.T) {
	repos := testutil.SetupRepos(t)
	ctx := context.Background()

	category := testutil.SeedCategory(t, repos, "Food")

	tests := []struct {
		name   string
		budget model.Budget
	}{
		{"missing category", model.Budget{Month: "2026-01", Amount: 100}},
		{"bad month", model.Budget{CategoryID: category.ID, Month: "January 2026", Amount: 100}},
		{"negative amount", model.Budget{CategoryID: category.ID, Month: "2026-01", Amount: -5}},
		{"bad carry strategy", model.Budget{CategoryID: category.ID, Month: "2026-01", Amount: 5, CarryStrategy: "hoard"}},
		{"unknown category", model.Budget{CategoryID: "ghost", Month: "2026-01", Amount: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			budget := tt.budget
			err := repos.Budgets.Create(ctx, &budget, testutil.TestActor)
			assert.True(t, errors.Is(err, common.ErrValidation))
		})
	}
}

func TestBudgetCreate_OnePerCategoryMonth(t *testing.T) {
	repos := testutil.SetupRepos(t)
	ctx := context.Background()

	category := testutil.SeedCategory(t, repos, "Food")

	first := &model.Budget{CategoryID: category.ID, Month: "2026-01", Amount: 100}
	require.NoError(t, repos.Budgets.Create(ctx, first, testutil.TestActor))

	dup := &model.Budget{CategoryID: category.ID, Month: "2026-01", Amount: 200}
	err := repos.Budgets.Create(ctx, dup, testutil.TestActor)
	assert.True(t, errors.Is(err, common.ErrConflict))

	// A different month is fine, and updating the existing budget is fine.
	other := &model.Budget{CategoryID: category.ID, Month: "2026-02", Amount: 200}
	require.NoError(t, repos.Budgets.Create(ctx, other, testutil.TestActor))

	_, err = repos.Budgets.Update(ctx, first.ID, func(b *model.Budget) error {
		b.Amount = 150
		return nil
	}, testutil.TestActor, nil)
	require.NoError(t, err)
}

func TestBudgetUniqueness_IgnoresDeleted(t *testing.T) {
	repos := testutil.SetupRepos(t)
	ctx := context.Background()

	category := testutil.SeedCategory(t, repos, "Food")

	budget := &model.Budget{CategoryID: category.ID, Month: "2026-01", Amount: 100}
	require.NoError(t, repos.Budgets.Create(ctx, budget, testutil.TestActor))
	require.NoError(t, repos.Budgets.Delete(ctx, budget.ID, testutil.TestActor, false))

	replacement := &model.Budget{CategoryID: category.ID, Month: "2026-01", Amount: 120}
	require.NoError(t, repos.Budgets.Create(ctx, replacement, testutil.TestActor))
}

func TestBudgetLedger_EndToEnd(t *testing.T) {
	repos := testutil.SetupRepos(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, repos)
	food := testutil.SeedCategory(t, repos, "Food")

	require.NoError(t, repos.Budgets.Create(ctx, &model.Budget{
		CategoryID: food.ID, Month: "2026-01", Amount: 100, CarryStrategy: model.CarryUnspent,
	}, testutil.TestActor))

	testutil.SeedTransaction(t, repos, account.ID, func(tx *model.Transaction) {
		tx.CategoryID = food.ID
		tx.Amount = -50
		tx.Date = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	})

	lines, err := repos.BudgetLedger(ctx, food.ID, "2026-01", "2026-02")
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.True(t, lines[0].Remaining.Equal(decimal.NewFromInt(50)))
	assert.True(t, lines[1].CarriedIn.Equal(decimal.NewFromInt(50)))
}

func TestBudgetsForMonth(t *testing.T) {
	repos := testutil.SetupRepos(t)
	ctx := context.Background()

	food := testutil.SeedCategory(t, repos, "Food")
	fuel := testutil.SeedCategory(t, repos, "Fuel")

	for _, b := range []model.Budget{
		{CategoryID: food.ID, Month: "2026-01", Amount: 100},
		{CategoryID: fuel.ID, Month: "2026-01", Amount: 80},
		{CategoryID: food.ID, Month: "2026-02", Amount: 110},
	} {
		b := b
		require.NoError(t, repos.Budgets.Create(ctx, &b, testutil.TestActor))
	}

	january, err := repos.Budgets.ForMonth(ctx, "2026-01")
	require.NoError(t, err)
	assert.Len(t, january, 2)

	_, err = repos.Budgets.ForMonth(ctx, "not-a-month")
	assert.True(t, errors.Is(err, common.ErrValidation))
}
