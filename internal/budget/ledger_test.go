package budget

import (
	"errors"
	"testing"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBudget(category, month string, amount float64, carry model.CarryStrategy) model.Budget {
	return model.Budget{CategoryID: category, Month: month, Amount: amount, CarryStrategy: carry}
}

func makeTxn(category, date string, amount float64) model.Transaction {
	d, _ := time.Parse("2006-01-02", date)
	return model.Transaction{Date: d, CategoryID: category, Amount: amount}
}

func TestLedger_BasicMonth(t *testing.T) {
	budgets := []model.Budget{makeBudget("food", "2026-01", 200, model.CarryNone)}
	txns := []model.Transaction{
		makeTxn("food", "2026-01-10", -50),
		makeTxn("food", "2026-01-20", -30),
		makeTxn("food", "2026-01-25", 15), // income, not spending
	}

	lines, err := Ledger("food", "2026-01", "2026-01", budgets, txns)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	assert.True(t, lines[0].Budgeted.Equal(decimal.NewFromInt(200)))
	assert.True(t, lines[0].Spent.Equal(decimal.NewFromInt(80)))
	assert.True(t, lines[0].CarriedIn.IsZero())
	assert.True(t, lines[0].Remaining.Equal(decimal.NewFromInt(120)))
}

func TestLedger_CarryUnspentPropagatesSurplus(t *testing.T) {
	budgets := []model.Budget{
		makeBudget("food", "2026-01", 100, model.CarryUnspent),
		makeBudget("food", "2026-02", 100, model.CarryNone),
	}
	txns := []model.Transaction{makeTxn("food", "2026-01-15", -50)}

	lines, err := Ledger("food", "2026-01", "2026-02", budgets, txns)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.True(t, lines[1].CarriedIn.Equal(decimal.NewFromInt(50)))
	assert.True(t, lines[1].Remaining.Equal(decimal.NewFromInt(150)))
}

func TestLedger_CarryUnspentDropsOverspend(t *testing.T) {
	budgets := []model.Budget{
		makeBudget("food", "2026-01", 100, model.CarryUnspent),
		makeBudget("food", "2026-02", 100, model.CarryNone),
	}
	txns := []model.Transaction{makeTxn("food", "2026-01-15", -150)}

	lines, err := Ledger("food", "2026-01", "2026-02", budgets, txns)
	require.NoError(t, err)

	assert.True(t, lines[0].Remaining.Equal(decimal.NewFromInt(-50)))
	assert.True(t, lines[1].CarriedIn.IsZero())
}

func TestLedger_CarryOverspendPropagatesDebt(t *testing.T) {
	budgets := []model.Budget{
		makeBudget("food", "2026-01", 100, model.CarryOverspend),
		makeBudget("food", "2026-02", 100, model.CarryNone),
	}
	txns := []model.Transaction{makeTxn("food", "2026-01-15", -130)}

	lines, err := Ledger("food", "2026-01", "2026-02", budgets, txns)
	require.NoError(t, err)

	assert.True(t, lines[1].CarriedIn.Equal(decimal.NewFromInt(-30)))
	assert.True(t, lines[1].Remaining.Equal(decimal.NewFromInt(70)))
}

func TestLedger_CarryOverspendDropsSurplus(t *testing.T) {
	budgets := []model.Budget{
		makeBudget("food", "2026-01", 100, model.CarryOverspend),
		makeBudget("food", "2026-02", 100, model.CarryNone),
	}
	txns := []model.Transaction{makeTxn("food", "2026-01-15", -50)}

	lines, err := Ledger("food", "2026-01", "2026-02", budgets, txns)
	require.NoError(t, err)

	assert.True(t, lines[1].CarriedIn.IsZero())
}

func TestLedger_CarryIntoUnbudgetedMonth(t *testing.T) {
	// The second month has no budget of its own but still receives the
	// first month's surplus.
	budgets := []model.Budget{makeBudget("food", "2026-01", 100, model.CarryUnspent)}
	txns := []model.Transaction{makeTxn("food", "2026-01-15", -50)}

	lines, err := Ledger("food", "2026-01", "2026-02", budgets, txns)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.True(t, lines[1].Budgeted.IsZero())
	assert.True(t, lines[1].CarriedIn.Equal(decimal.NewFromInt(50)))
	assert.True(t, lines[1].Remaining.Equal(decimal.NewFromInt(50)))
}

func TestLedger_ChainsAcrossThreeMonths(t *testing.T) {
	budgets := []model.Budget{
		makeBudget("food", "2026-01", 100, model.CarryUnspent),
		makeBudget("food", "2026-02", 100, model.CarryUnspent),
		makeBudget("food", "2026-03", 100, model.CarryNone),
	}
	txns := []model.Transaction{
		makeTxn("food", "2026-01-15", -40), // +60 carried
		makeTxn("food", "2026-02-15", -90), // 100+60-90 = +70 carried
	}

	lines, err := Ledger("food", "2026-01", "2026-03", budgets, txns)
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.True(t, lines[1].CarriedIn.Equal(decimal.NewFromInt(60)))
	assert.True(t, lines[2].CarriedIn.Equal(decimal.NewFromInt(70)))
	assert.True(t, lines[2].Remaining.Equal(decimal.NewFromInt(170)))
}

func TestLedger_IgnoresOtherCategories(t *testing.T) {
	budgets := []model.Budget{
		makeBudget("food", "2026-01", 100, model.CarryNone),
		makeBudget("fuel", "2026-01", 500, model.CarryNone),
	}
	txns := []model.Transaction{
		makeTxn("food", "2026-01-10", -20),
		makeTxn("fuel", "2026-01-10", -80),
	}

	lines, err := Ledger("food", "2026-01", "2026-01", budgets, txns)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.True(t, lines[0].Spent.Equal(decimal.NewFromInt(20)))
}

func TestLedger_RejectsBadRanges(t *testing.T) {
	_, err := Ledger("food", "January", "2026-02", nil, nil)
	assert.True(t, errors.Is(err, common.ErrValidation))

	_, err = Ledger("food", "2026-03", "2026-01", nil, nil)
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestMonths(t *testing.T) {
	budgets := []model.Budget{
		makeBudget("food", "2026-03", 1, model.CarryNone),
		makeBudget("food", "2026-01", 1, model.CarryNone),
		makeBudget("fuel", "2026-02", 1, model.CarryNone),
		makeBudget("food", "2026-01", 2, model.CarryNone),
	}

	assert.Equal(t, []string{"2026-01", "2026-03"}, Months("food", budgets))
}
