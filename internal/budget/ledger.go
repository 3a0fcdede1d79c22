// Package budget derives per-category, per-month ledgers with
// month-over-month carryover of unspent or overspent amounts.
package budget

import (
	"sort"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/model"

	"github.com/shopspring/decimal"
)

// Line is one month of a category's ledger. Amounts are exact decimals to
// keep the carry recurrence free of float drift.
type Line struct {
	CategoryID string
	Month      string
	Budgeted   decimal.Decimal
	Spent      decimal.Decimal
	CarriedIn  decimal.Decimal
	Remaining  decimal.Decimal
}

// Ledger computes the ledger lines of one category over an inclusive month
// range, in chronological order. The carry recurrence makes ordering
// mandatory: month N needs month N-1's remaining, not raw aggregation.
//
// spent is the sum of absolute expense amounts in the category and month;
// carriedIn is the prior month's remaining transformed by the carry
// strategy of the prior month's budget; remaining is
// budgeted + carriedIn - spent.
func Ledger(categoryID, fromMonth, toMonth string, budgets []model.Budget, txns []model.Transaction) ([]Line, error) {
	from, err := model.ParseMonth(fromMonth)
	if err != nil {
		return nil, common.NewValidationError("fromMonth", "must be YYYY-MM")
	}
	to, err := model.ParseMonth(toMonth)
	if err != nil {
		return nil, common.NewValidationError("toMonth", "must be YYYY-MM")
	}
	if to.Before(from) {
		return nil, common.NewValidationError("toMonth", "must not precede fromMonth")
	}

	budgetByMonth := make(map[string]model.Budget)
	for _, b := range budgets {
		if b.CategoryID == categoryID {
			budgetByMonth[b.Month] = b
		}
	}

	spentByMonth := make(map[string]decimal.Decimal)
	for i := range txns {
		txn := &txns[i]
		if txn.CategoryID != categoryID || !txn.Expense() {
			continue
		}
		month := txn.Month()
		spentByMonth[month] = spentByMonth[month].Add(decimal.NewFromFloat(txn.Amount).Abs())
	}

	var lines []Line
	carry := decimal.Zero
	for month := from; !month.After(to); month = month.AddDate(0, 1, 0) {
		key := month.Format("2006-01")

		line := Line{
			CategoryID: categoryID,
			Month:      key,
			Spent:      spentByMonth[key],
			CarriedIn:  carry,
		}
		b, budgeted := budgetByMonth[key]
		if budgeted {
			line.Budgeted = decimal.NewFromFloat(b.Amount)
		}
		line.Remaining = line.Budgeted.Add(line.CarriedIn).Sub(line.Spent)

		lines = append(lines, line)

		strategy := model.CarryNone
		if budgeted {
			strategy = b.CarryStrategy
		}
		carry = carryForward(strategy, line.Remaining)
	}

	return lines, nil
}

// carryForward transforms a month's remaining into the next month's
// carried-in amount. carry-unspent propagates only surplus; carry-overspend
// propagates only overspend; both clamp to zero otherwise.
func carryForward(strategy model.CarryStrategy, remaining decimal.Decimal) decimal.Decimal {
	switch strategy {
	case model.CarryUnspent:
		if remaining.IsPositive() {
			return remaining
		}
	case model.CarryOverspend:
		if remaining.IsNegative() {
			return remaining
		}
	}
	return decimal.Zero
}

// Months returns the sorted distinct months present in the given budgets
// for a category, handy for choosing a full ledger range.
func Months(categoryID string, budgets []model.Budget) []string {
	seen := make(map[string]bool)
	for _, b := range budgets {
		if b.CategoryID == categoryID {
			seen[b.Month] = true
		}
	}
	months := make([]string, 0, len(seen))
	for m := range seen {
		months = append(months, m)
	}
	sort.Strings(months)
	return months
}
