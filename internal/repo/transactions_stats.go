package repo

import (
	"context"
	"sort"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/model"
)

// Statistics summarizes a set of transactions: signed totals, income and
// expense breakdowns, extremes, and per-category, per-merchant, and
// per-month groupings.
type Statistics struct {
	ByCategory map[string]GroupStats
	ByMerchant map[string]GroupStats
	ByMonth    map[string]GroupStats
	// TopMerchant and TopCategory are the most frequent merchant and the
	// most used category among the matches, ties broken alphabetically.
	TopMerchant string
	TopCategory string
	Income      float64
	Expenses    float64
	Net         float64
	AvgAmount   float64
	// LargestIncome is the biggest single credit; LargestExpense the most
	// negative single debit. Both are 0 when no transaction qualifies.
	LargestIncome  float64
	LargestExpense float64
	// NetPerDay and NetPerMonth normalize Net over the covered period: the
	// filter window when both bounds are set, otherwise the span between the
	// oldest and newest matching transaction.
	NetPerDay   float64
	NetPerMonth float64
	Days        int
	Count       int
}

// Statistics computes summary statistics over the transactions matching
// the filters, in one scan.
func (t *Transactions) Statistics(ctx context.Context, filters SearchFilters) (*Statistics, error) {
	filters.Offset = 0
	filters.Limit = 0
	txns, err := t.Search(ctx, filters)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		ByCategory: make(map[string]GroupStats),
		ByMerchant: make(map[string]GroupStats),
		ByMonth:    make(map[string]GroupStats),
		Count:      len(txns),
	}
	for i := range txns {
		txn := &txns[i]
		if txn.Income() {
			stats.Income += txn.Amount
		} else {
			stats.Expenses += txn.Amount
		}
		stats.Net += txn.Amount
		if txn.Amount > stats.LargestIncome {
			stats.LargestIncome = txn.Amount
		}
		if txn.Amount < stats.LargestExpense {
			stats.LargestExpense = txn.Amount
		}

		accumulate(stats.ByCategory, txn.CategoryID, txn.Amount)
		accumulate(stats.ByMerchant, txn.Merchant, txn.Amount)
		accumulate(stats.ByMonth, txn.Month(), txn.Amount)
	}

	if stats.Count > 0 {
		stats.AvgAmount = stats.Net / float64(stats.Count)
	}
	stats.TopMerchant = topByCount(stats.ByMerchant)
	stats.TopCategory = topByCount(stats.ByCategory)

	stats.Days = periodDays(filters, txns)
	if stats.Days > 0 {
		stats.NetPerDay = stats.Net / float64(stats.Days)
		stats.NetPerMonth = stats.NetPerDay * daysPerMonth
	}
	return stats, nil
}

// topByCount returns the non-empty key with the most transactions, ties
// broken alphabetically so the result is deterministic.
func topByCount(groups map[string]GroupStats) string {
	var best string
	bestCount := 0
	for key, g := range groups {
		if key == "" {
			continue
		}
		if g.Count > bestCount || (g.Count == bestCount && bestCount > 0 && key < best) {
			best = key
			bestCount = g.Count
		}
	}
	return best
}

// daysPerMonth is the mean Gregorian month length, used to project a daily
// average onto months.
const daysPerMonth = 30.44

// periodDays returns the whole number of days the statistics cover, at
// least 1 when any transaction matched.
func periodDays(filters SearchFilters, txns []model.Transaction) int {
	var from, to time.Time
	switch {
	case filters.From != nil && filters.To != nil:
		from, to = *filters.From, *filters.To
	case len(txns) > 0:
		from, to = txns[0].Date, txns[0].Date
		for i := range txns {
			if txns[i].Date.Before(from) {
				from = txns[i].Date
			}
			if txns[i].Date.After(to) {
				to = txns[i].Date
			}
		}
	default:
		return 0
	}

	days := int(to.Sub(from).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	return days
}

func accumulate(groups map[string]GroupStats, key string, amount float64) {
	g, ok := groups[key]
	if !ok {
		g = GroupStats{Min: amount, Max: amount}
	}
	g.Sum += amount
	g.Count++
	if amount < g.Min {
		g.Min = amount
	}
	if amount > g.Max {
		g.Max = amount
	}
	g.Avg = g.Sum / float64(g.Count)
	groups[key] = g
}

// BalancePoint is one step of a running balance series.
type BalancePoint struct {
	Transaction model.Transaction
	Balance     float64
}

// RunningBalance replays an account's visible transactions in date order
// and returns the balance after each one. Without a start date the walk
// seeds from the opening balance; with one it seeds from the sum of all
// transactions strictly before start instead. An end date bounds the walk
// inclusively.
func (t *Transactions) RunningBalance(ctx context.Context, accountID string, opening float64, start, end *time.Time) ([]BalancePoint, error) {
	txns, err := t.List(ctx, ListOptions[model.Transaction]{
		Where: func(txn *model.Transaction) bool { return txn.AccountID == accountID },
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(txns, func(i, j int) bool {
		if !txns[i].Date.Equal(txns[j].Date) {
			return txns[i].Date.Before(txns[j].Date)
		}
		return txns[i].CreatedAt.Before(txns[j].CreatedAt)
	})

	balance := opening
	if start != nil {
		balance = 0
		for i := range txns {
			if txns[i].Date.Before(*start) {
				balance += txns[i].Amount
			}
		}
	}

	points := make([]BalancePoint, 0, len(txns))
	for _, txn := range txns {
		if start != nil && txn.Date.Before(*start) {
			continue
		}
		if end != nil && txn.Date.After(*end) {
			break
		}
		balance += txn.Amount
		points = append(points, BalancePoint{Transaction: txn, Balance: balance})
	}
	return points, nil
}
