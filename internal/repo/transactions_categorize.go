package repo

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/rules"
)

// CategorizeResult reports what auto-categorization did.
type CategorizeResult struct {
	Scanned int
	Changed int
}

// AutoCategorize runs every enabled rule over the target transactions and
// applies the outcomes. Explicit ids name the targets directly; without
// ids the targets are the uncategorized transactions matching the filters,
// so manual category assignments are never overwritten. Changed
// transactions are written in chunks, each chunk atomic; a transaction
// whose outcome changes nothing is left untouched, including its version.
func (t *Transactions) AutoCategorize(ctx context.Context, ids []string, filters SearchFilters, actor string) (*CategorizeResult, error) {
	engine, err := t.rules.Engine(ctx)
	if err != nil {
		return nil, err
	}

	txns, err := t.categorizeTargets(ctx, ids, filters)
	if err != nil {
		return nil, err
	}

	result := &CategorizeResult{Scanned: len(txns)}

	type change struct {
		id      string
		outcome rules.Outcome
	}
	var changes []change
	for i := range txns {
		outcome := engine.Evaluate(&txns[i])
		if !outcome.Mutated() {
			continue
		}
		if !wouldChange(&txns[i], outcome) {
			continue
		}
		changes = append(changes, change{id: txns[i].ID, outcome: outcome})
	}

	for start := 0; start < len(changes); start += batchSize {
		end := start + batchSize
		if end > len(changes) {
			end = len(changes)
		}
		chunk := changes[start:end]

		err := t.store.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
			for _, ch := range chunk {
				outcome := ch.outcome
				if _, err := t.updateTx(ctx, tx, ch.id, func(cur *model.Transaction) error {
					applyOutcome(cur, outcome)
					return nil
				}, actor, nil); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		result.Changed += len(chunk)
	}

	if result.Changed > 0 {
		t.invalidate()
		t.publish(EventUpdated, "")
		slog.Info("auto-categorization applied",
			"scanned", result.Scanned,
			"changed", result.Changed)
	}
	return result, nil
}

// categorizeTargets resolves the transactions a categorization pass runs
// over: the named ids verbatim, or the uncategorized transactions matching
// the filters when no ids are given.
func (t *Transactions) categorizeTargets(ctx context.Context, ids []string, filters SearchFilters) ([]model.Transaction, error) {
	if len(ids) > 0 {
		txns := make([]model.Transaction, 0, len(ids))
		for _, id := range ids {
			txn, err := t.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			txns = append(txns, *txn)
		}
		return txns, nil
	}

	filters.Uncategorized = true
	filters.Offset = 0
	filters.Limit = 0
	return t.List(ctx, ListOptions[model.Transaction]{
		Where: func(txn *model.Transaction) bool {
			return matchesFilters(txn, filters, strings.ToLower(filters.Query))
		},
	})
}

// wouldChange reports whether applying the outcome would alter the
// transaction.
func wouldChange(txn *model.Transaction, outcome rules.Outcome) bool {
	if outcome.CategoryAssigned && txn.CategoryID != outcome.CategoryID {
		return true
	}
	if outcome.Subscription != nil && txn.IsSubscription != *outcome.Subscription {
		return true
	}
	for _, note := range outcome.Notes {
		if !strings.Contains(txn.Notes, note) {
			return true
		}
	}
	return false
}

func applyOutcome(txn *model.Transaction, outcome rules.Outcome) {
	if outcome.CategoryAssigned {
		txn.CategoryID = outcome.CategoryID
	}
	if outcome.Subscription != nil {
		txn.IsSubscription = *outcome.Subscription
	}
	for _, note := range outcome.Notes {
		if strings.Contains(txn.Notes, note) {
			continue
		}
		if txn.Notes != "" {
			txn.Notes += "\n"
		}
		txn.Notes += note
	}
}

// PreviewCategorize evaluates the rules without writing, returning the
// outcome per transaction id for every target that would change. Targets
// resolve the same way AutoCategorize resolves them.
func (t *Transactions) PreviewCategorize(ctx context.Context, ids []string, filters SearchFilters) (map[string]rules.Outcome, error) {
	engine, err := t.rules.Engine(ctx)
	if err != nil {
		return nil, err
	}

	txns, err := t.categorizeTargets(ctx, ids, filters)
	if err != nil {
		return nil, err
	}

	preview := make(map[string]rules.Outcome)
	for i := range txns {
		outcome := engine.Evaluate(&txns[i])
		if outcome.Mutated() && wouldChange(&txns[i], outcome) {
			preview[txns[i].ID] = outcome
		}
	}
	return preview, nil
}
