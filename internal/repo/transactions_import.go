package repo

import (
	"context"
	"database/sql"
	"log/slog"
	"math"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/store"

	"github.com/google/uuid"
)

// ImportOptions tunes a bulk import. The duplicate window defaults to one
// minute; candidates inside it with the same account and an amount within
// one cent are skipped rather than inserted.
type ImportOptions struct {
	OnProgress      func(done, total int)
	// ExpectedBalances maps account ids to the statement closing balance.
	// After the import each listed account's replayed balance is compared
	// against it and drift beyond one cent is logged, never corrected.
	ExpectedBalances map[string]float64
	DuplicateWindow  time.Duration
	Categorize       bool
}

// ImportResult counts what an import did. Duplicate skips and row errors
// are tracked separately: a skipped row matched an existing transaction,
// an errored row failed validation.
type ImportResult struct {
	Imported    int
	Skipped     int
	Errors      int
	Categorized int
}

// Import inserts incoming transactions in fixed-size atomic chunks,
// skipping rows that look like duplicates of already-stored transactions or
// of earlier rows in the same batch. Rows that fail validation are counted
// and dropped; they never abort the rest of the import. Progress is
// reported cumulatively per chunk. Optionally runs auto-categorization over
// the imported rows.
func (t *Transactions) Import(ctx context.Context, incoming []model.Transaction, actor string, opts ImportOptions) (*ImportResult, error) {
	if opts.DuplicateWindow <= 0 {
		opts.DuplicateWindow = time.Minute
	}

	existing, err := t.List(ctx, ListOptions[model.Transaction]{})
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	total := len(incoming)
	done := 0

	var accepted []model.Transaction
	seen := existing
	for i := range incoming {
		txn := incoming[i]
		if isImportDuplicate(&txn, seen, opts.DuplicateWindow) {
			result.Skipped++
			continue
		}
		err := t.validate(&txn)
		if err == nil {
			err = t.refGuard(ctx, t.store.DB(), &txn)
		}
		if err != nil {
			result.Errors++
			slog.Warn("import row rejected", "row", i+1, "error", err)
			continue
		}
		accepted = append(accepted, txn)
		seen = append(seen, txn)
	}

	for start := 0; start < len(accepted); start += batchSize {
		end := start + batchSize
		if end > len(accepted) {
			end = len(accepted)
		}
		chunk := accepted[start:end]

		err := t.store.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
			for i := range chunk {
				txn := &chunk[i]
				meta := txn.Meta()
				if meta.ID == "" {
					meta.ID = uuid.NewString()
				}
				now := time.Now()
				meta.CreatedAt = now
				meta.CreatedBy = actor
				meta.UpdatedAt = now
				meta.UpdatedBy = actor
				meta.Version = 1
				meta.IsDeleted = false

				if err := t.createTx(ctx, tx, txn, actor); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		result.Imported += len(chunk)
		done += len(chunk)
		if opts.OnProgress != nil {
			opts.OnProgress(done+result.Skipped+result.Errors, total)
		}
	}

	t.invalidate()
	t.publish(EventCreated, "")

	if opts.Categorize && result.Imported > 0 {
		importedIDs := make([]string, 0, len(accepted))
		for i := range accepted {
			importedIDs = append(importedIDs, accepted[i].ID)
		}
		cat, err := t.AutoCategorize(ctx, importedIDs, SearchFilters{}, actor)
		if err != nil {
			// Import itself succeeded; categorization can be rerun.
			slog.Warn("categorization after import failed", "error", err)
		} else {
			result.Categorized = cat.Changed
		}
	}

	if len(opts.ExpectedBalances) > 0 {
		t.reconcileBalances(ctx, opts.ExpectedBalances)
	}

	slog.Info("import finished",
		"imported", result.Imported,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"categorized", result.Categorized)
	return result, nil
}

// reconcileBalances replays each listed account from its stored opening
// balance and logs drift against the expected statement balance. Drift is
// reported, not fixed: imports must never silently rewrite amounts.
func (t *Transactions) reconcileBalances(ctx context.Context, expected map[string]float64) {
	for accountID, want := range expected {
		rec, err := t.store.GetRecord(ctx, t.store.DB(), store.TableAccounts, accountID)
		if err != nil {
			slog.Warn("reconciliation skipped unknown account", "account", accountID)
			continue
		}
		var account model.Account
		if err := unmarshalRecord(*rec, &account); err != nil {
			slog.Warn("reconciliation failed to read account", "account", accountID, "error", err)
			continue
		}

		points, err := t.RunningBalance(ctx, accountID, account.Balance, nil, nil)
		if err != nil {
			slog.Warn("reconciliation failed", "account", accountID, "error", err)
			continue
		}
		got := account.Balance
		if len(points) > 0 {
			got = points[len(points)-1].Balance
		}

		if drift := math.Abs(got - want); drift > 0.01 {
			slog.Warn("balance drift after import",
				"account", accountID,
				"expected", want,
				"actual", got,
				"drift", drift)
		}
	}
}

// isImportDuplicate reports whether the candidate matches any known
// transaction on account, amount within one cent, and date within the
// window.
func isImportDuplicate(txn *model.Transaction, known []model.Transaction, window time.Duration) bool {
	for i := range known {
		have := &known[i]
		if have.AccountID != txn.AccountID {
			continue
		}
		if math.Abs(have.Amount-txn.Amount) > 0.01 {
			continue
		}
		gap := txn.Date.Sub(have.Date)
		if gap < 0 {
			gap = -gap
		}
		if gap <= window {
			return true
		}
	}
	return false
}
