package repo

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/store"

	"github.com/agnivade/levenshtein"
)

// DuplicateOptions tunes duplicate detection. Zero values fall back to the
// defaults: a 5 minute window, one cent of amount tolerance, exact merchant
// matching.
type DuplicateOptions struct {
	Window        time.Duration
	AmountEpsilon float64
	// FuzzyMerchant allows merchants within MaxDistance edits of each
	// other to count as the same merchant.
	FuzzyMerchant bool
	MaxDistance   int
}

func (o DuplicateOptions) withDefaults() DuplicateOptions {
	if o.Window <= 0 {
		o.Window = 5 * time.Minute
	}
	if o.AmountEpsilon <= 0 {
		o.AmountEpsilon = 0.01
	}
	if o.FuzzyMerchant && o.MaxDistance <= 0 {
		o.MaxDistance = 2
	}
	return o
}

// DuplicateGroup is a set of transactions considered copies of each other,
// oldest first.
type DuplicateGroup struct {
	Transactions []model.Transaction
}

// DetectDuplicates finds groups of likely duplicate transactions: same
// account, amounts within the epsilon, dates within the window, and the
// same (or optionally near-identical) merchant. Each transaction appears in
// at most one group.
func (t *Transactions) DetectDuplicates(ctx context.Context, opts DuplicateOptions) ([]DuplicateGroup, error) {
	opts = opts.withDefaults()

	txns, err := t.List(ctx, ListOptions[model.Transaction]{
		Less: func(a, b *model.Transaction) bool {
			if !a.Date.Equal(b.Date) {
				return a.Date.Before(b.Date)
			}
			return a.ID < b.ID
		},
	})
	if err != nil {
		return nil, err
	}

	var groups []DuplicateGroup
	processed := make(map[string]bool, len(txns))

	for i := range txns {
		if processed[txns[i].ID] {
			continue
		}
		group := []model.Transaction{txns[i]}

		// The list is date-ordered, so candidates past the window end
		// the inner scan.
		for j := i + 1; j < len(txns); j++ {
			if txns[j].Date.Sub(txns[i].Date) > opts.Window {
				break
			}
			if processed[txns[j].ID] {
				continue
			}
			if sameDuplicate(&txns[i], &txns[j], opts) {
				group = append(group, txns[j])
				processed[txns[j].ID] = true
			}
		}

		if len(group) > 1 {
			processed[txns[i].ID] = true
			groups = append(groups, DuplicateGroup{Transactions: group})
		}
	}
	return groups, nil
}

func sameDuplicate(a, b *model.Transaction, opts DuplicateOptions) bool {
	if a.AccountID != b.AccountID {
		return false
	}
	if math.Abs(a.Amount-b.Amount) > opts.AmountEpsilon {
		return false
	}
	return sameMerchant(a.Merchant, b.Merchant, opts)
}

func sameMerchant(a, b string, opts DuplicateOptions) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return true
	}
	if !opts.FuzzyMerchant || a == "" || b == "" {
		return false
	}
	return levenshtein.ComputeDistance(a, b) <= opts.MaxDistance
}

// MergeDuplicates folds a group of duplicates into one surviving member:
// the oldest when keepFirst is set, the newest otherwise. The survivor
// gains the union of tags and notes plus merge provenance in its metadata;
// the rest are soft-deleted. The whole merge is one transaction.
func (t *Transactions) MergeDuplicates(ctx context.Context, ids []string, keepFirst bool, actor string) (*model.Transaction, error) {
	if len(ids) < 2 {
		return nil, common.NewValidationError("ids", "merge requires at least two transactions")
	}

	var merged *model.Transaction
	err := t.store.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		group := make([]model.Transaction, 0, len(ids))
		for _, id := range ids {
			cur, err := t.get(ctx, tx, id)
			if err != nil {
				return err
			}
			group = append(group, *cur)
		}

		sort.SliceStable(group, func(i, j int) bool {
			if !group[i].Date.Equal(group[j].Date) {
				return group[i].Date.Before(group[j].Date)
			}
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})

		keep := group[0]
		rest := group[1:]
		if !keepFirst {
			keep = group[len(group)-1]
			rest = group[:len(group)-1]
		}

		mergedFrom := make([]string, 0, len(rest))
		notes := keep.Notes
		tags := append([]string(nil), keep.Tags...)
		for i := range rest {
			dup := &rest[i]
			mergedFrom = append(mergedFrom, dup.ID)
			if dup.Notes != "" && !strings.Contains(notes, dup.Notes) {
				if notes != "" {
					notes += "\n"
				}
				notes += dup.Notes
			}
			for _, tag := range dup.Tags {
				if !keepHasTag(tags, tag) {
					tags = append(tags, tag)
				}
			}
			if keep.CategoryID == "" {
				keep.CategoryID = dup.CategoryID
			}
		}

		updated, err := t.updateTx(ctx, tx, keep.ID, func(cur *model.Transaction) error {
			cur.Notes = notes
			cur.Tags = tags
			if cur.CategoryID == "" {
				cur.CategoryID = keep.CategoryID
			}
			if cur.Metadata == nil {
				cur.Metadata = make(map[string]any)
			}
			cur.Metadata["mergedFrom"] = mergedFrom
			cur.Metadata["mergedAt"] = time.Now().Format(time.RFC3339)
			return nil
		}, actor, nil)
		if err != nil {
			return err
		}

		for _, dup := range rest {
			if err := t.deleteTx(ctx, tx, dup.ID, actor, false); err != nil {
				return err
			}
		}

		if err := t.store.AppendAudit(ctx, tx, store.AuditEntry{
			Table:    store.TableTransactions,
			EntityID: keep.ID,
			Action:   store.AuditMerge,
			Actor:    actor,
			Diff:     strings.Join(mergedFrom, ","),
		}); err != nil {
			return err
		}

		merged = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.invalidate()
	t.publish(EventUpdated, merged.ID)
	return merged, nil
}

func keepHasTag(tags []string, tag string) bool {
	for _, have := range tags {
		if have == tag {
			return true
		}
	}
	return false
}
