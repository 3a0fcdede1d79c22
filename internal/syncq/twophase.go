package syncq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/store"
)

// TwoPhase applies incoming remote records optimistically: each write first
// snapshots the prior row, so the whole batch can be rolled back if the
// sync exchange fails partway. Confirm discards the snapshots; Rollback
// restores them. A TwoPhase instance is single-use and not safe for
// concurrent writers.
type TwoPhase struct {
	store     *store.Store
	snapshots []snapshot
	applied   bool
}

type snapshot struct {
	before *store.Record // nil when the row did not exist
	table  string
	id     string
}

// NewTwoPhase starts an optimistic apply session.
func NewTwoPhase(st *store.Store) *TwoPhase {
	return &TwoPhase{store: st}
}

// Apply writes an incoming record, snapshotting whatever it replaces.
func (t *TwoPhase) Apply(ctx context.Context, table string, rec store.Record) error {
	if t.applied {
		return common.NewConflictError(table, rec.ID, "session already confirmed or rolled back")
	}

	return t.store.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		prior, err := t.store.GetRecord(ctx, tx, table, rec.ID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}

		now := time.Now()
		if err := t.store.PutRecord(ctx, tx, table, rec, now, now); err != nil {
			return err
		}

		t.snapshots = append(t.snapshots, snapshot{table: table, id: rec.ID, before: prior})
		return nil
	})
}

// Confirm ends the session keeping all applied records.
func (t *TwoPhase) Confirm() {
	t.snapshots = nil
	t.applied = true
}

// Rollback restores every snapshotted row, newest first, undoing the
// session's writes.
func (t *TwoPhase) Rollback(ctx context.Context) error {
	defer func() { t.applied = true }()

	err := t.store.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for i := len(t.snapshots) - 1; i >= 0; i-- {
			snap := t.snapshots[i]
			if snap.before == nil {
				if err := t.store.DeleteRecord(ctx, tx, snap.table, snap.id); err != nil &&
					!errors.Is(err, common.ErrNotFound) {
					return err
				}
				continue
			}
			now := time.Now()
			if err := t.store.PutRecord(ctx, tx, snap.table, *snap.before, now, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to roll back sync session: %w", err)
	}
	t.snapshots = nil
	return nil
}
