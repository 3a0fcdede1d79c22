package syncq_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/store"
	"github.com/chudeemeke/kite-pfm/internal/syncq"
	"github.com/chudeemeke/kite-pfm/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestEnqueuePendingFIFO(t *testing.T) {
	q := syncq.New(testutil.SetupStore(t))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, syncq.OpCreate, store.TableAccounts, fakePayload{ID: "a1", Name: "first"}))
	require.NoError(t, q.Enqueue(ctx, syncq.OpUpdate, store.TableAccounts, fakePayload{ID: "a1", Name: "second"}))
	require.NoError(t, q.Enqueue(ctx, syncq.OpDelete, store.TableAccounts, fakePayload{ID: "a1"}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	items, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, syncq.OpCreate, items[0].Operation)
	assert.Equal(t, syncq.OpUpdate, items[1].Operation)
	assert.Equal(t, syncq.OpDelete, items[2].Operation)
	assert.True(t, items[0].ID < items[1].ID)
	assert.Equal(t, syncq.StatusPending, items[0].Status)
	assert.JSONEq(t, `{"id":"a1","name":"first"}`, string(items[0].Payload))
}

func TestDrainAppliesInOrder(t *testing.T) {
	q := syncq.New(testutil.SetupStore(t))
	ctx := context.Background()

	for _, name := range []string{"one", "two", "three"} {
		require.NoError(t, q.Enqueue(ctx, syncq.OpCreate, store.TableAccounts, fakePayload{ID: name}))
	}

	var seen []string
	result, err := q.Drain(ctx, func(ctx context.Context, item syncq.Item) error {
		var p fakePayload
		require.NoError(t, json.Unmarshal(item.Payload, &p))
		seen = append(seen, p.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Applied)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, []string{"one", "two", "three"}, seen)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDrainPoisonedItemDoesNotBlock(t *testing.T) {
	q := syncq.New(testutil.SetupStore(t))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, syncq.OpCreate, store.TableAccounts, fakePayload{ID: "good-1"}))
	require.NoError(t, q.Enqueue(ctx, syncq.OpCreate, store.TableAccounts, fakePayload{ID: "poison"}))
	require.NoError(t, q.Enqueue(ctx, syncq.OpCreate, store.TableAccounts, fakePayload{ID: "good-2"}))

	result, err := q.Drain(ctx, func(ctx context.Context, item syncq.Item) error {
		var p fakePayload
		require.NoError(t, json.Unmarshal(item.Payload, &p))
		if p.ID == "poison" {
			// Non-retryable, so the item fails without burning retries.
			return common.NewValidationError("id", "rejected by target")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, 1, result.Failed)

	failed, err := q.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].LastError, "rejected by target")
	assert.Equal(t, 1, failed[0].Attempts)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRetryResetsFailedItem(t *testing.T) {
	q := syncq.New(testutil.SetupStore(t))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, syncq.OpCreate, store.TableAccounts, fakePayload{ID: "a1"}))
	_, err := q.Drain(ctx, func(ctx context.Context, item syncq.Item) error {
		return common.NewValidationError("id", "nope")
	})
	require.NoError(t, err)

	failed, err := q.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	require.NoError(t, q.Retry(ctx, failed[0].ID))

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 0, pending[0].Attempts)
	assert.Empty(t, pending[0].LastError)

	// Retrying an item that is not failed is an error.
	err = q.Retry(ctx, failed[0].ID)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestCompactRemovesDoneOnly(t *testing.T) {
	q := syncq.New(testutil.SetupStore(t))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, syncq.OpCreate, store.TableAccounts, fakePayload{ID: "done"}))
	require.NoError(t, q.Enqueue(ctx, syncq.OpCreate, store.TableAccounts, fakePayload{ID: "poison"}))

	_, err := q.Drain(ctx, func(ctx context.Context, item syncq.Item) error {
		var p fakePayload
		require.NoError(t, json.Unmarshal(item.Payload, &p))
		if p.ID == "poison" {
			return common.NewValidationError("id", "nope")
		}
		return nil
	})
	require.NoError(t, err)

	removed, err := q.Compact(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// The failed item survives compaction.
	failed, err := q.Failed(ctx)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestTwoPhaseConfirm(t *testing.T) {
	st := testutil.SetupStore(t)
	ctx := context.Background()

	session := syncq.NewTwoPhase(st)
	rec := store.Record{ID: "a1", Data: []byte(`{"id":"a1","name":"Remote"}`), Version: 1}
	require.NoError(t, session.Apply(ctx, store.TableAccounts, rec))
	session.Confirm()

	got, err := st.GetRecord(ctx, st.DB(), store.TableAccounts, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)

	// A confirmed session refuses further writes.
	err = session.Apply(ctx, store.TableAccounts, rec)
	assert.True(t, errors.Is(err, common.ErrConflict))
}

func TestTwoPhaseRollbackRestoresPrior(t *testing.T) {
	st := testutil.SetupStore(t)
	ctx := context.Background()

	// Existing row that the session will overwrite.
	prior := store.Record{ID: "a1", Data: []byte(`{"id":"a1","name":"Local"}`), Version: 3}
	err := st.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return st.PutRecord(ctx, tx, store.TableAccounts, prior, time.Now(), time.Now())
	})
	require.NoError(t, err)

	session := syncq.NewTwoPhase(st)
	require.NoError(t, session.Apply(ctx, store.TableAccounts,
		store.Record{ID: "a1", Data: []byte(`{"id":"a1","name":"Remote"}`), Version: 4}))
	require.NoError(t, session.Apply(ctx, store.TableAccounts,
		store.Record{ID: "a2", Data: []byte(`{"id":"a2","name":"Brand new"}`), Version: 1}))

	require.NoError(t, session.Rollback(ctx))

	// The overwritten row is back to its prior version.
	got, err := st.GetRecord(ctx, st.DB(), store.TableAccounts, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	assert.Contains(t, string(got.Data), "Local")

	// The brand-new row is gone.
	_, err = st.GetRecord(ctx, st.DB(), store.TableAccounts, "a2")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}
