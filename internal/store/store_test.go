package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	t.Helper()

	st, err := New(":memory:", Options{})
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))

	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestMigrate_IsIdempotent(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	require.NoError(t, st.Migrate(ctx))

	version, err := st.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)
}

func TestMigrate_OnDisk(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "kite.db")

	st, err := New(dbPath, Options{})
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	history, err := st.MetadataHistory(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, history)
}

func TestPutGetRecord_RoundTrip(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	rec := Record{
		ID:      "a1",
		Data:    []byte(`{"id":"a1","name":"Checking","type":"checking","currency":"USD"}`),
		Version: 1,
	}
	now := time.Now()
	require.NoError(t, st.PutRecord(ctx, st.DB(), TableAccounts, rec, now, now))

	got, err := st.GetRecord(ctx, st.DB(), TableAccounts, "a1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Version, got.Version)
	assert.JSONEq(t, string(rec.Data), string(got.Data))
	assert.False(t, got.IsDeleted)
}

func TestPutRecord_UpsertReplacesData(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	rec := Record{ID: "a1", Data: []byte(`{"id":"a1","v":1}`), Version: 1}
	require.NoError(t, st.PutRecord(ctx, st.DB(), TableAccounts, rec, now, now))

	rec.Data = []byte(`{"id":"a1","v":2}`)
	rec.Version = 2
	require.NoError(t, st.PutRecord(ctx, st.DB(), TableAccounts, rec, now, now))

	got, err := st.GetRecord(ctx, st.DB(), TableAccounts, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestGetRecord_NotFound(t *testing.T) {
	st := setupStore(t)

	_, err := st.GetRecord(context.Background(), st.DB(), TableAccounts, "missing")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestGetRecord_RejectsUnknownTable(t *testing.T) {
	st := setupStore(t)

	_, err := st.GetRecord(context.Background(), st.DB(), "sqlite_master", "x")
	require.Error(t, err)
}

func TestScanTable_DeletedVisibility(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.PutRecord(ctx, st.DB(), TableRules,
		Record{ID: "r1", Data: []byte(`{"id":"r1"}`), Version: 1}, now, now))
	require.NoError(t, st.PutRecord(ctx, st.DB(), TableRules,
		Record{ID: "r2", Data: []byte(`{"id":"r2"}`), Version: 1, IsDeleted: true}, now, now))

	visible, err := st.ScanTable(ctx, st.DB(), TableRules, false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "r1", visible[0].ID)

	all, err := st.ScanTable(ctx, st.DB(), TableRules, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	count, err := st.CountRecords(ctx, st.DB(), TableRules, false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteRecord_MissingRow(t *testing.T) {
	st := setupStore(t)

	err := st.DeleteRecord(context.Background(), st.DB(), TableAccounts, "missing")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestAtomic_RollsBackOnError(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := st.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		now := time.Now()
		if err := st.PutRecord(ctx, tx, TableAccounts,
			Record{ID: "a1", Data: []byte(`{"id":"a1"}`), Version: 1}, now, now); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = st.GetRecord(ctx, st.DB(), TableAccounts, "a1")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestAuditTrail_RecordsOperations(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	err := st.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := st.AppendAudit(ctx, tx, AuditEntry{
			Table: TableAccounts, EntityID: "a1", Action: AuditCreate, Actor: "test", After: `{"id":"a1"}`,
		}); err != nil {
			return err
		}
		return st.AppendAudit(ctx, tx, AuditEntry{
			Table: TableAccounts, EntityID: "a1", Action: AuditUpdate, Actor: "test",
		})
	})
	require.NoError(t, err)

	trail, err := st.AuditTrail(ctx, TableAccounts, "a1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, AuditCreate, trail[0].Action)
	assert.Equal(t, AuditUpdate, trail[1].Action)
	assert.Equal(t, "test", trail[0].Actor)
}

func TestSettings_RoundTrip(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetSetting(ctx, "theme", "dark"))
	require.NoError(t, st.SetSetting(ctx, "theme", "light"))

	value, err := st.GetSetting(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, "light", value)

	_, err = st.GetSetting(ctx, "missing")
	assert.True(t, errors.Is(err, common.ErrNotFound))

	require.NoError(t, st.SetSetting(ctx, "currency", "USD"))

	all, err := st.ListSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"currency": "USD", "theme": "light"}, all)
}

func TestReset_ClearsDataKeepsHistory(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.PutRecord(ctx, st.DB(), TableAccounts,
		Record{ID: "a1", Data: []byte(`{"id":"a1"}`), Version: 1}, now, now))

	require.NoError(t, st.Reset(ctx))

	count, err := st.CountRecords(ctx, st.DB(), TableAccounts, true)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	history, err := st.MetadataHistory(ctx)
	require.NoError(t, err)

	var kinds []string
	for _, rec := range history {
		kinds = append(kinds, rec.Kind)
	}
	assert.Contains(t, kinds, "reset")
	assert.Contains(t, kinds, "migration")
}
