package backup_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/chudeemeke/kite-pfm/internal/backup"
	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/repo"
	"github.com/chudeemeke/kite-pfm/internal/store"
	"github.com/chudeemeke/kite-pfm/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freshWorld returns a migrated store together with its repository bundle.
func freshWorld(t *testing.T) (*store.Store, *repo.Repos) {
	t.Helper()
	st := testutil.SetupStore(t)
	return st, repo.NewRepos(st)
}

// exportSeeded exports a store holding one account, one category, and one
// transaction.
func exportSeeded(t *testing.T, compress bool) []byte {
	t.Helper()

	st, repos := freshWorld(t)
	account := testutil.SeedAccount(t, repos)
	testutil.SeedCategory(t, repos, "Food")
	testutil.SeedTransaction(t, repos, account.ID)

	var buf bytes.Buffer
	require.NoError(t, backup.NewManager(st).Export(context.Background(), &buf, compress))
	return buf.Bytes()
}

func TestExportImportRoundTrip(t *testing.T) {
	raw := exportSeeded(t, false)

	var env backup.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, int64(store.ExpectedSchemaVersion), env.Version)
	assert.Len(t, env.Data[store.TableAccounts], 1)
	assert.Len(t, env.Data[store.TableTransactions], 1)

	st, repos := freshWorld(t)
	restored, err := backup.NewManager(st).Import(context.Background(), bytes.NewReader(raw), backup.ModeReplace)
	require.NoError(t, err)
	assert.Equal(t, 3, restored)

	accounts, err := repos.Accounts.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Test Checking", accounts[0].Name)
	assert.Equal(t, int64(1), accounts[0].Version)
}

func TestExportGzipRoundTrip(t *testing.T) {
	raw := exportSeeded(t, true)

	require.True(t, len(raw) > 2)
	assert.Equal(t, byte(0x1f), raw[0])
	assert.Equal(t, byte(0x8b), raw[1])

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	var env backup.Envelope
	require.NoError(t, json.NewDecoder(gz).Decode(&env))
	assert.Len(t, env.Data[store.TableAccounts], 1)

	// Import detects the compression without being told.
	st, _ := freshWorld(t)
	restored, err := backup.NewManager(st).Import(context.Background(), bytes.NewReader(raw), backup.ModeReplace)
	require.NoError(t, err)
	assert.Equal(t, 3, restored)
}

func TestImportReplaceClearsExisting(t *testing.T) {
	raw := exportSeeded(t, false)

	st, repos := freshWorld(t)
	testutil.SeedAccount(t, repos, func(a *model.Account) { a.Name = "Doomed" })

	_, err := backup.NewManager(st).Import(context.Background(), bytes.NewReader(raw), backup.ModeReplace)
	require.NoError(t, err)

	accounts, err := repos.Accounts.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Test Checking", accounts[0].Name)
}

func TestImportMergeKeepsExisting(t *testing.T) {
	raw := exportSeeded(t, false)

	st, repos := freshWorld(t)
	testutil.SeedAccount(t, repos, func(a *model.Account) { a.Name = "Survivor" })

	_, err := backup.NewManager(st).Import(context.Background(), bytes.NewReader(raw), backup.ModeMerge)
	require.NoError(t, err)

	accounts, err := repos.Accounts.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestImportRejectsMalformedBackups(t *testing.T) {
	st, _ := freshWorld(t)
	mgr := backup.NewManager(st)
	ctx := context.Background()

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not json", "definitely not json"},
		{"no version", `{"data":{}}`},
		{"future version", `{"version":9999,"data":{}}`},
		{"no data section", `{"version":1}`},
		{"unknown table", `{"version":1,"data":{"ponzi_schemes":[]}}`},
		{"document without id", `{"version":1,"data":{"accounts":[{"name":"x"}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mgr.Import(ctx, strings.NewReader(tt.input), backup.ModeMerge)
			assert.True(t, errors.Is(err, common.ErrImportFormat), "got %v", err)
		})
	}
}

func TestImportFailureLeavesStoreUntouched(t *testing.T) {
	st, repos := freshWorld(t)
	testutil.SeedAccount(t, repos)

	// The second document is broken, so the whole restore must roll back,
	// including the replace-mode clear.
	bad := `{"version":1,"data":{"accounts":[` +
		`{"id":"a1","name":"Restored","type":"checking","currency":"USD","version":1},` +
		`{"name":"missing id"}]}}`

	_, err := backup.NewManager(st).Import(context.Background(), strings.NewReader(bad), backup.ModeReplace)
	require.Error(t, err)

	accounts, err := repos.Accounts.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Test Checking", accounts[0].Name)
}
