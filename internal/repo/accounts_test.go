package repo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountCreate_TypeEnum(t *testing.T) {
	repos := testutil.SetupRepos(t)
	ctx := context.Background()

	for _, typ := range []model.AccountType{
		model.AccountChecking, model.AccountSavings, model.AccountCredit,
		model.AccountInvestment, model.AccountCash, model.AccountLoan,
		model.AccountOther,
	} {
		account := &model.Account{Name: "t-" + string(typ), Type: typ, Currency: "USD"}
		require.NoError(t, repos.Accounts.Create(ctx, account, testutil.TestActor), "type %s", typ)
	}

	bad := &model.Account{Name: "bad", Type: "offshore", Currency: "USD"}
	err := repos.Accounts.Create(ctx, bad, testutil.TestActor)
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestSetDefault_IsExclusive(t *testing.T) {
	repos := testutil.SetupRepos(t)
	ctx := context.Background()

	first := testutil.SeedAccount(t, repos, func(a *model.Account) { a.Name = "First" })
	second := testutil.SeedAccount(t, repos, func(a *model.Account) { a.Name = "Second" })

	require.NoError(t, repos.Accounts.SetDefault(ctx, first.ID, testutil.TestActor))
	require.NoError(t, repos.Accounts.SetDefault(ctx, second.ID, testutil.TestActor))

	// Exactly one default at a time.
	accounts, err := repos.Accounts.ListActive(ctx)
	require.NoError(t, err)

	var defaults []string
	for _, account := range accounts {
		if account.IsDefault {
			defaults = append(defaults, account.Name)
		}
	}
	assert.Equal(t, []string{"Second"}, defaults)

	def, err := repos.Accounts.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, def.ID)
}

func TestSetDefault_UnknownAccount(t *testing.T) {
	repos := testutil.SetupRepos(t)
	testutil.SeedAccount(t, repos)

	err := repos.Accounts.SetDefault(context.Background(), "ghost", testutil.TestActor)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestAccountDelete_GuardedByTransactions(t *testing.T) {
	repos := testutil.SetupRepos(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, repos)
	txn := testutil.SeedTransaction(t, repos, account.ID)

	err := repos.Accounts.Delete(ctx, account.ID, testutil.TestActor, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrConflict))

	// Soft-deleting the transaction releases the guard.
	require.NoError(t, repos.Transactions.Delete(ctx, txn.ID, testutil.TestActor, false))
	require.NoError(t, repos.Accounts.Delete(ctx, account.ID, testutil.TestActor, false))

	_, err = repos.Accounts.Get(ctx, account.ID)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestArchive_Lifecycle(t *testing.T) {
	repos := testutil.SetupRepos(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, repos)
	require.NoError(t, repos.Accounts.SetDefault(ctx, account.ID, testutil.TestActor))

	archived, err := repos.Accounts.Archive(ctx, account.ID, testutil.TestActor)
	require.NoError(t, err)
	assert.True(t, archived.Archived())
	// Archiving drops the default flag.
	assert.False(t, archived.IsDefault)

	// Archiving twice conflicts.
	_, err = repos.Accounts.Archive(ctx, account.ID, testutil.TestActor)
	assert.True(t, errors.Is(err, common.ErrConflict))

	active, err := repos.Accounts.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	restored, err := repos.Accounts.Unarchive(ctx, account.ID, testutil.TestActor)
	require.NoError(t, err)
	assert.False(t, restored.Archived())
}

func TestArchivedAccountCannotBeDefault(t *testing.T) {
	repos := testutil.SetupRepos(t)
	ctx := context.Background()

	account := testutil.SeedAccount(t, repos)
	_, err := repos.Accounts.Archive(ctx, account.ID, testutil.TestActor)
	require.NoError(t, err)

	err = repos.Accounts.SetDefault(ctx, account.ID, testutil.TestActor)
	assert.True(t, errors.Is(err, common.ErrValidation))
}
