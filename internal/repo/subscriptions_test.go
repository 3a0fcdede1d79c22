package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/repo"
	"github.com/chudeemeke/kite-pfm/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSubscription(t *testing.T, repos *repo.Repos, name string, mutate ...func(*model.Subscription)) *model.Subscription {
	t.Helper()

	sub := &model.Subscription{
		Name:        name,
		Cadence:     model.CadenceMonthly,
		Currency:    "USD",
		Amount:      12,
		NextDueDate: time.Now().AddDate(0, 0, 7),
	}
	for _, fn := range mutate {
		fn(sub)
	}
	require.NoError(t, repos.Subscriptions.Create(context.Background(), sub, testutil.TestActor))
	return sub
}

func TestSubscriptionCreate_Validation(t *testing.T) {
	repos := testutil.SetupRepos(t)
	ctx := context.Background()

	due := time.Now().AddDate(0, 0, 7)
	tests := []struct {
		name string
		sub  model.Subscription
	}{
		{"missing name", model.Subscription{Cadence: model.CadenceMonthly, Currency: "USD", NextDueDate: due}},
		{"unknown cadence", model.Subscription{Name: "s", Cadence: "fortnightly", Currency: "USD", NextDueDate: due}},
		{"custom without days", model.Subscription{Name: "s", Cadence: model.CadenceCustom, Currency: "USD", NextDueDate: due}},
		{"bad currency", model.Subscription{Name: "s", Cadence: model.CadenceMonthly, Currency: "dollars", NextDueDate: due}},
		{"missing due date", model.Subscription{Name: "s", Cadence: model.CadenceMonthly, Currency: "USD"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := tt.sub
			err := repos.Subscriptions.Create(ctx, &sub, testutil.TestActor)
			assert.True(t, errors.Is(err, common.ErrValidation))
		})
	}
}

func TestSubscriptionsUpcoming(t *testing.T) {
	repos := testutil.SetupRepos(t)
	ctx := context.Background()

	seedSubscription(t, repos, "soon", func(s *model.Subscription) {
		s.NextDueDate = time.Now().AddDate(0, 0, 3)
	})
	seedSubscription(t, repos, "later", func(s *model.Subscription) {
		s.NextDueDate = time.Now().AddDate(0, 0, 20)
	})
	seedSubscription(t, repos, "distant", func(s *model.Subscription) {
		s.NextDueDate = time.Now().AddDate(0, 3, 0)
	})

	upcoming, err := repos.Subscriptions.Upcoming(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, "soon", upcoming[0].Name)
	assert.Equal(t, "later", upcoming[1].Name)
}

func TestSubscriptionAdvance(t *testing.T) {
	repos := testutil.SetupRepos(t)
	ctx := context.Background()

	due := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	sub := seedSubscription(t, repos, "streaming", func(s *model.Subscription) {
		s.NextDueDate = due
	})

	advanced, err := repos.Subscriptions.Advance(ctx, sub.ID, testutil.TestActor)
	require.NoError(t, err)
	assert.Equal(t, due.AddDate(0, 1, 0), advanced.NextDueDate)
	assert.Equal(t, int64(2), advanced.Version)
}

func TestSubscriptionsMonthlyCost(t *testing.T) {
	repos := testutil.SetupRepos(t)
	ctx := context.Background()

	seedSubscription(t, repos, "monthly", func(s *model.Subscription) { s.Amount = 10 })
	seedSubscription(t, repos, "yearly", func(s *model.Subscription) {
		s.Cadence = model.CadenceYearly
		s.Amount = 120
	})
	seedSubscription(t, repos, "custom", func(s *model.Subscription) {
		s.Cadence = model.CadenceCustom
		s.CustomDays = 15
		s.Amount = 5
	})

	total, err := repos.Subscriptions.MonthlyCost(ctx)
	require.NoError(t, err)
	// 10 monthly + 120/12 yearly + 5 every 15 days (10/month).
	assert.InDelta(t, 30.0, total, 0.001)
}
