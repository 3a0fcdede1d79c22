package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/store"
)

// Subscriptions is the recurring-payment repository.
type Subscriptions struct {
	*Repository[model.Subscription, *model.Subscription]
}

// NewSubscriptions builds the subscription repository.
func NewSubscriptions(st *store.Store, broker *Broker) *Subscriptions {
	cfg := Config[model.Subscription]{
		Table:      store.TableSubscriptions,
		SoftDelete: true,
		Rules: []FieldRule[model.Subscription]{
			{Field: "name", Check: func(s *model.Subscription) string {
				if s.Name == "" {
					return "name is required"
				}
				return ""
			}},
			{Field: "cadence", Check: func(s *model.Subscription) string {
				if !model.ValidCadence(s.Cadence) {
					return fmt.Sprintf("unknown cadence %q", s.Cadence)
				}
				if s.Cadence == model.CadenceCustom && s.CustomDays <= 0 {
					return "custom cadence needs customDays"
				}
				return ""
			}},
			{Field: "currency", Check: func(s *model.Subscription) string {
				if len(s.Currency) != 3 {
					return "currency must be a 3-letter code"
				}
				return ""
			}},
			{Field: "nextDueDate", Check: func(s *model.Subscription) string {
				if s.NextDueDate.IsZero() {
					return "nextDueDate is required"
				}
				return ""
			}},
		},
		Relations: []Relation[model.Subscription]{
			{
				Name:  "account",
				Table: store.TableAccounts,
				Kind:  BelongsTo,
				Keys: func(s *model.Subscription) []string {
					return []string{s.AccountID}
				},
			},
			{
				Name:  "category",
				Table: store.TableCategories,
				Kind:  BelongsTo,
				Keys: func(s *model.Subscription) []string {
					return []string{s.CategoryID}
				},
			},
		},
	}
	return &Subscriptions{Repository: New[model.Subscription, *model.Subscription](st, broker, cfg)}
}

// Upcoming returns the subscriptions due within the horizon, soonest first.
func (s *Subscriptions) Upcoming(ctx context.Context, horizon time.Duration) ([]model.Subscription, error) {
	cutoff := time.Now().Add(horizon)
	return s.List(ctx, ListOptions[model.Subscription]{
		Where: func(sub *model.Subscription) bool { return !sub.NextDueDate.After(cutoff) },
		Less:  func(a, b *model.Subscription) bool { return a.NextDueDate.Before(b.NextDueDate) },
	})
}

// Advance moves the subscription's next due date forward by one cadence
// interval.
func (s *Subscriptions) Advance(ctx context.Context, id, actor string) (*model.Subscription, error) {
	return s.Update(ctx, id, func(sub *model.Subscription) error {
		sub.Advance()
		return nil
	}, actor, nil)
}

// MonthlyCost sums the subscriptions normalized to a monthly amount.
func (s *Subscriptions) MonthlyCost(ctx context.Context) (float64, error) {
	subs, err := s.List(ctx, ListOptions[model.Subscription]{})
	if err != nil {
		return 0, err
	}

	var total float64
	for _, sub := range subs {
		switch sub.Cadence {
		case model.CadenceMonthly:
			total += sub.Amount
		case model.CadenceYearly:
			total += sub.Amount / 12
		case model.CadenceCustom:
			if sub.CustomDays > 0 {
				total += sub.Amount * 30.0 / float64(sub.CustomDays)
			}
		}
	}
	return total, nil
}
