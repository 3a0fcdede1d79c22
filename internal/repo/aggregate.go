package repo

import (
	"context"

	"github.com/chudeemeke/kite-pfm/internal/common"
)

// GroupStats holds per-group aggregates.
type GroupStats struct {
	Sum   float64
	Avg   float64
	Min   float64
	Max   float64
	Count int
}

// AggregateOptions shapes an in-memory aggregation. GroupBy assigns each
// entity to a group; Value extracts the number aggregated per group; Where
// pre-filters; Having drops groups after aggregation.
type AggregateOptions[T any] struct {
	GroupBy        func(*T) string
	Value          func(*T) float64
	Where          func(*T) bool
	Having         func(key string, stats GroupStats) bool
	IncludeDeleted bool
}

// Aggregate groups over a full table scan and computes count/sum/avg/min/max
// per group. Explicitly O(n); acceptable at embedded-device data volumes.
func (r *Repository[T, P]) Aggregate(ctx context.Context, opts AggregateOptions[T]) (map[string]GroupStats, error) {
	if opts.GroupBy == nil || opts.Value == nil {
		return nil, common.NewValidationError("aggregate", "GroupBy and Value are required")
	}

	entities, err := r.scan(ctx, r.store.DB(), opts.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]GroupStats)
	for i := range entities {
		entity := &entities[i]
		if opts.Where != nil && !opts.Where(entity) {
			continue
		}

		key := opts.GroupBy(entity)
		value := opts.Value(entity)

		stats, seen := groups[key]
		if !seen {
			stats = GroupStats{Min: value, Max: value}
		}
		stats.Count++
		stats.Sum += value
		if value < stats.Min {
			stats.Min = value
		}
		if value > stats.Max {
			stats.Max = value
		}
		groups[key] = stats
	}

	for key, stats := range groups {
		stats.Avg = stats.Sum / float64(stats.Count)
		groups[key] = stats
	}

	if opts.Having != nil {
		for key, stats := range groups {
			if !opts.Having(key, stats) {
				delete(groups, key)
			}
		}
	}

	return groups, nil
}
