package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chudeemeke/kite-pfm/internal/common"
)

// RelKind tags a relationship descriptor.
type RelKind int

// Relationship kinds.
const (
	HasOne RelKind = iota
	HasMany
	BelongsTo
	BelongsToMany
)

// Relation describes one relationship of an entity, resolved against other
// tables by id lookup on demand. It is never automatic and not cached
// across calls.
//
// HasOne, BelongsTo, and BelongsToMany use Keys to read foreign ids off the
// entity. HasMany scans the target table and keeps rows whose ForeignField
// references the entity's id.
type Relation[T any] struct {
	Keys         func(*T) []string
	Name         string
	Table        string
	ForeignField string
	Kind         RelKind
}

// LoadRelations resolves the named relationships (all configured ones when
// names is empty) and returns the related raw documents keyed by relation
// name. Dangling foreign keys are skipped, not errors: referential
// enforcement happens at write time.
func (r *Repository[T, P]) LoadRelations(ctx context.Context, entity *T, names ...string) (map[string][]json.RawMessage, error) {
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	out := make(map[string][]json.RawMessage)
	for _, rel := range r.cfg.Relations {
		if len(names) > 0 && !wanted[rel.Name] {
			continue
		}

		docs, err := r.loadRelation(ctx, entity, rel)
		if err != nil {
			return nil, fmt.Errorf("failed to load relation %s: %w", rel.Name, err)
		}
		out[rel.Name] = docs
	}
	return out, nil
}

func (r *Repository[T, P]) loadRelation(ctx context.Context, entity *T, rel Relation[T]) ([]json.RawMessage, error) {
	switch rel.Kind {
	case HasOne, BelongsTo, BelongsToMany:
		var docs []json.RawMessage
		for _, id := range rel.Keys(entity) {
			if id == "" {
				continue
			}
			rec, err := r.store.GetRecord(ctx, r.store.DB(), rel.Table, id)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					continue
				}
				return nil, err
			}
			if rec.IsDeleted {
				continue
			}
			docs = append(docs, json.RawMessage(rec.Data))
		}
		return docs, nil

	case HasMany:
		id := P(entity).Meta().ID
		records, err := r.store.ScanTable(ctx, r.store.DB(), rel.Table, false)
		if err != nil {
			return nil, err
		}
		var docs []json.RawMessage
		for _, rec := range records {
			var doc map[string]any
			if err := json.Unmarshal(rec.Data, &doc); err != nil {
				continue
			}
			if fk, _ := doc[rel.ForeignField].(string); fk == id {
				docs = append(docs, json.RawMessage(rec.Data))
			}
		}
		return docs, nil
	}

	return nil, common.NewValidationError("relation", fmt.Sprintf("unknown relation kind %d", rel.Kind))
}
