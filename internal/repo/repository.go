// Package repo implements the generic repository layer over the entity
// store: validated, audited, optimistically locked CRUD plus the domain
// repositories built on top of it.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"reflect"
	"sort"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/cache"
	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/model"
	"github.com/chudeemeke/kite-pfm/internal/store"
	"github.com/chudeemeke/kite-pfm/internal/syncq"

	"github.com/google/uuid"
)

// Entity is implemented by every persisted model through its embedded
// envelope.
type Entity interface {
	Meta() *model.Envelope
}

// batchSize is the fixed chunk size for batch operations.
const batchSize = 50

// Hook runs inside the atomic block of a mutation, before the row is
// written. Domain repositories use hooks for referential checks.
type Hook[T any] func(ctx context.Context, q store.Queryable, entity *T) error

// Config describes one table's repository: its validation rules,
// relationship descriptors, and mutation hooks, all typed and closed
// per entity rather than keyed by open string maps.
type Config[T any] struct {
	Table        string
	SoftDelete   bool
	Rules        []FieldRule[T]
	Relations    []Relation[T]
	BeforeCreate Hook[T]
	BeforeUpdate Hook[T]
	BeforeDelete Hook[T]
}

// Repository provides generic CRUD and query operations over one table.
// T is the entity value type; P is its pointer type carrying the envelope.
type Repository[T any, P interface {
	*T
	Entity
}] struct {
	store   *store.Store
	broker  *Broker
	cache   *cache.TTLCache[[]T]
	journal *syncq.Queue
	cfg     Config[T]
}

// New creates a repository for one table. The broker may be nil when change
// notifications are not needed (tests, one-shot tools).
func New[T any, P interface {
	*T
	Entity
}](st *store.Store, broker *Broker, cfg Config[T]) *Repository[T, P] {
	return &Repository[T, P]{
		store:  st,
		broker: broker,
		cache:  cache.New[[]T](64, 30*time.Second),
		cfg:    cfg,
	}
}

// Table returns the repository's table name.
func (r *Repository[T, P]) Table() string { return r.cfg.Table }

// JournalTo records every successful mutation into q so a future sync
// target can replay local writes once connectivity exists. Pass nil to stop
// journaling.
func (r *Repository[T, P]) JournalTo(q *syncq.Queue) { r.journal = q }

// journalOp appends one mutation to the journal. Journaling failures are
/// logged, not surfaced: the local write already committed.
func (r *Repository[T, P]) journalOp(ctx context.Context, op syncq.Operation, payload any) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Enqueue(ctx, op, r.cfg.Table, payload); err != nil {
		slog.Warn("failed to journal mutation", "table", r.cfg.Table, "op", op, "error", err)
	}
}

// Store returns the underlying entity store.
func (r *Repository[T, P]) Store() *store.Store { return r.store }

// GetOptions controls visibility of soft-deleted rows on point reads.
type GetOptions struct {
	IncludeDeleted bool
}

// Get loads an entity by id. Soft-deleted rows are invisible unless
// explicitly requested.
func (r *Repository[T, P]) Get(ctx context.Context, id string, opts ...GetOptions) (*T, error) {
	return r.get(ctx, r.store.DB(), id, opts...)
}

func (r *Repository[T, P]) get(ctx context.Context, q store.Queryable, id string, opts ...GetOptions) (*T, error) {
	includeDeleted := len(opts) > 0 && opts[0].IncludeDeleted

	rec, err := r.store.GetRecord(ctx, q, r.cfg.Table, id)
	if err != nil {
		return nil, err
	}
	if rec.IsDeleted && !includeDeleted {
		return nil, common.NewNotFoundError(r.cfg.Table, id)
	}

	var entity T
	if err := json.Unmarshal(rec.Data, &entity); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", r.cfg.Table, id, err)
	}
	return &entity, nil
}

// ListOptions shapes a table query. Where filters, Less orders, Offset and
// Limit page. Setting CacheTTL serves the result from a short-lived cache
// keyed by CacheKey; callers needing current data right after a write must
// not request a cached read.
type ListOptions[T any] struct {
	Where          func(*T) bool
	Less           func(a, b *T) bool
	CacheKey       string
	CacheTTL       time.Duration
	Offset         int
	Limit          int
	IncludeDeleted bool
}

// List returns the entities of the table matching the options, over a full
// soft-delete-aware scan.
func (r *Repository[T, P]) List(ctx context.Context, opts ListOptions[T]) ([]T, error) {
	cacheKey := ""
	if opts.CacheTTL > 0 {
		cacheKey = r.listCacheKey(opts)
		if cached, ok := r.cache.Get(cacheKey); ok {
			slog.Debug("list served from cache", "table", r.cfg.Table, "key", cacheKey)
			return cached, nil
		}
	}

	entities, err := r.scan(ctx, r.store.DB(), opts.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	if opts.Where != nil {
		filtered := entities[:0]
		for i := range entities {
			if opts.Where(&entities[i]) {
				filtered = append(filtered, entities[i])
			}
		}
		entities = filtered
	}

	if opts.Less != nil {
		sort.SliceStable(entities, func(i, j int) bool {
			return opts.Less(&entities[i], &entities[j])
		})
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(entities) {
			entities = nil
		} else {
			entities = entities[opts.Offset:]
		}
	}
	if opts.Limit > 0 && opts.Limit < len(entities) {
		entities = entities[:opts.Limit]
	}

	if cacheKey != "" {
		r.cache.SetTTL(cacheKey, entities, opts.CacheTTL)
	}
	return entities, nil
}

func (r *Repository[T, P]) scan(ctx context.Context, q store.Queryable, includeDeleted bool) ([]T, error) {
	records, err := r.store.ScanTable(ctx, q, r.cfg.Table, includeDeleted)
	if err != nil {
		return nil, err
	}

	entities := make([]T, 0, len(records))
	for _, rec := range records {
		var entity T
		if err := json.Unmarshal(rec.Data, &entity); err != nil {
			return nil, fmt.Errorf("failed to decode %s %s: %w", r.cfg.Table, rec.ID, err)
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func (r *Repository[T, P]) listCacheKey(opts ListOptions[T]) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d|%d|%t", r.cfg.Table, opts.CacheKey, opts.Offset, opts.Limit, opts.IncludeDeleted)
	return fmt.Sprintf("%x", h.Sum64())
}

// Create validates the entity, assigns id and audit fields, persists it
// atomically, and appends an audit-log entry.
func (r *Repository[T, P]) Create(ctx context.Context, entity *T, actor string) error {
	if err := r.validate(entity); err != nil {
		return err
	}

	meta := P(entity).Meta()
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	now := time.Now()
	meta.CreatedAt = now
	meta.CreatedBy = actor
	meta.UpdatedAt = now
	meta.UpdatedBy = actor
	meta.Version = 1
	meta.IsDeleted = false
	meta.DeletedAt = nil
	meta.DeletedBy = ""

	err := r.store.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return r.createTx(ctx, tx, entity, actor)
	})
	if err != nil {
		return err
	}

	r.invalidate()
	r.publish(EventCreated, meta.ID)
	r.journalOp(ctx, syncq.OpCreate, entity)
	return nil
}

func (r *Repository[T, P]) createTx(ctx context.Context, tx *sql.Tx, entity *T, actor string) error {
	if r.cfg.BeforeCreate != nil {
		if err := r.cfg.BeforeCreate(ctx, tx, entity); err != nil {
			return err
		}
	}

	meta := P(entity).Meta()
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", r.cfg.Table, err)
	}

	rec := store.Record{ID: meta.ID, Data: data, Version: meta.Version}
	if err := r.store.PutRecord(ctx, tx, r.cfg.Table, rec, meta.CreatedAt, meta.UpdatedAt); err != nil {
		return err
	}

	return r.store.AppendAudit(ctx, tx, store.AuditEntry{
		Table:    r.cfg.Table,
		EntityID: meta.ID,
		Action:   store.AuditCreate,
		Actor:    actor,
		After:    string(data),
	})
}

// Update loads the current row inside a transaction, applies the patch, and
// persists with version+1. When expectedVersion is supplied the update only
// applies if it matches the stored version at the instant of the write;
// otherwise a ConflictError is returned and the row is unchanged.
func (r *Repository[T, P]) Update(ctx context.Context, id string, patch func(*T) error, actor string, expectedVersion *int64) (*T, error) {
	var updated *T

	err := r.store.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		updated, err = r.updateTx(ctx, tx, id, patch, actor, expectedVersion)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.invalidate()
	r.publish(EventUpdated, id)
	r.journalOp(ctx, syncq.OpUpdate, updated)
	return updated, nil
}

// updateTx applies an update inside the caller's transaction. Domain
// repositories use it to compose multi-row atomic operations.
func (r *Repository[T, P]) updateTx(ctx context.Context, tx *sql.Tx, id string, patch func(*T) error, actor string, expectedVersion *int64) (*T, error) {
	rec, err := r.store.GetRecord(ctx, tx, r.cfg.Table, id)
	if err != nil {
		return nil, err
	}
	if rec.IsDeleted {
		// A deleted row must not be silently resurrected by an update.
		return nil, common.NewNotFoundError(r.cfg.Table, id)
	}
	if expectedVersion != nil && *expectedVersion != rec.Version {
		return nil, common.NewVersionConflict(r.cfg.Table, id, *expectedVersion, rec.Version)
	}

	var entity T
	if err := json.Unmarshal(rec.Data, &entity); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", r.cfg.Table, id, err)
	}
	before := rec.Data

	if err := patch(&entity); err != nil {
		return nil, err
	}

	// The patch must not tamper with the envelope.
	meta := P(&entity).Meta()
	meta.ID = id
	meta.Version = rec.Version + 1
	meta.UpdatedAt = time.Now()
	meta.UpdatedBy = actor
	meta.IsDeleted = false
	meta.DeletedAt = nil
	meta.DeletedBy = ""

	if err := r.validate(&entity); err != nil {
		return nil, err
	}
	if r.cfg.BeforeUpdate != nil {
		if err := r.cfg.BeforeUpdate(ctx, tx, &entity); err != nil {
			return nil, err
		}
	}

	after, err := json.Marshal(&entity)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", r.cfg.Table, err)
	}

	put := store.Record{ID: id, Data: after, Version: meta.Version}
	if err := r.store.PutRecord(ctx, tx, r.cfg.Table, put, meta.CreatedAt, meta.UpdatedAt); err != nil {
		return nil, err
	}

	if err := r.store.AppendAudit(ctx, tx, store.AuditEntry{
		Table:    r.cfg.Table,
		EntityID: id,
		Action:   store.AuditUpdate,
		Actor:    actor,
		Before:   string(before),
		After:    string(after),
		Diff:     diffJSON(before, after),
	}); err != nil {
		return nil, err
	}

	return &entity, nil
}

// Delete soft-deletes the row (setting the delete markers and bumping the
// version) unless the table has no soft delete or force is set, in which
// case the row is hard-deleted.
func (r *Repository[T, P]) Delete(ctx context.Context, id, actor string, force bool) error {
	err := r.store.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return r.deleteTx(ctx, tx, id, actor, force)
	})
	if err != nil {
		return err
	}

	r.invalidate()
	r.publish(EventDeleted, id)
	r.journalOp(ctx, syncq.OpDelete, map[string]string{"id": id})
	return nil
}

func (r *Repository[T, P]) deleteTx(ctx context.Context, tx *sql.Tx, id, actor string, force bool) error {
	rec, err := r.store.GetRecord(ctx, tx, r.cfg.Table, id)
	if err != nil {
		return err
	}
	if rec.IsDeleted && !force {
		return common.NewNotFoundError(r.cfg.Table, id)
	}

	var entity T
	if err := json.Unmarshal(rec.Data, &entity); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", r.cfg.Table, id, err)
	}
	if r.cfg.BeforeDelete != nil {
		if err := r.cfg.BeforeDelete(ctx, tx, &entity); err != nil {
			return err
		}
	}

	if !r.cfg.SoftDelete || force {
		if err := r.store.DeleteRecord(ctx, tx, r.cfg.Table, id); err != nil {
			return err
		}
		return r.store.AppendAudit(ctx, tx, store.AuditEntry{
			Table:    r.cfg.Table,
			EntityID: id,
			Action:   store.AuditDelete,
			Actor:    actor,
			Before:   string(rec.Data),
		})
	}

	meta := P(&entity).Meta()
	now := time.Now()
	meta.Version = rec.Version + 1
	meta.UpdatedAt = now
	meta.UpdatedBy = actor
	meta.IsDeleted = true
	meta.DeletedAt = &now
	meta.DeletedBy = actor

	after, err := json.Marshal(&entity)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", r.cfg.Table, err)
	}

	put := store.Record{ID: id, Data: after, Version: meta.Version, IsDeleted: true}
	if err := r.store.PutRecord(ctx, tx, r.cfg.Table, put, meta.CreatedAt, now); err != nil {
		return err
	}

	return r.store.AppendAudit(ctx, tx, store.AuditEntry{
		Table:    r.cfg.Table,
		EntityID: id,
		Action:   store.AuditDelete,
		Actor:    actor,
		Before:   string(rec.Data),
		After:    string(after),
	})
}

// Restore clears the delete markers of a soft-deleted row and bumps the
// version. Restoring a row that is not currently deleted is an error, not a
// no-op.
func (r *Repository[T, P]) Restore(ctx context.Context, id, actor string) (*T, error) {
	if !r.cfg.SoftDelete {
		return nil, common.NewValidationError("table", fmt.Sprintf("%s does not support restore", r.cfg.Table))
	}

	var restored *T
	err := r.store.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rec, err := r.store.GetRecord(ctx, tx, r.cfg.Table, id)
		if err != nil {
			return err
		}
		if !rec.IsDeleted {
			return common.NewConflictError(r.cfg.Table, id, "row is not deleted")
		}

		var entity T
		if err := json.Unmarshal(rec.Data, &entity); err != nil {
			return fmt.Errorf("failed to decode %s %s: %w", r.cfg.Table, id, err)
		}

		meta := P(&entity).Meta()
		meta.Version = rec.Version + 1
		meta.UpdatedAt = time.Now()
		meta.UpdatedBy = actor
		meta.IsDeleted = false
		meta.DeletedAt = nil
		meta.DeletedBy = ""

		after, err := json.Marshal(&entity)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", r.cfg.Table, err)
		}

		put := store.Record{ID: id, Data: after, Version: meta.Version}
		if err := r.store.PutRecord(ctx, tx, r.cfg.Table, put, meta.CreatedAt, meta.UpdatedAt); err != nil {
			return err
		}

		if err := r.store.AppendAudit(ctx, tx, store.AuditEntry{
			Table:    r.cfg.Table,
			EntityID: id,
			Action:   store.AuditRestore,
			Actor:    actor,
			Before:   string(rec.Data),
			After:    string(after),
		}); err != nil {
			return err
		}

		restored = &entity
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.invalidate()
	r.publish(EventRestored, id)
	r.journalOp(ctx, syncq.OpUpdate, restored)
	return restored, nil
}

// BatchCreate persists items in fixed-size chunks, each chunk atomic, and
// reports monotonically increasing cumulative progress. Cancellation
// mid-batch is not supported; a failing chunk leaves earlier chunks applied.
func (r *Repository[T, P]) BatchCreate(ctx context.Context, items []T, actor string, onProgress func(done, total int)) error {
	total := len(items)
	done := 0

	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}
		chunk := items[start:end]

		err := r.store.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
			for i := range chunk {
				entity := &chunk[i]
				if err := r.validate(entity); err != nil {
					return err
				}
				meta := P(entity).Meta()
				if meta.ID == "" {
					meta.ID = uuid.NewString()
				}
				now := time.Now()
				meta.CreatedAt = now
				meta.CreatedBy = actor
				meta.UpdatedAt = now
				meta.UpdatedBy = actor
				meta.Version = 1
				meta.IsDeleted = false

				if err := r.createTx(ctx, tx, entity, actor); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("batch chunk starting at %d: %w", start, err)
		}

		done += len(chunk)
		if onProgress != nil {
			onProgress(done, total)
		}
	}

	r.invalidate()
	return nil
}

// Count returns the number of visible rows.
func (r *Repository[T, P]) Count(ctx context.Context) (int, error) {
	return r.store.CountRecords(ctx, r.store.DB(), r.cfg.Table, false)
}

// AuditTrail returns the audit history of one entity, oldest first.
func (r *Repository[T, P]) AuditTrail(ctx context.Context, id string) ([]store.AuditEntry, error) {
	return r.store.AuditTrail(ctx, r.cfg.Table, id)
}

func (r *Repository[T, P]) invalidate() {
	r.cache.Purge()
}

func (r *Repository[T, P]) publish(typ EventType, id string) {
	if r.broker != nil {
		r.broker.Publish(Event{Table: r.cfg.Table, Type: typ, ID: id, At: time.Now()})
	}
}

// diffJSON computes the changed top-level fields between two JSON documents.
func diffJSON(before, after []byte) string {
	var a, b map[string]any
	if err := json.Unmarshal(before, &a); err != nil {
		return ""
	}
	if err := json.Unmarshal(after, &b); err != nil {
		return ""
	}

	diff := make(map[string][2]any)
	for key, bv := range b {
		av, ok := a[key]
		if !ok || !reflect.DeepEqual(av, bv) {
			diff[key] = [2]any{av, bv}
		}
	}
	for key, av := range a {
		if _, ok := b[key]; !ok {
			diff[key] = [2]any{av, nil}
		}
	}
	if len(diff) == 0 {
		return ""
	}

	out, err := json.Marshal(diff)
	if err != nil {
		return ""
	}
	return string(out)
}
