// Package syncq implements the offline operation queue: local mutations are
// recorded while disconnected and drained in order once a sync target is
// reachable again.
package syncq

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/store"
)

// Operation names the kind of queued mutation.
type Operation string

// Queued operation kinds.
const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Item status values.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Item is one queued mutation awaiting sync, FIFO by id.
type Item struct {
	QueuedAt  time.Time
	Operation Operation
	Table     string
	Payload   json.RawMessage
	Status    string
	LastError string
	ID        int64
	Attempts  int
}

// maxAttempts is how often an item is retried before it is marked failed
// and skipped by further drains.
const maxAttempts = 5

// Queue persists pending mutations in the sync_queue table.
type Queue struct {
	store *store.Store
}

// New creates a queue over the store.
func New(st *store.Store) *Queue {
	return &Queue{store: st}
}

// Enqueue appends a mutation to the queue. The payload must be the full
// entity document so the operation can be replayed without further reads.
func (q *Queue) Enqueue(ctx context.Context, op Operation, table string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode sync payload: %w", err)
	}

	return q.store.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sync_queue (operation, table_name, payload, queued_at) VALUES (?, ?, ?, ?)`,
			string(op), table, string(data), time.Now(),
		)
		if err != nil {
			return fmt.Errorf("failed to enqueue %s on %s: %w", op, table, err)
		}
		return nil
	})
}

// Pending returns the queued items still awaiting sync, oldest first.
func (q *Queue) Pending(ctx context.Context) ([]Item, error) {
	return q.byStatus(ctx, StatusPending)
}

// Failed returns the items that exhausted their retries.
func (q *Queue) Failed(ctx context.Context) ([]Item, error) {
	return q.byStatus(ctx, StatusFailed)
}

func (q *Queue) byStatus(ctx context.Context, status string) ([]Item, error) {
	rows, err := q.store.DB().QueryContext(ctx,
		`SELECT id, operation, table_name, payload, queued_at, attempts, status, COALESCE(last_error, '')
		 FROM sync_queue WHERE status = ? ORDER BY id`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync queue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []Item
	for rows.Next() {
		var item Item
		var payload string
		if err := rows.Scan(&item.ID, &item.Operation, &item.Table, &payload,
			&item.QueuedAt, &item.Attempts, &item.Status, &item.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan sync queue item: %w", err)
		}
		item.Payload = json.RawMessage(payload)
		items = append(items, item)
	}
	return items, rows.Err()
}

// Len returns the number of pending items.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	row := q.store.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_queue WHERE status = ?`, StatusPending)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sync queue: %w", err)
	}
	return n, nil
}

// Applier pushes one queued item to the sync target.
type Applier func(ctx context.Context, item Item) error

// DrainResult counts what a drain pass did.
type DrainResult struct {
	Applied int
	Failed  int
}

// Drain replays pending items in queue order through the applier. Each item
// is retried with backoff; an item that keeps failing is marked failed and
// the drain continues with the next one, so one poisoned item cannot block
// the queue. Non-retryable errors fail the item immediately.
func (q *Queue) Drain(ctx context.Context, apply Applier) (*DrainResult, error) {
	items, err := q.Pending(ctx)
	if err != nil {
		return nil, err
	}

	result := &DrainResult{}
	for _, item := range items {
		err := common.WithRetry(ctx, func() error {
			return apply(ctx, item)
		}, common.RetryOptions{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond})

		if err != nil {
			result.Failed++
			if markErr := q.markAttempt(ctx, item, err); markErr != nil {
				return result, markErr
			}
			continue
		}

		result.Applied++
		if err := q.markDone(ctx, item.ID); err != nil {
			return result, err
		}
	}

	slog.Info("sync queue drained", "applied", result.Applied, "failed", result.Failed)
	return result, nil
}

func (q *Queue) markDone(ctx context.Context, id int64) error {
	return q.store.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE sync_queue SET status = ? WHERE id = ?`, StatusDone, id)
		return err
	})
}

func (q *Queue) markAttempt(ctx context.Context, item Item, cause error) error {
	status := StatusPending
	if item.Attempts+1 >= maxAttempts || !common.IsRetryable(cause) {
		status = StatusFailed
		slog.Warn("sync item failed permanently",
			"id", item.ID, "operation", item.Operation, "table", item.Table, "error", cause)
	}
	return q.store.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE sync_queue SET attempts = attempts + 1, status = ?, last_error = ? WHERE id = ?`,
			status, cause.Error(), item.ID)
		return err
	})
}

// Retry moves a failed item back to pending with its attempt counter reset.
func (q *Queue) Retry(ctx context.Context, id int64) error {
	return q.store.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE sync_queue SET status = ?, attempts = 0, last_error = NULL WHERE id = ? AND status = ?`,
			StatusPending, id, StatusFailed)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return common.NewNotFoundError("sync_queue", fmt.Sprintf("%d", id))
		}
		return nil
	})
}

// Compact removes completed items, keeping the queue table small.
func (q *Queue) Compact(ctx context.Context) (int, error) {
	var removed int
	err := q.store.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM sync_queue WHERE status = ?`, StatusDone)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = int(n)
		return nil
	})
	return removed, err
}
