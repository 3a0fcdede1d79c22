package store

import (
	"context"
	"fmt"
	"time"
)

// Audit actions.
const (
	AuditCreate  = "create"
	AuditUpdate  = "update"
	AuditDelete  = "delete"
	AuditRestore = "restore"
	AuditMerge   = "merge"
)

// AuditEntry is one appended audit-log row. Before/After/Diff hold JSON
// documents; Before is empty on create, After on hard delete.
type AuditEntry struct {
	CreatedAt time.Time
	Table     string
	EntityID  string
	Action    string
	Actor     string
	Before    string
	After     string
	Diff      string
}

// AppendAudit writes an audit-log entry inside the caller's transaction so
// the entry commits or rolls back with the mutation it records.
func (s *Store) AppendAudit(ctx context.Context, q Queryable, entry AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO audit_log (table_name, entity_id, action, actor, before_json, after_json, diff_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Table, entry.EntityID, entry.Action, entry.Actor,
		entry.Before, entry.After, entry.Diff, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// AuditTrail returns the audit entries for one entity, oldest first.
func (s *Store) AuditTrail(ctx context.Context, table, entityID string) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, entity_id, action, COALESCE(actor, ''),
		       COALESCE(before_json, ''), COALESCE(after_json, ''), COALESCE(diff_json, ''), created_at
		FROM audit_log
		WHERE table_name = ? AND entity_id = ?
		ORDER BY id`, table, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.Table, &e.EntityID, &e.Action, &e.Actor,
			&e.Before, &e.After, &e.Diff, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
