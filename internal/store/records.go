package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/common"
)

// Record is one row of a generic record table. Data holds the entity JSON
// document; Version mirrors the envelope version for optimistic locking.
type Record struct {
	ID        string
	Data      []byte
	Version   int64
	IsDeleted bool
}

// PutRecord inserts or replaces a record. The version and is_deleted columns
// are kept in sync with the envelope so optimistic-lock checks and
// soft-delete filters never need to unmarshal the document.
func (s *Store) PutRecord(ctx context.Context, q Queryable, table string, rec Record, createdAt, updatedAt time.Time) error {
	if err := validTable(table); err != nil {
		return err
	}
	if rec.ID == "" {
		return common.NewValidationError("id", "must not be empty")
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, data, version, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			version = excluded.version,
			is_deleted = excluded.is_deleted,
			updated_at = excluded.updated_at`, table)

	deleted := 0
	if rec.IsDeleted {
		deleted = 1
	}

	if _, err := q.ExecContext(ctx, query,
		rec.ID, string(rec.Data), rec.Version, deleted, createdAt, updatedAt); err != nil {
		return fmt.Errorf("failed to put %s record %s: %w", table, rec.ID, err)
	}
	return nil
}

// GetRecord loads a record by id, including soft-deleted rows; callers
// decide visibility. Returns a NotFoundError when the id does not exist.
func (s *Store) GetRecord(ctx context.Context, q Queryable, table, id string) (*Record, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}

	var rec Record
	var data string
	var deleted int
	query := fmt.Sprintf(`SELECT id, data, version, is_deleted FROM %s WHERE id = ?`, table)
	err := q.QueryRowContext(ctx, query, id).Scan(&rec.ID, &data, &rec.Version, &deleted)
	if err == sql.ErrNoRows {
		return nil, common.NewNotFoundError(table, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s record %s: %w", table, id, err)
	}

	rec.Data = []byte(data)
	rec.IsDeleted = deleted != 0
	return &rec, nil
}

// ScanTable returns every record of a table, ordered by id for stable
// iteration. Soft-deleted rows are skipped unless includeDeleted is set.
func (s *Store) ScanTable(ctx context.Context, q Queryable, table string, includeDeleted bool) ([]Record, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT id, data, version, is_deleted FROM %s`, table)
	if !includeDeleted {
		query += ` WHERE is_deleted = 0`
	}
	query += ` ORDER BY id`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var rec Record
		var data string
		var deleted int
		if err := rows.Scan(&rec.ID, &data, &rec.Version, &deleted); err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", table, err)
		}
		rec.Data = []byte(data)
		rec.IsDeleted = deleted != 0
		records = append(records, rec)
	}

	return records, rows.Err()
}

// DeleteRecord physically removes a record.
func (s *Store) DeleteRecord(ctx context.Context, q Queryable, table, id string) error {
	if err := validTable(table); err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table)
	res, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s record %s: %w", table, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return common.NewNotFoundError(table, id)
	}
	return nil
}

// CountRecords returns the number of rows in a table.
func (s *Store) CountRecords(ctx context.Context, q Queryable, table string, includeDeleted bool) (int, error) {
	if err := validTable(table); err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)
	if !includeDeleted {
		query += ` WHERE is_deleted = 0`
	}

	var count int
	if err := q.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

// ClearTable removes every row of a record table. Used by data reset and
// wholesale import replacement.
func (s *Store) ClearTable(ctx context.Context, q Queryable, table string) error {
	if err := validTable(table); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	return nil
}
