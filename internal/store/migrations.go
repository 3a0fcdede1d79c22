package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error. Export envelopes newer than this version are rejected on import.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func recordTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`, table)
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema: record tables, audit log, app metadata, settings",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				recordTableDDL(TableAccounts),
				recordTableDDL(TableTransactions),
				recordTableDDL(TableCategories),
				recordTableDDL(TableBudgets),
				recordTableDDL(TableRules),
				recordTableDDL(TableSubscriptions),

				`CREATE INDEX IF NOT EXISTS idx_accounts_deleted ON accounts(is_deleted)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_deleted ON transactions(is_deleted)`,

				`CREATE TABLE IF NOT EXISTS audit_log (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					table_name TEXT NOT NULL,
					entity_id TEXT NOT NULL,
					action TEXT NOT NULL,
					actor TEXT,
					before_json TEXT,
					after_json TEXT,
					diff_json TEXT,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(table_name, entity_id)`,

				`CREATE TABLE IF NOT EXISTS app_metadata (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					kind TEXT NOT NULL,
					schema_version INTEGER,
					note TEXT,
					created_at DATETIME NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS settings (
					key TEXT PRIMARY KEY,
					value TEXT NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Secondary indexes over generated document columns",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				// Transactions: the hot table; expose the fields used by
				// search, duplicate detection, and the budget ledger.
				`ALTER TABLE transactions ADD COLUMN account_id TEXT
					GENERATED ALWAYS AS (json_extract(data, '$.accountId')) VIRTUAL`,
				`ALTER TABLE transactions ADD COLUMN category_id TEXT
					GENERATED ALWAYS AS (json_extract(data, '$.categoryId')) VIRTUAL`,
				`ALTER TABLE transactions ADD COLUMN txn_date TEXT
					GENERATED ALWAYS AS (json_extract(data, '$.date')) VIRTUAL`,
				`ALTER TABLE transactions ADD COLUMN amount REAL
					GENERATED ALWAYS AS (json_extract(data, '$.amount')) VIRTUAL`,
				`CREATE INDEX idx_transactions_account ON transactions(account_id)`,
				`CREATE INDEX idx_transactions_category ON transactions(category_id)`,
				`CREATE INDEX idx_transactions_date ON transactions(txn_date)`,
				`CREATE INDEX idx_transactions_amount ON transactions(amount)`,

				`ALTER TABLE budgets ADD COLUMN category_id TEXT
					GENERATED ALWAYS AS (json_extract(data, '$.categoryId')) VIRTUAL`,
				`ALTER TABLE budgets ADD COLUMN month TEXT
					GENERATED ALWAYS AS (json_extract(data, '$.month')) VIRTUAL`,
				// One live budget per (category, month).
				`CREATE UNIQUE INDEX idx_budgets_category_month
					ON budgets(category_id, month) WHERE is_deleted = 0`,

				`ALTER TABLE rules ADD COLUMN priority INTEGER
					GENERATED ALWAYS AS (json_extract(data, '$.priority')) VIRTUAL`,
				`CREATE INDEX idx_rules_priority ON rules(priority)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Add offline sync queue",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS sync_queue (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					operation TEXT NOT NULL,
					table_name TEXT NOT NULL,
					payload TEXT NOT NULL,
					queued_at DATETIME NOT NULL,
					attempts INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'pending',
					last_error TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations. Each applied migration
// appends a record to app_metadata so the migration history survives resets.
func (s *Store) Migrate(ctx context.Context) error {
	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if _, execErr := tx.Exec(
			`INSERT INTO app_metadata (kind, schema_version, note, created_at) VALUES ('migration', ?, ?, ?)`,
			migration.Version, migration.Description, time.Now(),
		); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion returns the current PRAGMA user_version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Reset clears all data tables, the audit log, and the sync queue, while
// preserving app_metadata. A reset record is appended to the history.
func (s *Store) Reset(ctx context.Context) error {
	return s.Atomic(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, table := range RecordTables() {
			if err := s.ClearTable(ctx, tx, table); err != nil {
				return err
			}
		}
		for _, table := range []string{"audit_log", "sync_queue", "settings"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO app_metadata (kind, schema_version, note, created_at) VALUES ('reset', ?, 'data reset', ?)`,
			ExpectedSchemaVersion, time.Now(),
		); err != nil {
			return fmt.Errorf("failed to record reset: %w", err)
		}
		return nil
	})
}

// MetadataRecord is one entry of the app metadata history.
type MetadataRecord struct {
	CreatedAt     time.Time
	Kind          string
	Note          string
	SchemaVersion int
}

// MetadataHistory returns the app metadata history, oldest first.
func (s *Store) MetadataHistory(ctx context.Context) ([]MetadataRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COALESCE(schema_version, 0), COALESCE(note, ''), created_at FROM app_metadata ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query app metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []MetadataRecord
	for rows.Next() {
		var rec MetadataRecord
		if err := rows.Scan(&rec.Kind, &rec.SchemaVersion, &rec.Note, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan app metadata: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// AppendMetadata appends a record (e.g. an import marker) to the history.
func (s *Store) AppendMetadata(ctx context.Context, q Queryable, kind, note string) error {
	if _, err := q.ExecContext(ctx,
		`INSERT INTO app_metadata (kind, schema_version, note, created_at) VALUES (?, ?, ?, ?)`,
		kind, ExpectedSchemaVersion, note, time.Now(),
	); err != nil {
		return fmt.Errorf("failed to append app metadata: %w", err)
	}
	return nil
}
