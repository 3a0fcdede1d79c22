// Package store provides the embedded SQLite entity store backing the
// kite data layer. Entities are persisted as JSON documents in per-table
// record tables; commonly filtered fields are exposed through generated
// columns so range queries stay indexed.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/common"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Record tables managed by the store. Every table listed here carries the
// generic (id, data, version, is_deleted) record layout.
const (
	TableAccounts      = "accounts"
	TableTransactions  = "transactions"
	TableCategories    = "categories"
	TableBudgets       = "budgets"
	TableRules         = "rules"
	TableSubscriptions = "subscriptions"
)

var recordTables = map[string]bool{
	TableAccounts:      true,
	TableTransactions:  true,
	TableCategories:    true,
	TableBudgets:       true,
	TableRules:         true,
	TableSubscriptions: true,
}

// RecordTables returns the names of all generic record tables.
func RecordTables() []string {
	return []string{
		TableAccounts,
		TableTransactions,
		TableCategories,
		TableBudgets,
		TableRules,
		TableSubscriptions,
	}
}

// Options configures a Store.
type Options struct {
	// Timeout bounds every atomic operation. Zero means DefaultTimeout.
	Timeout time.Duration
	// Retry configures contention retries for atomic operations.
	Retry common.RetryOptions
}

// DefaultTimeout bounds atomic operations unless overridden.
const DefaultTimeout = 10 * time.Second

// Store is an embedded, versioned, multi-table persistent store keyed by
// opaque string identifiers. It is constructed explicitly and injected into
// repositories; there is no package-level instance.
type Store struct {
	db      *sql.DB
	dbPath  string
	timeout time.Duration
	retry   common.RetryOptions
}

// New opens (creating if needed) the SQLite database at dbPath.
func New(dbPath string, opts Options) (*Store, error) {
	if dbPath == "" {
		return nil, common.NewValidationError("dbPath", "must not be empty")
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Store{
		db:      db,
		dbPath:  dbPath,
		timeout: timeout,
		retry:   opts.Retry,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// DB exposes the underlying handle for read-only queries outside an atomic
// block. Writes should go through Atomic.
func (s *Store) DB() Queryable { return s.db }

// Queryable is satisfied by both *sql.DB and *sql.Tx.
type Queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Atomic runs fn inside a single database transaction bounded by the
// configured timeout. Contention and timeouts are retried with exponential
// backoff; validation and conflict errors surface immediately. When the
// final failure is a timeout the caller receives a TimeoutError.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if ctx == nil {
		return common.NewValidationError("ctx", "must not be nil")
	}

	var timedOut bool
	op := func() error {
		actx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		tx, err := s.db.BeginTx(actx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := fn(actx, tx); err != nil {
			_ = tx.Rollback()
			if errors.Is(err, context.DeadlineExceeded) {
				timedOut = true
				return &common.TimeoutError{Op: "atomic operation"}
			}
			timedOut = false
			return err
		}

		if err := tx.Commit(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				timedOut = true
				return &common.TimeoutError{Op: "atomic operation"}
			}
			timedOut = false
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	}

	err := common.WithRetry(ctx, op, s.retry)
	if err != nil && timedOut {
		return &common.TimeoutError{Op: "atomic operation"}
	}
	return err
}

// validTable guards dynamically built queries against unknown table names.
func validTable(table string) error {
	if !recordTables[table] {
		return common.NewValidationError("table", fmt.Sprintf("unknown table %q", table))
	}
	return nil
}
