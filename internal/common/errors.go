// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below unwrap to these so callers can use
// errors.Is without caring about the concrete type.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrTimeout      = errors.New("operation timed out")
	ErrImportFormat = errors.New("invalid import format")
)

// ValidationError reports a field-level validation failure detected before
// persistence. Validation errors are deterministic and never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a field-level validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ValidationErrors aggregates every failed rule of one entity.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationErrors) Unwrap() error { return ErrValidation }

// NotFoundError reports an operation on a nonexistent id, or on a row that
// is invisible because it is soft-deleted.
type NotFoundError struct {
	Table string
	ID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Table, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError creates a not-found error for a table row.
func NewNotFoundError(table, id string) error {
	return &NotFoundError{Table: table, ID: id}
}

// ConflictError reports an optimistic-lock version mismatch or a violated
// referential constraint. Conflict errors are never retried.
type ConflictError struct {
	Table    string
	ID       string
	Reason   string
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("conflict on %s %q: %s", e.Table, e.ID, e.Reason)
	}
	return fmt.Sprintf("conflict on %s %q: expected version %d, stored version %d",
		e.Table, e.ID, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NewVersionConflict creates a conflict error for an optimistic-lock miss.
func NewVersionConflict(table, id string, expected, actual int64) error {
	return &ConflictError{Table: table, ID: id, Expected: expected, Actual: actual}
}

// NewConflictError creates a conflict error for a referential constraint.
func NewConflictError(table, id, reason string) error {
	return &ConflictError{Table: table, ID: id, Reason: reason}
}

// TimeoutError reports that an atomic operation exceeded its configured
// timeout and was aborted.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out", e.Op)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// ImportFormatError reports a malformed or incompatible backup envelope.
type ImportFormatError struct {
	Reason string
}

func (e *ImportFormatError) Error() string {
	return fmt.Sprintf("invalid import format: %s", e.Reason)
}

func (e *ImportFormatError) Unwrap() error { return ErrImportFormat }

// IsRetryable determines whether an error should trigger a retry.
// Validation and conflict errors are deterministic and never retried;
// transient storage contention is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrImportFormat) {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	// SQLite surfaces contention as busy/locked text.
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "busy")
}
