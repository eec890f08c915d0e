// Package errors defines error types and utilities for scrapemeta
package errors

import (
	"errors"
	"fmt"
)

// Common errors that can occur during a metadata run
var (
	// ErrSchemaUnavailable is returned when a target table cannot be described
	ErrSchemaUnavailable = errors.New("table schema unavailable")

	// ErrTransientIO is returned for store failures that are safe to retry
	ErrTransientIO = errors.New("transient store failure")

	// ErrPermanentIO is returned for store failures that must not be retried
	ErrPermanentIO = errors.New("permanent store failure")

	// ErrUnprocessedExceedsRetries is returned when a batch still has
	// unprocessed keys after the retry budget is exhausted
	ErrUnprocessedExceedsRetries = errors.New("unprocessed items exceeded retry budget")

	// ErrNonInteractiveRefusal is returned when a live run is attempted
	// without an interactive operator stream
	ErrNonInteractiveRefusal = errors.New("refusing live run without interactive terminal")

	// ErrOperatorAbort is returned when the operator declines the
	// confirmation prompt
	ErrOperatorAbort = errors.New("aborted by user")

	// ErrCacheTableTargeted is returned when the inventory lists the
	// preserved cache index among the wipe targets
	ErrCacheTableTargeted = errors.New("cache index table listed as wipe target")

	// ErrInvalidInventory is returned when the table inventory is malformed
	ErrInvalidInventory = errors.New("invalid table inventory")

	// ErrBatchTooLarge is returned when more than the store's batch limit
	// of keys is submitted in one delete request
	ErrBatchTooLarge = errors.New("batch exceeds store limit")
)

// WipeError carries the operation and table context for a failed store call
type WipeError struct {
	Op       string // Operation that failed
	Table    string // Table the operation addressed
	Residual int    // Keys left unprocessed, where meaningful
	Err      error  // Underlying error
}

// Error implements the error interface
func (e *WipeError) Error() string {
	if e.Residual > 0 {
		return fmt.Sprintf("scrapemeta: %s on %s failed with %d residual keys: %v", e.Op, e.Table, e.Residual, e.Err)
	}
	return fmt.Sprintf("scrapemeta: %s on %s failed: %v", e.Op, e.Table, e.Err)
}

// Unwrap returns the underlying error
func (e *WipeError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target error
func (e *WipeError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new WipeError
func NewError(op, table string, err error) *WipeError {
	return &WipeError{
		Op:    op,
		Table: table,
		Err:   err,
	}
}

// NewResidualError creates a WipeError recording keys left behind
func NewResidualError(op, table string, residual int, err error) *WipeError {
	return &WipeError{
		Op:       op,
		Table:    table,
		Residual: residual,
		Err:      err,
	}
}

// IsTransient checks if an error is safe to retry
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientIO)
}

// IsSchemaUnavailable checks if an error indicates a missing table
func IsSchemaUnavailable(err error) bool {
	return errors.Is(err, ErrSchemaUnavailable)
}

// IsOperatorAbort checks if an error indicates the operator declined
func IsOperatorAbort(err error) bool {
	return errors.Is(err, ErrOperatorAbort)
}
