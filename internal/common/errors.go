// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Recurrence engine errors.
	ErrValidation    = errors.New("validation failed")
	ErrPartialSeries = errors.New("partial series failure")
	ErrStore         = errors.New("store failure")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError reports a malformed recurrence rule or record. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

// PartialSeriesFailure is returned when the children of a series could not be
// inserted after the parent template was. RollbackErr is nil when the orphaned
// parent was removed; otherwise the parent may still exist and needs manual cleanup.
type PartialSeriesFailure struct {
	Cause       error
	RollbackErr error
	ParentID    string
}

func (e *PartialSeriesFailure) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("%v: children of %s not created: %v (rollback failed: %v)",
			ErrPartialSeries, e.ParentID, e.Cause, e.RollbackErr)
	}
	return fmt.Sprintf("%v: children of %s not created: %v (parent rolled back)",
		ErrPartialSeries, e.ParentID, e.Cause)
}

// Unwrap exposes the sentinel, the child failure and the rollback failure (if any).
func (e *PartialSeriesFailure) Unwrap() []error {
	errs := []error{ErrPartialSeries}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	if e.RollbackErr != nil {
		errs = append(errs, e.RollbackErr)
	}
	return errs
}

// RolledBack reports whether the compensating delete of the parent succeeded.
func (e *PartialSeriesFailure) RolledBack() bool {
	return e.RollbackErr == nil
}

// StoreFailure wraps any other persistence-layer error, unchanged.
type StoreFailure struct {
	Err error
	Op  string
}

func (e *StoreFailure) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrStore, e.Op, e.Err)
}

func (e *StoreFailure) Unwrap() []error {
	return []error{ErrStore, e.Err}
}

// WrapStore wraps err as a StoreFailure for op. Validation errors and errors that
// are already engine errors pass through untouched.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrStore) || errors.Is(err, ErrPartialSeries) {
		return err
	}
	return &StoreFailure{Op: op, Err: err}
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrValidation) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, ErrBusy) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
