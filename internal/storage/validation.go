// Package storage provides the SQLite persistence layer for recurring transactions.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-recur/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidPatch       = errors.New("invalid patch")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateBatch validates a slice of transactions.
func validateBatch(txns []model.Transaction) error {
	if len(txns) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}
	for i := range txns {
		if err := validateTransaction(&txns[i]); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if err := txn.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	return nil
}

// validatePatch validates a patch before it is turned into SQL.
func validatePatch(patch model.Patch) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPatch, err)
	}
	return nil
}
