// Package service defines the interfaces for all application services.
package service

import (
	"context"

	"github.com/Veraticus/spice-recur/internal/model"
)

// TransactionStore defines the contract for our persistence layer.
type TransactionStore interface {
	// Writes
	InsertOne(ctx context.Context, txn model.Transaction) (*model.Transaction, error)
	InsertBatch(ctx context.Context, txns []model.Transaction) ([]model.Transaction, error)
	UpdateByID(ctx context.Context, id string, patch model.Patch) error
	UpdateByParentID(ctx context.Context, parentID string, patch model.Patch) (int64, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByParentID(ctx context.Context, parentID string) (int64, error)

	// Reads
	GetByID(ctx context.Context, id string) (*model.Transaction, error)
	ListByParentID(ctx context.Context, parentID string) ([]model.Transaction, error)

	Close() error
}

// Transactor is implemented by stores that can group several writes into one
// atomic unit.
type Transactor interface {
	BeginTx(ctx context.Context) (StoreTx, error)
}

// StoreTx represents a database transaction.
type StoreTx interface {
	Commit() error
	Rollback() error
	// Include all store methods for use within the transaction
	TransactionStore
}
