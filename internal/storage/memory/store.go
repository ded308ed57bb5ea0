// Package memory provides an in-process TransactionStore. It has no multi-statement
// transactions, so the series manager falls back to compensating deletes with it.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/spice-recur/internal/common"
	"github.com/Veraticus/spice-recur/internal/model"
)

// Store keeps transactions in a map keyed by ID with a secondary index on parent ID.
type Store struct {
	records  map[string]model.Transaction
	children map[string]map[string]struct{}
	now      func() time.Time
	mu       sync.RWMutex
}

// New creates an empty store.
func New() *Store {
	return &Store{
		records:  make(map[string]model.Transaction),
		children: make(map[string]map[string]struct{}),
		now:      time.Now,
	}
}

// InsertOne stores txn and returns it with its assigned ID.
func (s *Store) InsertOne(ctx context.Context, txn model.Transaction) (*model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved, err := s.prepare(txn)
	if err != nil {
		return nil, err
	}
	s.put(saved)
	return &saved, nil
}

// InsertBatch stores all of txns or none of them.
func (s *Store) InsertBatch(ctx context.Context, txns []model.Transaction) ([]model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, common.NewValidationError("transactions", "batch is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := make([]model.Transaction, 0, len(txns))
	seen := make(map[string]struct{}, len(txns))
	for i, txn := range txns {
		prepared, err := s.prepare(txn)
		if err != nil {
			return nil, fmt.Errorf("transaction at index %d: %w", i, err)
		}
		if _, dup := seen[prepared.ID]; dup {
			return nil, fmt.Errorf("transaction at index %d: %w: %s", i, common.ErrDuplicateEntry, prepared.ID)
		}
		seen[prepared.ID] = struct{}{}
		saved = append(saved, prepared)
	}

	for _, txn := range saved {
		s.put(txn)
	}
	return saved, nil
}

// UpdateByID applies patch to one record.
func (s *Store) UpdateByID(ctx context.Context, id string, patch model.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.records[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	s.records[id] = s.apply(patch, txn)
	return nil
}

// UpdateByParentID applies patch to every child of parentID.
func (s *Store) UpdateByParentID(ctx context.Context, parentID string, patch model.Patch) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := patch.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id := range s.children[parentID] {
		s.records[id] = s.apply(patch, s.records[id])
		n++
	}
	return n, nil
}

// DeleteByID removes one record. Children of a deleted parent stay in place.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.records[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	s.remove(txn)
	return nil
}

// DeleteByParentID removes every child of parentID.
func (s *Store) DeleteByParentID(ctx context.Context, parentID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id := range s.children[parentID] {
		s.remove(s.records[id])
		n++
	}
	return n, nil
}

// GetByID returns a copy of one record.
func (s *Store) GetByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return &txn, nil
}

// ListByParentID returns the children of parentID ordered by date.
func (s *Store) ListByParentID(ctx context.Context, parentID string) ([]model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Transaction, 0, len(s.children[parentID]))
	for id := range s.children[parentID] {
		out = append(out, s.records[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// prepare validates txn and fills the store-owned fields. Callers hold the lock.
func (s *Store) prepare(txn model.Transaction) (model.Transaction, error) {
	if err := txn.Validate(); err != nil {
		return model.Transaction{}, err
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if _, exists := s.records[txn.ID]; exists {
		return model.Transaction{}, fmt.Errorf("%w: %s", common.ErrDuplicateEntry, txn.ID)
	}

	now := s.now().UTC()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = now
	}
	txn.UpdatedAt = now
	txn.Date = model.DateOf(txn.Date)
	return txn, nil
}

func (s *Store) apply(patch model.Patch, txn model.Transaction) model.Transaction {
	txn = patch.Apply(txn)
	txn.UpdatedAt = s.now().UTC()
	return txn
}

func (s *Store) put(txn model.Transaction) {
	s.records[txn.ID] = txn
	if txn.ParentTransactionID == nil {
		return
	}
	parent := *txn.ParentTransactionID
	if s.children[parent] == nil {
		s.children[parent] = make(map[string]struct{})
	}
	s.children[parent][txn.ID] = struct{}{}
}

func (s *Store) remove(txn model.Transaction) {
	delete(s.records, txn.ID)
	if txn.ParentTransactionID == nil {
		return
	}
	parent := *txn.ParentTransactionID
	delete(s.children[parent], txn.ID)
	if len(s.children[parent]) == 0 {
		delete(s.children, parent)
	}
}
