// Package testutil provides shared helpers for tests that need a migrated database.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/spice-recur/internal/service"
	"github.com/Veraticus/spice-recur/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLiteStorage) error
	Now            func() time.Time
	SkipMigrations bool
}

// SetupTestDB creates a new in-memory test database.
// It automatically handles migrations and cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	var storeOpts []storage.Option
	if opts.Now != nil {
		storeOpts = append(storeOpts, storage.WithClock(opts.Now))
	}

	store, err := storage.NewSQLiteStorage(":memory:", storeOpts...)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	ctx := context.Background()

	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{
		Storage: store,
		t:       t,
	}
}

// WithTransaction executes the given function within a database transaction.
// The transaction is automatically rolled back after the function completes.
func (db *TestDB) WithTransaction(fn func(tx service.StoreTx) error) error {
	db.t.Helper()

	tx, err := db.Storage.BeginTx(context.Background())
	if err != nil {
		db.t.Fatalf("failed to begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}

// CountSeries returns the number of stored records belonging to parentID,
// the parent included.
func (db *TestDB) CountSeries(parentID string) int {
	db.t.Helper()
	ctx := context.Background()

	count := 0
	if _, err := db.Storage.GetByID(ctx, parentID); err == nil {
		count++
	}
	children, err := db.Storage.ListByParentID(ctx, parentID)
	if err != nil {
		db.t.Fatalf("failed to list children: %v", err)
	}
	return count + len(children)
}
