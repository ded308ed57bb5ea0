package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/spice-recur/internal/common"
	"github.com/Veraticus/spice-recur/internal/model"
	"github.com/Veraticus/spice-recur/internal/service"
)

// SQLiteStorage implements service.TransactionStore and service.Transactor using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	now    func() time.Time
	dbPath string
	retry  common.RetryOptions
}

// Option configures a SQLiteStorage.
type Option func(*SQLiteStorage)

// WithBusyRetries sets how many times a write is attempted while the database is locked.
func WithBusyRetries(attempts int) Option {
	return func(s *SQLiteStorage) {
		if attempts > 0 {
			s.retry.MaxAttempts = attempts
		}
	}
}

// WithClock overrides the clock used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStorage) {
		s.now = now
	}
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// _txlock=immediate takes the write lock on BEGIN so contention shows up in BeginTx
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections, and :memory: needs exactly one
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
		retry: common.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction. A locked database is retried
// according to the busy retry policy.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.StoreTx, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var tx *sql.Tx
	err := s.withBusyRetry(ctx, func() error {
		var beginErr error
		tx, beginErr = s.db.BeginTx(ctx, nil)
		return beginErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTransaction{
		tx:      tx,
		storage: s,
	}, nil
}

// withBusyRetry runs fn, retrying while SQLite reports the database as busy or locked.
func (s *SQLiteStorage) withBusyRetry(ctx context.Context, fn func() error) error {
	return common.WithRetry(ctx, func() error {
		return classifyBusy(fn())
	}, s.retry)
}

// classifyBusy marks SQLITE_BUSY and SQLITE_LOCKED as retryable.
func classifyBusy(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %w", common.ErrBusy, err)
	}
	return err
}

// sqliteTransaction wraps sql.Tx to implement service.StoreTx.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTransaction) Close() error {
	return fmt.Errorf("storage cannot be closed within a transaction")
}

// Transaction methods delegate to the main storage with the transaction.
func (t *sqliteTransaction) InsertOne(ctx context.Context, txn model.Transaction) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return t.storage.insertTx(ctx, t.tx, txn)
}

func (t *sqliteTransaction) InsertBatch(ctx context.Context, txns []model.Transaction) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateBatch(txns); err != nil {
		return nil, err
	}
	return t.storage.insertBatchTx(ctx, t.tx, txns)
}

func (t *sqliteTransaction) UpdateByID(ctx context.Context, id string, patch model.Patch) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return t.storage.updateByIDTx(ctx, t.tx, id, patch)
}

func (t *sqliteTransaction) UpdateByParentID(ctx context.Context, parentID string, patch model.Patch) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(parentID, "parentID"); err != nil {
		return 0, err
	}
	return t.storage.updateByParentIDTx(ctx, t.tx, parentID, patch)
}

func (t *sqliteTransaction) DeleteByID(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return t.storage.deleteByIDTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) DeleteByParentID(ctx context.Context, parentID string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(parentID, "parentID"); err != nil {
		return 0, err
	}
	return t.storage.deleteByParentIDTx(ctx, t.tx, parentID)
}

func (t *sqliteTransaction) GetByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getByIDTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) ListByParentID(ctx context.Context, parentID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(parentID, "parentID"); err != nil {
		return nil, err
	}
	return t.storage.listByParentIDTx(ctx, t.tx, parentID)
}
