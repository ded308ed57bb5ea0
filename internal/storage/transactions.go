package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/spice-recur/internal/common"
	"github.com/Veraticus/spice-recur/internal/model"
)

const transactionColumns = `id, parent_transaction_id, user_id, title, description, category,
	amount, type, date, account_id, card_id, is_recurring, is_parent_template,
	recurrence_frequency, recurrence_interval, recurrence_count, custom_days,
	recurrence_rule, next_recurrence_date, created_at, updated_at`

// InsertOne stores a single transaction and returns it with its assigned ID.
func (s *SQLiteStorage) InsertOne(ctx context.Context, txn model.Transaction) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var saved *model.Transaction
	err := s.withBusyRetry(ctx, func() error {
		var insertErr error
		saved, insertErr = s.insertTx(ctx, s.db, txn)
		return insertErr
	})
	return saved, err
}

// InsertBatch stores every transaction in one database transaction. Either all
// rows are written or none are.
func (s *SQLiteStorage) InsertBatch(ctx context.Context, txns []model.Transaction) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateBatch(txns); err != nil {
		return nil, err
	}

	var saved []model.Transaction
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var insertErr error
		saved, insertErr = s.insertBatchTx(ctx, tx, txns)
		return insertErr
	})
	if err != nil {
		return nil, err
	}

	common.LogDebug("Inserted transaction batch", common.Fields{"count": len(saved)})
	return saved, nil
}

// UpdateByID applies patch to exactly one record.
func (s *SQLiteStorage) UpdateByID(ctx context.Context, id string, patch model.Patch) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return s.withBusyRetry(ctx, func() error {
		return s.updateByIDTx(ctx, s.db, id, patch)
	})
}

// UpdateByParentID applies patch to every child of parentID and reports how many changed.
func (s *SQLiteStorage) UpdateByParentID(ctx context.Context, parentID string, patch model.Patch) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(parentID, "parentID"); err != nil {
		return 0, err
	}

	var n int64
	err := s.withBusyRetry(ctx, func() error {
		var updateErr error
		n, updateErr = s.updateByParentIDTx(ctx, s.db, parentID, patch)
		return updateErr
	})
	return n, err
}

// DeleteByID removes exactly one record.
func (s *SQLiteStorage) DeleteByID(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return s.withBusyRetry(ctx, func() error {
		return s.deleteByIDTx(ctx, s.db, id)
	})
}

// DeleteByParentID removes every child of parentID and reports how many were removed.
func (s *SQLiteStorage) DeleteByParentID(ctx context.Context, parentID string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(parentID, "parentID"); err != nil {
		return 0, err
	}

	var n int64
	err := s.withBusyRetry(ctx, func() error {
		var deleteErr error
		n, deleteErr = s.deleteByParentIDTx(ctx, s.db, parentID)
		return deleteErr
	})
	return n, err
}

// GetByID retrieves a single transaction.
func (s *SQLiteStorage) GetByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getByIDTx(ctx, s.db, id)
}

// ListByParentID returns the children of parentID ordered by date.
func (s *SQLiteStorage) ListByParentID(ctx context.Context, parentID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(parentID, "parentID"); err != nil {
		return nil, err
	}
	return s.listByParentIDTx(ctx, s.db, parentID)
}

// ListTemplates returns the parent templates owned by userID ordered by start date.
func (s *SQLiteStorage) ListTemplates(ctx context.Context, userID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE is_parent_template = 1 AND user_id = ?
		ORDER BY date, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

func (s *SQLiteStorage) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	var tx *sql.Tx
	err := s.withBusyRetry(ctx, func() error {
		var beginErr error
		tx, beginErr = s.db.BeginTx(ctx, nil)
		return beginErr
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) insertTx(ctx context.Context, q queryable, txn model.Transaction) (*model.Transaction, error) {
	if err := validateTransaction(&txn); err != nil {
		return nil, err
	}

	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = now
	}
	txn.UpdatedAt = now
	txn.Date = model.DateOf(txn.Date)

	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		txn.ID,
		txn.ParentTransactionID,
		txn.UserID,
		txn.Title,
		txn.Description,
		txn.Category,
		txn.Amount,
		string(txn.Type),
		formatDate(txn.Date),
		txn.AccountID,
		txn.CardID,
		txn.IsRecurring,
		txn.IsParentTemplate,
		nullString(string(txn.RecurrenceFrequency), txn.IsParentTemplate),
		nullInt(txn.RecurrenceInterval, txn.IsParentTemplate),
		nullInt(txn.RecurrenceCount, txn.IsParentTemplate),
		nullInt(txn.CustomDays, txn.IsParentTemplate && txn.RecurrenceFrequency == model.FrequencyCustom),
		nullString(txn.RecurrenceRule, txn.IsParentTemplate),
		formatOptionalDate(txn.NextRecurrenceDate),
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction %s: %w", txn.ID, mapConstraint(err))
	}

	return &txn, nil
}

func (s *SQLiteStorage) insertBatchTx(ctx context.Context, q queryable, txns []model.Transaction) ([]model.Transaction, error) {
	saved := make([]model.Transaction, 0, len(txns))
	for _, txn := range txns {
		stored, err := s.insertTx(ctx, q, txn)
		if err != nil {
			return nil, err
		}
		saved = append(saved, *stored)
	}
	return saved, nil
}

func (s *SQLiteStorage) updateByIDTx(ctx context.Context, q queryable, id string, patch model.Patch) error {
	set, args, err := s.patchClauses(patch)
	if err != nil {
		return err
	}

	args = append(args, id)
	result, err := q.ExecContext(ctx, `UPDATE transactions SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", id, mapConstraint(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) updateByParentIDTx(ctx context.Context, q queryable, parentID string, patch model.Patch) (int64, error) {
	set, args, err := s.patchClauses(patch)
	if err != nil {
		return 0, err
	}

	args = append(args, parentID)
	result, err := q.ExecContext(ctx, `UPDATE transactions SET `+set+` WHERE parent_transaction_id = ?`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update children of %s: %w", parentID, mapConstraint(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStorage) deleteByIDTx(ctx context.Context, q queryable, id string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStorage) deleteByParentIDTx(ctx context.Context, q queryable, parentID string) (int64, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM transactions WHERE parent_transaction_id = ?`, parentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete children of %s: %w", parentID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStorage) getByIDTx(ctx context.Context, q queryable, id string) (*model.Transaction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return txn, nil
}

func (s *SQLiteStorage) listByParentIDTx(ctx context.Context, q queryable, parentID string) ([]model.Transaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE parent_transaction_id = ?
		ORDER BY date, id
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query children of %s: %w", parentID, err)
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

// patchClauses turns a patch into a SET list and its arguments.
func (s *SQLiteStorage) patchClauses(patch model.Patch) (string, []any, error) {
	if err := validatePatch(patch); err != nil {
		return "", nil, err
	}

	var sets []string
	var args []any
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if v, ok := patch.Title.Get(); ok {
		add("title", v)
	}
	if v, ok := patch.Description.Get(); ok {
		add("description", v)
	}
	if v, ok := patch.Category.Get(); ok {
		add("category", v)
	}
	if v, ok := patch.Amount.Get(); ok {
		add("amount", v)
	}
	if v, ok := patch.Type.Get(); ok {
		add("type", string(v))
	}
	if v, ok := patch.Funding.Get(); ok {
		add("account_id", v.AccountID)
		add("card_id", v.CardID)
	}
	if v, ok := patch.Date.Get(); ok {
		add("date", formatDate(v))
	}
	if v, ok := patch.Recurrence.Get(); ok {
		custom := v.Rule.Frequency == model.FrequencyCustom
		add("recurrence_frequency", string(v.Rule.Frequency))
		add("recurrence_interval", v.Rule.Interval)
		add("recurrence_count", v.Rule.Count)
		add("custom_days", nullInt(v.Rule.CustomDays.OrElse(0), custom))
		add("recurrence_rule", v.RRule)
	}
	add("updated_at", s.now().UTC())

	return strings.Join(sets, ", "), args, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		txn                              model.Transaction
		parentID, accountID, cardID      sql.NullString
		frequency, rrule, date, nextDate sql.NullString
		interval, count, customDays      sql.NullInt64
		txnType                          string
	)

	err := row.Scan(
		&txn.ID,
		&parentID,
		&txn.UserID,
		&txn.Title,
		&txn.Description,
		&txn.Category,
		&txn.Amount,
		&txnType,
		&date,
		&accountID,
		&cardID,
		&txn.IsRecurring,
		&txn.IsParentTemplate,
		&frequency,
		&interval,
		&count,
		&customDays,
		&rrule,
		&nextDate,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.Type = model.TransactionType(txnType)
	txn.ParentTransactionID = stringPtr(parentID)
	txn.AccountID = stringPtr(accountID)
	txn.CardID = stringPtr(cardID)
	txn.RecurrenceFrequency = model.Frequency(frequency.String)
	txn.RecurrenceRule = rrule.String
	txn.RecurrenceInterval = int(interval.Int64)
	txn.RecurrenceCount = int(count.Int64)
	txn.CustomDays = int(customDays.Int64)

	if txn.Date, err = parseDate(date.String); err != nil {
		return nil, err
	}
	if nextDate.Valid {
		next, err := parseDate(nextDate.String)
		if err != nil {
			return nil, err
		}
		txn.NextRecurrenceDate = &next
	}

	return &txn, nil
}

func scanTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

// mapConstraint translates SQLite constraint violations into application errors.
func mapConstraint(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return err
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
		return fmt.Errorf("%w: %w", common.ErrDuplicateEntry, err)
	case sqlite3.ErrConstraintCheck:
		return common.NewValidationError("funding", "account and card are mutually exclusive")
	default:
		return err
	}
}

func formatDate(t time.Time) string {
	return model.DateOf(t).Format(model.DateLayout)
}

func formatOptionalDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatDate(*t)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored date %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string, valid bool) sql.NullString {
	return sql.NullString{String: s, Valid: valid}
}

func nullInt(n int, valid bool) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: valid}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// queryable is an interface satisfied by both *sql.DB and *sql.Tx.
type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
