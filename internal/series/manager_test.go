package series

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-recur/internal/common"
	"github.com/Veraticus/spice-recur/internal/model"
	"github.com/Veraticus/spice-recur/internal/service"
	"github.com/Veraticus/spice-recur/internal/storage"
	"github.com/Veraticus/spice-recur/internal/storage/memory"
	"github.com/Veraticus/spice-recur/internal/testutil"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func rentDraft() model.Transaction {
	account := "acc-1"
	return model.Transaction{
		Title:     "Rent",
		Category:  "Housing",
		Amount:    decimal.RequireFromString("1250.00"),
		Type:      model.TypeExpense,
		AccountID: &account,
	}
}

func monthlyFromJan31(t *testing.T) *model.RecurrenceRule {
	t.Helper()
	rule, err := model.NewRecurrenceRule(model.RuleParams{
		Frequency: model.FrequencyMonthly,
		Interval:  1,
		Count:     12,
		StartDate: day(2024, 1, 31),
	})
	require.NoError(t, err)
	return &rule
}

// storeFactories runs each test against a transactional and a non-transactional store.
var storeFactories = map[string]func(t *testing.T) service.TransactionStore{
	"sqlite": func(t *testing.T) service.TransactionStore {
		t.Helper()
		return testutil.SetupTestDB(t).Storage
	},
	"memory": func(t *testing.T) service.TransactionStore {
		t.Helper()
		return memory.New()
	},
}

func TestManager_CreateMonthlySeries(t *testing.T) {
	want := []time.Time{
		day(2024, 2, 29), day(2024, 3, 31), day(2024, 4, 30), day(2024, 5, 31),
		day(2024, 6, 30), day(2024, 7, 31), day(2024, 8, 31), day(2024, 9, 30),
		day(2024, 10, 31), day(2024, 11, 30), day(2024, 12, 31), day(2025, 1, 31),
	}

	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			m := NewManager(store, WithDefaultUserID("u1"))

			res, err := m.Create(ctx, rentDraft(), monthlyFromJan31(t))
			require.NoError(t, err)
			require.True(t, res.IsSeries())

			parent := res.Transaction
			assert.True(t, parent.IsRecurring)
			assert.True(t, parent.IsParentTemplate)
			assert.Nil(t, parent.ParentTransactionID)
			assert.Equal(t, day(2024, 1, 31), parent.Date)
			assert.Equal(t, "u1", parent.UserID)
			require.NotNil(t, parent.NextRecurrenceDate)
			assert.Equal(t, day(2024, 2, 29), *parent.NextRecurrenceDate)
			assert.Equal(t, model.FrequencyMonthly, parent.RecurrenceFrequency)
			assert.Equal(t, 12, parent.RecurrenceCount)
			assert.Contains(t, parent.RecurrenceRule, "FREQ=MONTHLY")
			assert.Equal(t, day(2025, 1, 31), res.Summary.End)

			s, err := m.Get(ctx, parent.ID)
			require.NoError(t, err)
			require.Len(t, s.Children, 12)
			for i, child := range s.Children {
				assert.Equal(t, want[i], child.Date, "child %d", i)
				require.NotNil(t, child.ParentTransactionID)
				assert.Equal(t, parent.ID, *child.ParentTransactionID)
				assert.False(t, child.IsRecurring)
				assert.False(t, child.IsParentTemplate)
				assert.Empty(t, child.RecurrenceFrequency)
				assert.Empty(t, child.RecurrenceRule)
				assert.Equal(t, "Rent", child.Title)
				assert.Equal(t, "1250.00", child.Amount.StringFixed(2))
				require.NotNil(t, child.AccountID)
				assert.Equal(t, "acc-1", *child.AccountID)
			}
			assert.Equal(t, model.FrequencyMonthly, s.Rule.Frequency)
			assert.Equal(t, day(2024, 1, 31), s.Rule.StartDate)
		})
	}
}

func TestManager_CreateSingle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	m := NewManager(store)

	draft := rentDraft()
	draft.Date = time.Date(2024, 5, 1, 15, 4, 0, 0, time.UTC)
	draft.IsRecurring = true

	res, err := m.Create(ctx, draft, nil)
	require.NoError(t, err)
	assert.False(t, res.IsSeries())
	assert.Empty(t, res.Children)
	assert.False(t, res.Transaction.IsRecurring)
	assert.Equal(t, day(2024, 5, 1), res.Transaction.Date)
	assert.Equal(t, "local", res.Transaction.UserID)
	assert.Equal(t, 1, store.Len())
}

func TestManager_CreateRejectsBeforeWriting(t *testing.T) {
	store := &mockStore{}
	m := NewManager(store)
	ctx := context.Background()

	both := rentDraft()
	card := "card-1"
	both.CardID = &card
	_, err := m.Create(ctx, both, monthlyFromJan31(t))
	assert.ErrorIs(t, err, common.ErrValidation)

	custom := model.RecurrenceRule{Frequency: model.FrequencyCustom, Interval: 1, Count: 3, StartDate: day(2024, 1, 1)}
	_, err = m.Create(ctx, rentDraft(), &custom)
	var vErr *common.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "custom_days", vErr.Field)

	store.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything)
}

func TestManager_ChildFailure_CompensatingDelete(t *testing.T) {
	batchErr := errors.New("disk full")

	tests := []struct {
		name       string
		deleteErr  error
		rolledBack bool
	}{
		{name: "parent removed", rolledBack: true},
		{name: "parent removal fails", deleteErr: errors.New("connection lost"), rolledBack: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			store.On("InsertOne", mock.Anything, mock.AnythingOfType("model.Transaction")).
				Return(&model.Transaction{ID: "parent-1", IsParentTemplate: true, IsRecurring: true}, nil)
			store.On("InsertBatch", mock.Anything, mock.AnythingOfType("[]model.Transaction")).
				Return(nil, batchErr)
			store.On("DeleteByID", mock.Anything, "parent-1").Return(tt.deleteErr)

			_, err := NewManager(store).Create(context.Background(), rentDraft(), monthlyFromJan31(t))

			var partial *common.PartialSeriesFailure
			require.True(t, errors.As(err, &partial), "got %v", err)
			assert.Equal(t, "parent-1", partial.ParentID)
			assert.Equal(t, tt.rolledBack, partial.RolledBack())
			assert.ErrorIs(t, err, batchErr)
			assert.ErrorIs(t, err, common.ErrPartialSeries)
			store.AssertExpectations(t)
		})
	}
}

func TestManager_ChildFailure_ContextCancelledStillCompensates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	store := &mockStore{}
	store.On("InsertOne", mock.Anything, mock.Anything).
		Return(&model.Transaction{ID: "parent-1"}, nil)
	store.On("InsertBatch", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled)
	store.On("DeleteByID", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }), "parent-1").
		Return(nil)

	_, err := NewManager(store).Create(ctx, rentDraft(), monthlyFromJan31(t))

	var partial *common.PartialSeriesFailure
	require.True(t, errors.As(err, &partial))
	assert.True(t, partial.RolledBack())
	store.AssertExpectations(t)
}

func TestManager_ChildFailure_TransactionRollback(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := &failingBatchStore{SQLiteStorage: db.Storage, err: errors.New("constraint failed")}
	m := NewManager(store)

	_, err := m.Create(context.Background(), rentDraft(), monthlyFromJan31(t))

	var partial *common.PartialSeriesFailure
	require.True(t, errors.As(err, &partial), "got %v", err)
	assert.True(t, partial.RolledBack())
	assert.Zero(t, db.CountSeries(partial.ParentID), "rollback must leave zero rows")

	templates, err := db.Storage.ListTemplates(context.Background(), "local")
	require.NoError(t, err)
	assert.Empty(t, templates)
}

func TestManager_ChildFailure_RollbackFails(t *testing.T) {
	tx := &mockTx{}
	tx.On("InsertOne", mock.Anything, mock.Anything).Return(&model.Transaction{ID: "parent-1"}, nil)
	tx.On("InsertBatch", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))
	tx.On("Rollback").Return(errors.New("rollback lost"))

	store := &mockTransactor{}
	store.On("BeginTx", mock.Anything).Return(tx, nil)

	_, err := NewManager(store).Create(context.Background(), rentDraft(), monthlyFromJan31(t))

	var partial *common.PartialSeriesFailure
	require.True(t, errors.As(err, &partial))
	assert.False(t, partial.RolledBack())
	assert.ErrorContains(t, err, "rollback lost")
	tx.AssertNotCalled(t, "Commit")
}

func TestManager_ParentFailure(t *testing.T) {
	storeErr := errors.New("database is read-only")

	store := &mockStore{}
	store.On("InsertOne", mock.Anything, mock.Anything).Return(nil, storeErr)

	_, err := NewManager(store).Create(context.Background(), rentDraft(), monthlyFromJan31(t))

	var sf *common.StoreFailure
	require.True(t, errors.As(err, &sf))
	assert.ErrorIs(t, err, storeErr)
	assert.False(t, errors.Is(err, common.ErrPartialSeries))
	store.AssertNotCalled(t, "InsertBatch", mock.Anything, mock.Anything)
}

func TestManager_EditShared(t *testing.T) {
	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := NewManager(newStore(t))

			res, err := m.Create(ctx, rentDraft(), monthlyFromJan31(t))
			require.NoError(t, err)
			parentID := res.Transaction.ID

			n, err := m.EditShared(ctx, parentID, model.Patch{
				Title:   mo.Some("Rent (renewed)"),
				Amount:  mo.Some(decimal.RequireFromString("1300")),
				Funding: mo.Some(model.CardFunding("card-7")),
			})
			require.NoError(t, err)
			assert.EqualValues(t, 12, n)

			s, err := m.Get(ctx, parentID)
			require.NoError(t, err)
			for _, txn := range append([]model.Transaction{s.Parent}, s.Children...) {
				assert.Equal(t, "Rent (renewed)", txn.Title)
				assert.Equal(t, "1300", txn.Amount.String())
				assert.Nil(t, txn.AccountID)
				require.NotNil(t, txn.CardID)
				assert.Equal(t, "card-7", *txn.CardID)
				assert.Equal(t, "Housing", txn.Category, "untouched fields stay")
			}
			assert.Equal(t, day(2024, 2, 29), s.Children[0].Date, "dates are not shared")
		})
	}
}

func TestManager_EditShared_Rejects(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memory.New())

	res, err := m.Create(ctx, rentDraft(), monthlyFromJan31(t))
	require.NoError(t, err)

	_, err = m.EditShared(ctx, res.Transaction.ID, model.Patch{Date: mo.Some(day(2024, 3, 3))})
	assert.ErrorIs(t, err, common.ErrValidation)

	s, err := m.Get(ctx, res.Transaction.ID)
	require.NoError(t, err)
	_, err = m.EditShared(ctx, s.Children[0].ID, model.Patch{Title: mo.Some("x")})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = m.EditShared(ctx, "missing", model.Patch{Title: mo.Some("x")})
	assert.ErrorIs(t, err, common.ErrStore)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestManager_EditSingle(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memory.New())

	res, err := m.Create(ctx, rentDraft(), monthlyFromJan31(t))
	require.NoError(t, err)
	s, err := m.Get(ctx, res.Transaction.ID)
	require.NoError(t, err)

	target := s.Children[3]
	require.NoError(t, m.EditSingle(ctx, target.ID, model.Patch{
		Amount: mo.Some(decimal.RequireFromString("0")),
		Date:   mo.Some(day(2024, 5, 2)),
	}))

	after, err := m.Get(ctx, res.Transaction.ID)
	require.NoError(t, err)
	for _, child := range after.Children {
		if child.ID == target.ID {
			assert.True(t, child.Amount.IsZero())
			assert.Equal(t, day(2024, 5, 2), child.Date)
			continue
		}
		assert.Equal(t, "1250", child.Amount.String())
	}
	assert.Equal(t, "1250", after.Parent.Amount.String())

	err = m.EditSingle(ctx, target.ID, model.Patch{Recurrence: mo.Some(model.RuleMetadata{Rule: *monthlyFromJan31(t)})})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestManager_UpdateRuleMetadata(t *testing.T) {
	ctx := context.Background()
	m := NewManager(testutil.SetupTestDB(t).Storage)

	res, err := m.Create(ctx, rentDraft(), monthlyFromJan31(t))
	require.NoError(t, err)

	rule, err := model.NewRecurrenceRule(model.RuleParams{
		Frequency: model.FrequencyQuarterly,
		Count:     4,
		StartDate: day(2030, 1, 1),
	})
	require.NoError(t, err)
	require.NoError(t, m.UpdateRuleMetadata(ctx, res.Transaction.ID, rule))

	s, err := m.Get(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FrequencyQuarterly, s.Rule.Frequency)
	assert.Equal(t, 4, s.Rule.Count)
	assert.Equal(t, day(2024, 1, 31), s.Rule.StartDate, "start stays pinned to the template date")
	assert.Equal(t, "FREQ=MONTHLY;INTERVAL=3;COUNT=5;BYSETPOS=-1;BYMONTHDAY=28,29,30,31", s.Parent.RecurrenceRule)
	assert.Len(t, s.Children, 12, "children are not regenerated")
}

func TestManager_DeleteSingle(t *testing.T) {
	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			m := NewManager(store)

			res, err := m.Create(ctx, rentDraft(), monthlyFromJan31(t))
			require.NoError(t, err)
			parentID := res.Transaction.ID

			s, err := m.Get(ctx, parentID)
			require.NoError(t, err)
			require.NoError(t, m.DeleteSingle(ctx, s.Children[5].ID))

			after, err := m.Get(ctx, parentID)
			require.NoError(t, err)
			assert.Len(t, after.Children, 11)

			// Deleting the parent orphans the remaining children.
			require.NoError(t, m.DeleteSingle(ctx, parentID))
			_, err = store.GetByID(ctx, parentID)
			assert.ErrorIs(t, err, common.ErrNotFound)
			orphans, err := store.ListByParentID(ctx, parentID)
			require.NoError(t, err)
			assert.Len(t, orphans, 11)

			err = m.DeleteSingle(ctx, parentID)
			assert.ErrorIs(t, err, common.ErrNotFound)
		})
	}
}

func TestManager_DeleteSeries(t *testing.T) {
	for name, newStore := range storeFactories {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			m := NewManager(store)

			keep, err := m.Create(ctx, rentDraft(), monthlyFromJan31(t))
			require.NoError(t, err)
			res, err := m.Create(ctx, rentDraft(), monthlyFromJan31(t))
			require.NoError(t, err)

			removed, err := m.DeleteSeries(ctx, res.Transaction.ID)
			require.NoError(t, err)
			assert.EqualValues(t, 13, removed)

			_, err = store.GetByID(ctx, res.Transaction.ID)
			assert.ErrorIs(t, err, common.ErrNotFound)
			kids, err := store.ListByParentID(ctx, res.Transaction.ID)
			require.NoError(t, err)
			assert.Empty(t, kids)

			other, err := m.Get(ctx, keep.Transaction.ID)
			require.NoError(t, err)
			assert.Len(t, other.Children, 12, "other series untouched")
		})
	}
}

func TestManager_DeleteSeries_CleansOrphans(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	m := NewManager(store)

	res, err := m.Create(ctx, rentDraft(), monthlyFromJan31(t))
	require.NoError(t, err)
	require.NoError(t, m.DeleteSingle(ctx, res.Transaction.ID))

	removed, err := m.DeleteSeries(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 12, removed)
	assert.Zero(t, store.Len())

	_, err = m.DeleteSeries(ctx, res.Transaction.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestManager_DeleteSeries_RejectsChild(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memory.New())

	res, err := m.Create(ctx, rentDraft(), monthlyFromJan31(t))
	require.NoError(t, err)
	s, err := m.Get(ctx, res.Transaction.ID)
	require.NoError(t, err)

	_, err = m.DeleteSeries(ctx, s.Children[0].ID)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestManager_DeleteSeries_PartialWithoutTransactions(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	m := NewManager(inner)

	res, err := m.Create(ctx, rentDraft(), monthlyFromJan31(t))
	require.NoError(t, err)

	store := &failingDeleteStore{Store: inner, err: errors.New("disk full")}
	m = NewManager(store)

	removed, err := m.DeleteSeries(ctx, res.Transaction.ID)
	require.Error(t, err)
	assert.Zero(t, removed)
	assert.ErrorIs(t, err, common.ErrStore)
	assert.ErrorIs(t, err, store.err)
	assert.Contains(t, err.Error(), "partial delete: 12 children already removed")

	kids, err := inner.ListByParentID(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.Empty(t, kids)
	parent, err := inner.GetByID(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.True(t, parent.IsParentTemplate, "parent survives for a retry")

	removed, err = NewManager(inner).DeleteSeries(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}

// Mock implementations for manager tests.
type mockStore struct {
	service.TransactionStore
	mock.Mock
}

func (m *mockStore) InsertOne(ctx context.Context, txn model.Transaction) (*model.Transaction, error) {
	args := m.Called(ctx, txn)
	if saved, ok := args.Get(0).(*model.Transaction); ok {
		return saved, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) InsertBatch(ctx context.Context, txns []model.Transaction) ([]model.Transaction, error) {
	args := m.Called(ctx, txns)
	if saved, ok := args.Get(0).([]model.Transaction); ok {
		return saved, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) DeleteByID(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockTx struct {
	mockStore
}

func (m *mockTx) Commit() error {
	return m.Called().Error(0)
}

func (m *mockTx) Rollback() error {
	return m.Called().Error(0)
}

type mockTransactor struct {
	mockStore
}

func (m *mockTransactor) BeginTx(ctx context.Context) (service.StoreTx, error) {
	args := m.Called(ctx)
	if tx, ok := args.Get(0).(service.StoreTx); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

// failingBatchStore is a real SQLite store whose transactions fail every child batch.
type failingBatchStore struct {
	*storage.SQLiteStorage
	err error
}

func (s *failingBatchStore) BeginTx(ctx context.Context) (service.StoreTx, error) {
	tx, err := s.SQLiteStorage.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return &failingBatchTx{StoreTx: tx, err: s.err}, nil
}

type failingBatchTx struct {
	service.StoreTx
	err error
}

func (t *failingBatchTx) InsertBatch(context.Context, []model.Transaction) ([]model.Transaction, error) {
	return nil, t.err
}

// failingDeleteStore is a memory store whose single-record deletes always fail.
type failingDeleteStore struct {
	*memory.Store
	err error
}

func (s *failingDeleteStore) DeleteByID(context.Context, string) error {
	return s.err
}
