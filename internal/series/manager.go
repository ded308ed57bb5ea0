// Package series creates, edits and deletes recurring transaction series: one
// parent template plus the child instances generated from its recurrence rule.
package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/mo"

	"github.com/Veraticus/spice-recur/internal/common"
	"github.com/Veraticus/spice-recur/internal/model"
	"github.com/Veraticus/spice-recur/internal/recurrence"
	"github.com/Veraticus/spice-recur/internal/service"
)

// Manager owns the lifecycle of recurring series. Every write goes through it.
type Manager struct {
	store  service.TransactionStore
	config Config
}

// Config holds configuration options for the manager.
type Config struct {
	// DefaultUserID is stamped on drafts that carry no owner.
	DefaultUserID string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{DefaultUserID: "local"}
}

// Option adjusts the manager configuration.
type Option func(*Config)

// WithDefaultUserID sets the owner for drafts without a UserID.
func WithDefaultUserID(id string) Option {
	return func(c *Config) {
		if id != "" {
			c.DefaultUserID = id
		}
	}
}

// NewManager creates a manager over store. Stores that implement
// service.Transactor get atomic series writes; others get compensating deletes.
func NewManager(store service.TransactionStore, opts ...Option) *Manager {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Manager{store: store, config: config}
}

// Result is what Create stored. For a series, Transaction is the parent template.
type Result struct {
	Transaction model.Transaction
	Children    []model.Transaction
	Summary     recurrence.Summary
}

// IsSeries reports whether the result is a recurring series.
func (r *Result) IsSeries() bool {
	return r.Transaction.IsParentTemplate
}

// Series is a parent template with its current children.
type Series struct {
	Parent   model.Transaction
	Children []model.Transaction
	Rule     model.RecurrenceRule
}

// Create stores draft. With a nil rule the draft is stored as a single
// transaction. Otherwise the parent template and one child per generated date
// are stored as one unit: a failure while inserting children leaves no rows
// behind and is reported as *common.PartialSeriesFailure.
func (m *Manager) Create(ctx context.Context, draft model.Transaction, rule *model.RecurrenceRule) (*Result, error) {
	if err := draft.Funding().Validate(); err != nil {
		return nil, err
	}
	if draft.UserID == "" {
		draft.UserID = m.config.DefaultUserID
	}

	if rule == nil {
		return m.createSingle(ctx, draft)
	}

	dates, err := recurrence.Generate(*rule)
	if err != nil {
		return nil, err
	}
	rrule, err := recurrence.RRuleString(*rule)
	if err != nil {
		return nil, err
	}
	summary, err := recurrence.Summarize(*rule)
	if err != nil {
		return nil, err
	}

	parent := buildParent(draft, *rule, rrule, dates[0])
	if err := parent.Validate(); err != nil {
		return nil, err
	}

	var stored *model.Transaction
	var children []model.Transaction
	if tr, ok := m.store.(service.Transactor); ok {
		stored, children, err = m.createInTx(ctx, tr, parent, draft, dates)
	} else {
		stored, children, err = m.createCompensating(ctx, parent, draft, dates)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("Created recurring series",
		"parent_id", stored.ID,
		"frequency", rule.Frequency,
		"interval", rule.Interval,
		"children", len(children),
		"last_date", summary.End.Format(model.DateLayout))

	return &Result{Transaction: *stored, Children: children, Summary: summary}, nil
}

func (m *Manager) createSingle(ctx context.Context, draft model.Transaction) (*Result, error) {
	draft.ParentTransactionID = nil
	draft.IsRecurring = false
	draft.IsParentTemplate = false
	draft.NextRecurrenceDate = nil
	draft.SetRecurrence(model.RecurrenceRule{}, "")
	draft.Date = model.DateOf(draft.Date)

	if err := draft.Validate(); err != nil {
		return nil, err
	}

	saved, err := m.store.InsertOne(ctx, draft)
	if err != nil {
		return nil, common.WrapStore("insert transaction", err)
	}
	return &Result{Transaction: *saved}, nil
}

func (m *Manager) createInTx(ctx context.Context, tr service.Transactor, parent, draft model.Transaction, dates []time.Time) (*model.Transaction, []model.Transaction, error) {
	tx, err := tr.BeginTx(ctx)
	if err != nil {
		return nil, nil, common.WrapStore("begin series", err)
	}

	stored, err := tx.InsertOne(ctx, parent)
	if err != nil {
		_ = m.rollback(tx, "")
		return nil, nil, common.WrapStore("insert parent", err)
	}

	children, err := tx.InsertBatch(ctx, buildChildren(draft, stored.ID, dates))
	if err != nil {
		return nil, nil, &common.PartialSeriesFailure{
			ParentID:    stored.ID,
			Cause:       err,
			RollbackErr: m.rollback(tx, stored.ID),
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, common.WrapStore("commit series", err)
	}
	return stored, children, nil
}

func (m *Manager) createCompensating(ctx context.Context, parent, draft model.Transaction, dates []time.Time) (*model.Transaction, []model.Transaction, error) {
	stored, err := m.store.InsertOne(ctx, parent)
	if err != nil {
		return nil, nil, common.WrapStore("insert parent", err)
	}

	children, err := m.store.InsertBatch(ctx, buildChildren(draft, stored.ID, dates))
	if err != nil {
		// The delete must run even when ctx is what failed the batch.
		rbErr := m.store.DeleteByID(context.WithoutCancel(ctx), stored.ID)
		if rbErr != nil {
			common.LogError(rbErr, "Failed to remove orphaned series parent", common.Fields{"parent_id": stored.ID})
		}
		return nil, nil, &common.PartialSeriesFailure{
			ParentID:    stored.ID,
			Cause:       err,
			RollbackErr: rbErr,
		}
	}
	return stored, children, nil
}

// EditSingle updates one record only. Rule metadata is changed through
// UpdateRuleMetadata instead.
func (m *Manager) EditSingle(ctx context.Context, id string, patch model.Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	if patch.Recurrence.IsPresent() {
		return common.NewValidationError("recurrence", "rule changes go through UpdateRuleMetadata")
	}

	if err := m.store.UpdateByID(ctx, id, patch); err != nil {
		return common.WrapStore("update transaction", err)
	}
	return nil
}

// EditShared applies a shared-field patch to the parent template and then to
// every child in one call. It returns the number of children updated.
func (m *Manager) EditShared(ctx context.Context, parentID string, patch model.Patch) (int64, error) {
	if err := patch.Validate(); err != nil {
		return 0, err
	}
	if !patch.SharedOnly() {
		return 0, common.NewValidationError("patch", "only shared fields can be edited across a series")
	}
	if _, err := m.template(ctx, parentID); err != nil {
		return 0, err
	}

	var updated int64
	err := m.unit(ctx, "edit series", func(store service.TransactionStore) error {
		if err := store.UpdateByID(ctx, parentID, patch); err != nil {
			return common.WrapStore("update parent", err)
		}
		n, err := store.UpdateByParentID(ctx, parentID, patch)
		if err != nil {
			return common.WrapStore("update children", err)
		}
		updated = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.Info("Edited recurring series", "parent_id", parentID, "children", updated)
	return updated, nil
}

// UpdateRuleMetadata rewrites the recurrence rule stored on a parent template.
// The rule's start date is pinned to the template's date. Existing children are
// not regenerated, so they keep the dates of the previous rule.
func (m *Manager) UpdateRuleMetadata(ctx context.Context, parentID string, rule model.RecurrenceRule) error {
	parent, err := m.template(ctx, parentID)
	if err != nil {
		return err
	}

	rule.StartDate = parent.Date
	rrule, err := recurrence.RRuleString(rule)
	if err != nil {
		return err
	}

	patch := model.Patch{Recurrence: mo.Some(model.RuleMetadata{Rule: rule, RRule: rrule})}
	if err := m.store.UpdateByID(ctx, parentID, patch); err != nil {
		return common.WrapStore("update rule", err)
	}

	slog.Warn("Recurrence rule changed without regenerating children",
		"parent_id", parentID,
		"frequency", rule.Frequency,
		"interval", rule.Interval,
		"count", rule.Count)
	return nil
}

// DeleteSingle removes exactly one record. Deleting a parent template is
// allowed and leaves its children with a dangling ParentTransactionID.
func (m *Manager) DeleteSingle(ctx context.Context, id string) error {
	txn, err := m.store.GetByID(ctx, id)
	if err != nil {
		return common.WrapStore("get transaction", err)
	}

	if txn.IsParentTemplate {
		children, err := m.store.ListByParentID(ctx, id)
		if err != nil {
			return common.WrapStore("list children", err)
		}
		if len(children) > 0 {
			slog.Warn("Deleting series parent leaves children orphaned",
				"parent_id", id,
				"orphans", len(children))
		}
	}

	if err := m.store.DeleteByID(ctx, id); err != nil {
		return common.WrapStore("delete transaction", err)
	}
	return nil
}

// DeleteSeries removes the parent template and every child as one unit and
// returns how many records were removed. A parent that is already gone still
// has its orphaned children cleaned up.
//
// Stores that are not a service.Transactor get two separate deletes. If the
// parent delete fails after the children are gone, the returned StoreFailure
// says how many children were removed and the parent is left in place.
func (m *Manager) DeleteSeries(ctx context.Context, parentID string) (int64, error) {
	parent, err := m.store.GetByID(ctx, parentID)
	parentMissing := errors.Is(err, common.ErrNotFound)
	switch {
	case parentMissing:
	case err != nil:
		return 0, common.WrapStore("get parent", err)
	case !parent.IsParentTemplate:
		return 0, common.NewValidationError("parent_transaction_id", "%s is not a series template", parentID)
	}

	_, atomic := m.store.(service.Transactor)
	var removed int64
	err = m.unit(ctx, "delete series", func(store service.TransactionStore) error {
		n, err := store.DeleteByParentID(ctx, parentID)
		if err != nil {
			return common.WrapStore("delete children", err)
		}
		removed = n

		if parentMissing {
			if n == 0 {
				return common.WrapStore("delete parent", fmt.Errorf("series %s: %w", parentID, common.ErrNotFound))
			}
			return nil
		}
		if err := store.DeleteByID(ctx, parentID); err != nil {
			if !atomic && n > 0 {
				common.LogError(err, "Series partially deleted", common.Fields{"parent_id": parentID, "children_removed": n})
				return common.WrapStore(fmt.Sprintf("delete parent (partial delete: %d children already removed)", n), err)
			}
			return common.WrapStore("delete parent", err)
		}
		removed++
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.Info("Deleted recurring series", "parent_id", parentID, "removed", removed)
	return removed, nil
}

// Get loads a series by its parent id.
func (m *Manager) Get(ctx context.Context, parentID string) (*Series, error) {
	parent, err := m.template(ctx, parentID)
	if err != nil {
		return nil, err
	}

	children, err := m.store.ListByParentID(ctx, parentID)
	if err != nil {
		return nil, common.WrapStore("list children", err)
	}

	rule, _ := parent.Recurrence()
	return &Series{Parent: *parent, Children: children, Rule: rule}, nil
}

// template loads id and checks that it is a parent template.
func (m *Manager) template(ctx context.Context, id string) (*model.Transaction, error) {
	txn, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, common.WrapStore("get parent", err)
	}
	if !txn.IsParentTemplate {
		return nil, common.NewValidationError("parent_transaction_id", "%s is not a series template", id)
	}
	return txn, nil
}

// unit runs fn inside a store transaction when the store supports one.
func (m *Manager) unit(ctx context.Context, op string, fn func(service.TransactionStore) error) error {
	tr, ok := m.store.(service.Transactor)
	if !ok {
		return fn(m.store)
	}

	tx, err := tr.BeginTx(ctx)
	if err != nil {
		return common.WrapStore(op, err)
	}
	if err := fn(tx); err != nil {
		_ = m.rollback(tx, "")
		return err
	}
	if err := tx.Commit(); err != nil {
		return common.WrapStore(op, err)
	}
	return nil
}

func (m *Manager) rollback(tx service.StoreTx, parentID string) error {
	err := tx.Rollback()
	if err != nil {
		common.LogError(err, "Failed to roll back store transaction", common.Fields{"parent_id": parentID})
	}
	return err
}
