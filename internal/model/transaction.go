package model

import (
	"time"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-recur/internal/common"
)

// TransactionType distinguishes money coming in from money going out.
type TransactionType string

const (
	// TypeIncome is money received.
	TypeIncome TransactionType = "income"
	// TypeExpense is money spent.
	TypeExpense TransactionType = "expense"
)

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	return t == TypeIncome || t == TypeExpense
}

// Transaction is a single financial record. A recurring series is one parent
// template (IsRecurring and IsParentTemplate set, recurrence fields populated)
// plus child instances whose ParentTransactionID holds the parent's ID.
type Transaction struct {
	Date                time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	NextRecurrenceDate  *time.Time
	ParentTransactionID *string
	AccountID           *string
	CardID              *string
	Amount              decimal.Decimal
	ID                  string
	UserID              string
	Title               string
	Description         string
	Category            string
	Type                TransactionType

	// Recurrence metadata, only set on the parent template.
	RecurrenceFrequency Frequency
	RecurrenceRule      string // RFC 5545 RRULE text
	RecurrenceInterval  int
	RecurrenceCount     int
	CustomDays          int

	IsRecurring      bool
	IsParentTemplate bool
}

// Funding returns the account/card reference pair of the transaction.
func (t *Transaction) Funding() Funding {
	return Funding{AccountID: t.AccountID, CardID: t.CardID}
}

// IsChild reports whether the transaction is an instance of a series.
func (t *Transaction) IsChild() bool {
	return t.ParentTransactionID != nil
}

// Recurrence rebuilds the recurrence rule stored on a parent template.
// It returns false for records that carry no rule.
func (t *Transaction) Recurrence() (RecurrenceRule, bool) {
	if !t.IsParentTemplate || t.RecurrenceFrequency == "" {
		return RecurrenceRule{}, false
	}
	rule := RecurrenceRule{
		Frequency:  t.RecurrenceFrequency,
		Interval:   t.RecurrenceInterval,
		StartDate:  DateOf(t.Date),
		Count:      t.RecurrenceCount,
		CustomDays: mo.None[int](),
	}
	if t.RecurrenceFrequency == FrequencyCustom {
		rule.CustomDays = mo.Some(t.CustomDays)
	}
	return rule, true
}

// SetRecurrence copies rule onto the template's recurrence fields.
func (t *Transaction) SetRecurrence(rule RecurrenceRule, rrule string) {
	t.RecurrenceFrequency = rule.Frequency
	t.RecurrenceInterval = rule.Interval
	t.RecurrenceCount = rule.Count
	t.CustomDays = rule.CustomDays.OrElse(0)
	t.RecurrenceRule = rrule
}

// Validate checks the record-level invariants the engine relies on.
func (t *Transaction) Validate() error {
	if err := t.Funding().Validate(); err != nil {
		return err
	}
	if t.Date.IsZero() {
		return common.NewValidationError("date", "is required")
	}
	if t.Type != "" && !t.Type.IsValid() {
		return common.NewValidationError("type", "unknown transaction type %q", t.Type)
	}
	if t.IsParentTemplate != t.IsRecurring {
		return common.NewValidationError("is_recurring", "must match is_parent_template")
	}
	if t.IsParentTemplate && t.ParentTransactionID != nil {
		return common.NewValidationError("parent_transaction_id", "a template cannot reference a parent")
	}
	return nil
}

// Funding is the account or card a transaction is paid from or into.
// At most one of the two references may be set.
type Funding struct {
	AccountID *string
	CardID    *string
}

// Validate enforces account/card mutual exclusivity.
func (f Funding) Validate() error {
	if f.AccountID != nil && f.CardID != nil {
		return common.NewValidationError("funding", "account and card are mutually exclusive")
	}
	return nil
}

// AccountFunding funds from an account.
func AccountFunding(id string) Funding {
	return Funding{AccountID: &id}
}

// CardFunding funds from a card.
func CardFunding(id string) Funding {
	return Funding{CardID: &id}
}
