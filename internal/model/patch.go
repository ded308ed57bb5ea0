package model

import (
	"time"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-recur/internal/common"
)

// Patch is a partial update. Absent options leave the column unchanged.
type Patch struct {
	Title       mo.Option[string]
	Description mo.Option[string]
	Category    mo.Option[string]
	Amount      mo.Option[decimal.Decimal]
	Type        mo.Option[TransactionType]
	Funding     mo.Option[Funding]

	// Date moves a single instance; never fanned out across a series.
	Date mo.Option[time.Time]
	// Recurrence rewrites the rule metadata of a parent template. Children are not regenerated.
	Recurrence mo.Option[RuleMetadata]
}

// RuleMetadata is the recurrence description written onto a parent template.
type RuleMetadata struct {
	RRule string
	Rule  RecurrenceRule
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title.IsAbsent() &&
		p.Description.IsAbsent() &&
		p.Category.IsAbsent() &&
		p.Amount.IsAbsent() &&
		p.Type.IsAbsent() &&
		p.Funding.IsAbsent() &&
		p.Date.IsAbsent() &&
		p.Recurrence.IsAbsent()
}

// SharedOnly reports whether the patch touches only fields shared by every
// record of a series.
func (p Patch) SharedOnly() bool {
	return p.Date.IsAbsent() && p.Recurrence.IsAbsent()
}

// Validate checks the values carried by the patch.
func (p Patch) Validate() error {
	if p.IsEmpty() {
		return common.NewValidationError("patch", "no fields to update")
	}
	if f, ok := p.Funding.Get(); ok {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	if typ, ok := p.Type.Get(); ok && !typ.IsValid() {
		return common.NewValidationError("type", "unknown transaction type %q", typ)
	}
	if d, ok := p.Date.Get(); ok && d.IsZero() {
		return common.NewValidationError("date", "cannot be cleared")
	}
	if meta, ok := p.Recurrence.Get(); ok {
		if err := meta.Rule.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns a copy of t with the patch applied. Stores that keep records in
// memory use it; SQL stores translate the patch into SET clauses instead.
func (p Patch) Apply(t Transaction) Transaction {
	if v, ok := p.Title.Get(); ok {
		t.Title = v
	}
	if v, ok := p.Description.Get(); ok {
		t.Description = v
	}
	if v, ok := p.Category.Get(); ok {
		t.Category = v
	}
	if v, ok := p.Amount.Get(); ok {
		t.Amount = v
	}
	if v, ok := p.Type.Get(); ok {
		t.Type = v
	}
	if v, ok := p.Funding.Get(); ok {
		t.AccountID = v.AccountID
		t.CardID = v.CardID
	}
	if v, ok := p.Date.Get(); ok {
		t.Date = DateOf(v)
	}
	if v, ok := p.Recurrence.Get(); ok {
		t.SetRecurrence(v.Rule, v.RRule)
	}
	return t
}
