package series

import (
	"time"

	"github.com/Veraticus/spice-recur/internal/model"
)

// buildParent turns the draft into the series template dated on the rule's start.
func buildParent(draft model.Transaction, rule model.RecurrenceRule, rrule string, next time.Time) model.Transaction {
	parent := draft
	parent.ID = ""
	parent.ParentTransactionID = nil
	parent.IsRecurring = true
	parent.IsParentTemplate = true
	parent.Date = model.DateOf(rule.StartDate)
	parent.NextRecurrenceDate = &next
	parent.SetRecurrence(rule, rrule)
	return parent
}

// buildChildren copies the draft's payload onto one instance per date.
func buildChildren(draft model.Transaction, parentID string, dates []time.Time) []model.Transaction {
	children := make([]model.Transaction, len(dates))
	for i, d := range dates {
		child := draft
		child.ID = ""
		child.ParentTransactionID = &parentID
		child.IsRecurring = false
		child.IsParentTemplate = false
		child.Date = d
		child.NextRecurrenceDate = nil
		child.SetRecurrence(model.RecurrenceRule{}, "")
		children[i] = child
	}
	return children
}
