package recurrence

import (
	"time"

	"github.com/Veraticus/spice-recur/internal/model"
)

// Generate expands rule into rule.Count dates. Element i is the start date
// stepped i+1 times, so the start date itself is never included; it belongs to
// the parent template.
func Generate(rule model.RecurrenceRule) ([]time.Time, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	dates := make([]time.Time, 0, rule.Count)
	cursor := NewCursor(rule)
	for i := 0; i < rule.Count; i++ {
		cursor = Step(cursor, rule)
		dates = append(dates, cursor.Date)
	}

	return dates, nil
}

// NextAfter returns the first generated date strictly after the given day.
// ok is false once the series has no occurrences left.
func NextAfter(rule model.RecurrenceRule, after time.Time) (next time.Time, ok bool, err error) {
	dates, err := Generate(rule)
	if err != nil {
		return time.Time{}, false, err
	}

	day := model.DateOf(after)
	for _, d := range dates {
		if d.After(day) {
			return d, true, nil
		}
	}
	return time.Time{}, false, nil
}
