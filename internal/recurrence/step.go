// Package recurrence expands recurrence rules into calendar dates and describes
// the span they cover. Everything here is pure: no I/O, no clock reads.
package recurrence

import (
	"time"

	"github.com/Veraticus/spice-recur/internal/model"
)

// Cursor is the position of a chained walk through a rule's occurrences.
// anchorDay is the start date's day-of-month; month-based steps clamp against it
// so a Jan 31 series lands on Feb 29 and then returns to Mar 31.
type Cursor struct {
	Date      time.Time
	anchorDay int
}

// NewCursor positions a cursor on the rule's start date.
func NewCursor(rule model.RecurrenceRule) Cursor {
	start := model.DateOf(rule.StartDate)
	return Cursor{Date: start, anchorDay: start.Day()}
}

// Step advances c by one occurrence of rule. The rule must already be valid.
func Step(c Cursor, rule model.RecurrenceRule) Cursor {
	switch rule.Frequency {
	case model.FrequencyDaily:
		return c.addDays(rule.Interval)
	case model.FrequencyWeekly:
		return c.addDays(7 * rule.Interval)
	case model.FrequencyBiweekly:
		return c.addDays(14 * rule.Interval)
	case model.FrequencyMonthly:
		return c.addMonths(rule.Interval)
	case model.FrequencyQuarterly:
		return c.addMonths(3 * rule.Interval)
	case model.FrequencySemiannual:
		return c.addMonths(6 * rule.Interval)
	case model.FrequencyYearly:
		return c.addMonths(12 * rule.Interval)
	case model.FrequencyCustom:
		return c.addDays(rule.CustomDays.OrElse(1) * rule.Interval)
	default:
		return c
	}
}

func (c Cursor) addDays(n int) Cursor {
	c.Date = c.Date.AddDate(0, 0, n)
	return c
}

func (c Cursor) addMonths(n int) Cursor {
	months := int(c.Date.Month()) - 1 + n
	year := c.Date.Year() + months/12
	month := time.Month(months%12 + 1)

	day := c.anchorDay
	if last := daysIn(year, month); day > last {
		day = last
	}

	c.Date = time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return c
}

// daysIn returns the number of days in month of year.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
