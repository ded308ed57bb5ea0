package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/mo"

	"github.com/Veraticus/spice-recur/internal/common"
)

// Frequency is the base unit a recurrence rule steps by.
type Frequency string

// Supported frequencies.
const (
	FrequencyDaily      Frequency = "daily"
	FrequencyWeekly     Frequency = "weekly"
	FrequencyBiweekly   Frequency = "biweekly"
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencySemiannual Frequency = "semiannual"
	FrequencyYearly     Frequency = "yearly"
	FrequencyCustom     Frequency = "custom"
)

// Repetition bounds for a single series.
const (
	MinRepetitions = 1
	MaxRepetitions = 365
)

// Frequencies lists every supported frequency in display order.
var Frequencies = []Frequency{
	FrequencyDaily,
	FrequencyWeekly,
	FrequencyBiweekly,
	FrequencyMonthly,
	FrequencyQuarterly,
	FrequencySemiannual,
	FrequencyYearly,
	FrequencyCustom,
}

// IsValid reports whether f is a known frequency.
func (f Frequency) IsValid() bool {
	for _, known := range Frequencies {
		if f == known {
			return true
		}
	}
	return false
}

// ParseFrequency parses a frequency name, ignoring case and surrounding space.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", common.NewValidationError("frequency", "unknown frequency %q", s)
	}
	return f, nil
}

// RecurrenceRule describes a repeating schedule. Build one with NewRecurrenceRule;
// a rule that fails Validate must never reach the generator.
type RecurrenceRule struct {
	StartDate  time.Time
	CustomDays mo.Option[int]
	Frequency  Frequency
	Interval   int
	Count      int
}

// RuleParams is the raw user input for a recurrence rule. Zero Interval means 1.
// CustomDays is only read for the custom frequency.
type RuleParams struct {
	StartDate  time.Time
	Frequency  Frequency
	Interval   int
	CustomDays int
	Count      int
}

// NewRecurrenceRule normalizes and validates params into a RecurrenceRule.
func NewRecurrenceRule(p RuleParams) (RecurrenceRule, error) {
	rule := RecurrenceRule{
		Frequency:  p.Frequency,
		Interval:   p.Interval,
		StartDate:  DateOf(p.StartDate),
		Count:      p.Count,
		CustomDays: mo.None[int](),
	}
	if rule.Interval == 0 {
		rule.Interval = 1
	}
	if p.Frequency == FrequencyCustom {
		rule.CustomDays = mo.Some(p.CustomDays)
	}

	if err := rule.Validate(); err != nil {
		return RecurrenceRule{}, err
	}
	return rule, nil
}

// Validate checks the rule invariants.
func (r RecurrenceRule) Validate() error {
	if !r.Frequency.IsValid() {
		return common.NewValidationError("frequency", "unknown frequency %q", r.Frequency)
	}
	if r.Interval < 1 {
		return common.NewValidationError("interval", "must be at least 1, got %d", r.Interval)
	}
	if r.Count < MinRepetitions || r.Count > MaxRepetitions {
		return common.NewValidationError("count", "must be between %d and %d, got %d",
			MinRepetitions, MaxRepetitions, r.Count)
	}
	if r.StartDate.IsZero() {
		return common.NewValidationError("start_date", "is required")
	}

	days, hasDays := r.CustomDays.Get()
	switch {
	case r.Frequency == FrequencyCustom && !hasDays:
		return common.NewValidationError("custom_days", "is required for custom frequency")
	case r.Frequency == FrequencyCustom && days < 1:
		return common.NewValidationError("custom_days", "must be at least 1, got %d", days)
	case r.Frequency != FrequencyCustom && hasDays:
		return common.NewValidationError("custom_days", "only allowed with custom frequency, got %s", r.Frequency)
	}

	return r.validateSpan()
}

// validateSpan rejects rules whose last occurrence would fall after MaxDate.
// Interval·step·Count is compared by division so it cannot overflow.
func (r RecurrenceRule) validateSpan() error {
	start := DateOf(r.StartDate)
	step, monthly := r.Frequency.baseStep(r.CustomDays.OrElse(1))

	var limit int
	if monthly {
		limit = (MaxDate.Year()-start.Year())*12 + int(MaxDate.Month()) - int(start.Month())
	} else {
		limit = int((MaxDate.Unix() - start.Unix()) / secondsPerDay)
	}

	if limit < 0 || r.Interval > limit/r.Count/step {
		return common.NewValidationError("interval", "%s would run past %s",
			r, MaxDate.Format(DateLayout))
	}
	return nil
}

// baseStep returns the length of one interval-1 step, in months when monthly
// is true and in days otherwise.
func (f Frequency) baseStep(customDays int) (step int, monthly bool) {
	switch f {
	case FrequencyWeekly:
		return 7, false
	case FrequencyBiweekly:
		return 14, false
	case FrequencyCustom:
		return customDays, false
	case FrequencyMonthly:
		return 1, true
	case FrequencyQuarterly:
		return 3, true
	case FrequencySemiannual:
		return 6, true
	case FrequencyYearly:
		return 12, true
	default:
		return 1, false
	}
}

// String renders the rule for logs and CLI output.
func (r RecurrenceRule) String() string {
	unit := string(r.Frequency)
	if days, ok := r.CustomDays.Get(); ok {
		unit = fmt.Sprintf("every %d days", days)
	}
	return fmt.Sprintf("%s x%d (interval %d) from %s", unit, r.Count, r.Interval, r.StartDate.Format(DateLayout))
}

// DateLayout is the calendar-date format used in storage and the CLI.
const DateLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// MaxDate is the last date a generated occurrence may fall on. DateLayout
// only round-trips four-digit years.
var MaxDate = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// DateOf drops the time component of t, keeping its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, common.NewValidationError("date", "expected YYYY-MM-DD, got %q", s)
	}
	return t, nil
}
