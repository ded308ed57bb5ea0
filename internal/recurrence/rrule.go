package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/Veraticus/spice-recur/internal/model"
)

// RRule maps rule onto RFC 5545 options. DTSTART is the template's own date and
// COUNT covers the template plus its generated occurrences. Anchors past the
// 28th use BYMONTHDAY=28..d;BYSETPOS=-1 so short months clamp the same way Step does.
func RRule(rule model.RecurrenceRule) (*rrule.ROption, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	start := model.DateOf(rule.StartDate)
	opt := &rrule.ROption{
		Dtstart:  start,
		Interval: rule.Interval,
		Count:    rule.Count + 1,
	}

	switch rule.Frequency {
	case model.FrequencyDaily:
		opt.Freq = rrule.DAILY
	case model.FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
	case model.FrequencyBiweekly:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 2 * rule.Interval
	case model.FrequencyCustom:
		opt.Freq = rrule.DAILY
		opt.Interval = rule.CustomDays.OrElse(1) * rule.Interval
	case model.FrequencyMonthly, model.FrequencyQuarterly, model.FrequencySemiannual:
		opt.Freq = rrule.MONTHLY
		opt.Interval = monthsPerStep(rule.Frequency) * rule.Interval
		if day := start.Day(); day > 28 {
			opt.Bymonthday = dayRange(28, day)
			opt.Bysetpos = []int{-1}
		}
	case model.FrequencyYearly:
		opt.Freq = rrule.YEARLY
		if start.Month() == time.February && start.Day() == 29 {
			opt.Bymonth = []int{2}
			opt.Bymonthday = []int{28, 29}
			opt.Bysetpos = []int{-1}
		}
	default:
		return nil, fmt.Errorf("no RRULE mapping for frequency %q", rule.Frequency)
	}

	return opt, nil
}

// RRuleString returns the RRULE value (without DTSTART) stored on parent templates.
func RRuleString(rule model.RecurrenceRule) (string, error) {
	opt, err := RRule(rule)
	if err != nil {
		return "", err
	}
	return opt.RRuleString(), nil
}

// ExpandRRule expands a stored RRULE value anchored at start and drops the
// anchor itself, yielding the same dates Generate would for the original rule.
func ExpandRRule(value string, start time.Time) ([]time.Time, error) {
	opt, err := rrule.StrToROption(strings.TrimPrefix(value, "RRULE:"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse RRULE: %w", err)
	}
	if opt.Count == 0 && opt.Until.IsZero() {
		return nil, fmt.Errorf("RRULE %q is unbounded", value)
	}
	opt.Dtstart = model.DateOf(start)

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("failed to build RRULE: %w", err)
	}

	all := r.All()
	if len(all) == 0 {
		return nil, nil
	}
	return all[1:], nil
}

func monthsPerStep(f model.Frequency) int {
	switch f {
	case model.FrequencyQuarterly:
		return 3
	case model.FrequencySemiannual:
		return 6
	default:
		return 1
	}
}

func dayRange(from, to int) []int {
	days := make([]int, 0, to-from+1)
	for d := from; d <= to; d++ {
		days = append(days, d)
	}
	return days
}
