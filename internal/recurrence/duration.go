package recurrence

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/Veraticus/spice-recur/internal/model"
)

// Span units, smallest first.
const (
	UnitDay   = "day"
	UnitWeek  = "week"
	UnitMonth = "month"
	UnitYear  = "year"
)

// Summary is the total span covered by a rule, from its start date to the last
// generated occurrence.
type Summary struct {
	Start time.Time
	End   time.Time
	Unit  string
	Count int
	Days  int
	Value float64
}

// Summarize walks the rule with the same stepping as Generate and measures the span.
func Summarize(rule model.RecurrenceRule) (Summary, error) {
	dates, err := Generate(rule)
	if err != nil {
		return Summary{}, err
	}

	start := NewCursor(rule).Date
	end := dates[len(dates)-1]
	// time.Duration tops out near 292 years, so count days from Unix seconds.
	days := int((end.Unix() - start.Unix()) / (24 * 60 * 60))

	s := Summary{
		Start: start,
		End:   end,
		Count: rule.Count,
		Days:  days,
	}

	switch {
	case days < 7:
		s.Unit, s.Value = UnitDay, float64(days)
	case days < 30:
		s.Unit, s.Value = UnitWeek, roundTenth(float64(days)/7)
	case days < 365:
		s.Unit, s.Value = UnitMonth, roundTenth(float64(days)/30.4375)
	default:
		s.Unit, s.Value = UnitYear, roundTenth(float64(days)/365.25)
	}

	return s, nil
}

// Describe returns a one-line description such as "12 repetitions • duration ≈ 1 year".
func Describe(rule model.RecurrenceRule) (string, error) {
	s, err := Summarize(rule)
	if err != nil {
		return "", err
	}
	return s.String(), nil
}

func (s Summary) String() string {
	return fmt.Sprintf("%s • duration ≈ %s",
		plural(float64(s.Count), "repetition"),
		plural(s.Value, s.Unit))
}

func plural(v float64, unit string) string {
	n := strconv.FormatFloat(v, 'f', -1, 64)
	if v == 1 {
		return n + " " + unit
	}
	return n + " " + unit + "s"
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
