package recurrence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-recur/internal/model"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name   string
		params model.RuleParams
		want   string
	}{
		{
			name:   "single day",
			params: model.RuleParams{Frequency: model.FrequencyDaily, StartDate: date(2024, 1, 1), Count: 1},
			want:   "1 repetition • duration ≈ 1 day",
		},
		{
			name:   "a few days",
			params: model.RuleParams{Frequency: model.FrequencyDaily, StartDate: date(2024, 1, 1), Count: 3},
			want:   "3 repetitions • duration ≈ 3 days",
		},
		{
			name:   "fractional weeks",
			params: model.RuleParams{Frequency: model.FrequencyDaily, StartDate: date(2024, 1, 1), Count: 10},
			want:   "10 repetitions • duration ≈ 1.4 weeks",
		},
		{
			name:   "weeks",
			params: model.RuleParams{Frequency: model.FrequencyWeekly, StartDate: date(2024, 1, 1), Count: 3},
			want:   "3 repetitions • duration ≈ 3 weeks",
		},
		{
			name:   "months",
			params: model.RuleParams{Frequency: model.FrequencyMonthly, StartDate: date(2024, 1, 1), Count: 6},
			want:   "6 repetitions • duration ≈ 6 months",
		},
		{
			name:   "a year of months",
			params: model.RuleParams{Frequency: model.FrequencyMonthly, StartDate: date(2024, 1, 31), Count: 12},
			want:   "12 repetitions • duration ≈ 1 year",
		},
		{
			name:   "several years",
			params: model.RuleParams{Frequency: model.FrequencyYearly, StartDate: date(2024, 2, 29), Count: 4},
			want:   "4 repetitions • duration ≈ 4 years",
		},
		{
			name:   "longest yearly series",
			params: model.RuleParams{Frequency: model.FrequencyYearly, StartDate: date(2024, 1, 1), Count: model.MaxRepetitions},
			want:   "365 repetitions • duration ≈ 365 years",
		},
		{
			name:   "spans beyond what time.Duration can hold",
			params: model.RuleParams{Frequency: model.FrequencyYearly, Interval: 20, StartDate: date(2024, 1, 1), Count: 100},
			want:   "100 repetitions • duration ≈ 2000 years",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Describe(mustRule(t, tt.params))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSummarize_EndMatchesLastGeneratedDate(t *testing.T) {
	for _, freq := range model.Frequencies {
		t.Run(string(freq), func(t *testing.T) {
			rule := mustRule(t, model.RuleParams{
				Frequency:  freq,
				Interval:   2,
				StartDate:  date(2024, 1, 31),
				Count:      17,
				CustomDays: 6,
			})

			dates, err := Generate(rule)
			require.NoError(t, err)

			s, err := Summarize(rule)
			require.NoError(t, err)
			assert.Equal(t, dates[len(dates)-1], s.End)
			assert.Equal(t, date(2024, 1, 31), s.Start)
			assert.Equal(t, 17, s.Count)
			assert.Equal(t, s.End, s.Start.AddDate(0, 0, s.Days))
		})
	}
}

func TestSummarize_DaysAcrossCenturies(t *testing.T) {
	rule := mustRule(t, model.RuleParams{Frequency: model.FrequencyYearly, StartDate: date(2024, 1, 1), Count: model.MaxRepetitions})

	s, err := Summarize(rule)
	require.NoError(t, err)
	assert.Equal(t, date(2389, 1, 1), s.End)
	assert.Equal(t, s.End, s.Start.AddDate(0, 0, s.Days))
	assert.Equal(t, 365.0, s.Value)
	assert.Equal(t, UnitYear, s.Unit)
}

func TestSummarize_InvalidRule(t *testing.T) {
	_, err := Summarize(model.RecurrenceRule{Frequency: model.FrequencyDaily, Interval: 1, StartDate: date(2024, 1, 1)})
	assert.Error(t, err)
}
