package model

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-recur/internal/common"
)

func TestNewRecurrenceRule(t *testing.T) {
	start := time.Date(2024, 1, 31, 15, 30, 0, 0, time.FixedZone("UTC-3", -3*3600))

	tests := []struct {
		name      string
		params    RuleParams
		wantField string
		check     func(t *testing.T, rule RecurrenceRule)
	}{
		{
			name:   "interval defaults to one",
			params: RuleParams{Frequency: FrequencyMonthly, StartDate: start, Count: 12},
			check: func(t *testing.T, rule RecurrenceRule) {
				assert.Equal(t, 1, rule.Interval)
			},
		},
		{
			name:   "start date loses its time component",
			params: RuleParams{Frequency: FrequencyDaily, StartDate: start, Count: 1},
			check: func(t *testing.T, rule RecurrenceRule) {
				assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), rule.StartDate)
			},
		},
		{
			name:   "custom days ignored for non-custom frequency",
			params: RuleParams{Frequency: FrequencyWeekly, StartDate: start, Count: 3, CustomDays: 10},
			check: func(t *testing.T, rule RecurrenceRule) {
				assert.True(t, rule.CustomDays.IsAbsent())
			},
		},
		{
			name:   "custom keeps its day count",
			params: RuleParams{Frequency: FrequencyCustom, StartDate: start, Count: 3, CustomDays: 10},
			check: func(t *testing.T, rule RecurrenceRule) {
				assert.Equal(t, mo.Some(10), rule.CustomDays)
			},
		},
		{
			name:      "custom without days",
			params:    RuleParams{Frequency: FrequencyCustom, StartDate: start, Count: 3},
			wantField: "custom_days",
		},
		{
			name:      "negative interval",
			params:    RuleParams{Frequency: FrequencyDaily, StartDate: start, Count: 3, Interval: -1},
			wantField: "interval",
		},
		{
			name:      "zero count",
			params:    RuleParams{Frequency: FrequencyDaily, StartDate: start},
			wantField: "count",
		},
		{
			name:      "count above maximum",
			params:    RuleParams{Frequency: FrequencyDaily, StartDate: start, Count: MaxRepetitions + 1},
			wantField: "count",
		},
		{
			name:   "count at maximum",
			params: RuleParams{Frequency: FrequencyDaily, StartDate: start, Count: MaxRepetitions},
		},
		{
			name:      "missing start date",
			params:    RuleParams{Frequency: FrequencyDaily, Count: 1},
			wantField: "start_date",
		},
		{
			name:      "unknown frequency",
			params:    RuleParams{Frequency: "hourly", StartDate: start, Count: 1},
			wantField: "frequency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := NewRecurrenceRule(tt.params)
			if tt.wantField != "" {
				var vErr *common.ValidationError
				require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
				assert.Equal(t, tt.wantField, vErr.Field)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, rule)
			}
		})
	}
}

func TestRecurrenceRule_ValidateHandBuilt(t *testing.T) {
	rule := RecurrenceRule{
		Frequency:  FrequencyMonthly,
		Interval:   1,
		Count:      2,
		StartDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		CustomDays: mo.Some(5),
	}

	err := rule.Validate()
	assert.True(t, errors.Is(err, common.ErrValidation))
	assert.Contains(t, err.Error(), "custom_days")

	rule.Frequency = FrequencyCustom
	rule.CustomDays = mo.Some(0)
	assert.Error(t, rule.Validate())

	rule.CustomDays = mo.Some(3)
	assert.NoError(t, rule.Validate())
}

func TestRecurrenceRule_SpanBound(t *testing.T) {
	jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		params  RuleParams
		wantErr bool
	}{
		{
			name:    "weekly interval that overflows the step",
			params:  RuleParams{Frequency: FrequencyWeekly, Interval: math.MaxInt/7 + 1, StartDate: jan1, Count: 3},
			wantErr: true,
		},
		{
			name:    "daily interval past year 9999",
			params:  RuleParams{Frequency: FrequencyDaily, Interval: 1 << 40, StartDate: jan1, Count: 3},
			wantErr: true,
		},
		{
			name:    "custom days that overflow",
			params:  RuleParams{Frequency: FrequencyCustom, CustomDays: math.MaxInt, StartDate: jan1, Count: 2},
			wantErr: true,
		},
		{
			name:    "yearly every 22 years for 365 repetitions",
			params:  RuleParams{Frequency: FrequencyYearly, Interval: 22, StartDate: jan1, Count: MaxRepetitions},
			wantErr: true,
		},
		{
			name:   "yearly every 21 years for 365 repetitions",
			params: RuleParams{Frequency: FrequencyYearly, Interval: 21, StartDate: jan1, Count: MaxRepetitions},
		},
		{
			name:   "last day allowed",
			params: RuleParams{Frequency: FrequencyDaily, StartDate: time.Date(9999, 12, 30, 0, 0, 0, 0, time.UTC), Count: 1},
		},
		{
			name:    "one day too far",
			params:  RuleParams{Frequency: FrequencyDaily, Interval: 2, StartDate: time.Date(9999, 12, 30, 0, 0, 0, 0, time.UTC), Count: 1},
			wantErr: true,
		},
		{
			name:    "monthly into year 10000",
			params:  RuleParams{Frequency: FrequencyMonthly, StartDate: time.Date(9999, 12, 1, 0, 0, 0, 0, time.UTC), Count: 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecurrenceRule(tt.params)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var vErr *common.ValidationError
			require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
			assert.Equal(t, "interval", vErr.Field)
			assert.Contains(t, err.Error(), "9999-12-31")
		})
	}
}

func TestParseFrequency(t *testing.T) {
	for _, f := range Frequencies {
		got, err := ParseFrequency(" " + string(f) + " ")
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}

	got, err := ParseFrequency("Monthly")
	require.NoError(t, err)
	assert.Equal(t, FrequencyMonthly, got)

	_, err = ParseFrequency("fortnightly")
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("2023-02-29")
	assert.True(t, errors.Is(err, common.ErrValidation))
}
