package circulation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/campuslib/circulation-engine-go/circulation"
)

func Test_ComputeDueDate_HoursDaysWeeks(t *testing.T) {
	start := time.Date(2024, time.March, 10, 9, 30, 0, 0, time.UTC)

	assert.Equal(t, start.Add(36*time.Hour), circulation.ComputeDueDate(start, 36, circulation.UnitHours))
	assert.Equal(t, start.AddDate(0, 0, 5), circulation.ComputeDueDate(start, 5, circulation.UnitDays))
	assert.Equal(t, start.AddDate(0, 0, 14), circulation.ComputeDueDate(start, 2, circulation.UnitWeeks))
}

func Test_ComputeDueDate_WeeksEqualSevenTimesDays(t *testing.T) {
	start := time.Date(2023, time.November, 1, 12, 0, 0, 0, time.UTC)

	for value := 1; value <= 8; value++ {
		weeks := circulation.ComputeDueDate(start, value, circulation.UnitWeeks)
		days := circulation.ComputeDueDate(start, value*7, circulation.UnitDays)

		assert.Equal(t, days, weeks, "weeks=%d must equal days=%d", value, value*7)
	}
}

func Test_ComputeDueDate_MonthsClampDayOfMonth(t *testing.T) {
	tests := []struct {
		name     string
		start    time.Time
		value    int
		expected time.Time
	}{
		{
			name:     "Jan 31 plus one month clamps to Feb 28",
			start:    time.Date(2023, time.January, 31, 10, 0, 0, 0, time.UTC),
			value:    1,
			expected: time.Date(2023, time.February, 28, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "Jan 31 plus one month clamps to Feb 29 in a leap year",
			start:    time.Date(2024, time.January, 31, 10, 0, 0, 0, time.UTC),
			value:    1,
			expected: time.Date(2024, time.February, 29, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "Oct 31 plus one month clamps to Nov 30",
			start:    time.Date(2023, time.October, 31, 8, 15, 0, 0, time.UTC),
			value:    1,
			expected: time.Date(2023, time.November, 30, 8, 15, 0, 0, time.UTC),
		},
		{
			name:     "mid-month day is kept",
			start:    time.Date(2023, time.April, 12, 8, 15, 0, 0, time.UTC),
			value:    3,
			expected: time.Date(2023, time.July, 12, 8, 15, 0, 0, time.UTC),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, circulation.ComputeDueDate(tc.start, tc.value, circulation.UnitMonths))
		})
	}
}

func Test_ComputeDueDate_YearsHandleLeapDay(t *testing.T) {
	start := time.Date(2024, time.February, 29, 14, 0, 0, 0, time.UTC)

	due := circulation.ComputeDueDate(start, 1, circulation.UnitYears)

	assert.Equal(t, time.Date(2025, time.February, 28, 14, 0, 0, 0, time.UTC), due)
}

func Test_ComputeDueDate_UnknownUnitFallsBackTo24Hours(t *testing.T) {
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	// The fallback is intentional default behavior, not an error, and it
	// ignores the supplied value.
	assert.Equal(t, start.Add(24*time.Hour), circulation.ComputeDueDate(start, 99, circulation.PeriodUnit("fortnights")))
	assert.Equal(t, start.Add(24*time.Hour), circulation.ComputeDueDate(start, 3, circulation.PeriodUnit("")))
}

func Test_ComputeDueDate_MonotonicInValue(t *testing.T) {
	start := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)
	units := []circulation.PeriodUnit{
		circulation.UnitHours,
		circulation.UnitDays,
		circulation.UnitWeeks,
		circulation.UnitMonths,
		circulation.UnitYears,
	}

	for _, unit := range units {
		previous := circulation.ComputeDueDate(start, 1, unit)

		for value := 2; value <= 30; value++ {
			current := circulation.ComputeDueDate(start, value, unit)

			assert.True(t, current.After(previous), "unit %s must be monotonic at value %d", unit, value)
			previous = current
		}
	}
}

func Test_ParsePeriodUnit(t *testing.T) {
	tests := []struct {
		raw      string
		expected circulation.PeriodUnit
		known    bool
	}{
		{raw: "hours", expected: circulation.UnitHours, known: true},
		{raw: " Days ", expected: circulation.UnitDays, known: true},
		{raw: "WEEKS", expected: circulation.UnitWeeks, known: true},
		{raw: "months", expected: circulation.UnitMonths, known: true},
		{raw: "years", expected: circulation.UnitYears, known: true},
		{raw: "fortnights", expected: circulation.PeriodUnit(""), known: false},
		{raw: "", expected: circulation.PeriodUnit(""), known: false},
	}

	for _, tc := range tests {
		unit, known := circulation.ParsePeriodUnit(tc.raw)

		assert.Equal(t, tc.expected, unit, "raw=%q", tc.raw)
		assert.Equal(t, tc.known, known, "raw=%q", tc.raw)
	}
}
