package circulation

import (
	"strings"
	"time"
)

// PeriodUnit is the closed set of time units a due period can use.
type PeriodUnit string

const (
	// UnitHours counts plain wall-clock hours.
	UnitHours PeriodUnit = "hours"
	// UnitDays counts calendar days.
	UnitDays PeriodUnit = "days"
	// UnitWeeks counts calendar weeks (7 days each).
	UnitWeeks PeriodUnit = "weeks"
	// UnitMonths counts calendar months with day-of-month clamping.
	UnitMonths PeriodUnit = "months"
	// UnitYears counts calendar years with leap-day clamping.
	UnitYears PeriodUnit = "years"
)

const (
	daysPerWeek   = 7
	monthsPerYear = 12

	// fallbackDueHours is the documented default applied when the unit is
	// unknown or missing. The original system silently fell back to 24
	// hours instead of rejecting the input, and callers depend on that.
	// TODO: revisit with product whether unknown units should be a 400
	// at the API boundary instead of a silent fallback.
	fallbackDueHours = 24
)

// DuePeriod is a loan duration: a value plus a unit, e.g. 2 weeks.
type DuePeriod struct {
	Value int
	Unit  PeriodUnit
}

// ParsePeriodUnit maps a free-form unit string onto the closed enum.
// The second return value reports whether the input was recognized;
// callers that want the legacy behavior pass unrecognized input to
// ComputeDueDate unchanged and get the 24-hour fallback.
func ParsePeriodUnit(raw string) (PeriodUnit, bool) {
	switch PeriodUnit(strings.ToLower(strings.TrimSpace(raw))) {
	case UnitHours:
		return UnitHours, true
	case UnitDays:
		return UnitDays, true
	case UnitWeeks:
		return UnitWeeks, true
	case UnitMonths:
		return UnitMonths, true
	case UnitYears:
		return UnitYears, true
	default:
		return "", false
	}
}

// ComputeDueDate maps a start instant, a period value and a unit to the due
// instant. It is pure and deterministic, and monotonically increasing in
// value for a fixed unit.
//
// Weeks are exactly 7 days. Months and years use calendar-aware addition
// with day-of-month clamping: one month after Jan 31 is the last day of
// February, never March 2nd or 3rd. An unknown unit yields the fixed
// 24-hour fallback regardless of value.
func ComputeDueDate(start time.Time, value int, unit PeriodUnit) time.Time {
	switch unit {
	case UnitHours:
		return start.Add(time.Duration(value) * time.Hour)
	case UnitDays:
		return start.AddDate(0, 0, value)
	case UnitWeeks:
		return start.AddDate(0, 0, value*daysPerWeek)
	case UnitMonths:
		return addMonthsClamped(start, value)
	case UnitYears:
		return addMonthsClamped(start, value*monthsPerYear)
	default:
		return start.Add(fallbackDueHours * time.Hour)
	}
}

// addMonthsClamped adds months keeping the day of month where possible and
// clamping to the last day of the target month on overflow.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, second := t.Clock()

	firstOfTarget := time.Date(year, month, 1, hour, minute, second, t.Nanosecond(), t.Location()).
		AddDate(0, months, 0)

	if last := lastDayOfMonth(firstOfTarget.Year(), firstOfTarget.Month()); day > last {
		day = last
	}

	return time.Date(
		firstOfTarget.Year(), firstOfTarget.Month(), day,
		hour, minute, second, t.Nanosecond(), t.Location(),
	)
}

// lastDayOfMonth returns the number of days in the given month.
func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
