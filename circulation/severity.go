package circulation

import (
	"fmt"
	"time"
)

// GracePeriod is the buffer after a due instant before the sweep promotes
// a borrowed record to overdue.
const GracePeriod = 24 * time.Hour

const hoursPerDay = 24

// SeverityTier drives the blacklist duration applied by the sweep.
type SeverityTier string

const (
	// SeverityNone means the student stays off the blacklist.
	SeverityNone SeverityTier = ""
	// SeverityLow is a single loan that has been overdue for a few days.
	SeverityLow SeverityTier = "low"
	// SeverityMedium is repeated or week-long lateness.
	SeverityMedium SeverityTier = "medium"
	// SeverityHigh is chronic or two-week lateness.
	SeverityHigh SeverityTier = "high"
)

// Tier thresholds and blacklist durations. A student below every threshold
// is not blacklisted at all: one loan three days late stays clean.
const (
	highTierMinCount   = 3
	highTierMinDays    = 14
	highTierBanDays    = 21
	mediumTierMinCount = 2
	mediumTierMinDays  = 7
	mediumTierBanDays  = 14
	lowTierMinDays     = 4
	lowTierBanDays     = 7
)

// ClassifySeverity maps a student's overdue count and maximum days overdue
// onto a severity tier and the blacklist duration for that tier.
// SeverityNone with a zero duration means no blacklist applies.
func ClassifySeverity(overdueCount int, maxDaysOverdue int) (SeverityTier, time.Duration) {
	switch {
	case overdueCount >= highTierMinCount || maxDaysOverdue >= highTierMinDays:
		return SeverityHigh, highTierBanDays * hoursPerDay * time.Hour
	case overdueCount >= mediumTierMinCount || maxDaysOverdue >= mediumTierMinDays:
		return SeverityMedium, mediumTierBanDays * hoursPerDay * time.Hour
	case maxDaysOverdue >= lowTierMinDays:
		return SeverityLow, lowTierBanDays * hoursPerDay * time.Hour
	default:
		return SeverityNone, 0
	}
}

// DaysOverdue returns the number of full days between the due instant and
// now, never negative.
func DaysOverdue(due time.Time, now time.Time) int {
	if !now.After(due) {
		return 0
	}

	return int(now.Sub(due) / (hoursPerDay * time.Hour))
}

// BlacklistReason renders the generated justification stored on a student
// when the sweep applies a blacklist.
func BlacklistReason(tier SeverityTier, overdueCount int, maxDaysOverdue int, duration time.Duration) string {
	return fmt.Sprintf(
		"overdue severity %s: %d overdue loan(s), at most %d day(s) overdue, blacklisted for %d days",
		tier, overdueCount, maxDaysOverdue, int(duration/(hoursPerDay*time.Hour)),
	)
}

// AutoUnblacklistReason renders the message stamped on a student when the
// reconciler clears a blacklist automatically. It references the prior
// reason for traceability.
func AutoUnblacklistReason(priorReason string, now time.Time) string {
	return fmt.Sprintf(
		"auto-cleared on %s, all overdue loans resolved (was: %s)",
		now.UTC().Format(time.RFC3339), priorReason,
	)
}
