package lending

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/campuslib/circulation-engine-go/circulation"
)

// SweepSummary reports what one sweep run changed. A re-run over unchanged
// state yields the zero summary.
type SweepSummary struct {
	Promoted      int `json:"promoted"`
	Blacklisted   int `json:"blacklisted"`
	Unblacklisted int `json:"unblacklisted"`
}

// overdueStats aggregates one student's overdue records for classification.
type overdueStats struct {
	count          int
	maxDaysOverdue int
}

// Sweep runs the overdue maintenance pass in one transaction:
// promote borrowed records past due plus grace to overdue, blacklist
// students by severity tier, then auto-clear blacklists with no overdue
// records left. Idempotent: each step only touches rows that still need
// the change.
func (s *Service) Sweep(ctx context.Context) (SweepSummary, error) {
	var summary SweepSummary

	retryErr := RetryWithExponentialBackoff(ctx, func(retryCtx context.Context) error {
		summary = SweepSummary{}

		return s.storage.WithinTx(retryCtx, func(txCtx context.Context, uow circulation.UnitOfWork) error {
			now := circulation.ToInstant(s.clock())

			promoted, err := s.promoteOverdue(txCtx, uow, now)
			if err != nil {
				return err
			}

			blacklisted, err := s.applyBlacklists(txCtx, uow, now)
			if err != nil {
				return err
			}

			unblacklisted, err := s.reconcileWithin(txCtx, uow, now)
			if err != nil {
				return err
			}

			summary = SweepSummary{
				Promoted:      promoted,
				Blacklisted:   blacklisted,
				Unblacklisted: unblacklisted,
			}

			return nil
		})
	}, s.retryOptionsFor(operationSweep)...)

	if retryErr != nil {
		return SweepSummary{}, retryErr
	}

	s.logInfo(logMsgSweepCompleted,
		"promoted", summary.Promoted,
		"blacklisted", summary.Blacklisted,
		"unblacklisted", summary.Unblacklisted,
	)

	return summary, nil
}

// promoteOverdue flips borrowed records whose due instant lies more than
// the grace period in the past to overdue.
func (s *Service) promoteOverdue(
	ctx context.Context,
	uow circulation.UnitOfWork,
	now circulation.Instant,
) (int, error) {
	cutoff := now.Add(-circulation.GracePeriod)

	due, err := uow.ListBorrowedDueBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for i := range due {
		due[i].Status = circulation.RecordOverdue
		if err := uow.SaveBorrowRecord(ctx, due[i]); err != nil {
			return 0, err
		}
	}

	return len(due), nil
}

// applyBlacklists classifies every student holding overdue records and
// applies the tier's blacklist. Students already blacklisted are left
// untouched; their term is never extended by a later sweep.
func (s *Service) applyBlacklists(
	ctx context.Context,
	uow circulation.UnitOfWork,
	now circulation.Instant,
) (int, error) {
	overdue, err := uow.ListOverdueRecords(ctx)
	if err != nil {
		return 0, err
	}

	statsByStudent := make(map[uuid.UUID]overdueStats)
	for _, record := range overdue {
		stats := statsByStudent[record.StudentID]
		stats.count++

		if days := circulation.DaysOverdue(record.DueAt, now); days > stats.maxDaysOverdue {
			stats.maxDaysOverdue = days
		}

		statsByStudent[record.StudentID] = stats
	}

	// Deterministic order keeps runs reproducible and lock acquisition stable.
	studentIDs := make([]uuid.UUID, 0, len(statsByStudent))
	for studentID := range statsByStudent {
		studentIDs = append(studentIDs, studentID)
	}
	sort.Slice(studentIDs, func(i, j int) bool {
		return studentIDs[i].String() < studentIDs[j].String()
	})

	applied := 0

	for _, studentID := range studentIDs {
		stats := statsByStudent[studentID]

		tier, duration := circulation.ClassifySeverity(stats.count, stats.maxDaysOverdue)
		if tier == circulation.SeverityNone {
			continue
		}

		student, err := uow.FindStudent(ctx, studentID)
		if err != nil {
			return 0, err
		}

		if student.Blacklisted {
			continue
		}

		until := now.Add(duration)
		student.Blacklisted = true
		student.BlacklistedUntil = &until
		student.BlacklistReason = circulation.BlacklistReason(tier, stats.count, stats.maxDaysOverdue, duration)

		if err := uow.SaveStudent(ctx, student); err != nil {
			return 0, err
		}

		applied++
	}

	return applied, nil
}
