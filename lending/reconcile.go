package lending

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/campuslib/circulation-engine-go/circulation"
)

const minUnblacklistReasonLength = 10

// Reconcile clears the blacklist of every student with no overdue records
// left and returns how many students it cleared. The sweep runs the same
// step; this entry point exists for running reconciliation on its own.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	var cleared int

	retryErr := RetryWithExponentialBackoff(ctx, func(retryCtx context.Context) error {
		return s.storage.WithinTx(retryCtx, func(txCtx context.Context, uow circulation.UnitOfWork) error {
			now := circulation.ToInstant(s.clock())

			count, err := s.reconcileWithin(txCtx, uow, now)
			if err != nil {
				return err
			}

			cleared = count

			return nil
		})
	}, s.retryOptionsFor(operationSweep)...)

	if retryErr != nil {
		return 0, retryErr
	}

	return cleared, nil
}

// reconcileWithin is the transaction-scoped reconciliation step shared by
// Sweep and Reconcile. Expired terms are not cleared here on their own:
// only students whose overdue records are all resolved get cleaned up, and
// an expired term stops blocking borrows by itself.
func (s *Service) reconcileWithin(
	ctx context.Context,
	uow circulation.UnitOfWork,
	now circulation.Instant,
) (int, error) {
	blacklisted, err := uow.ListBlacklistedStudents(ctx)
	if err != nil {
		return 0, err
	}

	if len(blacklisted) == 0 {
		return 0, nil
	}

	overdue, err := uow.ListOverdueRecords(ctx)
	if err != nil {
		return 0, err
	}

	hasOverdue := make(map[uuid.UUID]bool, len(overdue))
	for _, record := range overdue {
		hasOverdue[record.StudentID] = true
	}

	cleared := 0

	for _, student := range blacklisted {
		if hasOverdue[student.ID] {
			continue
		}

		priorReason := student.BlacklistReason
		clearedAt := now

		student.Blacklisted = false
		student.BlacklistedUntil = nil
		student.BlacklistReason = ""
		student.UnblacklistReason = circulation.AutoUnblacklistReason(priorReason, now)
		student.UnblacklistedBy = nil
		student.UnblacklistedAt = &clearedAt

		if err := uow.SaveStudent(ctx, student); err != nil {
			return 0, err
		}

		cleared++
	}

	return cleared, nil
}

// ManualUnblacklist clears a student's blacklist on an administrator's
// decision. The reason is mandatory, at least 10 characters after
// trimming, and lands in the audit trail together with the admin identity.
// The audit write is best-effort: the cleared student is returned even
// when the audit append fails.
func (s *Service) ManualUnblacklist(
	ctx context.Context,
	studentID uuid.UUID,
	reason string,
	adminID uuid.UUID,
) (circulation.Student, error) {
	trimmedReason := strings.TrimSpace(reason)
	if utf8.RuneCountInString(trimmedReason) < minUnblacklistReasonLength {
		return circulation.Student{}, circulation.ErrInvalidReason
	}

	if adminID == uuid.Nil {
		return circulation.Student{}, circulation.ErrMissingAdmin
	}

	var (
		student     circulation.Student
		priorReason string
	)

	retryErr := RetryWithExponentialBackoff(ctx, func(retryCtx context.Context) error {
		return s.storage.WithinTx(retryCtx, func(txCtx context.Context, uow circulation.UnitOfWork) error {
			found, err := uow.FindStudent(txCtx, studentID)
			if err != nil {
				return err
			}

			if !found.Blacklisted {
				return circulation.ErrNotBlacklisted
			}

			now := circulation.ToInstant(s.clock())
			priorReason = found.BlacklistReason

			found.Blacklisted = false
			found.BlacklistedUntil = nil
			found.BlacklistReason = ""
			found.UnblacklistReason = trimmedReason
			found.UnblacklistedBy = &adminID
			found.UnblacklistedAt = &now

			if err := uow.SaveStudent(txCtx, found); err != nil {
				return err
			}

			student = found

			return nil
		})
	}, s.retryOptionsFor(operationUnblacklist)...)

	if retryErr != nil {
		return circulation.Student{}, retryErr
	}

	s.audit.Record(ctx, adminID, ActionUnblacklistStudent, TargetStudent, studentID, unblacklistDetails{
		Reason:      trimmedReason,
		PriorReason: priorReason,
	})

	s.logInfo(logMsgUnblacklisted, logAttrStudentID, studentID.String(), "admin_id", adminID.String())

	return student, nil
}

// unblacklistDetails is the audit payload of a manual unblacklist.
type unblacklistDetails struct {
	Reason      string `json:"reason"`
	PriorReason string `json:"prior_reason,omitempty"`
}
