package lending

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/campuslib/circulation-engine-go/circulation"
)

// Borrow lends one available copy of the book to the student and returns
// the created ledger entry.
//
// Preconditions, checked inside one transaction: the student holds no
// overdue loans, is not actively blacklisted, and the book has an
// available copy. The due instant comes from the supplied period, or the
// book's default period when period is nil. Transaction conflicts are
// retried with backoff; rejections are not.
func (s *Service) Borrow(
	ctx context.Context,
	studentID uuid.UUID,
	bookID uuid.UUID,
	period *circulation.DuePeriod,
) (circulation.BorrowRecord, error) {
	var record circulation.BorrowRecord

	retryErr := RetryWithExponentialBackoff(ctx, func(retryCtx context.Context) error {
		return s.storage.WithinTx(retryCtx, func(txCtx context.Context, uow circulation.UnitOfWork) error {
			borrowed, err := s.borrowWithin(txCtx, uow, studentID, bookID, period)
			if err != nil {
				return err
			}

			record = borrowed

			return nil
		})
	}, s.retryOptionsFor(operationBorrow)...)

	if retryErr != nil {
		return circulation.BorrowRecord{}, retryErr
	}

	s.logInfo(logMsgBorrowed, logAttrRecordID, record.ID.String(), logAttrStudentID, studentID.String(), logAttrBookID, bookID.String())

	return record, nil
}

func (s *Service) borrowWithin(
	ctx context.Context,
	uow circulation.UnitOfWork,
	studentID uuid.UUID,
	bookID uuid.UUID,
	period *circulation.DuePeriod,
) (circulation.BorrowRecord, error) {
	now := circulation.ToInstant(s.clock())

	hasOverdue, err := s.hasOverdueLoans(ctx, uow, studentID, now)
	if err != nil {
		return circulation.BorrowRecord{}, err
	}

	if hasOverdue {
		return circulation.BorrowRecord{}, circulation.ErrHasOverdueBooks
	}

	student, err := uow.FindStudent(ctx, studentID)
	if err != nil {
		return circulation.BorrowRecord{}, err
	}

	if student.HasActiveBlacklist(now) {
		return circulation.BorrowRecord{}, circulation.ErrStudentBlacklisted
	}

	// An unknown book has no copies, so allocation fails the same way as a
	// fully lent-out one.
	book, err := uow.FindBook(ctx, bookID)
	if err != nil {
		if errors.Is(err, circulation.ErrBookNotFound) {
			return circulation.BorrowRecord{}, circulation.ErrNoAvailableCopy
		}

		return circulation.BorrowRecord{}, err
	}

	claimed, err := uow.ClaimAvailableCopy(ctx, bookID)
	if err != nil {
		return circulation.BorrowRecord{}, err
	}

	duePeriod := book.DefaultPeriod
	if period != nil {
		duePeriod = *period
	}

	record := circulation.BorrowRecord{
		ID:         uuid.New(),
		CopyID:     claimed.ID,
		StudentID:  student.ID,
		BorrowedAt: now,
		DueAt:      circulation.ComputeDueDate(now, duePeriod.Value, duePeriod.Unit),
		Status:     circulation.RecordBorrowed,

		StudentName:  student.Name,
		StudentClass: student.Class,
		BookTitle:    book.Title,
		BookAuthor:   book.Author,
		CatalogCode:  claimed.CatalogCode,
	}

	if err := uow.InsertBorrowRecord(ctx, record); err != nil {
		return circulation.BorrowRecord{}, err
	}

	return record, nil
}

// hasOverdueLoans reports whether the student holds any loan past its due
// instant: still-borrowed records past due, or records the sweep already
// promoted to overdue.
func (s *Service) hasOverdueLoans(
	ctx context.Context,
	uow circulation.UnitOfWork,
	studentID uuid.UUID,
	now circulation.Instant,
) (bool, error) {
	count, err := uow.CountBorrowedDueBefore(ctx, studentID, now)
	if err != nil {
		return false, err
	}

	if count > 0 {
		return true, nil
	}

	promoted, err := uow.ListOverdueRecords(ctx)
	if err != nil {
		return false, err
	}

	for _, record := range promoted {
		if record.StudentID == studentID {
			return true, nil
		}
	}

	return false, nil
}

// Return closes the borrow record: stamps the return instant, sets status
// returned and releases the copy, all in one transaction. Returning an
// already-returned record is a no-op that yields the stored record.
func (s *Service) Return(ctx context.Context, recordID uuid.UUID) (circulation.BorrowRecord, error) {
	var record circulation.BorrowRecord

	retryErr := RetryWithExponentialBackoff(ctx, func(retryCtx context.Context) error {
		return s.storage.WithinTx(retryCtx, func(txCtx context.Context, uow circulation.UnitOfWork) error {
			found, err := uow.FindBorrowRecord(txCtx, recordID)
			if err != nil {
				return err
			}

			if found.Status == circulation.RecordReturned {
				record = found
				return nil
			}

			now := circulation.ToInstant(s.clock())
			found.Status = circulation.RecordReturned
			found.ReturnedAt = &now

			if err := uow.SaveBorrowRecord(txCtx, found); err != nil {
				return err
			}

			if err := uow.ReleaseCopy(txCtx, found.CopyID); err != nil {
				return err
			}

			record = found

			return nil
		})
	}, s.retryOptionsFor(operationReturn)...)

	if retryErr != nil {
		return circulation.BorrowRecord{}, retryErr
	}

	s.logInfo(logMsgReturned, logAttrRecordID, record.ID.String(), logAttrStudentID, record.StudentID.String())

	return record, nil
}
