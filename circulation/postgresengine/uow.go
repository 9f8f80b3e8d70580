package postgresengine

import (
	"context"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/campuslib/circulation-engine-go/circulation"
	"github.com/campuslib/circulation-engine-go/circulation/postgresengine/internal/adapters"
)

// unitOfWork is the transaction-scoped view of a Store. All queries run on
// the wrapped transaction; the surrounding WithinTx call owns commit and
// rollback.
type unitOfWork struct {
	store *Store
	tx    adapters.DBTx
}

func (u *unitOfWork) FindStudent(ctx context.Context, studentID uuid.UUID) (circulation.Student, error) {
	return u.store.findStudent(ctx, u.tx, studentID, true)
}

func (u *unitOfWork) SaveStudent(ctx context.Context, student circulation.Student) error {
	stmt := u.store.builder().
		Update(u.store.tables.students).
		Set(studentRecord(student)).
		Where(goqu.Ex{colID: student.ID.String()})

	sqlQuery, buildErr := u.store.toSQL(stmt)
	if buildErr != nil {
		return buildErr
	}

	rowsAffected, execErr := u.store.executeExec(ctx, u.tx, sqlQuery)
	if execErr != nil {
		return execErr
	}

	if rowsAffected == 0 {
		return circulation.ErrStudentNotFound
	}

	return nil
}

func (u *unitOfWork) FindBook(ctx context.Context, bookID uuid.UUID) (circulation.Book, error) {
	return u.store.findBook(ctx, u.tx, bookID)
}

// ClaimAvailableCopy flips one available copy of the book to borrowed and
// returns it. The inner select locks the chosen row with SKIP LOCKED, so
// concurrent claims each pick a different copy instead of queueing on the
// same one.
func (u *unitOfWork) ClaimAvailableCopy(ctx context.Context, bookID uuid.UUID) (circulation.Copy, error) {
	pick := u.store.builder().
		From(u.store.tables.copies).
		Select(colID).
		Where(goqu.Ex{
			colBookID: bookID.String(),
			colStatus: string(circulation.CopyAvailable),
		}).
		Limit(1).
		ForUpdate(exp.SkipLocked)

	stmt := u.store.builder().
		Update(u.store.tables.copies).
		Set(goqu.Record{colStatus: string(circulation.CopyBorrowed)}).
		Where(goqu.C(colID).Eq(pick)).
		Returning(colID, colBookID, colCatalogCode, colStatus)

	sqlQuery, buildErr := u.store.toSQL(stmt)
	if buildErr != nil {
		return circulation.Copy{}, buildErr
	}

	rows, queryErr := u.store.executeQuery(ctx, u.tx, sqlQuery)
	if queryErr != nil {
		return circulation.Copy{}, queryErr
	}
	defer u.store.closeRows(rows)

	if !rows.Next() {
		return circulation.Copy{}, circulation.ErrNoAvailableCopy
	}

	return scanCopy(rows)
}

func (u *unitOfWork) ReleaseCopy(ctx context.Context, copyID uuid.UUID) error {
	stmt := u.store.builder().
		Update(u.store.tables.copies).
		Set(goqu.Record{colStatus: string(circulation.CopyAvailable)}).
		Where(goqu.Ex{colID: copyID.String()})

	sqlQuery, buildErr := u.store.toSQL(stmt)
	if buildErr != nil {
		return buildErr
	}

	// Zero affected rows is fine: the copy was already available or gone.
	_, execErr := u.store.executeExec(ctx, u.tx, sqlQuery)

	return execErr
}

func (u *unitOfWork) InsertBorrowRecord(ctx context.Context, record circulation.BorrowRecord) error {
	row := goqu.Record{
		colID:           record.ID.String(),
		colCopyID:       record.CopyID.String(),
		colStudentID:    record.StudentID.String(),
		colBorrowedAt:   record.BorrowedAt,
		colDueAt:        record.DueAt,
		colReturnedAt:   nil,
		colStatus:       string(record.Status),
		colStudentName:  record.StudentName,
		colStudentClass: record.StudentClass,
		colBookTitle:    record.BookTitle,
		colBookAuthor:   record.BookAuthor,
		colCatalogCode:  record.CatalogCode,
	}

	if record.ReturnedAt != nil {
		row[colReturnedAt] = *record.ReturnedAt
	}

	stmt := u.store.builder().Insert(u.store.tables.borrowRecords).Rows(row)

	return u.store.execInsert(ctx, u.tx, stmt)
}

func (u *unitOfWork) FindBorrowRecord(ctx context.Context, recordID uuid.UUID) (circulation.BorrowRecord, error) {
	stmt := u.store.builder().
		From(u.store.tables.borrowRecords).
		Select(recordColumns()...).
		Where(goqu.Ex{colID: recordID.String()}).
		ForUpdate(exp.Wait)

	sqlQuery, buildErr := u.store.toSQL(stmt)
	if buildErr != nil {
		return circulation.BorrowRecord{}, buildErr
	}

	rows, queryErr := u.store.executeQuery(ctx, u.tx, sqlQuery)
	if queryErr != nil {
		return circulation.BorrowRecord{}, queryErr
	}
	defer u.store.closeRows(rows)

	if !rows.Next() {
		return circulation.BorrowRecord{}, circulation.ErrRecordNotFound
	}

	return scanRecord(rows)
}

func (u *unitOfWork) SaveBorrowRecord(ctx context.Context, record circulation.BorrowRecord) error {
	row := goqu.Record{
		colStatus:     string(record.Status),
		colReturnedAt: nil,
	}

	if record.ReturnedAt != nil {
		row[colReturnedAt] = *record.ReturnedAt
	}

	stmt := u.store.builder().
		Update(u.store.tables.borrowRecords).
		Set(row).
		Where(goqu.Ex{colID: record.ID.String()})

	sqlQuery, buildErr := u.store.toSQL(stmt)
	if buildErr != nil {
		return buildErr
	}

	rowsAffected, execErr := u.store.executeExec(ctx, u.tx, sqlQuery)
	if execErr != nil {
		return execErr
	}

	if rowsAffected == 0 {
		return circulation.ErrRecordNotFound
	}

	return nil
}

func (u *unitOfWork) CountBorrowedDueBefore(ctx context.Context, studentID uuid.UUID, cutoff time.Time) (int, error) {
	stmt := u.store.builder().
		From(u.store.tables.borrowRecords).
		Select(goqu.COUNT(goqu.Star())).
		Where(
			goqu.C(colStudentID).Eq(studentID.String()),
			goqu.C(colStatus).Eq(string(circulation.RecordBorrowed)),
			goqu.C(colDueAt).Lt(cutoff),
		)

	sqlQuery, buildErr := u.store.toSQL(stmt)
	if buildErr != nil {
		return 0, buildErr
	}

	rows, queryErr := u.store.executeQuery(ctx, u.tx, sqlQuery)
	if queryErr != nil {
		return 0, queryErr
	}
	defer u.store.closeRows(rows)

	if !rows.Next() {
		return 0, errors.Join(circulation.ErrTxFailed, errors.New("count query returned no row"))
	}

	var count int64
	if scanErr := rows.Scan(&count); scanErr != nil {
		return 0, errors.Join(circulation.ErrTxFailed, scanErr)
	}

	return int(count), nil
}

func (u *unitOfWork) ListBorrowedDueBefore(ctx context.Context, cutoff time.Time) ([]circulation.BorrowRecord, error) {
	stmt := u.store.builder().
		From(u.store.tables.borrowRecords).
		Select(recordColumns()...).
		Where(
			goqu.C(colStatus).Eq(string(circulation.RecordBorrowed)),
			goqu.C(colDueAt).Lt(cutoff),
		).
		Order(goqu.I(colDueAt).Asc(), goqu.I(colID).Asc())

	return u.store.queryRecords(ctx, u.tx, stmt)
}

func (u *unitOfWork) ListOverdueRecords(ctx context.Context) ([]circulation.BorrowRecord, error) {
	stmt := u.store.builder().
		From(u.store.tables.borrowRecords).
		Select(recordColumns()...).
		Where(goqu.C(colStatus).Eq(string(circulation.RecordOverdue))).
		Order(goqu.I(colDueAt).Asc(), goqu.I(colID).Asc())

	return u.store.queryRecords(ctx, u.tx, stmt)
}

func (u *unitOfWork) ListBlacklistedStudents(ctx context.Context) ([]circulation.Student, error) {
	stmt := u.store.builder().
		From(u.store.tables.students).
		Select(studentColumns()...).
		Where(goqu.C(colBlacklisted).IsTrue()).
		Order(goqu.I(colID).Asc())

	sqlQuery, buildErr := u.store.toSQL(stmt)
	if buildErr != nil {
		return nil, buildErr
	}

	rows, queryErr := u.store.executeQuery(ctx, u.tx, sqlQuery)
	if queryErr != nil {
		return nil, queryErr
	}
	defer u.store.closeRows(rows)

	students := make([]circulation.Student, 0)

	for rows.Next() {
		student, scanErr := scanStudent(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		students = append(students, student)
	}

	return students, nil
}

var _ circulation.UnitOfWork = (*unitOfWork)(nil)
