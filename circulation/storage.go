package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Storage is the persistence contract of the circulation core. A backend is
// chosen once at startup (Postgres in production, the in-memory engine in
// tests and demos) and never branched on at call sites.
//
// All write paths of the core run through WithinTx; the read-only
// projections exist for the UI layer and never take part in the write path.
type Storage interface {
	// WithinTx runs fn inside one transaction. The transaction commits when
	// fn returns nil and rolls back otherwise, so the copy-flip plus
	// record-insert pair of a borrow is atomic by construction.
	// A serialization failure or deadlock surfaces as ErrTxConflict.
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error

	// Read-only projections.
	GetBook(ctx context.Context, bookID uuid.UUID) (Book, error)
	GetStudent(ctx context.Context, studentID uuid.UUID) (Student, error)
	GetBorrowRecords(ctx context.Context) ([]BorrowRecord, error)

	// Catalog and roster inserts, used by the admin CRUD periphery and by
	// seeding; they are not part of the borrowing write path.
	InsertBook(ctx context.Context, book Book) error
	InsertCopy(ctx context.Context, copy Copy) error
	InsertStudent(ctx context.Context, student Student) error

	// Audit sink. Appends are best-effort from the caller's point of view:
	// the lending.AuditLog swallows any error returned here.
	AppendAdminAction(ctx context.Context, action AdminAction) error
	ListAdminActions(ctx context.Context) ([]AdminAction, error)
}

// UnitOfWork is the transaction-scoped surface of a Storage backend.
// Every method observes and mutates state under the isolation guarantees of
// the surrounding transaction; engines lock the affected copy and student
// rows so concurrent borrows and the sweep cannot double-allocate or lose
// updates.
type UnitOfWork interface {
	// FindStudent loads a student, locking the row for update.
	// Returns ErrStudentNotFound when the student does not exist.
	FindStudent(ctx context.Context, studentID uuid.UUID) (Student, error)

	// SaveStudent persists a student previously loaded in this transaction.
	SaveStudent(ctx context.Context, student Student) error

	// FindBook loads a book. Returns ErrBookNotFound when it does not exist.
	FindBook(ctx context.Context, bookID uuid.UUID) (Book, error)

	// ClaimAvailableCopy picks one available copy of the book - which one
	// is unspecified - and flips it to borrowed. Returns ErrNoAvailableCopy
	// when every copy is out.
	ClaimAvailableCopy(ctx context.Context, bookID uuid.UUID) (Copy, error)

	// ReleaseCopy flips a copy back to available. Releasing an already
	// available copy is a no-op, not an error, so the return path stays
	// safe under retries.
	ReleaseCopy(ctx context.Context, copyID uuid.UUID) error

	// InsertBorrowRecord appends a new ledger entry.
	InsertBorrowRecord(ctx context.Context, record BorrowRecord) error

	// FindBorrowRecord loads a record, locking the row for update.
	// Returns ErrRecordNotFound when the record does not exist.
	FindBorrowRecord(ctx context.Context, recordID uuid.UUID) (BorrowRecord, error)

	// SaveBorrowRecord persists status and return-instant changes.
	SaveBorrowRecord(ctx context.Context, record BorrowRecord) error

	// CountBorrowedDueBefore counts a student's records that are still in
	// status borrowed with a due instant before the cutoff - loans the
	// sweep has not promoted yet.
	CountBorrowedDueBefore(ctx context.Context, studentID uuid.UUID, cutoff time.Time) (int, error)

	// ListBorrowedDueBefore returns every record in status borrowed whose
	// due instant lies before the cutoff, for the sweep's promotion step.
	ListBorrowedDueBefore(ctx context.Context, cutoff time.Time) ([]BorrowRecord, error)

	// ListOverdueRecords returns every record in status overdue.
	ListOverdueRecords(ctx context.Context) ([]BorrowRecord, error)

	// ListBlacklistedStudents returns every student whose blacklist flag is set.
	ListBlacklistedStudents(ctx context.Context) ([]Student, error)
}
