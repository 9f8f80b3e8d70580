package circulation

import "errors"

// Request-rejection errors. Each one reports a failed precondition back to
// the caller; none of them is retried by the core.
var (
	// ErrHasOverdueBooks is returned when a student still holds borrowed copies past their due instant.
	ErrHasOverdueBooks = errors.New("student has overdue borrowed books")

	// ErrStudentBlacklisted is returned when a student has an active blacklist entry.
	ErrStudentBlacklisted = errors.New("student is blacklisted")

	// ErrStudentNotFound is returned when no student exists for the given id.
	ErrStudentNotFound = errors.New("student not found")

	// ErrBookNotFound is returned when no book exists for the given id.
	ErrBookNotFound = errors.New("book not found")

	// ErrNoAvailableCopy is returned when a book has no copy left to allocate.
	ErrNoAvailableCopy = errors.New("no available copy for this book")

	// ErrRecordNotFound is returned when no borrow record exists for the given id.
	ErrRecordNotFound = errors.New("borrow record not found")

	// ErrInvalidReason is returned when an unblacklist justification is empty or too short.
	ErrInvalidReason = errors.New("unblacklist reason must be at least 10 characters")

	// ErrMissingAdmin is returned when a manual unblacklist carries no admin id.
	ErrMissingAdmin = errors.New("admin id is required")

	// ErrNotBlacklisted is returned when unblacklisting a student who is not blacklisted.
	ErrNotBlacklisted = errors.New("student is not blacklisted")
)

// Infrastructure errors. These propagate as-is; only ErrTxConflict is
// worth retrying, with backoff.
var (
	// ErrNilDatabaseConnection is returned when an engine factory receives a nil connection.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTablePrefix is returned when an empty table prefix is supplied to WithTablePrefix.
	ErrEmptyTablePrefix = errors.New("empty table prefix supplied")

	// ErrTxConflict marks a serialization failure or deadlock between
	// concurrent transactions. The operation can safely be retried.
	ErrTxConflict = errors.New("transaction conflict, retry the operation")

	// ErrTxFailed wraps any other storage failure inside a unit of work.
	ErrTxFailed = errors.New("storage transaction failed")
)
