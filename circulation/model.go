package circulation

import (
	"time"

	"github.com/google/uuid"
)

// CopyStatus is the allocation state of a physical copy. The status column
// is the sole allocation signal; there is no separate lock table.
type CopyStatus string

const (
	// CopyAvailable marks a copy that can be allocated to a borrower.
	CopyAvailable CopyStatus = "available"
	// CopyBorrowed marks a copy currently held by a student.
	CopyBorrowed CopyStatus = "borrowed"
)

// RecordStatus is the lifecycle state of a borrow record.
type RecordStatus string

const (
	// RecordBorrowed is the initial status of every borrow record.
	RecordBorrowed RecordStatus = "borrowed"
	// RecordOverdue is set only by the overdue sweep, past the grace window.
	RecordOverdue RecordStatus = "overdue"
	// RecordReturned is the terminal status, set by the return operation.
	RecordReturned RecordStatus = "returned"
)

// Book is a catalog entry. It owns zero or more copies; metadata edits are
// allowed even while copies are borrowed.
type Book struct {
	ID            uuid.UUID
	Title         string
	Author        string
	Category      string
	DefaultPeriod DuePeriod
}

// Copy is one physical, individually trackable instance of a Book.
type Copy struct {
	ID          uuid.UUID
	BookID      uuid.UUID
	CatalogCode CatalogCodeString
	Status      CopyStatus
}

// Student is a registered borrower, including blacklist state.
//
// Invariant: when Blacklisted is false, BlacklistedUntil is nil and
// BlacklistReason is empty - no stale data survives an unblacklist.
type Student struct {
	ID      uuid.UUID
	Name    string
	Class   ClassNameString
	Contact string

	Blacklisted      bool
	BlacklistedUntil *time.Time
	BlacklistReason  string

	UnblacklistReason string
	UnblacklistedBy   *uuid.UUID
	UnblacklistedAt   *time.Time
}

// HasActiveBlacklist reports whether the blacklist blocks borrowing at the
// given instant. A set flag with an expiry in the past no longer blocks.
func (s Student) HasActiveBlacklist(now time.Time) bool {
	if !s.Blacklisted {
		return false
	}

	return s.BlacklistedUntil == nil || s.BlacklistedUntil.After(now)
}

// BorrowRecord is the ledger entry for one loan of one copy to one student.
// Records are append-only; none is ever deleted.
//
// The student and book fields are denormalized snapshots taken at creation
// time so historical reports stay stable when the source records change.
type BorrowRecord struct {
	ID         uuid.UUID
	CopyID     uuid.UUID
	StudentID  uuid.UUID
	BorrowedAt time.Time
	DueAt      time.Time
	ReturnedAt *time.Time
	Status     RecordStatus

	StudentName  string
	StudentClass ClassNameString
	BookTitle    string
	BookAuthor   string
	CatalogCode  CatalogCodeString
}

// IsOutstanding reports whether the record still ties up its copy.
func (r BorrowRecord) IsOutstanding() bool {
	return r.Status == RecordBorrowed || r.Status == RecordOverdue
}

// AdminAction is an append-only, best-effort audit entry for administrative
// operations such as a manual unblacklist.
type AdminAction struct {
	ID          uuid.UUID
	AdminID     uuid.UUID
	ActionType  string
	TargetType  string
	TargetID    uuid.UUID
	DetailsJSON []byte
	CreatedAt   time.Time
}
