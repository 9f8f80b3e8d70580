package httpapi

import (
	"errors"
	"time"

	"github.com/campuslib/circulation-engine-go/circulation"
)

var errInvalidDuePeriodValue = errors.New("due_period_value must be at least 1")

type errorResponse struct {
	Error string `json:"error"`
}

type borrowRequest struct {
	StudentID      string `json:"student_id"`
	BookID         string `json:"book_id"`
	DuePeriodValue int    `json:"due_period_value,omitempty"`
	DuePeriodUnit  string `json:"due_period_unit,omitempty"`
}

// duePeriod returns the caller-supplied loan period, or nil when the
// request leaves it to the book default. A supplied period needs a value of
// at least 1, so the due instant can never precede the borrow instant. An
// unrecognized unit is passed through so the due-date calculator applies
// its documented 24h fallback.
func (r borrowRequest) duePeriod() (*circulation.DuePeriod, error) {
	if r.DuePeriodValue == 0 && r.DuePeriodUnit == "" {
		return nil, nil
	}

	if r.DuePeriodValue < 1 {
		return nil, errInvalidDuePeriodValue
	}

	unit := circulation.PeriodUnit(r.DuePeriodUnit)
	if parsed, ok := circulation.ParsePeriodUnit(r.DuePeriodUnit); ok {
		unit = parsed
	}

	return &circulation.DuePeriod{Value: r.DuePeriodValue, Unit: unit}, nil
}

type returnRequest struct {
	RecordID string `json:"record_id"`
}

type unblacklistRequest struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
	AdminID   string `json:"admin_id"`
}

type recordResponse struct {
	ID           string     `json:"id"`
	CopyID       string     `json:"copy_id"`
	StudentID    string     `json:"student_id"`
	BorrowedAt   time.Time  `json:"borrowed_at"`
	DueAt        time.Time  `json:"due_at"`
	ReturnedAt   *time.Time `json:"returned_at,omitempty"`
	Status       string     `json:"status"`
	StudentName  string     `json:"student_name"`
	StudentClass string     `json:"student_class"`
	BookTitle    string     `json:"book_title"`
	BookAuthor   string     `json:"book_author"`
	CatalogCode  string     `json:"catalog_code"`
}

func recordResponseFrom(record circulation.BorrowRecord) recordResponse {
	return recordResponse{
		ID:           record.ID.String(),
		CopyID:       record.CopyID.String(),
		StudentID:    record.StudentID.String(),
		BorrowedAt:   record.BorrowedAt,
		DueAt:        record.DueAt,
		ReturnedAt:   record.ReturnedAt,
		Status:       string(record.Status),
		StudentName:  record.StudentName,
		StudentClass: record.StudentClass,
		BookTitle:    record.BookTitle,
		BookAuthor:   record.BookAuthor,
		CatalogCode:  record.CatalogCode,
	}
}

type studentResponse struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Class             string     `json:"class"`
	Contact           string     `json:"contact,omitempty"`
	Blacklisted       bool       `json:"blacklisted"`
	BlacklistedUntil  *time.Time `json:"blacklisted_until,omitempty"`
	BlacklistReason   string     `json:"blacklist_reason,omitempty"`
	UnblacklistReason string     `json:"unblacklist_reason,omitempty"`
	UnblacklistedBy   string     `json:"unblacklisted_by,omitempty"`
	UnblacklistedAt   *time.Time `json:"unblacklisted_at,omitempty"`
}

func studentResponseFrom(student circulation.Student) studentResponse {
	response := studentResponse{
		ID:                student.ID.String(),
		Name:              student.Name,
		Class:             student.Class,
		Contact:           student.Contact,
		Blacklisted:       student.Blacklisted,
		BlacklistedUntil:  student.BlacklistedUntil,
		BlacklistReason:   student.BlacklistReason,
		UnblacklistReason: student.UnblacklistReason,
		UnblacklistedAt:   student.UnblacklistedAt,
	}

	if student.UnblacklistedBy != nil {
		response.UnblacklistedBy = student.UnblacklistedBy.String()
	}

	return response
}

type bookResponse struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Author         string `json:"author,omitempty"`
	Category       string `json:"category,omitempty"`
	DuePeriodValue int    `json:"due_period_value"`
	DuePeriodUnit  string `json:"due_period_unit"`
}

func bookResponseFrom(book circulation.Book) bookResponse {
	return bookResponse{
		ID:             book.ID.String(),
		Title:          book.Title,
		Author:         book.Author,
		Category:       book.Category,
		DuePeriodValue: book.DefaultPeriod.Value,
		DuePeriodUnit:  string(book.DefaultPeriod.Unit),
	}
}
