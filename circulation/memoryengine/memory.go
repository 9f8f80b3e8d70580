package memoryengine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campuslib/circulation-engine-go/circulation"
)

// Store is an in-memory circulation.Storage. Transactions are serialized
// by one mutex and commit by swapping in a cloned state, which is plenty
// for tests and single-process demos.
type Store struct {
	mu     sync.Mutex
	state  *state
	logger circulation.Logger
}

// Option defines a functional option for configuring the Store.
type Option func(*Store) error

// WithLogger sets the logger for the Store.
func WithLogger(logger circulation.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// NewStore creates an empty in-memory store with optional configuration.
func NewStore(options ...Option) (*Store, error) {
	s := &Store{state: newState()}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

type state struct {
	books    map[uuid.UUID]circulation.Book
	copies   map[uuid.UUID]circulation.Copy
	students map[uuid.UUID]circulation.Student
	records  map[uuid.UUID]circulation.BorrowRecord
	actions  []circulation.AdminAction
}

func newState() *state {
	return &state{
		books:    make(map[uuid.UUID]circulation.Book),
		copies:   make(map[uuid.UUID]circulation.Copy),
		students: make(map[uuid.UUID]circulation.Student),
		records:  make(map[uuid.UUID]circulation.BorrowRecord),
	}
}

func (st *state) clone() *state {
	next := &state{
		books:    make(map[uuid.UUID]circulation.Book, len(st.books)),
		copies:   make(map[uuid.UUID]circulation.Copy, len(st.copies)),
		students: make(map[uuid.UUID]circulation.Student, len(st.students)),
		records:  make(map[uuid.UUID]circulation.BorrowRecord, len(st.records)),
		actions:  append([]circulation.AdminAction(nil), st.actions...),
	}

	for id, book := range st.books {
		next.books[id] = book
	}
	for id, copyRow := range st.copies {
		next.copies[id] = copyRow
	}
	for id, student := range st.students {
		next.students[id] = student
	}
	for id, record := range st.records {
		next.records[id] = record
	}

	return next
}

// WithinTx runs fn against a cloned state and swaps the clone in on
// success. An error from fn discards the clone, which is the rollback.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow circulation.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := s.state.clone()
	uow := &unitOfWork{state: working}

	if err := fn(ctx, uow); err != nil {
		return err
	}

	s.state = working

	return nil
}

// GetBook returns a book by id.
func (s *Store) GetBook(_ context.Context, bookID uuid.UUID) (circulation.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.state.books[bookID]
	if !ok {
		return circulation.Book{}, circulation.ErrBookNotFound
	}

	return book, nil
}

// GetStudent returns a student by id.
func (s *Store) GetStudent(_ context.Context, studentID uuid.UUID) (circulation.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	student, ok := s.state.students[studentID]
	if !ok {
		return circulation.Student{}, circulation.ErrStudentNotFound
	}

	return student, nil
}

// GetBorrowRecords returns the full ledger ordered by borrow instant.
func (s *Store) GetBorrowRecords(_ context.Context) ([]circulation.BorrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]circulation.BorrowRecord, 0, len(s.state.records))
	for _, record := range s.state.records {
		records = append(records, record)
	}

	sortRecords(records)

	return records, nil
}

// InsertBook adds a book to the catalog.
func (s *Store) InsertBook(_ context.Context, book circulation.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.books[book.ID] = book

	return nil
}

// InsertCopy adds a physical copy to the catalog.
func (s *Store) InsertCopy(_ context.Context, copyRow circulation.Copy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.copies[copyRow.ID] = copyRow

	return nil
}

// InsertStudent adds a student to the roster.
func (s *Store) InsertStudent(_ context.Context, student circulation.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.students[student.ID] = student

	return nil
}

// AppendAdminAction appends an audit entry.
func (s *Store) AppendAdminAction(_ context.Context, action circulation.AdminAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.actions = append(s.state.actions, action)

	return nil
}

// ListAdminActions returns the audit entries in append order.
func (s *Store) ListAdminActions(_ context.Context) ([]circulation.AdminAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]circulation.AdminAction(nil), s.state.actions...), nil
}

// unitOfWork operates on the cloned state of one transaction. The store
// mutex is held for the whole transaction, so no further locking is needed.
type unitOfWork struct {
	state *state
}

func (u *unitOfWork) FindStudent(_ context.Context, studentID uuid.UUID) (circulation.Student, error) {
	student, ok := u.state.students[studentID]
	if !ok {
		return circulation.Student{}, circulation.ErrStudentNotFound
	}

	return student, nil
}

func (u *unitOfWork) SaveStudent(_ context.Context, student circulation.Student) error {
	if _, ok := u.state.students[student.ID]; !ok {
		return circulation.ErrStudentNotFound
	}

	u.state.students[student.ID] = student

	return nil
}

func (u *unitOfWork) FindBook(_ context.Context, bookID uuid.UUID) (circulation.Book, error) {
	book, ok := u.state.books[bookID]
	if !ok {
		return circulation.Book{}, circulation.ErrBookNotFound
	}

	return book, nil
}

func (u *unitOfWork) ClaimAvailableCopy(_ context.Context, bookID uuid.UUID) (circulation.Copy, error) {
	// Iterate in sorted id order so runs are reproducible, even though
	// callers must not rely on which copy is picked.
	ids := make([]uuid.UUID, 0, len(u.state.copies))
	for id := range u.state.copies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, id := range ids {
		copyRow := u.state.copies[id]
		if copyRow.BookID != bookID || copyRow.Status != circulation.CopyAvailable {
			continue
		}

		copyRow.Status = circulation.CopyBorrowed
		u.state.copies[id] = copyRow

		return copyRow, nil
	}

	return circulation.Copy{}, circulation.ErrNoAvailableCopy
}

func (u *unitOfWork) ReleaseCopy(_ context.Context, copyID uuid.UUID) error {
	copyRow, ok := u.state.copies[copyID]
	if !ok {
		return nil // releasing an unknown copy is as harmless as an available one
	}

	copyRow.Status = circulation.CopyAvailable
	u.state.copies[copyID] = copyRow

	return nil
}

func (u *unitOfWork) InsertBorrowRecord(_ context.Context, record circulation.BorrowRecord) error {
	u.state.records[record.ID] = record

	return nil
}

func (u *unitOfWork) FindBorrowRecord(_ context.Context, recordID uuid.UUID) (circulation.BorrowRecord, error) {
	record, ok := u.state.records[recordID]
	if !ok {
		return circulation.BorrowRecord{}, circulation.ErrRecordNotFound
	}

	return record, nil
}

func (u *unitOfWork) SaveBorrowRecord(_ context.Context, record circulation.BorrowRecord) error {
	if _, ok := u.state.records[record.ID]; !ok {
		return circulation.ErrRecordNotFound
	}

	u.state.records[record.ID] = record

	return nil
}

func (u *unitOfWork) CountBorrowedDueBefore(_ context.Context, studentID uuid.UUID, cutoff time.Time) (int, error) {
	count := 0

	for _, record := range u.state.records {
		if record.StudentID == studentID && record.Status == circulation.RecordBorrowed && record.DueAt.Before(cutoff) {
			count++
		}
	}

	return count, nil
}

func (u *unitOfWork) ListBorrowedDueBefore(_ context.Context, cutoff time.Time) ([]circulation.BorrowRecord, error) {
	records := make([]circulation.BorrowRecord, 0)

	for _, record := range u.state.records {
		if record.Status == circulation.RecordBorrowed && record.DueAt.Before(cutoff) {
			records = append(records, record)
		}
	}

	sortRecords(records)

	return records, nil
}

func (u *unitOfWork) ListOverdueRecords(_ context.Context) ([]circulation.BorrowRecord, error) {
	records := make([]circulation.BorrowRecord, 0)

	for _, record := range u.state.records {
		if record.Status == circulation.RecordOverdue {
			records = append(records, record)
		}
	}

	sortRecords(records)

	return records, nil
}

func (u *unitOfWork) ListBlacklistedStudents(_ context.Context) ([]circulation.Student, error) {
	students := make([]circulation.Student, 0)

	for _, student := range u.state.students {
		if student.Blacklisted {
			students = append(students, student)
		}
	}

	sort.Slice(students, func(i, j int) bool { return students[i].ID.String() < students[j].ID.String() })

	return students, nil
}

func sortRecords(records []circulation.BorrowRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].BorrowedAt.Equal(records[j].BorrowedAt) {
			return records[i].BorrowedAt.Before(records[j].BorrowedAt)
		}
		return records[i].ID.String() < records[j].ID.String()
	})
}

// Ensure Store implements the storage contract.
var _ circulation.Storage = (*Store)(nil)
