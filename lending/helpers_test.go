package lending_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/campuslib/circulation-engine-go/circulation"
	"github.com/campuslib/circulation-engine-go/circulation/memoryengine"
	"github.com/campuslib/circulation-engine-go/lending"
)

// fixture wires a lending service onto the in-memory engine with a
// controllable clock.
type fixture struct {
	t       *testing.T
	store   *memoryengine.Store
	service *lending.Service
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := memoryengine.NewStore()
	require.NoError(t, err)

	f := &fixture{
		t:     t,
		store: store,
		now:   time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC),
	}

	f.service = lending.NewService(store, lending.WithClock(func() time.Time { return f.now }))

	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) givenBook(title string, period circulation.DuePeriod) uuid.UUID {
	f.t.Helper()

	book := circulation.Book{
		ID:            uuid.New(),
		Title:         title,
		Author:        "Test Author",
		Category:      "fiction",
		DefaultPeriod: period,
	}
	require.NoError(f.t, f.store.InsertBook(context.Background(), book))

	return book.ID
}

func (f *fixture) givenCopies(bookID uuid.UUID, count int) []uuid.UUID {
	f.t.Helper()

	ids := make([]uuid.UUID, 0, count)

	for i := 0; i < count; i++ {
		copyRow := circulation.Copy{
			ID:          uuid.New(),
			BookID:      bookID,
			CatalogCode: fmt.Sprintf("%s-%d", bookID.String()[:8], i+1),
			Status:      circulation.CopyAvailable,
		}
		require.NoError(f.t, f.store.InsertCopy(context.Background(), copyRow))
		ids = append(ids, copyRow.ID)
	}

	return ids
}

func (f *fixture) givenStudent(name string) uuid.UUID {
	f.t.Helper()

	student := circulation.Student{
		ID:      uuid.New(),
		Name:    name,
		Class:   "7b",
		Contact: name + "@school.example",
	}
	require.NoError(f.t, f.store.InsertStudent(context.Background(), student))

	return student.ID
}

func (f *fixture) givenBlacklistedStudent(name string, until *time.Time, reason string) uuid.UUID {
	f.t.Helper()

	student := circulation.Student{
		ID:               uuid.New(),
		Name:             name,
		Class:            "7b",
		Blacklisted:      true,
		BlacklistedUntil: until,
		BlacklistReason:  reason,
	}
	require.NoError(f.t, f.store.InsertStudent(context.Background(), student))

	return student.ID
}

func (f *fixture) mustGetStudent(studentID uuid.UUID) circulation.Student {
	f.t.Helper()

	student, err := f.store.GetStudent(context.Background(), studentID)
	require.NoError(f.t, err)

	return student
}

// borrowDue creates a loan whose due instant lies the given duration in
// the past relative to the fixture clock, by temporarily rewinding the
// clock. The clock is restored afterwards.
func (f *fixture) borrowDue(studentID, bookID uuid.UUID, pastDue time.Duration, period circulation.DuePeriod) circulation.BorrowRecord {
	f.t.Helper()

	current := f.now
	periodDuration := periodAsDuration(period)
	f.now = current.Add(-pastDue - periodDuration)

	record, err := f.service.Borrow(context.Background(), studentID, bookID, &period)
	require.NoError(f.t, err)

	f.now = current

	return record
}

func newUUID() uuid.UUID {
	return uuid.New()
}

func periodAsDuration(period circulation.DuePeriod) time.Duration {
	switch period.Unit {
	case circulation.UnitHours:
		return time.Duration(period.Value) * time.Hour
	case circulation.UnitDays:
		return time.Duration(period.Value) * 24 * time.Hour
	case circulation.UnitWeeks:
		return time.Duration(period.Value) * 7 * 24 * time.Hour
	default:
		panic("periodAsDuration supports hours, days and weeks only")
	}
}
