package lending_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslib/circulation-engine-go/circulation"
)

func Test_Borrow_CreatesRecord_WithSnapshotsAndDefaultPeriod(t *testing.T) {
	// arrange
	f := newFixture(t)
	bookID := f.givenBook("The Go Programming Language", circulation.DuePeriod{Value: 2, Unit: circulation.UnitWeeks})
	f.givenCopies(bookID, 1)
	studentID := f.givenStudent("mara")

	// act
	record, err := f.service.Borrow(context.Background(), studentID, bookID, nil)

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.RecordBorrowed, record.Status)
	assert.Equal(t, circulation.ToInstant(f.now), record.BorrowedAt)
	assert.Equal(t, circulation.ToInstant(f.now.AddDate(0, 0, 14)), record.DueAt)
	assert.Nil(t, record.ReturnedAt)
	assert.Equal(t, "mara", record.StudentName)
	assert.Equal(t, "The Go Programming Language", record.BookTitle)
	assert.NotEmpty(t, record.CatalogCode)
}

func Test_Borrow_UsesSuppliedPeriod_OverBookDefault(t *testing.T) {
	// arrange
	f := newFixture(t)
	bookID := f.givenBook("Short Loan Atlas", circulation.DuePeriod{Value: 2, Unit: circulation.UnitWeeks})
	f.givenCopies(bookID, 1)
	studentID := f.givenStudent("nilo")
	period := circulation.DuePeriod{Value: 3, Unit: circulation.UnitDays}

	// act
	record, err := f.service.Borrow(context.Background(), studentID, bookID, &period)

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.ToInstant(f.now.AddDate(0, 0, 3)), record.DueAt)
}

func Test_Borrow_Fails_WhenStudentHasOverdueLoan(t *testing.T) {
	// arrange
	f := newFixture(t)
	bookID := f.givenBook("First Book", circulation.DuePeriod{Value: 1, Unit: circulation.UnitDays})
	f.givenCopies(bookID, 1)
	otherBookID := f.givenBook("Second Book", circulation.DuePeriod{Value: 2, Unit: circulation.UnitWeeks})
	f.givenCopies(otherBookID, 1)
	studentID := f.givenStudent("ove")

	_, err := f.service.Borrow(context.Background(), studentID, bookID, nil)
	require.NoError(t, err)
	f.advance(48 * time.Hour) // one-day loan is now a day past due

	// act
	_, err = f.service.Borrow(context.Background(), studentID, otherBookID, nil)

	// assert
	assert.ErrorIs(t, err, circulation.ErrHasOverdueBooks)
}

func Test_Borrow_Fails_WhenOverdueLoanAlreadyPromoted(t *testing.T) {
	// arrange
	f := newFixture(t)
	bookID := f.givenBook("First Book", circulation.DuePeriod{Value: 1, Unit: circulation.UnitDays})
	f.givenCopies(bookID, 1)
	otherBookID := f.givenBook("Second Book", circulation.DuePeriod{Value: 2, Unit: circulation.UnitWeeks})
	f.givenCopies(otherBookID, 1)
	studentID := f.givenStudent("pia")

	_, err := f.service.Borrow(context.Background(), studentID, bookID, nil)
	require.NoError(t, err)

	f.advance(3 * 24 * time.Hour)
	_, err = f.service.Sweep(context.Background())
	require.NoError(t, err)

	// act
	_, err = f.service.Borrow(context.Background(), studentID, otherBookID, nil)

	// assert
	assert.ErrorIs(t, err, circulation.ErrHasOverdueBooks)
}

func Test_Borrow_Fails_WhenStudentActivelyBlacklisted(t *testing.T) {
	// arrange
	f := newFixture(t)
	bookID := f.givenBook("Forbidden Fruit", circulation.DuePeriod{Value: 2, Unit: circulation.UnitWeeks})
	f.givenCopies(bookID, 1)
	until := f.now.Add(7 * 24 * time.Hour)
	studentID := f.givenBlacklistedStudent("rex", &until, "overdue severity low")

	// act
	_, err := f.service.Borrow(context.Background(), studentID, bookID, nil)

	// assert
	assert.ErrorIs(t, err, circulation.ErrStudentBlacklisted)
}

func Test_Borrow_Fails_WhenBlacklistHasNoExpiry(t *testing.T) {
	// arrange
	f := newFixture(t)
	bookID := f.givenBook("No Expiry", circulation.DuePeriod{Value: 2, Unit: circulation.UnitWeeks})
	f.givenCopies(bookID, 1)
	studentID := f.givenBlacklistedStudent("sam", nil, "manual blacklist")

	// act
	_, err := f.service.Borrow(context.Background(), studentID, bookID, nil)

	// assert
	assert.ErrorIs(t, err, circulation.ErrStudentBlacklisted)
}

func Test_Borrow_Succeeds_WhenBlacklistExpired(t *testing.T) {
	// arrange
	f := newFixture(t)
	bookID := f.givenBook("Second Chance", circulation.DuePeriod{Value: 2, Unit: circulation.UnitWeeks})
	f.givenCopies(bookID, 1)
	until := f.now.Add(-time.Hour) // expired an hour ago, flag still set
	studentID := f.givenBlacklistedStudent("tia", &until, "overdue severity low")

	// act
	record, err := f.service.Borrow(context.Background(), studentID, bookID, nil)

	// assert
	require.NoError(t, err)
	assert.Equal(t, studentID, record.StudentID)
}

func Test_Borrow_Fails_WhenStudentUnknown(t *testing.T) {
	// arrange
	f := newFixture(t)
	bookID := f.givenBook("Nobody's Book", circulation.DuePeriod{Value: 2, Unit: circulation.UnitWeeks})
	f.givenCopies(bookID, 1)

	// act
	_, err := f.service.Borrow(context.Background(), newUUID(), bookID, nil)

	// assert
	assert.ErrorIs(t, err, circulation.ErrStudentNotFound)
}

func Test_Borrow_Fails_WhenBookUnknown(t *testing.T) {
	// arrange
	f := newFixture(t)
	studentID := f.givenStudent("uli")

	// act - an unknown book has no copies, so it reads as fully lent out
	_, err := f.service.Borrow(context.Background(), studentID, newUUID(), nil)

	// assert
	assert.ErrorIs(t, err, circulation.ErrNoAvailableCopy)
}

func Test_Borrow_AllocatesEachCopyOnce(t *testing.T) {
	// arrange
	f := newFixture(t)
	bookID := f.givenBook("Popular Title", circulation.DuePeriod{Value: 2, Unit: circulation.UnitWeeks})
	f.givenCopies(bookID, 2)
	first := f.givenStudent("anna")
	second := f.givenStudent("bela")
	third := f.givenStudent("cleo")

	// act
	recordOne, errOne := f.service.Borrow(context.Background(), first, bookID, nil)
	recordTwo, errTwo := f.service.Borrow(context.Background(), second, bookID, nil)
	_, errThree := f.service.Borrow(context.Background(), third, bookID, nil)

	// assert
	require.NoError(t, errOne)
	require.NoError(t, errTwo)
	assert.NotEqual(t, recordOne.CopyID, recordTwo.CopyID)
	assert.ErrorIs(t, errThree, circulation.ErrNoAvailableCopy)
}

func Test_Borrow_AllocatesEachCopyOnce_UnderConcurrentBorrows(t *testing.T) {
	// arrange
	f := newFixture(t)
	bookID := f.givenBook("Contested Title", circulation.DuePeriod{Value: 2, Unit: circulation.UnitWeeks})
	const copies = 3
	const borrowers = 8
	f.givenCopies(bookID, copies)

	studentIDs := make([]uuid.UUID, borrowers)
	for i := range studentIDs {
		studentIDs[i] = f.givenStudent(fmt.Sprintf("borrower-%d", i))
	}

	records := make([]circulation.BorrowRecord, borrowers)
	errs := make([]error, borrowers)

	// act
	var wg sync.WaitGroup
	for i := 0; i < borrowers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records[i], errs[i] = f.service.Borrow(context.Background(), studentIDs[i], bookID, nil)
		}(i)
	}
	wg.Wait()

	// assert - exactly one success per copy, every other borrower rejected
	claimedCopies := make(map[uuid.UUID]struct{})
	rejected := 0

	for i := 0; i < borrowers; i++ {
		if errs[i] != nil {
			assert.ErrorIs(t, errs[i], circulation.ErrNoAvailableCopy)
			rejected++
			continue
		}

		claimedCopies[records[i].CopyID] = struct{}{}
	}

	assert.Len(t, claimedCopies, copies)
	assert.Equal(t, borrowers-copies, rejected)
}

func Test_Return_RestoresAvailability(t *testing.T) {
	// arrange
	f := newFixture(t)
	bookID := f.givenBook("Round Trip", circulation.DuePeriod{Value: 2, Unit: circulation.UnitWeeks})
	f.givenCopies(bookID, 1)
	studentID := f.givenStudent("vera")

	record, err := f.service.Borrow(context.Background(), studentID, bookID, nil)
	require.NoError(t, err)
	f.advance(24 * time.Hour)

	// act
	returned, err := f.service.Return(context.Background(), record.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.RecordReturned, returned.Status)
	require.NotNil(t, returned.ReturnedAt)
	assert.Equal(t, circulation.ToInstant(f.now), *returned.ReturnedAt)

	// act - the copy is available again
	_, err = f.service.Borrow(context.Background(), studentID, bookID, nil)

	// assert
	assert.NoError(t, err)
}

func Test_Return_IsNoOp_WhenAlreadyReturned(t *testing.T) {
	// arrange
	f := newFixture(t)
	bookID := f.givenBook("Twice Returned", circulation.DuePeriod{Value: 2, Unit: circulation.UnitWeeks})
	f.givenCopies(bookID, 1)
	studentID := f.givenStudent("wim")

	record, err := f.service.Borrow(context.Background(), studentID, bookID, nil)
	require.NoError(t, err)

	first, err := f.service.Return(context.Background(), record.ID)
	require.NoError(t, err)
	f.advance(24 * time.Hour)

	// act
	second, err := f.service.Return(context.Background(), record.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, first.ReturnedAt, second.ReturnedAt)
	assert.Equal(t, circulation.RecordReturned, second.Status)
}

func Test_Return_Fails_WhenRecordUnknown(t *testing.T) {
	// arrange
	f := newFixture(t)

	// act
	_, err := f.service.Return(context.Background(), newUUID())

	// assert
	assert.ErrorIs(t, err, circulation.ErrRecordNotFound)
}
