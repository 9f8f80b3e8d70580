package httpapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslib/circulation-engine-go/circulation"
	"github.com/campuslib/circulation-engine-go/circulation/memoryengine"
	"github.com/campuslib/circulation-engine-go/httpapi"
	"github.com/campuslib/circulation-engine-go/lending"
)

type apiFixture struct {
	t      *testing.T
	store  *memoryengine.Store
	server *httpapi.Server
	now    time.Time
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	store, err := memoryengine.NewStore()
	require.NoError(t, err)

	f := &apiFixture{
		t:     t,
		store: store,
		now:   time.Date(2026, time.May, 4, 9, 0, 0, 0, time.UTC),
	}

	service := lending.NewService(store, lending.WithClock(func() time.Time { return f.now }))
	f.server = httpapi.NewServer(service, store)

	return f
}

func (f *apiFixture) do(method, path, body string) *httptest.ResponseRecorder {
	f.t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}

	request := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	f.server.ServeHTTP(recorder, request)

	return recorder
}

func (f *apiFixture) decodeBody(recorder *httptest.ResponseRecorder, dst any) {
	f.t.Helper()
	require.NoError(f.t, jsoniter.ConfigFastest.Unmarshal(recorder.Body.Bytes(), dst))
}

func (f *apiFixture) givenBookWithCopy(title string) uuid.UUID {
	f.t.Helper()

	book := circulation.Book{
		ID:            uuid.New(),
		Title:         title,
		DefaultPeriod: circulation.DuePeriod{Value: 2, Unit: circulation.UnitWeeks},
	}
	require.NoError(f.t, f.store.InsertBook(context.Background(), book))
	require.NoError(f.t, f.store.InsertCopy(context.Background(), circulation.Copy{
		ID:          uuid.New(),
		BookID:      book.ID,
		CatalogCode: "CAT-" + book.ID.String()[:8],
		Status:      circulation.CopyAvailable,
	}))

	return book.ID
}

func (f *apiFixture) givenStudent(name string, blacklisted bool) uuid.UUID {
	f.t.Helper()

	student := circulation.Student{
		ID:          uuid.New(),
		Name:        name,
		Class:       "9a",
		Blacklisted: blacklisted,
	}
	if blacklisted {
		student.BlacklistReason = "overdue severity low: seeded"
	}
	require.NoError(f.t, f.store.InsertStudent(context.Background(), student))

	return student.ID
}

func Test_PostBorrow_CreatesRecord(t *testing.T) {
	// arrange
	f := newAPIFixture(t)
	bookID := f.givenBookWithCopy("REST in Practice")
	studentID := f.givenStudent("lena", false)

	// act
	recorder := f.do(http.MethodPost, "/api/borrow",
		`{"student_id":"`+studentID.String()+`","book_id":"`+bookID.String()+`"}`)

	// assert
	assert.Equal(t, http.StatusCreated, recorder.Code)

	var body map[string]any
	f.decodeBody(recorder, &body)
	assert.Equal(t, studentID.String(), body["student_id"])
	assert.Equal(t, "borrowed", body["status"])
	assert.Equal(t, "REST in Practice", body["book_title"])
}

func Test_PostBorrow_HonorsSuppliedPeriod(t *testing.T) {
	// arrange
	f := newAPIFixture(t)
	bookID := f.givenBookWithCopy("Short Loan")
	studentID := f.givenStudent("milo", false)

	// act
	recorder := f.do(http.MethodPost, "/api/borrow",
		`{"student_id":"`+studentID.String()+`","book_id":"`+bookID.String()+`","due_period_value":3,"due_period_unit":"days"}`)

	// assert
	require.Equal(t, http.StatusCreated, recorder.Code)

	var body struct {
		DueAt time.Time `json:"due_at"`
	}
	f.decodeBody(recorder, &body)
	assert.Equal(t, circulation.ToInstant(f.now.AddDate(0, 0, 3)), body.DueAt.UTC())
}

func Test_PostBorrow_MapsRejections(t *testing.T) {
	f := newAPIFixture(t)
	bookID := f.givenBookWithCopy("Contested Copy")
	cleanStudent := f.givenStudent("nio", false)
	blockedStudent := f.givenStudent("ora", true)

	testCases := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{
			name:           "unknown student is 404",
			body:           `{"student_id":"` + uuid.NewString() + `","book_id":"` + bookID.String() + `"}`,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "blacklisted student is 409",
			body:           `{"student_id":"` + blockedStudent.String() + `","book_id":"` + bookID.String() + `"}`,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "unknown book is 409",
			body:           `{"student_id":"` + cleanStudent.String() + `","book_id":"` + uuid.NewString() + `"}`,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "malformed body is 400",
			body:           `{"student_id":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid uuid is 400",
			body:           `{"student_id":"not-a-uuid","book_id":"` + bookID.String() + `"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "negative due period value is 400",
			body:           `{"student_id":"` + cleanStudent.String() + `","book_id":"` + bookID.String() + `","due_period_value":-5,"due_period_unit":"days"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "zero due period value with unit is 400",
			body:           `{"student_id":"` + cleanStudent.String() + `","book_id":"` + bookID.String() + `","due_period_unit":"days"}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			recorder := f.do(http.MethodPost, "/api/borrow", tc.body)

			// assert
			assert.Equal(t, tc.expectedStatus, recorder.Code)
		})
	}

	// assert - none of the rejected requests left a ledger entry
	records := f.do(http.MethodGet, "/api/records", "")
	var list []map[string]any
	f.decodeBody(records, &list)
	assert.Empty(t, list)
}

func Test_PostReturn_RoundTrip(t *testing.T) {
	// arrange
	f := newAPIFixture(t)
	bookID := f.givenBookWithCopy("Boomerang")
	studentID := f.givenStudent("pim", false)

	borrow := f.do(http.MethodPost, "/api/borrow",
		`{"student_id":"`+studentID.String()+`","book_id":"`+bookID.String()+`"}`)
	require.Equal(t, http.StatusCreated, borrow.Code)

	var created struct {
		ID string `json:"id"`
	}
	f.decodeBody(borrow, &created)

	// act
	recorder := f.do(http.MethodPost, "/api/return", `{"record_id":"`+created.ID+`"}`)

	// assert
	assert.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]any
	f.decodeBody(recorder, &body)
	assert.Equal(t, "returned", body["status"])
	assert.NotEmpty(t, body["returned_at"])
}

func Test_PostReturn_UnknownRecordIs404(t *testing.T) {
	// arrange
	f := newAPIFixture(t)

	// act
	recorder := f.do(http.MethodPost, "/api/return", `{"record_id":"`+uuid.NewString()+`"}`)

	// assert
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func Test_PostSweep_ReturnsSummary(t *testing.T) {
	// arrange
	f := newAPIFixture(t)
	bookID := f.givenBookWithCopy("Overdue Soon")
	studentID := f.givenStudent("rudi", false)

	borrow := f.do(http.MethodPost, "/api/borrow",
		`{"student_id":"`+studentID.String()+`","book_id":"`+bookID.String()+`","due_period_value":1,"due_period_unit":"days"}`)
	require.Equal(t, http.StatusCreated, borrow.Code)

	f.now = f.now.Add(6 * 24 * time.Hour)

	// act
	recorder := f.do(http.MethodPost, "/api/sweep", "")

	// assert
	assert.Equal(t, http.StatusOK, recorder.Code)

	var summary lending.SweepSummary
	f.decodeBody(recorder, &summary)
	assert.Equal(t, lending.SweepSummary{Promoted: 1, Blacklisted: 1}, summary)
}

func Test_PostUnblacklist_Lifecycle(t *testing.T) {
	// arrange
	f := newAPIFixture(t)
	studentID := f.givenStudent("sara", true)
	adminID := uuid.NewString()

	// act
	recorder := f.do(http.MethodPost, "/api/unblacklist",
		`{"student_id":"`+studentID.String()+`","reason":"cleared after parent meeting","admin_id":"`+adminID+`"}`)

	// assert
	assert.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]any
	f.decodeBody(recorder, &body)
	assert.Equal(t, false, body["blacklisted"])
	assert.Equal(t, adminID, body["unblacklisted_by"])

	// act - a second attempt conflicts
	recorder = f.do(http.MethodPost, "/api/unblacklist",
		`{"student_id":"`+studentID.String()+`","reason":"cleared after parent meeting","admin_id":"`+adminID+`"}`)

	// assert
	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func Test_PostUnblacklist_ValidationFailures(t *testing.T) {
	// arrange
	f := newAPIFixture(t)
	studentID := f.givenStudent("timo", true)

	// act - short reason
	shortReason := f.do(http.MethodPost, "/api/unblacklist",
		`{"student_id":"`+studentID.String()+`","reason":"short","admin_id":"`+uuid.NewString()+`"}`)

	// act - missing admin
	missingAdmin := f.do(http.MethodPost, "/api/unblacklist",
		`{"student_id":"`+studentID.String()+`","reason":"a perfectly valid reason"}`)

	// assert
	assert.Equal(t, http.StatusBadRequest, shortReason.Code)
	assert.Equal(t, http.StatusBadRequest, missingAdmin.Code)
}

func Test_GetProjections(t *testing.T) {
	// arrange
	f := newAPIFixture(t)
	bookID := f.givenBookWithCopy("Projection Book")
	studentID := f.givenStudent("ulla", false)

	borrow := f.do(http.MethodPost, "/api/borrow",
		`{"student_id":"`+studentID.String()+`","book_id":"`+bookID.String()+`"}`)
	require.Equal(t, http.StatusCreated, borrow.Code)

	// act + assert - records list
	records := f.do(http.MethodGet, "/api/records", "")
	assert.Equal(t, http.StatusOK, records.Code)

	var list []map[string]any
	f.decodeBody(records, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Projection Book", list[0]["book_title"])

	// act + assert - student and book by id
	student := f.do(http.MethodGet, "/api/students/"+studentID.String(), "")
	assert.Equal(t, http.StatusOK, student.Code)

	book := f.do(http.MethodGet, "/api/books/"+bookID.String(), "")
	assert.Equal(t, http.StatusOK, book.Code)

	// act + assert - unknown ids are 404
	missing := f.do(http.MethodGet, "/api/students/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}
