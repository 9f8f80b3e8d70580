package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/campuslib/circulation-engine-go/circulation"
	"github.com/campuslib/circulation-engine-go/lending"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"

	logMsgRequestFailed = "httpapi: request failed"
)

// LendingService is the slice of the lending service the API needs.
type LendingService interface {
	Borrow(ctx context.Context, studentID uuid.UUID, bookID uuid.UUID, period *circulation.DuePeriod) (circulation.BorrowRecord, error)
	Return(ctx context.Context, recordID uuid.UUID) (circulation.BorrowRecord, error)
	Sweep(ctx context.Context) (lending.SweepSummary, error)
	ManualUnblacklist(ctx context.Context, studentID uuid.UUID, reason string, adminID uuid.UUID) (circulation.Student, error)
}

// Projections is the read-only storage surface behind the GET endpoints.
type Projections interface {
	GetBook(ctx context.Context, bookID uuid.UUID) (circulation.Book, error)
	GetStudent(ctx context.Context, studentID uuid.UUID) (circulation.Student, error)
	GetBorrowRecords(ctx context.Context) ([]circulation.BorrowRecord, error)
}

// Server is the HTTP front of the circulation engine.
type Server struct {
	service     LendingService
	projections Projections
	logger      circulation.Logger
	mux         *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for request failures.
func WithLogger(logger circulation.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer wires the routes and returns a ready-to-serve handler.
func NewServer(service LendingService, projections Projections, opts ...Option) *Server {
	s := &Server{
		service:     service,
		projections: projections,
		mux:         http.NewServeMux(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("POST /api/borrow", s.handleBorrow)
	s.mux.HandleFunc("POST /api/return", s.handleReturn)
	s.mux.HandleFunc("POST /api/sweep", s.handleSweep)
	s.mux.HandleFunc("POST /api/unblacklist", s.handleUnblacklist)
	s.mux.HandleFunc("GET /api/records", s.handleListRecords)
	s.mux.HandleFunc("GET /api/students/{id}", s.handleGetStudent)
	s.mux.HandleFunc("GET /api/books/{id}", s.handleGetBook)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if !s.decode(w, r, &req) {
		return
	}

	studentID, ok := s.parseID(w, req.StudentID, "student_id")
	if !ok {
		return
	}

	bookID, ok := s.parseID(w, req.BookID, "book_id")
	if !ok {
		return
	}

	period, err := req.duePeriod()
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	record, err := s.service.Borrow(r.Context(), studentID, bookID, period)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, recordResponseFrom(record))
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if !s.decode(w, r, &req) {
		return
	}

	recordID, ok := s.parseID(w, req.RecordID, "record_id")
	if !ok {
		return
	}

	record, err := s.service.Return(r.Context(), recordID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, recordResponseFrom(record))
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Sweep(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleUnblacklist(w http.ResponseWriter, r *http.Request) {
	var req unblacklistRequest
	if !s.decode(w, r, &req) {
		return
	}

	studentID, ok := s.parseID(w, req.StudentID, "student_id")
	if !ok {
		return
	}

	adminID := uuid.Nil
	if req.AdminID != "" {
		parsed, ok := s.parseID(w, req.AdminID, "admin_id")
		if !ok {
			return
		}
		adminID = parsed
	}

	student, err := s.service.ManualUnblacklist(r.Context(), studentID, req.Reason, adminID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, studentResponseFrom(student))
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.projections.GetBorrowRecords(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	response := make([]recordResponse, 0, len(records))
	for _, record := range records {
		response = append(response, recordResponseFrom(record))
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	studentID, ok := s.parseID(w, r.PathValue("id"), "id")
	if !ok {
		return
	}

	student, err := s.projections.GetStudent(r.Context(), studentID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, studentResponseFrom(student))
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	bookID, ok := s.parseID(w, r.PathValue("id"), "id")
	if !ok {
		return
	}

	book, err := s.projections.GetBook(r.Context(), bookID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, bookResponseFrom(book))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := jsoniter.ConfigFastest.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}

	return true
}

func (s *Server) parseID(w http.ResponseWriter, raw string, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: field + " must be a valid uuid"})
		return uuid.Nil, false
	}

	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)

	if err := jsoniter.ConfigFastest.NewEncoder(w).Encode(body); err != nil && s.logger != nil {
		s.logger.Error(logMsgRequestFailed, "error", err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)

	if status == http.StatusInternalServerError && s.logger != nil {
		s.logger.Error(logMsgRequestFailed, "error", err.Error())
	}

	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps domain sentinels onto HTTP status codes. Unmatched errors
// are treated as infrastructure failures.
func statusFor(err error) int {
	switch {
	case errors.Is(err, circulation.ErrStudentNotFound),
		errors.Is(err, circulation.ErrBookNotFound),
		errors.Is(err, circulation.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, circulation.ErrInvalidReason),
		errors.Is(err, circulation.ErrMissingAdmin):
		return http.StatusBadRequest
	case errors.Is(err, circulation.ErrHasOverdueBooks),
		errors.Is(err, circulation.ErrStudentBlacklisted),
		errors.Is(err, circulation.ErrNoAvailableCopy),
		errors.Is(err, circulation.ErrNotBlacklisted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
