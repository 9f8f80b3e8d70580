package lending

import (
	"time"

	"github.com/campuslib/circulation-engine-go/circulation"
)

const (
	logMsgBorrowed       = "lending: copy borrowed"
	logMsgReturned       = "lending: copy returned"
	logMsgSweepCompleted = "lending: sweep completed"
	logMsgUnblacklisted  = "lending: student manually unblacklisted"

	logAttrStudentID = "student_id"
	logAttrBookID    = "book_id"
	logAttrRecordID  = "record_id"

	operationBorrow      = "borrow"
	operationReturn      = "return"
	operationSweep       = "sweep"
	operationUnblacklist = "unblacklist"
)

// Clock supplies the current time. Swapped out in tests.
type Clock func() time.Time

// Service carries the borrowing lifecycle operations on top of a storage
// backend. Construct it once per process with NewService.
type Service struct {
	storage          circulation.Storage
	clock            Clock
	logger           circulation.Logger
	metricsCollector circulation.MetricsCollector
	audit            *AuditLog
	retryOptions     []RetryOption
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithLogger sets the logger for operation outcomes and audit warnings.
func WithLogger(logger circulation.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector used for retry instrumentation.
func WithMetrics(collector circulation.MetricsCollector) Option {
	return func(s *Service) {
		s.metricsCollector = collector
	}
}

// WithRetryOptions overrides the default conflict-retry configuration.
func WithRetryOptions(opts ...RetryOption) Option {
	return func(s *Service) {
		s.retryOptions = opts
	}
}

// NewService creates a new Service with optional configuration.
func NewService(storage circulation.Storage, opts ...Option) *Service {
	s := &Service{
		storage: storage,
		clock:   time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.audit = NewAuditLog(storage, s.logger, WithAuditClock(s.clock))

	return s
}

// Audit exposes the service's audit log writer, e.g. for the HTTP layer to
// record administrative actions outside the lending operations.
func (s *Service) Audit() *AuditLog {
	return s.audit
}

// retryOptionsFor returns the configured retry options plus metrics
// labeling for the given operation.
func (s *Service) retryOptionsFor(operation string) []RetryOption {
	opts := make([]RetryOption, 0, len(s.retryOptions)+1)
	opts = append(opts, s.retryOptions...)

	if s.metricsCollector != nil {
		opts = append(opts, WithRetryMetrics(s.metricsCollector, operation))
	}

	return opts
}

func (s *Service) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
