package postgresengine

import (
	"github.com/campuslib/circulation-engine-go/circulation"
)

// Option defines a functional option for configuring the Store.
type Option func(*Store) error

// WithTablePrefix prefixes every table name of the store, e.g. "lib_" turns
// books into lib_books. Useful when the circulation tables share a database
// with the rest of the school administration tool.
func WithTablePrefix(prefix string) Option {
	return func(s *Store) error {
		if prefix == "" {
			return circulation.ErrEmptyTablePrefix
		}

		s.tables = tableNamesWithPrefix(prefix)

		return nil
	}
}

// WithLogger sets the logger for the Store.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL queries with execution timing (development use)
// Info level: operation outcomes and durations (production-safe)
// Warn level: non-critical issues like cleanup failures
// Error level: critical failures that cause operation failures.
func WithLogger(logger circulation.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Store.
// The contextual logger receives log messages with context information,
// including automatic trace/span correlation when tracing is enabled.
func WithContextualLogger(logger circulation.ContextualLogger) Option {
	return func(s *Store) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Store. The collector
// receives performance and operational metrics including transaction
// durations, query timings and conflict counts.
func WithMetrics(collector circulation.MetricsCollector) Option {
	return func(s *Store) error {
		s.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Store. The collector
// receives span creation for transactional operations, context propagation,
// and error tracking.
func WithTracing(collector circulation.TracingCollector) Option {
	return func(s *Store) error {
		s.tracingCollector = collector
		return nil
	}
}
