package postgresengine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/campuslib/circulation-engine-go/circulation"
)

const (
	logMsgSQLExecuted        = "circulation-store: sql executed"
	logMsgTxCommitted        = "circulation-store: transaction committed"
	logMsgBeginTxFailed      = "circulation-store: failed to begin transaction"
	logMsgCommitFailed       = "circulation-store: failed to commit transaction"
	logMsgRollbackFailed     = "circulation-store: failed to roll back transaction"
	logMsgBuildQueryFailed   = "circulation-store: failed to build query"
	logMsgQueryFailed        = "circulation-store: query failed"
	logMsgExecFailed         = "circulation-store: exec failed"
	logMsgRowsAffectedFailed = "circulation-store: failed to read affected rows"
	logMsgCloseRowsFailed    = "circulation-store: failed to close rows"

	logAttrError      = "error"
	logAttrQuery      = "query"
	logAttrDurationMS = "duration_ms"

	statusSuccess = "success"
	statusError   = "error"

	errorTypeBegin   = "begin"
	errorTypeUsecase = "usecase"
	errorTypeCommit  = "commit"

	spanNameTx        = "circulation.transaction"
	spanAttrOperation = "operation"
	spanAttrErrorType = "error_type"
	operationTx       = "transaction"

	metricTxDuration  = "circulation_tx_duration_seconds"
	metricTxConflicts = "circulation_tx_conflicts_total"
)

// logQueryWithDuration logs SQL queries with execution time at debug level.
// The contextual logger wins when both loggers are configured.
func (s *Store) logQueryWithDuration(ctx context.Context, sqlQuery string, duration time.Duration) {
	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.DebugContext(ctx, logMsgSQLExecuted, logAttrDurationMS, s.toMilliseconds(duration), logAttrQuery, sqlQuery)
	case s.logger != nil:
		s.logger.Debug(logMsgSQLExecuted, logAttrDurationMS, s.toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperationContext logs operational information at info level.
func (s *Store) logOperationContext(ctx context.Context, message string, args ...any) {
	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.InfoContext(ctx, message, args...)
	case s.logger != nil:
		s.logger.Info(message, args...)
	}
}

// logError logs error information at the error level if a logger is configured.
func (s *Store) logError(message string, err error, args ...any) {
	if s.logger != nil {
		allArgs := []any{logAttrError, err.Error()}
		allArgs = append(allArgs, args...)
		s.logger.Error(message, allArgs...)
	}
}

// logWarn logs non-critical issues at the warn level if a logger is configured.
func (s *Store) logWarn(message string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(message, args...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (s *Store) toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// recordTxMetrics records the duration of one WithinTx call and counts
// conflicts separately so retry storms stay visible on a dashboard.
func (s *Store) recordTxMetrics(ctx context.Context, duration time.Duration, status string, conflict bool) {
	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operationTx,
		"status":          status,
	}

	if contextualCollector, ok := s.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricTxDuration, duration, labels)
	} else {
		s.metricsCollector.RecordDuration(metricTxDuration, duration, labels)
	}

	if conflict {
		conflictLabels := map[string]string{spanAttrOperation: operationTx}
		if contextualCollector, ok := s.metricsCollector.(circulation.ContextualMetricsCollector); ok {
			contextualCollector.IncrementCounterContext(ctx, metricTxConflicts, conflictLabels)
		} else {
			s.metricsCollector.IncrementCounter(metricTxConflicts, conflictLabels)
		}
	}
}

// startTxSpan starts a tracing span for a WithinTx call if tracing is configured.
func (s *Store) startTxSpan(ctx context.Context) (circulation.SpanContext, context.Context) {
	if s.tracingCollector == nil {
		return nil, ctx
	}

	newCtx, span := s.tracingCollector.StartSpan(ctx, spanNameTx, map[string]string{
		spanAttrOperation: operationTx,
	})

	return span, newCtx
}

// finishTxSpanSuccess finishes a successful transaction span.
func (s *Store) finishTxSpanSuccess(span circulation.SpanContext, duration time.Duration) {
	if span == nil || s.tracingCollector == nil {
		return
	}

	span.SetStatus(statusSuccess)
	span.AddAttribute(logAttrDurationMS, fmt.Sprintf("%.2f", s.toMilliseconds(duration)))
	s.tracingCollector.FinishSpan(span, statusSuccess, nil)
}

// finishTxSpanError finishes a transaction span with error details.
func (s *Store) finishTxSpanError(span circulation.SpanContext, errorType string) {
	if span == nil || s.tracingCollector == nil {
		return
	}

	span.SetStatus(statusError)
	span.AddAttribute(spanAttrErrorType, errorType)
	s.tracingCollector.FinishSpan(span, statusError, map[string]string{spanAttrErrorType: errorType})
}
