package lending

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/campuslib/circulation-engine-go/circulation"
)

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3

	retryAttemptsMetric  = "lending_retry_attempts_total"
	retryDelayMetric     = "lending_retry_delay_seconds"
	retryExhaustedMetric = "lending_retries_exhausted_total"

	labelOperation = "operation"
)

var (
	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")

	// ErrNilMetricsCollector is returned when a nil metrics collector is provided to WithRetryMetrics.
	ErrNilMetricsCollector = errors.New("metrics collector must not be nil")

	// ErrEmptyOperation is returned when an empty operation name is provided to WithRetryMetrics.
	ErrEmptyOperation = errors.New("operation name must not be empty")
)

// RetryableFunc represents a function that can be retried.
type RetryableFunc func(ctx context.Context) error

type retryConfig struct {
	maxAttempts      int
	baseDelay        time.Duration
	jitterFactor     float64
	metricsCollector circulation.MetricsCollector
	operation        string
}

// RetryWithExponentialBackoff executes fn, retrying transaction conflicts
// up to maxAttempts times with exponential backoff and jitter.
//
// Retry schedule (default): 0ms, 10ms, 20ms, 40ms, 80ms, 160ms with 30%
// jitter, roughly 300ms worst case. Only circulation.ErrTxConflict is
// retried; business rejections and timeouts fail fast.
func RetryWithExponentialBackoff(ctx context.Context, fn RetryableFunc, options ...RetryOption) error {
	config := &retryConfig{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}

	for _, option := range options {
		if err := option(config); err != nil {
			return err
		}
	}

	var lastErr error

	for attempt := 0; attempt < config.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := config.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * config.jitterFactor //nolint:gosec // math/rand is sufficient for jitter
			backoffDelay := delay + time.Duration(jitter)

			config.recordRetryDelay(ctx, attempt, backoffDelay)

			select {
			case <-time.After(backoffDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !errors.Is(lastErr, circulation.ErrTxConflict) {
			return lastErr
		}

		config.recordRetryAttempt(ctx, attempt)
	}

	config.recordRetriesExhausted(ctx)

	return lastErr
}

func (c *retryConfig) recordRetryDelay(ctx context.Context, attempt int, delay time.Duration) {
	if c.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		labelOperation:   c.operation,
		"attempt_number": fmt.Sprintf("%d", attempt),
	}

	if contextualCollector, ok := c.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, retryDelayMetric, delay, labels)
	} else {
		c.metricsCollector.RecordDuration(retryDelayMetric, delay, labels)
	}
}

func (c *retryConfig) recordRetryAttempt(ctx context.Context, attempt int) {
	if c.metricsCollector == nil || attempt >= c.maxAttempts-1 {
		return
	}

	labels := map[string]string{
		labelOperation:   c.operation,
		"attempt_number": fmt.Sprintf("%d", attempt+1),
	}

	if contextualCollector, ok := c.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, retryAttemptsMetric, labels)
	} else {
		c.metricsCollector.IncrementCounter(retryAttemptsMetric, labels)
	}
}

func (c *retryConfig) recordRetriesExhausted(ctx context.Context) {
	if c.metricsCollector == nil {
		return
	}

	labels := map[string]string{labelOperation: c.operation}

	if contextualCollector, ok := c.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, retryExhaustedMetric, labels)
	} else {
		c.metricsCollector.IncrementCounter(retryExhaustedMetric, labels)
	}
}

// RetryOption configures retry behavior using the functional options pattern.
type RetryOption func(*retryConfig) error

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(attempts int) RetryOption {
	return func(config *retryConfig) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}

		config.maxAttempts = attempts

		return nil
	}
}

// WithBaseDelay sets the base delay for exponential backoff.
// Actual delays: baseDelay, baseDelay*2, baseDelay*4, and so on.
func WithBaseDelay(delay time.Duration) RetryOption {
	return func(config *retryConfig) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}

		config.baseDelay = delay

		return nil
	}
}

// WithJitterFactor sets the jitter added to each backoff delay, as a
// fraction between 0.0 (none) and 1.0 (up to 100% of the delay).
func WithJitterFactor(factor float64) RetryOption {
	return func(config *retryConfig) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}

		config.jitterFactor = factor

		return nil
	}
}

// WithRetryMetrics sets the metrics collector for retry instrumentation.
// The operation name labels the emitted metrics.
func WithRetryMetrics(collector circulation.MetricsCollector, operation string) RetryOption {
	return func(config *retryConfig) error {
		if collector == nil {
			return ErrNilMetricsCollector
		}

		if operation == "" {
			return ErrEmptyOperation
		}

		config.metricsCollector = collector
		config.operation = operation

		return nil
	}
}
