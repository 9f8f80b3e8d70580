package oteladapters_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	lognoop "go.opentelemetry.io/otel/log/noop"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/campuslib/circulation-engine-go/circulation/oteladapters"
)

func Test_SlogBridgeLogger_AllLevels(t *testing.T) {
	// arrange
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := oteladapters.NewSlogBridgeLoggerWithHandler(handler)
	ctx := context.Background()

	// act
	logger.DebugContext(ctx, "debug message", "level", "debug")
	logger.InfoContext(ctx, "info message", "level", "info")
	logger.WarnContext(ctx, "warn message", "level", "warn")
	logger.ErrorContext(ctx, "error message", "level", "error")

	// assert
	output := buf.String()
	assert.Contains(t, output, "debug message")
	assert.Contains(t, output, "info message")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
}

func Test_OTelLogger_DoesNotPanic_WithOddAndNonStringArgs(t *testing.T) {
	// arrange
	logger := oteladapters.NewOTelLogger(lognoop.NewLoggerProvider().Logger("test"))
	ctx := context.Background()

	// act + assert
	assert.NotPanics(t, func() {
		logger.InfoContext(ctx, "message", "key")                      // odd number of args
		logger.InfoContext(ctx, "message", 42, "value")                // non-string key
		logger.ErrorContext(ctx, "message", "count", 3, "flag", true)  // non-string values
	})
}

func Test_MetricsCollector_AllInstruments(t *testing.T) {
	// arrange
	collector := oteladapters.NewMetricsCollector(metricnoop.NewMeterProvider().Meter("test"))
	ctx := context.Background()
	labels := map[string]string{"operation": "borrow"}

	// act + assert
	assert.NotPanics(t, func() {
		collector.RecordDuration("op_duration", 25*time.Millisecond, labels)
		collector.RecordDurationContext(ctx, "op_duration", 25*time.Millisecond, labels)
		collector.IncrementCounter("op_total", labels)
		collector.IncrementCounterContext(ctx, "op_total", nil)
		collector.RecordValue("op_inflight", 2, labels)
		collector.RecordValueContext(ctx, "op_inflight", 1, labels)
	})
}

func Test_TracingCollector_SpanLifecycle(t *testing.T) {
	// arrange
	collector := oteladapters.NewTracingCollector(tracenoop.NewTracerProvider().Tracer("test"))
	ctx := context.Background()

	// act
	newCtx, span := collector.StartSpan(ctx, "circulation.transaction", map[string]string{"operation": "sweep"})

	// assert
	assert.NotNil(t, newCtx)
	assert.NotNil(t, span)

	// act + assert
	assert.NotPanics(t, func() {
		span.AddAttribute("records", "3")
		span.SetStatus("success")
		collector.FinishSpan(span, "success", map[string]string{"duration_ms": "1.25"})
	})
}

func Test_TracingCollector_FinishSpan_IgnoresForeignSpanContext(t *testing.T) {
	// arrange
	collector := oteladapters.NewTracingCollector(tracenoop.NewTracerProvider().Tracer("test"))

	// act + assert
	assert.NotPanics(t, func() {
		collector.FinishSpan(nil, "error", nil)
	})
}
