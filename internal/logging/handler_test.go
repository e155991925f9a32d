package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "studentauth", Version: "1.0.0", Format: "json"}, &buf)

	logger.Info("test message")

	var entry map[string]any
	err := json.Unmarshal(buf.Bytes(), &entry)
	require.NoError(t, err, "Failed to parse JSON: %s", buf.String())

	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "studentauth", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Contains(t, entry, "time")
	assert.Contains(t, entry, "level")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "studentauth", Format: "text"}, &buf)

	logger.Info("test message")

	assert.Contains(t, buf.String(), "test message")
	assert.Contains(t, buf.String(), "studentauth")
}

func TestSetup_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Level: "warn"}, &buf)

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestHandler_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "studentauth"}, &buf)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)
	ctx = WithRequestID(ctx, "req-1")

	logger.InfoContext(ctx, "traced message")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestHandler_NoTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{}, &buf)

	logger.Info("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
	assert.NotContains(t, entry, "request_id")
}

func TestHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "svc"}, &buf).With("component", "api").WithGroup("req")

	logger.Info("grouped", "path", "/x")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "api", entry["component"])
	assert.Contains(t, entry, "req")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
