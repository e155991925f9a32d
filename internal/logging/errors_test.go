package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogError_OopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{}, &buf)

	err := oops.Code("STORE_FAILED").With("operation", "save").Errorf("connection refused")
	LogError(logger, "save failed", err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "save failed", entry["msg"])
	assert.Equal(t, "STORE_FAILED", entry["code"])
	assert.Contains(t, entry["error"], "connection refused")

	ctx, ok := entry["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "save", ctx["operation"])
}

func TestLogError_StandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{}, &buf)

	LogError(logger, "boom", errors.New("plain failure"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "plain failure", entry["error"])
	assert.NotContains(t, entry, "code")
}

func TestLogErrorContext_CarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Options{Service: "studentauth"}, &buf)

	ctx := WithRequestID(context.Background(), "req-42")
	err := oops.Code("HASH_FAILED").With("b", 2).With("a", 1).Errorf("pool exhausted")
	LogErrorContext(ctx, logger, "request failed", err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "HASH_FAILED", entry["code"])
	assert.Equal(t, "studentauth", entry["service"])
	fields, ok := entry["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), fields["a"])
	assert.Equal(t, float64(2), fields["b"])
}
