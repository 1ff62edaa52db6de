package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	applog "github.com/ErlanBelekov/agent-job-sync/internal/log"
	"github.com/ErlanBelekov/agent-job-sync/internal/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHandler_AddsContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(applog.NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := requestid.WithRequestID(context.Background(), "req-1")
	ctx = applog.WithJobID(ctx, "job-1")
	logger.InfoContext(ctx, "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "job-1", rec["job_id"])
}

func TestContextHandler_OmitsMissingAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(applog.NewContextHandler(slog.NewJSONHandler(&buf, nil))).With("component", "x")

	logger.InfoContext(context.Background(), "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.NotContains(t, rec, "request_id")
	assert.NotContains(t, rec, "job_id")
	assert.Equal(t, "x", rec["component"])
}
