package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, Accessor(ctx))
	assert.Empty(t, SecretID(ctx))
	assert.Empty(t, ToolContext(ctx))

	ctx = WithAccessor(ctx, "principal:alice")
	ctx = WithSecretID(ctx, "sec-123")
	ctx = WithToolContext(ctx, "deployer")

	assert.Equal(t, "principal:alice", Accessor(ctx))
	assert.Equal(t, "sec-123", SecretID(ctx))
	assert.Equal(t, "deployer", ToolContext(ctx))
}

func TestCorrelationHandlerInjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithAccessor(context.Background(), "agent:worker")
	ctx = WithSecretID(ctx, "sec-456")
	logger.InfoContext(ctx, "secret fetched")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "agent:worker", rec["accessor"])
	assert.Equal(t, "sec-456", rec["secret_id"])
	assert.Equal(t, "secret fetched", rec["msg"])
	_, hasTool := rec["tool"]
	assert.False(t, hasTool, "absent context values add no attributes")
}

func TestLogWithSkipsEmptyValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	LogWith(context.Background(), logger).Info("bare")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	_, has := rec["accessor"]
	assert.False(t, has)
}
