package logx

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(nil) })
	return &buf
}

func TestLogFormat(t *testing.T) {
	buf := captureOutput(t)

	NewLogger("scheduler").Info("Test message with %s", "formatting")

	out := buf.String()
	assert.Contains(t, out, "[scheduler]")
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "Test message with formatting")
	assert.Contains(t, out, "Z]")
}

func TestLogLevels(t *testing.T) {
	buf := captureOutput(t)
	logger := NewLogger("review")

	logger.Warn("w")
	logger.Error("e")

	assert.Contains(t, buf.String(), "WARN: w")
	assert.Contains(t, buf.String(), "ERROR: e")
}

func TestDebugGating(t *testing.T) {
	buf := captureOutput(t)
	t.Cleanup(func() { SetDebug(false) })

	SetDebug(false)
	NewLogger("qa").Debug("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	SetDebug(true, "scheduler")
	assert.True(t, IsDebugEnabledForDomain("scheduler"))
	assert.False(t, IsDebugEnabledForDomain("review"))

	ctx := WithComponent(context.Background(), "developer")
	Debug(ctx, "review", "filtered out")
	Debug(ctx, "scheduler", "kept %d", 1)

	assert.NotContains(t, buf.String(), "filtered out")
	assert.Contains(t, buf.String(), "[developer] DEBUG: [scheduler] kept 1")
}

func TestWith(t *testing.T) {
	logger := NewLogger("review").With("qa")
	assert.Equal(t, "review/qa", logger.Component())
}

func TestGetRecentEntries(t *testing.T) {
	captureOutput(t)
	start := time.Now().Add(-time.Second)

	NewLogger("recent-a").Info("first")
	NewLogger("recent-b").Info("second")

	entries := GetRecentEntries("recent-a", start)
	require.Len(t, entries, 1)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, "INFO", entries[0].Level)

	assert.Empty(t, GetRecentEntries("recent-a", time.Now().Add(time.Hour)))
}
