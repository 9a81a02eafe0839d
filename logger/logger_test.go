package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/goliatone/go-clinic-auth/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("verbose"))
}

func TestSetupWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := logger.Setup(&buf, "info")
	log.Info("server started", "port", 8080)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "server started", lines[0]["msg"])
	assert.EqualValues(t, 8080, lines[0]["port"])
}

func TestAdapterFormatsAndFilters(t *testing.T) {
	var buf bytes.Buffer
	adapter := logger.NewAdapter(logger.Setup(&buf, "info")).With("component", "auth")

	adapter.Debug("hidden %d", 1)
	adapter.Info("login for %s", "dr@x.com")
	adapter.Error("refresh failed: %v", "boom")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "login for dr@x.com", lines[0]["msg"])
	assert.Equal(t, "auth", lines[0]["component"])
	assert.Equal(t, "ERROR", lines[1]["level"])
	assert.Equal(t, "refresh failed: boom", lines[1]["msg"])
}

func TestAdapterKeepsLiteralPercent(t *testing.T) {
	var buf bytes.Buffer
	logger.NewAdapter(logger.Setup(&buf, "debug")).Warn("100% done")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "100% done", lines[0]["msg"])
}
