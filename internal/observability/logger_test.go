package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseEntries(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry LogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: InfoLevel, Output: &buf})

	logger.Info("stage completed", map[string]interface{}{"stage": "aggregate"})

	entries := parseEntries(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "INFO", entries[0].Level)
	assert.Equal(t, "stage completed", entries[0].Message)
	assert.Equal(t, "retflow", entries[0].Service)
	assert.Equal(t, "aggregate", entries[0].Fields["stage"])
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: WarnLevel, Output: &buf})

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	entries := parseEntries(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "WARN", entries[0].Level)
	assert.Equal(t, "ERROR", entries[1].Level)
}

func TestLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: ErrorLevel, Output: &buf})

	logger.Info("dropped")
	logger.SetLevel(DebugLevel)
	logger.Debug("kept")

	entries := parseEntries(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].Message)
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: InfoLevel, Output: &buf})

	runLogger := logger.WithField("run_id", "run-1")
	stageLogger := runLogger.WithFields(map[string]interface{}{"stage": "export"})

	stageLogger.Info("stage starting")
	// Per-call fields merge over the bound ones
	stageLogger.Info("stage completed", map[string]interface{}{"stage": "publish"})
	// The parent logger is unchanged
	runLogger.Info("run completed")

	entries := parseEntries(t, &buf)
	require.Len(t, entries, 3)
	assert.Equal(t, "run-1", entries[0].Fields["run_id"])
	assert.Equal(t, "export", entries[0].Fields["stage"])
	assert.Equal(t, "publish", entries[1].Fields["stage"])
	assert.Nil(t, entries[2].Fields["stage"])
}
