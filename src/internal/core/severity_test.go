// FILE: logship/src/internal/core/severity_test.go
package core

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityFromLevel(t *testing.T) {
	testCases := []struct {
		level    slog.Level
		expected Severity
	}{
		{slog.LevelDebug, SeverityDebug},
		{slog.LevelDebug - 4, SeverityDebug},
		{slog.LevelInfo, SeverityInfo},
		{LevelNotice, SeverityNotice},
		{slog.LevelWarn, SeverityWarning},
		{slog.LevelError, SeverityError},
		{LevelCritical, SeverityCritical},
		{LevelAlert, SeverityAlert},
		{LevelEmergency + 4, SeverityEmergency},
	}

	for _, tc := range testCases {
		t.Run(tc.level.String(), func(t *testing.T) {
			assert.Equal(t, tc.expected, SeverityFromLevel(tc.level))
		})
	}
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityWarning, ParseSeverity("warn"))
	assert.Equal(t, SeverityError, ParseSeverity(" Error "))
	assert.Equal(t, SeverityCritical, ParseSeverity("fatal"))
	assert.Equal(t, SeverityDefault, ParseSeverity("loud"))
	assert.Equal(t, SeverityDefault, ParseSeverity(""))
}

func TestSeverityLevelRoundTrip(t *testing.T) {
	for _, s := range []Severity{SeverityDebug, SeverityInfo, SeverityNotice, SeverityWarning,
		SeverityError, SeverityCritical, SeverityAlert, SeverityEmergency} {
		assert.Equal(t, s, SeverityFromLevel(s.Level()), "severity %s", s)
	}
}

func TestEntryJSONShape(t *testing.T) {
	entry := Entry{
		LogName:        "projects/p/logs/app",
		Timestamp:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Severity:       SeverityInfo,
		SourceLocation: &SourceLocation{File: "main.go", Line: 42},
	}
	res := GlobalResource("p")
	entry.Resource = &res

	data, err := json.Marshal(entry)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "projects/p/logs/app", out["logName"])
	assert.Equal(t, "INFO", out["severity"])
	assert.Equal(t, "2024-05-01T10:00:00Z", out["timestamp"])
	assert.Equal(t, "42", out["sourceLocation"].(map[string]any)["line"], "line is an int64 encoded as a string")
	assert.Equal(t, "global", out["resource"].(map[string]any)["type"])
	_, hasTrace := out["trace"]
	assert.False(t, hasTrace)
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("batch.max_entries", "must be positive", nil)
	assert.Equal(t, "invalid config batch.max_entries: must be positive", err.Error())
}
