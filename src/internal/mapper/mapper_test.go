// FILE: logship/src/internal/mapper/mapper_test.go
package mapper

import (
	"encoding/json"
	"testing"
	"time"

	"logship/src/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMapper(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := core.LogRecord{
		Time:     ts,
		Severity: core.SeverityWarning,
		Message:  "disk nearly full",
		Fields:   map[string]any{"free_pct": 3, "mount": "/var"},
		TraceID:  "4bf92f3577b34da6a3ce929d0e0e4736",
		SpanID:   "00f067aa0ba902b7",
		Source:   &core.SourceLocation{File: "main.go", Line: 42, Function: "main.run"},
	}

	ctx := NewContext("acme", "app", core.GlobalResource("acme"), rec)
	entry := Default{}.Map(ctx, rec)

	assert.Equal(t, "projects/acme/logs/app", entry.LogName)
	require.NotNil(t, entry.Resource)
	assert.Equal(t, "global", entry.Resource.Type)
	assert.Equal(t, "acme", entry.Resource.Labels["project_id"])
	assert.Equal(t, ts, entry.Timestamp)
	assert.Equal(t, core.SeverityWarning, entry.Severity)
	assert.Equal(t, "projects/acme/traces/4bf92f3577b34da6a3ce929d0e0e4736", entry.Trace)
	assert.Equal(t, "00f067aa0ba902b7", entry.SpanID)
	assert.Equal(t, map[string]string{
		"context":   "app",
		"requestId": "4bf92f3577b34da6a3ce929d0e0e4736",
	}, entry.Labels)
	assert.Equal(t, "disk nearly full", entry.JSONPayload["message"])
	assert.Equal(t, 3, entry.JSONPayload["free_pct"])
	assert.Equal(t, "/var", entry.JSONPayload["mount"])
	require.NotNil(t, entry.SourceLocation)
	assert.Equal(t, int64(42), entry.SourceLocation.Line)

	// The record's own field map is left untouched
	_, leaked := rec.Fields["message"]
	assert.False(t, leaked)
}

func TestDefaultMapper_Fallbacks(t *testing.T) {
	rec := core.LogRecord{Message: "bare"}
	before := time.Now()
	ctx := NewContext("acme", "app", core.GlobalResource("acme"), rec)
	entry := Default{}.Map(ctx, rec)

	assert.Equal(t, core.SeverityDefault, entry.Severity)
	assert.False(t, entry.Timestamp.Before(before.UTC().Add(-time.Second)))
	assert.Empty(t, entry.Trace)
	assert.Equal(t, map[string]string{"context": "app"}, entry.Labels)
	assert.Nil(t, entry.SourceLocation)
	assert.Equal(t, map[string]any{"message": "bare"}, entry.JSONPayload)
}

func TestLogNameEscapesID(t *testing.T) {
	assert.Equal(t, "projects/p/logs/syslog%2Fapp", LogName("p", "syslog/app"))
	assert.Equal(t, "projects/p/logs/my-log", LogName("p", "my-log"))
}

func TestMapperFuncOverridesDefault(t *testing.T) {
	custom := MapperFunc(func(ctx Context, rec core.LogRecord) core.Entry {
		e := Default{}.Map(ctx, rec)
		e.Labels["team"] = "storage"
		e.JSONPayload = map[string]any{"text": rec.Message}
		return e
	})

	rec := core.LogRecord{Message: "hello", Severity: core.SeverityInfo}
	var m Mapper = custom
	entry := m.Map(NewContext("p", "app", core.Resource{Type: "k8s_container"}, rec), rec)

	assert.Equal(t, "storage", entry.Labels["team"])
	assert.Equal(t, "k8s_container", entry.Resource.Type)
	assert.Equal(t, map[string]any{"text": "hello"}, entry.JSONPayload)
}

func TestEntryWireShape(t *testing.T) {
	rec := core.LogRecord{
		Time:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Severity: core.SeverityError,
		Message:  "boom",
		TraceID:  "abc",
	}
	entry := Default{}.Map(NewContext("p", "app", core.GlobalResource("p"), rec), rec)

	data, err := json.Marshal(entry)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "projects/p/logs/app", wire["logName"])
	assert.Equal(t, "ERROR", wire["severity"])
	assert.Equal(t, "2024-01-02T03:04:05Z", wire["timestamp"])
	assert.Equal(t, "projects/p/traces/abc", wire["trace"])
	assert.Equal(t, map[string]any{"message": "boom"}, wire["jsonPayload"])
	assert.NotContains(t, wire, "sourceLocation")
	assert.NotContains(t, wire, "insertId")
}
