// FILE: logship/src/cmd/logship/input_test.go
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"logship/src/internal/core"

	"github.com/lixenwraith/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureHandler struct {
	mu      sync.Mutex
	min     slog.Level
	records []slog.Record
}

func (h *captureHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.min }
func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler           { return h }
func (h *captureHandler) WithGroup(string) slog.Handler                { return h }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *captureHandler) all() []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]slog.Record(nil), h.records...)
}

func attrs(r slog.Record) map[string]any {
	m := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value.Any()
		return true
	})
	return m
}

func TestLineShipper_PlainText(t *testing.T) {
	h := &captureHandler{min: slog.LevelDebug}
	s := newLineShipper(h)

	s.ship(context.Background(), "server started on :8080\r\n")
	s.ship(context.Background(), "   ")

	records := h.all()
	require.Len(t, records, 1)
	assert.Equal(t, "server started on :8080", records[0].Message)
	assert.Equal(t, slog.LevelInfo, records[0].Level)
	assert.Equal(t, uint64(1), s.GetStats()["skipped"])
}

func TestLineShipper_JSON(t *testing.T) {
	h := &captureHandler{min: slog.LevelDebug}
	s := newLineShipper(h)

	s.ship(context.Background(), `{"level":"warn","msg":"slow query","time":"2024-05-01T12:00:00.5Z",`+
		`"trace_id":"abc","duration_ms":1200,"ratio":0.25,"cached":false,"tags":["a","b"],"db":{"name":"orders"},"none":null}`)

	records := h.all()
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "slow query", r.Message)
	assert.Equal(t, slog.LevelWarn, r.Level)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 500000000, time.UTC), r.Time.UTC())

	a := attrs(r)
	assert.Equal(t, "abc", a["trace_id"])
	assert.Equal(t, int64(1200), a["duration_ms"])
	assert.Equal(t, 0.25, a["ratio"])
	assert.Equal(t, false, a["cached"])
	assert.Equal(t, []any{"a", "b"}, a["tags"])
	assert.Equal(t, map[string]any{"name": "orders"}, a["db"])
	assert.Nil(t, a["none"])
	assert.NotContains(t, a, "level")
	assert.NotContains(t, a, "msg")
	assert.NotContains(t, a, "time")
}

func TestLineShipper_JSONEdgeCases(t *testing.T) {
	h := &captureHandler{min: slog.LevelDebug}
	s := newLineShipper(h)
	ctx := context.Background()

	s.ship(ctx, `{"severity":"CRITICAL","message":"disk gone"}`)
	s.ship(ctx, `{"severity":"sort-of-bad","message":"kept as attr"}`)
	s.ship(ctx, `{"broken json`)
	s.ship(ctx, `{"time":"yesterday"}`)

	records := h.all()
	require.Len(t, records, 4)

	assert.Equal(t, core.LevelCritical, records[0].Level)

	assert.Equal(t, slog.LevelInfo, records[1].Level)
	assert.Equal(t, "sort-of-bad", attrs(records[1])["severity"])

	// Malformed JSON ships verbatim
	assert.Equal(t, `{"broken json`, records[2].Message)

	assert.Equal(t, "yesterday", attrs(records[3])["time"])
	assert.Equal(t, uint64(3), s.GetStats()["json_lines"])
}

func TestLineShipper_RespectsEnabled(t *testing.T) {
	h := &captureHandler{min: slog.LevelWarn}
	s := newLineShipper(h)

	s.ship(context.Background(), `{"level":"debug","msg":"noise"}`)
	s.ship(context.Background(), "plain info")
	s.ship(context.Background(), `{"level":"error","msg":"kept"}`)

	records := h.all()
	require.Len(t, records, 1)
	assert.Equal(t, "kept", records[0].Message)
	assert.Equal(t, uint64(3), s.GetStats()["lines"])
}

func TestReadLines(t *testing.T) {
	var got []string
	err := readLines(context.Background(), strings.NewReader("one\ntwo\n\nthree"), func(l string) {
		got = append(got, l)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "", "three"}, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got = nil
	require.NoError(t, readLines(ctx, strings.NewReader("a\nb\n"), func(l string) { got = append(got, l) }))
	assert.Empty(t, got)
}

func TestReadLines_TooLong(t *testing.T) {
	long := strings.Repeat("x", maxLineBytes+1)
	err := readLines(context.Background(), strings.NewReader(long), func(string) {})
	assert.Error(t, err)
}

func TestFollowFile(t *testing.T) {
	logger = log.NewLogger()

	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("existing\n"), 0644))

	var mu sync.Mutex
	var got []string
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- followFile(ctx, path, true, func(l string) {
			mu.Lock()
			got = append(got, l)
			mu.Unlock()
		})
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("appended\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("followFile did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"existing", "appended"}, got)
}

func TestFollowFile_Missing(t *testing.T) {
	logger = log.NewLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	// ReOpen waits for the file to appear, so a missing path only ends with ctx
	err := followFile(ctx, filepath.Join(t.TempDir(), "missing.log"), false, func(string) {})
	assert.NoError(t, err)
}
