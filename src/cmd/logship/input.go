// FILE: logship/src/cmd/logship/input.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"logship/src/internal/core"

	"github.com/hpcloud/tail"
	"github.com/valyala/fastjson"
)

const maxLineBytes = 1 << 20

// lineShipper turns input lines into slog records for the pipeline handler.
// JSON object lines are decoded into attributes; anything else becomes an
// INFO message. Not safe for concurrent use.
type lineShipper struct {
	handler slog.Handler
	parser  fastjson.Parser
	now     func() time.Time

	lines     atomic.Uint64
	jsonLines atomic.Uint64
	skipped   atomic.Uint64
}

func newLineShipper(handler slog.Handler) *lineShipper {
	return &lineShipper{handler: handler, now: time.Now}
}

// ship forwards one line. Blank lines are skipped.
func (s *lineShipper) ship(ctx context.Context, line string) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		s.skipped.Add(1)
		return
	}
	s.lines.Add(1)

	r := s.record(line)
	if !s.handler.Enabled(ctx, r.Level) {
		return
	}
	_ = s.handler.Handle(ctx, r)
}

func (s *lineShipper) record(line string) slog.Record {
	now := s.now()
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		if v, err := s.parser.Parse(trimmed); err == nil && v.Type() == fastjson.TypeObject {
			s.jsonLines.Add(1)
			return jsonRecord(v, now)
		}
	}
	return slog.NewRecord(now, slog.LevelInfo, line, 0)
}

// jsonRecord maps the well-known keys of a JSON log line onto the record and
// keeps every other key as an attribute.
func jsonRecord(v *fastjson.Value, now time.Time) slog.Record {
	obj, _ := v.Object()

	level := slog.LevelInfo
	t := now
	var msg string
	var attrs []slog.Attr

	obj.Visit(func(key []byte, val *fastjson.Value) {
		k := string(key)
		switch k {
		case "severity", "level":
			if val.Type() == fastjson.TypeString {
				if sev := core.ParseSeverity(string(val.GetStringBytes())); sev != core.SeverityDefault {
					level = sev.Level()
					return
				}
			}
		case "message", "msg":
			if val.Type() == fastjson.TypeString && msg == "" {
				msg = string(val.GetStringBytes())
				return
			}
		case "time", "timestamp":
			if val.Type() == fastjson.TypeString {
				if parsed, err := time.Parse(time.RFC3339Nano, string(val.GetStringBytes())); err == nil {
					t = parsed
					return
				}
			}
		}
		attrs = append(attrs, slog.Any(k, jsonValue(val)))
	})

	r := slog.NewRecord(t, level, msg, 0)
	r.AddAttrs(attrs...)
	return r
}

func jsonValue(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		if i, err := v.Int64(); err == nil {
			return i
		}
		return v.GetFloat64()
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeObject:
		obj, _ := v.Object()
		m := make(map[string]any, obj.Len())
		obj.Visit(func(key []byte, val *fastjson.Value) {
			m[string(key)] = jsonValue(val)
		})
		return m
	case fastjson.TypeArray:
		items, _ := v.Array()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = jsonValue(item)
		}
		return out
	default:
		return nil
	}
}

// readLines calls fn for every line of r until EOF or ctx is cancelled.
func readLines(ctx context.Context, r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}

// followFile tails path, surviving rotation, until ctx is cancelled.
func followFile(ctx context.Context, path string, fromStart bool, fn func(string)) error {
	cfg := tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:   tail.DiscardingLogger,
	}
	if fromStart {
		cfg.Location = nil
	}

	t, err := tail.TailFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to follow %s: %w", path, err)
	}
	defer t.Cleanup()

	for {
		select {
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line == nil {
				continue
			}
			if line.Err != nil {
				logger.Warn("msg", "Error reading followed file",
					"component", "input",
					"path", path,
					"error", line.Err)
				continue
			}
			fn(line.Text)
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		}
	}
}

func (s *lineShipper) GetStats() map[string]any {
	return map[string]any{
		"lines":      s.lines.Load(),
		"json_lines": s.jsonLines.Load(),
		"skipped":    s.skipped.Load(),
	}
}
