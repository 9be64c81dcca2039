// FILE: logship/src/internal/sink/handler.go
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"sync/atomic"

	"logship/src/internal/core"
	"logship/src/internal/filter"
	"logship/src/internal/mapper"
	"logship/src/internal/ratelimit"

	"github.com/google/uuid"
	"github.com/lixenwraith/log"
)

// Attribute keys that carry trace correlation instead of payload.
const (
	TraceIDKey = "trace_id"
	SpanIDKey  = "span_id"

	structuredTraceKey = "logging.googleapis.com/trace"
	structuredSpanKey  = "logging.googleapis.com/spanId"
)

// Appender accepts mapped entries. *batch.Accumulator implements it.
type Appender interface {
	Append(entry core.Entry) bool
}

// TraceExtractor pulls trace and span ids from the logging call's context.
type TraceExtractor func(ctx context.Context) (traceID, spanID string)

// Options configures a Handler.
type Options struct {
	ProjectID string
	LogID     string
	Resource  core.Resource
	// Added to every entry unless the mapper set the same key
	Labels map[string]string

	// Minimum level, slog.LevelInfo when nil
	Level     slog.Leveler
	AddSource bool

	// Defaults to mapper.Default
	Mapper         mapper.Mapper
	Filter         *filter.Chain
	Limiter        *ratelimit.Limiter
	TraceExtractor TraceExtractor
}

// handlerCore is shared by a Handler and every handler derived from it.
type handlerCore struct {
	opts     Options
	appender Appender
	logger   *log.Logger

	// Statistics
	handled  atomic.Uint64
	filtered atomic.Uint64
	limited  atomic.Uint64
	accepted atomic.Uint64
	rejected atomic.Uint64
	panics   atomic.Uint64
}

type groupedAttrs struct {
	groups []string
	attrs  []slog.Attr
}

// Handler is a slog.Handler that maps records to entries and appends them to
// the batch accumulator. Handle never blocks on the network and never
// returns an error.
type Handler struct {
	core   *handlerCore
	preset []groupedAttrs
	groups []string
}

// NewHandler creates a handler feeding appender.
func NewHandler(opts Options, appender Appender, logger *log.Logger) (*Handler, error) {
	if appender == nil {
		return nil, fmt.Errorf("appender cannot be nil")
	}
	if opts.ProjectID == "" {
		return nil, core.NewConfigError("project_id", "must not be empty", nil)
	}
	if opts.LogID == "" {
		return nil, core.NewConfigError("log_name", "must not be empty", nil)
	}
	if opts.Mapper == nil {
		opts.Mapper = mapper.Default{}
	}
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	if opts.Resource.Type == "" {
		opts.Resource = core.GlobalResource(opts.ProjectID)
	}

	return &Handler{
		core: &handlerCore{
			opts:     opts,
			appender: appender,
			logger:   logger,
		},
	}, nil
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.core.opts.Level.Level()
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	c := h.core
	c.handled.Add(1)

	// A misbehaving mapper must not reach the logging call site
	defer func() {
		if p := recover(); p != nil {
			c.panics.Add(1)
			c.logger.Error("msg", "Recovered panic while handling record",
				"component", "sink",
				"panic", fmt.Sprint(p))
		}
	}()

	rec := h.record(ctx, r)
	if c.opts.Filter != nil && !c.opts.Filter.Apply(rec) {
		c.filtered.Add(1)
		return nil
	}
	if !c.opts.Limiter.Allow(rec) {
		c.limited.Add(1)
		return nil
	}

	mctx := mapper.NewContext(c.opts.ProjectID, c.opts.LogID, c.opts.Resource, rec)
	entry := c.opts.Mapper.Map(mctx, rec)

	if len(c.opts.Labels) > 0 {
		// The mapper may hand back a shared map
		labels := make(map[string]string, len(entry.Labels)+len(c.opts.Labels))
		maps.Copy(labels, c.opts.Labels)
		maps.Copy(labels, entry.Labels)
		entry.Labels = labels
	}
	if entry.InsertID == "" {
		entry.InsertID = uuid.NewString()
	}

	if c.appender.Append(entry) {
		c.accepted.Add(1)
	} else {
		c.rejected.Add(1)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	h2.preset = append(h2.preset, groupedAttrs{groups: h.groups, attrs: attrs})
	return h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(slices.Clip(h.groups), name)
	return h2
}

func (h *Handler) clone() *Handler {
	return &Handler{
		core:   h.core,
		preset: slices.Clip(h.preset),
		groups: slices.Clip(h.groups),
	}
}

// record converts a slog record into the immutable pipeline record.
func (h *Handler) record(ctx context.Context, r slog.Record) core.LogRecord {
	rec := core.LogRecord{
		Time:     r.Time,
		Severity: core.SeverityFromLevel(r.Level),
		Message:  r.Message,
		Fields:   make(map[string]any, len(h.preset)+r.NumAttrs()),
	}

	if ex := h.core.opts.TraceExtractor; ex != nil && ctx != nil {
		rec.TraceID, rec.SpanID = ex(ctx)
	}

	for _, ga := range h.preset {
		addAttrs(rec.Fields, ga.groups, ga.attrs, &rec)
	}

	attrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	addAttrs(rec.Fields, h.groups, attrs, &rec)

	if h.core.opts.AddSource && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := frames.Next()
		rec.Source = &core.SourceLocation{
			File:     f.File,
			Line:     int64(f.Line),
			Function: f.Function,
		}
	}
	return rec
}

// addAttrs writes attrs under the nested group path. Ungrouped trace and
// span attributes are lifted into rec instead of the payload.
func addAttrs(dst map[string]any, groups []string, attrs []slog.Attr, rec *core.LogRecord) {
	var target map[string]any
	for _, a := range attrs {
		a.Value = a.Value.Resolve()
		if a.Equal(slog.Attr{}) {
			continue
		}
		if len(groups) == 0 && liftTrace(a, rec) {
			continue
		}
		if a.Value.Kind() == slog.KindGroup {
			sub := a.Value.Group()
			if len(sub) == 0 {
				continue
			}
			if target == nil {
				target = descend(dst, groups)
			}
			if a.Key == "" {
				addAttrs(target, nil, sub, nil)
				continue
			}
			addAttrs(target, []string{a.Key}, sub, nil)
			continue
		}
		if target == nil {
			target = descend(dst, groups)
		}
		target[a.Key] = attrValue(a.Value)
	}
}

func liftTrace(a slog.Attr, rec *core.LogRecord) bool {
	if rec == nil || a.Value.Kind() != slog.KindString {
		return false
	}
	switch a.Key {
	case TraceIDKey, structuredTraceKey:
		rec.TraceID = a.Value.String()
		return true
	case SpanIDKey, structuredSpanKey:
		rec.SpanID = a.Value.String()
		return true
	}
	return false
}

func descend(m map[string]any, groups []string) map[string]any {
	for _, g := range groups {
		next, ok := m[g].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[g] = next
		}
		m = next
	}
	return m
}

func attrValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	default:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	}
}

// GetStats returns handler statistics.
func (h *Handler) GetStats() map[string]any {
	c := h.core
	return map[string]any{
		"handled":  c.handled.Load(),
		"filtered": c.filtered.Load(),
		"limited":  c.limited.Load(),
		"accepted": c.accepted.Load(),
		"rejected": c.rejected.Load(),
		"panics":   c.panics.Load(),
	}
}
