// FILE: logship/src/internal/mapper/mapper.go
package mapper

import (
	"maps"
	"net/url"
	"time"

	"logship/src/internal/core"
)

// Context carries the per-record values a mapper may draw on in addition to
// the record itself.
type Context struct {
	// LogName is the fully qualified projects/{p}/logs/{id} name
	LogName   string
	LogID     string
	ProjectID string
	Resource  core.Resource
	TraceID   string
	SpanID    string
	Timestamp time.Time
	Severity  core.Severity
}

// NewContext derives the mapping context for one record.
func NewContext(projectID, logID string, resource core.Resource, rec core.LogRecord) Context {
	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	sev := rec.Severity
	if sev == "" {
		sev = core.SeverityDefault
	}
	return Context{
		LogName:   LogName(projectID, logID),
		LogID:     logID,
		ProjectID: projectID,
		Resource:  resource,
		TraceID:   rec.TraceID,
		SpanID:    rec.SpanID,
		Timestamp: ts.UTC(),
		Severity:  sev,
	}
}

// Mapper turns a record into a wire entry. Implementations must be safe for
// concurrent use and must not retain rec.
type Mapper interface {
	Map(ctx Context, rec core.LogRecord) core.Entry
}

// MapperFunc adapts a function to Mapper.
type MapperFunc func(ctx Context, rec core.LogRecord) core.Entry

func (f MapperFunc) Map(ctx Context, rec core.LogRecord) core.Entry {
	return f(ctx, rec)
}

// LogName builds the resource name of a log. The log id is path escaped so
// ids such as "syslog/app" stay a single path segment.
func LogName(projectID, logID string) string {
	return "projects/" + projectID + "/logs/" + url.PathEscape(logID)
}

// TraceName builds the trace resource name the console links on.
func TraceName(projectID, traceID string) string {
	return "projects/" + projectID + "/traces/" + traceID
}

// Default is the stock mapping: fields plus message as jsonPayload, the
// context label set to the log id and requestId set to the trace id.
type Default struct{}

func (Default) Map(ctx Context, rec core.LogRecord) core.Entry {
	payload := make(map[string]any, len(rec.Fields)+1)
	maps.Copy(payload, rec.Fields)
	payload["message"] = rec.Message

	labels := map[string]string{"context": ctx.LogID}
	if ctx.TraceID != "" {
		labels["requestId"] = ctx.TraceID
	}

	resource := ctx.Resource
	entry := core.Entry{
		LogName:     ctx.LogName,
		Resource:    &resource,
		Timestamp:   ctx.Timestamp,
		Severity:    ctx.Severity,
		Labels:      labels,
		SpanID:      ctx.SpanID,
		JSONPayload: payload,
	}
	if ctx.TraceID != "" {
		entry.Trace = TraceName(ctx.ProjectID, ctx.TraceID)
	}
	if rec.Source != nil {
		src := *rec.Source
		entry.SourceLocation = &src
	}
	return entry
}
