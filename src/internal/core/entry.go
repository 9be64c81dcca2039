// FILE: logship/src/internal/core/entry.go
package core

import (
	"time"
)

// LogRecord is one structured event as captured at the logging call site.
// It is built once by the sink and never mutated afterwards.
type LogRecord struct {
	Time     time.Time
	Severity Severity
	Message  string
	Fields   map[string]any
	TraceID  string
	SpanID   string
	Source   *SourceLocation
}

// SourceLocation identifies the code that emitted a record.
type SourceLocation struct {
	File     string `json:"file,omitempty"`
	Line     int64  `json:"line,string,omitempty"`
	Function string `json:"function,omitempty"`
}

// Resource is the monitored resource an entry is attributed to.
type Resource struct {
	Type   string            `json:"type"`
	Labels map[string]string `json:"labels,omitempty"`
}

// GlobalResource returns the "global" resource for a project.
func GlobalResource(projectID string) Resource {
	return Resource{
		Type:   "global",
		Labels: map[string]string{"project_id": projectID},
	}
}

// Entry is the wire representation of a single log entry as accepted by the
// entries:write endpoint.
type Entry struct {
	LogName        string            `json:"logName"`
	Resource       *Resource         `json:"resource,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Severity       Severity          `json:"severity,omitempty"`
	InsertID       string            `json:"insertId,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`
	Trace          string            `json:"trace,omitempty"`
	SpanID         string            `json:"spanId,omitempty"`
	TraceSampled   bool              `json:"traceSampled,omitempty"`
	JSONPayload    map[string]any    `json:"jsonPayload,omitempty"`
	SourceLocation *SourceLocation   `json:"sourceLocation,omitempty"`
}
