// FILE: logship/src/internal/pipeline/options.go
package pipeline

import (
	"logship/src/internal/dispatch"
	"logship/src/internal/mapper"
	"logship/src/internal/sink"
)

// Option customises a Pipeline at construction.
type Option func(*options)

type options struct {
	mapper         mapper.Mapper
	traceExtractor sink.TraceExtractor
	onFailure      func(dispatch.Outcome)
	addSource      bool
	prefetchToken  bool
}

// WithMapper replaces the default record-to-entry mapping.
func WithMapper(m mapper.Mapper) Option {
	return func(o *options) {
		o.mapper = m
	}
}

// WithTraceExtractor sets how trace and span ids are read from the logging
// call's context.
func WithTraceExtractor(fn sink.TraceExtractor) Option {
	return func(o *options) {
		o.traceExtractor = fn
	}
}

// WithFailureHandler registers a hook called once for every batch that could
// not be delivered. It runs on a dispatch worker and must not block.
func WithFailureHandler(fn func(dispatch.Outcome)) Option {
	return func(o *options) {
		o.onFailure = fn
	}
}

// WithSource records the calling file, line and function on every entry.
func WithSource() Option {
	return func(o *options) {
		o.addSource = true
	}
}

// WithTokenPrefetch fetches the first access token in the background during
// New, so the first batch does not wait on the exchange.
func WithTokenPrefetch() Option {
	return func(o *options) {
		o.prefetchToken = true
	}
}
