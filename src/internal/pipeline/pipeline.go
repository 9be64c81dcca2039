// FILE: logship/src/internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"logship/src/internal/auth"
	"logship/src/internal/batch"
	"logship/src/internal/config"
	"logship/src/internal/core"
	"logship/src/internal/dispatch"
	"logship/src/internal/filter"
	"logship/src/internal/ratelimit"
	"logship/src/internal/sink"
	"logship/src/internal/tls"

	"github.com/lixenwraith/log"
)

// Pipeline wires the slog handler to the accumulator, dispatcher and token
// signer built from one configuration.
type Pipeline struct {
	Config      *config.Config
	ProjectID   string
	Signer      *auth.Signer
	Dispatcher  *dispatch.Dispatcher
	Accumulator *batch.Accumulator
	FilterChain *filter.Chain
	RateLimiter *ratelimit.Limiter
	TLS         *tls.ClientManager

	handler   *sink.Handler
	logger    *log.Logger
	startTime time.Time

	// Cancels a background token prefetch
	cancel context.CancelFunc
}

// Stats is a point-in-time view of every stage.
type Stats struct {
	StartTime   time.Time
	Uptime      time.Duration
	Batch       batch.Stats
	Handler     map[string]any
	Filter      map[string]any
	RateLimiter map[string]any
	Dispatcher  map[string]any
	Signer      map[string]any
	TLS         map[string]any
}

// New validates cfg, parses the credential and builds every stage. All
// configuration problems surface here as *core.ConfigError; nothing is
// deferred to the first delivery.
func New(ctx context.Context, cfg *config.Config, credential []byte, logger *log.Logger, opts ...Option) (*Pipeline, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cred, err := auth.ParseCredential(credential)
	if err != nil {
		return nil, err
	}
	projectID := cfg.ProjectID
	if projectID == "" {
		projectID = cred.ProjectID
	}
	if projectID == "" {
		return nil, core.NewConfigError("project_id", "not set in config or credential", nil)
	}

	p := &Pipeline{
		Config:    cfg,
		ProjectID: projectID,
		logger:    logger,
		startTime: time.Now(),
	}

	p.TLS, err = tls.NewClientManager(cfg.TLS, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}
	tlsConfig := p.TLS.GetConfig()

	p.Signer, err = auth.NewSigner(cred, auth.Options{
		Scopes:    cfg.Auth.Scopes,
		Subject:   cfg.Auth.Subject,
		TokenURL:  cfg.Auth.TokenURL,
		Margin:    cfg.Auth.TokenMargin(),
		Timeout:   cfg.HTTP.Timeout(),
		TLSConfig: tlsConfig,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	dispatchOpts := dispatch.OptionsFromConfig(cfg)
	dispatchOpts.TLSConfig = tlsConfig
	dispatchOpts.OnFailure = o.onFailure
	p.Dispatcher, err = dispatch.New(dispatchOpts, p.Signer, logger)
	if err != nil {
		return nil, err
	}

	p.FilterChain, err = filter.NewChain(cfg.Filter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter chain: %w", err)
	}

	p.RateLimiter, err = ratelimit.New(cfg.RateLimit, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	d := p.Dispatcher
	p.Accumulator, err = batch.New(batch.OptionsFromConfig(cfg.Batch), batch.SenderFunc(func(ctx context.Context, b *batch.Batch) {
		d.Send(ctx, b)
	}), logger)
	if err != nil {
		return nil, err
	}

	p.handler, err = sink.NewHandler(sink.Options{
		ProjectID:      projectID,
		LogID:          cfg.LogName,
		Resource:       resourceFromConfig(cfg.Resource, projectID),
		Labels:         cfg.Labels,
		Level:          p.FilterChain.MinLevel(),
		AddSource:      o.addSource,
		Mapper:         o.mapper,
		Filter:         p.FilterChain,
		Limiter:        p.RateLimiter,
		TraceExtractor: o.traceExtractor,
	}, p.Accumulator, logger)
	if err != nil {
		_ = p.Accumulator.Shutdown(context.Background())
		return nil, err
	}

	prefetchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	if o.prefetchToken {
		go p.prefetch(prefetchCtx)
	}

	logger.Info("msg", "Pipeline created",
		"component", "pipeline",
		"project_id", projectID,
		"log_name", cfg.LogName,
		"write_url", cfg.HTTP.WriteURL,
		"tls", p.TLS != nil)
	return p, nil
}

// resourceFromConfig builds the monitored resource, adding project_id to a
// global resource that does not name one.
func resourceFromConfig(rc *config.ResourceConfig, projectID string) core.Resource {
	if rc == nil || rc.Type == "" || (rc.Type == "global" && len(rc.Labels) == 0) {
		return core.GlobalResource(projectID)
	}
	r := core.Resource{Type: rc.Type, Labels: maps.Clone(rc.Labels)}
	if rc.Type == "global" {
		if _, ok := r.Labels["project_id"]; !ok {
			r.Labels["project_id"] = projectID
		}
	}
	return r
}

func (p *Pipeline) prefetch(ctx context.Context) {
	if _, err := p.Signer.Token(ctx); err != nil && ctx.Err() == nil {
		p.logger.Warn("msg", "Initial token fetch failed, retrying on first delivery",
			"component", "pipeline",
			"error", err)
	}
}

// Handler returns the slog handler feeding this pipeline.
func (p *Pipeline) Handler() *sink.Handler {
	return p.handler
}

// Logger returns a slog logger writing through Handler.
func (p *Pipeline) Logger() *slog.Logger {
	return slog.New(p.handler)
}

// Shutdown flushes the pending batch and waits for in-flight deliveries until
// ctx expires. Records logged afterwards are dropped.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.logger.Info("msg", "Shutting down pipeline",
		"component", "pipeline",
		"log_name", p.Config.LogName)

	p.cancel()
	err := p.Accumulator.Shutdown(ctx)

	stats := p.Accumulator.Stats()
	p.logger.Info("msg", "Pipeline shutdown complete",
		"component", "pipeline",
		"appended_entries", stats.Appended,
		"dropped_entries", stats.Dropped,
		"sent_batches", stats.Sent,
		"error", err)
	return err
}

// Stats collects statistics from every stage.
func (p *Pipeline) Stats() Stats {
	return Stats{
		StartTime:   p.startTime,
		Uptime:      time.Since(p.startTime),
		Batch:       p.Accumulator.Stats(),
		Handler:     p.handler.GetStats(),
		Filter:      p.FilterChain.GetStats(),
		RateLimiter: p.RateLimiter.GetStats(),
		Dispatcher:  p.Dispatcher.GetStats(),
		Signer:      p.Signer.GetStats(),
		TLS:         p.TLS.GetStats(),
	}
}

// GetStats returns pipeline statistics keyed for status output.
func (p *Pipeline) GetStats() map[string]any {
	s := p.Stats()
	return map[string]any{
		"project_id":     p.ProjectID,
		"log_name":       p.Config.LogName,
		"uptime_seconds": int(s.Uptime.Seconds()),
		"handler":        s.Handler,
		"filters":        s.Filter,
		"rate_limiter":   s.RateLimiter,
		"accumulator":    p.Accumulator.GetStats(),
		"dispatcher":     s.Dispatcher,
		"signer":         s.Signer,
		"tls":            s.TLS,
	}
}
