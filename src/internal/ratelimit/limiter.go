// FILE: logship/src/internal/ratelimit/limiter.go
package ratelimit

import (
	"math"
	"sync/atomic"

	"logship/src/internal/config"
	"logship/src/internal/core"

	"github.com/lixenwraith/log"
	"golang.org/x/time/rate"
)

// Limiter caps the record rate ahead of batching so a runaway producer
// cannot exhaust the in-flight budget.
type Limiter struct {
	limiter *rate.Limiter
	policy  config.RateLimitPolicy
	logger  *log.Logger

	maxMessageBytes int64

	// Statistics
	droppedBySize atomic.Uint64
	droppedByRate atomic.Uint64
}

// New returns nil when cfg is nil or its rate is 0, which Allow treats as
// unlimited.
func New(cfg *config.RateLimitConfig, logger *log.Logger) (*Limiter, error) {
	if cfg == nil || (cfg.Rate <= 0 && cfg.MaxMessageBytes <= 0) {
		return nil, nil
	}

	l := &Limiter{
		policy:          cfg.ParsePolicy(),
		logger:          logger,
		maxMessageBytes: cfg.MaxMessageBytes,
	}

	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = cfg.Rate
		}
		l.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), int(math.Max(1, math.Ceil(burst))))
	}

	logger.Info("msg", "Rate limiter configured",
		"component", "ratelimit",
		"rate", cfg.Rate,
		"burst", cfg.Burst,
		"policy", policyString(l.policy),
		"max_message_bytes", cfg.MaxMessageBytes)
	return l, nil
}

// Allow reports whether rec may continue down the pipeline.
func (l *Limiter) Allow(rec core.LogRecord) bool {
	if l == nil || l.policy == config.PolicyPass {
		return true
	}

	if l.maxMessageBytes > 0 && int64(len(rec.Message)) > l.maxMessageBytes {
		l.droppedBySize.Add(1)
		return false
	}

	if l.limiter != nil && !l.limiter.Allow() {
		l.droppedByRate.Add(1)
		return false
	}
	return true
}

// GetStats returns the statistics for the limiter.
func (l *Limiter) GetStats() map[string]any {
	if l == nil {
		return map[string]any{
			"enabled": false,
		}
	}

	stats := map[string]any{
		"enabled":           true,
		"policy":            policyString(l.policy),
		"dropped_by_rate":   l.droppedByRate.Load(),
		"dropped_by_size":   l.droppedBySize.Load(),
		"max_message_bytes": l.maxMessageBytes,
	}
	if l.limiter != nil {
		stats["tokens"] = l.limiter.Tokens()
	}
	return stats
}

func policyString(p config.RateLimitPolicy) string {
	switch p {
	case config.PolicyDrop:
		return "drop"
	case config.PolicyPass:
		return "pass"
	default:
		return "unknown"
	}
}
