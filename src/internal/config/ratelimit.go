// FILE: logship/src/internal/config/ratelimit.go
package config

import (
	"fmt"
	"strings"

	"logship/src/internal/core"
)

// RateLimitPolicy defines the action to take when a rate limit is exceeded.
type RateLimitPolicy int

const (
	// PolicyPass lets every record through, disabling the limiter.
	PolicyPass RateLimitPolicy = iota
	// PolicyDrop drops records above the rate.
	PolicyDrop
)

// RateLimitConfig caps how many records per second are shipped at all, ahead
// of batching.
type RateLimitConfig struct {
	// Records per second, 0 disables
	Rate float64 `toml:"rate"`
	// Burst size, defaults to Rate
	Burst float64 `toml:"burst"`
	// "pass" or "drop"
	Policy string `toml:"policy"`
	// Records whose message exceeds this size are dropped, 0 = no limit
	MaxMessageBytes int64 `toml:"max_message_bytes"`
}

// ParsePolicy maps the policy name, defaulting to pass.
func (r *RateLimitConfig) ParsePolicy() RateLimitPolicy {
	if strings.ToLower(r.Policy) == "drop" {
		return PolicyDrop
	}
	return PolicyPass
}

func validateRateLimit(cfg *RateLimitConfig) error {
	if cfg == nil {
		return nil
	}
	if cfg.Rate < 0 {
		return core.NewConfigError("rate_limit.rate", fmt.Sprintf("cannot be negative: %g", cfg.Rate), nil)
	}
	if cfg.Burst < 0 {
		return core.NewConfigError("rate_limit.burst", fmt.Sprintf("cannot be negative: %g", cfg.Burst), nil)
	}
	if cfg.MaxMessageBytes < 0 {
		return core.NewConfigError("rate_limit.max_message_bytes",
			fmt.Sprintf("cannot be negative: %d", cfg.MaxMessageBytes), nil)
	}
	switch strings.ToLower(cfg.Policy) {
	case "", "pass", "drop":
	default:
		return core.NewConfigError("rate_limit.policy",
			fmt.Sprintf("must be 'pass' or 'drop': %s", cfg.Policy), nil)
	}
	return nil
}
