// FILE: logship/src/internal/config/config.go
package config

import (
	"time"
)

// Backpressure policies applied when the in-flight batch ceiling is reached.
const (
	BackpressureDrop  = "drop"
	BackpressureBlock = "block"
)

const (
	DefaultWriteURL = "https://logging.googleapis.com/v2/entries:write"
	DefaultScope    = "https://www.googleapis.com/auth/logging.write"
)

// Config is the complete shipping configuration. It is immutable once
// validated.
type Config struct {
	// Log id the entries are written under (projects/<p>/logs/<log_name>)
	LogName string `toml:"log_name"`

	// Overrides the project id taken from the credential
	ProjectID string `toml:"project_id"`

	// Path to the service-account key JSON (CLI only; the library takes bytes)
	CredentialFile string `toml:"credential_file"`

	// Labels added to every entry
	Labels map[string]string `toml:"labels"`

	Resource  *ResourceConfig  `toml:"resource"`
	Batch     *BatchConfig     `toml:"batch"`
	HTTP      *HTTPConfig      `toml:"http"`
	Retry     *RetryConfig     `toml:"retry"`
	Auth      *AuthConfig      `toml:"auth"`
	TLS       *TLSClientConfig `toml:"tls"`
	Filter    *FilterConfig    `toml:"filter"`
	RateLimit *RateLimitConfig `toml:"rate_limit"`
	Logging   *LogConfig       `toml:"logging"`
}

// ResourceConfig selects the monitored resource attached to every entry.
type ResourceConfig struct {
	// Resource type, "global" when empty
	Type   string            `toml:"type"`
	Labels map[string]string `toml:"labels"`
}

// BatchConfig holds accumulator thresholds and backpressure settings.
type BatchConfig struct {
	MaxEntries     int64  `toml:"max_entries"`
	MaxBytes       int64  `toml:"max_bytes"`
	LingerMS       int64  `toml:"linger_ms"`
	MaxInFlight    int64  `toml:"max_in_flight"`
	Workers        int64  `toml:"workers"`
	Backpressure   string `toml:"backpressure"` // "drop" or "block"
	BlockTimeoutMS int64  `toml:"block_timeout_ms"`
}

// HTTPConfig configures the write request.
type HTTPConfig struct {
	WriteURL       string `toml:"write_url"`
	TimeoutMS      int64  `toml:"timeout_ms"`
	Compress       bool   `toml:"compress"`
	PartialSuccess bool   `toml:"partial_success"`
}

// RetryConfig configures delivery retries.
type RetryConfig struct {
	MaxAttempts   int64 `toml:"max_attempts"`
	BaseBackoffMS int64 `toml:"base_backoff_ms"`
	MaxBackoffMS  int64 `toml:"max_backoff_ms"`
}

// AuthConfig configures the bearer-token exchange.
type AuthConfig struct {
	Scopes []string `toml:"scopes"`

	// Refresh when less than this many seconds of validity remain
	TokenMarginS int64 `toml:"token_margin_s"`

	// Optional account to impersonate (domain-wide delegation)
	Subject string `toml:"subject"`

	// Overrides token_uri from the credential
	TokenURL string `toml:"token_url"`
}

func (b *BatchConfig) Linger() time.Duration {
	return time.Duration(b.LingerMS) * time.Millisecond
}

func (b *BatchConfig) BlockTimeout() time.Duration {
	return time.Duration(b.BlockTimeoutMS) * time.Millisecond
}

func (h *HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutMS) * time.Millisecond
}

func (r *RetryConfig) BaseBackoff() time.Duration {
	return time.Duration(r.BaseBackoffMS) * time.Millisecond
}

func (r *RetryConfig) MaxBackoff() time.Duration {
	return time.Duration(r.MaxBackoffMS) * time.Millisecond
}

func (a *AuthConfig) TokenMargin() time.Duration {
	return time.Duration(a.TokenMarginS) * time.Second
}

// DefaultConfig returns the defaults every loaded configuration starts from.
func DefaultConfig() *Config {
	return &Config{
		LogName: "logship",
		Resource: &ResourceConfig{
			Type: "global",
		},
		Batch: &BatchConfig{
			MaxEntries:     10,
			MaxBytes:       1 << 20,
			LingerMS:       2000,
			MaxInFlight:    8,
			Workers:        2,
			Backpressure:   BackpressureDrop,
			BlockTimeoutMS: 50,
		},
		HTTP: &HTTPConfig{
			WriteURL:  DefaultWriteURL,
			TimeoutMS: 10000,
			Compress:  true,
		},
		Retry: &RetryConfig{
			MaxAttempts:   5,
			BaseBackoffMS: 200,
			MaxBackoffMS:  10000,
		},
		Auth: &AuthConfig{
			Scopes:       []string{DefaultScope},
			TokenMarginS: 60,
		},
		TLS: &TLSClientConfig{
			Enabled:    false,
			MinVersion: "TLS1.2",
		},
		Filter: &FilterConfig{
			MinLevel: "debug",
		},
		RateLimit: &RateLimitConfig{
			Policy: "pass",
		},
		Logging: DefaultLogConfig(),
	}
}

// fillDefaults replaces nil sections with their defaults so partial
// programmatic configs can be validated.
func (c *Config) fillDefaults() {
	d := DefaultConfig()
	if c.Resource == nil {
		c.Resource = d.Resource
	}
	if c.Batch == nil {
		c.Batch = d.Batch
	}
	if c.HTTP == nil {
		c.HTTP = d.HTTP
	}
	if c.Retry == nil {
		c.Retry = d.Retry
	}
	if c.Auth == nil {
		c.Auth = d.Auth
	}
	if c.TLS == nil {
		c.TLS = d.TLS
	}
	if c.Filter == nil {
		c.Filter = d.Filter
	}
	if c.RateLimit == nil {
		c.RateLimit = d.RateLimit
	}
	if c.Logging == nil {
		c.Logging = d.Logging
	}
}
