// FILE: logship/src/internal/config/validation.go
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"logship/src/internal/core"

	lconfig "github.com/lixenwraith/config"
)

// Validate checks the whole configuration, filling nil sections with
// defaults first. It returns a *core.ConfigError naming the offending field.
func (c *Config) Validate() error {
	if c == nil {
		return core.NewConfigError("config", "is nil", nil)
	}
	c.fillDefaults()

	if err := lconfig.NonEmpty(c.LogName); err != nil {
		return core.NewConfigError("log_name", "must not be empty", err)
	}
	if len(c.LogName) > 512 {
		return core.NewConfigError("log_name", "longer than 512 characters", nil)
	}

	if err := validateBatch(c.Batch); err != nil {
		return err
	}
	if err := validateHTTP(c.HTTP); err != nil {
		return err
	}
	if err := validateRetry(c.Retry); err != nil {
		return err
	}
	if err := validateAuth(c.Auth); err != nil {
		return err
	}
	if err := validateTLS(c.TLS); err != nil {
		return err
	}
	if err := validateFilter(c.Filter); err != nil {
		return err
	}
	if err := validateRateLimit(c.RateLimit); err != nil {
		return err
	}
	if err := validateLogConfig(c.Logging); err != nil {
		return err
	}
	return nil
}

func validateBatch(b *BatchConfig) error {
	if b.MaxEntries <= 0 {
		return core.NewConfigError("batch.max_entries", fmt.Sprintf("must be positive: %d", b.MaxEntries), nil)
	}
	if b.MaxBytes <= 0 {
		return core.NewConfigError("batch.max_bytes", fmt.Sprintf("must be positive: %d", b.MaxBytes), nil)
	}
	if b.LingerMS <= 0 {
		return core.NewConfigError("batch.linger_ms", fmt.Sprintf("must be positive: %d", b.LingerMS), nil)
	}
	if b.MaxInFlight <= 0 {
		return core.NewConfigError("batch.max_in_flight", fmt.Sprintf("must be positive: %d", b.MaxInFlight), nil)
	}
	if b.Workers <= 0 {
		return core.NewConfigError("batch.workers", fmt.Sprintf("must be positive: %d", b.Workers), nil)
	}
	if b.Workers > b.MaxInFlight {
		return core.NewConfigError("batch.workers",
			fmt.Sprintf("%d exceeds max_in_flight %d", b.Workers, b.MaxInFlight), nil)
	}

	switch b.Backpressure {
	case BackpressureDrop:
	case BackpressureBlock:
		if b.BlockTimeoutMS <= 0 {
			return core.NewConfigError("batch.block_timeout_ms",
				fmt.Sprintf("must be positive with block policy: %d", b.BlockTimeoutMS), nil)
		}
	default:
		return core.NewConfigError("batch.backpressure",
			fmt.Sprintf("must be '%s' or '%s': %s", BackpressureDrop, BackpressureBlock, b.Backpressure), nil)
	}
	return nil
}

func validateHTTP(h *HTTPConfig) error {
	if err := validateURL(h.WriteURL); err != nil {
		return core.NewConfigError("http.write_url", "invalid URL", err)
	}
	if h.TimeoutMS <= 0 {
		return core.NewConfigError("http.timeout_ms", fmt.Sprintf("must be positive: %d", h.TimeoutMS), nil)
	}
	return nil
}

func validateRetry(r *RetryConfig) error {
	if r.MaxAttempts <= 0 {
		return core.NewConfigError("retry.max_attempts", fmt.Sprintf("must be positive: %d", r.MaxAttempts), nil)
	}
	if r.BaseBackoffMS <= 0 {
		return core.NewConfigError("retry.base_backoff_ms", fmt.Sprintf("must be positive: %d", r.BaseBackoffMS), nil)
	}
	if r.MaxBackoffMS < r.BaseBackoffMS {
		return core.NewConfigError("retry.max_backoff_ms",
			fmt.Sprintf("%d is below base_backoff_ms %d", r.MaxBackoffMS, r.BaseBackoffMS), nil)
	}
	return nil
}

func validateAuth(a *AuthConfig) error {
	if len(a.Scopes) == 0 {
		return core.NewConfigError("auth.scopes", "at least one scope is required", nil)
	}
	for i, scope := range a.Scopes {
		if err := lconfig.NonEmpty(scope); err != nil {
			return core.NewConfigError(fmt.Sprintf("auth.scopes[%d]", i), "must not be empty", err)
		}
	}
	if a.TokenMarginS <= 0 {
		return core.NewConfigError("auth.token_margin_s", fmt.Sprintf("must be positive: %d", a.TokenMarginS), nil)
	}
	if a.TokenURL != "" {
		if err := validateURL(a.TokenURL); err != nil {
			return core.NewConfigError("auth.token_url", "invalid URL", err)
		}
	}
	return nil
}

func validateTLS(t *TLSClientConfig) error {
	if !t.Enabled {
		return nil
	}
	if (t.ClientCertFile == "") != (t.ClientKeyFile == "") {
		return core.NewConfigError("tls.client_cert_file",
			"client_cert_file and client_key_file must be provided together", nil)
	}
	validVersions := map[string]bool{"": true, "TLS1.0": true, "TLS1.1": true, "TLS1.2": true, "TLS1.3": true}
	if !validVersions[t.MinVersion] {
		return core.NewConfigError("tls.min_version", fmt.Sprintf("invalid TLS version: %s", t.MinVersion), nil)
	}
	if !validVersions[t.MaxVersion] {
		return core.NewConfigError("tls.max_version", fmt.Sprintf("invalid TLS version: %s", t.MaxVersion), nil)
	}
	return nil
}

func validateFilter(f *FilterConfig) error {
	if _, err := ParseLevel(f.MinLevel); err != nil {
		return core.NewConfigError("filter.min_level", "unknown level", err)
	}

	for i, rule := range f.Rules {
		field := fmt.Sprintf("filter.rules[%d]", i)
		switch rule.Type {
		case FilterTypeInclude, FilterTypeExclude, "":
		default:
			return core.NewConfigError(field, fmt.Sprintf("invalid type '%s' (must be 'include' or 'exclude')", rule.Type), nil)
		}
		switch rule.Logic {
		case FilterLogicOr, FilterLogicAnd, "":
		default:
			return core.NewConfigError(field, fmt.Sprintf("invalid logic '%s' (must be 'or' or 'and')", rule.Logic), nil)
		}
		for j, pattern := range rule.Patterns {
			if _, err := regexp.Compile(pattern); err != nil {
				return core.NewConfigError(fmt.Sprintf("%s.patterns[%d]", field, j), "invalid regex", err)
			}
		}
	}
	return nil
}

func validateLogConfig(cfg *LogConfig) error {
	validOutputs := map[string]bool{
		"file": true, "stdout": true, "stderr": true,
		"split": true, "all": true, "none": true,
	}
	if !validOutputs[cfg.Output] {
		return core.NewConfigError("logging.output", fmt.Sprintf("invalid log output mode: %s", cfg.Output), nil)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		return core.NewConfigError("logging.level", fmt.Sprintf("invalid log level: %s", cfg.Level), nil)
	}

	if cfg.Console != nil {
		validTargets := map[string]bool{
			"stdout": true, "stderr": true, "split": true,
		}
		if !validTargets[cfg.Console.Target] {
			return core.NewConfigError("logging.console.target", fmt.Sprintf("invalid console target: %s", cfg.Console.Target), nil)
		}

		validFormats := map[string]bool{
			"txt": true, "json": true, "": true,
		}
		if !validFormats[cfg.Console.Format] {
			return core.NewConfigError("logging.console.format", fmt.Sprintf("invalid console format: %s", cfg.Console.Format), nil)
		}
	}

	return nil
}

func validateURL(raw string) error {
	if err := lconfig.NonEmpty(raw); err != nil {
		return err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https: %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// ParseLevel converts a level name into a slog level. Empty means debug.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "", "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "notice":
		return core.LevelNotice, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "critical":
		return core.LevelCritical, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", level)
	}
}
