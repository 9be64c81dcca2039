// FILE: logship/src/internal/config/config_test.go
package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"logship/src/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2*time.Second, cfg.Batch.Linger())
	assert.Equal(t, 10*time.Second, cfg.HTTP.Timeout())
	assert.Equal(t, 200*time.Millisecond, cfg.Retry.BaseBackoff())
	assert.Equal(t, time.Minute, cfg.Auth.TokenMargin())
}

func TestValidateFillsMissingSections(t *testing.T) {
	cfg := &Config{LogName: "app"}
	require.NoError(t, cfg.Validate())
	require.NotNil(t, cfg.Batch)
	assert.Equal(t, int64(10), cfg.Batch.MaxEntries)
}

func TestValidateRejects(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"EmptyLogName", func(c *Config) { c.LogName = "" }, "log_name"},
		{"ZeroMaxEntries", func(c *Config) { c.Batch.MaxEntries = 0 }, "batch.max_entries"},
		{"NegativeMaxBytes", func(c *Config) { c.Batch.MaxBytes = -1 }, "batch.max_bytes"},
		{"ZeroLinger", func(c *Config) { c.Batch.LingerMS = 0 }, "batch.linger_ms"},
		{"ZeroInFlight", func(c *Config) { c.Batch.MaxInFlight = 0 }, "batch.max_in_flight"},
		{"TooManyWorkers", func(c *Config) { c.Batch.Workers = 20 }, "batch.workers"},
		{"UnknownPolicy", func(c *Config) { c.Batch.Backpressure = "spill" }, "batch.backpressure"},
		{"BlockWithoutTimeout", func(c *Config) {
			c.Batch.Backpressure = BackpressureBlock
			c.Batch.BlockTimeoutMS = 0
		}, "batch.block_timeout_ms"},
		{"BadWriteURL", func(c *Config) { c.HTTP.WriteURL = "ftp://example.com" }, "http.write_url"},
		{"ZeroTimeout", func(c *Config) { c.HTTP.TimeoutMS = 0 }, "http.timeout_ms"},
		{"ZeroAttempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"ZeroTokenMargin", func(c *Config) { c.Auth.TokenMarginS = 0 }, "auth.token_margin_s"},
		{"MaxBelowBase", func(c *Config) { c.Retry.MaxBackoffMS = 10 }, "retry.max_backoff_ms"},
		{"NoScopes", func(c *Config) { c.Auth.Scopes = nil }, "auth.scopes"},
		{"BadTokenURL", func(c *Config) { c.Auth.TokenURL = "::" }, "auth.token_url"},
		{"HalfClientCert", func(c *Config) {
			c.TLS.Enabled = true
			c.TLS.ClientCertFile = "cert.pem"
		}, "tls.client_cert_file"},
		{"BadMinLevel", func(c *Config) { c.Filter.MinLevel = "chatty" }, "filter.min_level"},
		{"BadRegex", func(c *Config) {
			c.Filter.Rules = []FilterRule{{Type: FilterTypeInclude, Patterns: []string{"["}}}
		}, "filter.rules[0].patterns[0]"},
		{"NegativeRate", func(c *Config) { c.RateLimit.Rate = -1 }, "rate_limit.rate"},
		{"NegativeBurst", func(c *Config) { c.RateLimit.Burst = -5 }, "rate_limit.burst"},
		{"NegativeMessageSize", func(c *Config) { c.RateLimit.MaxMessageBytes = -1 }, "rate_limit.max_message_bytes"},
		{"UnknownRatePolicy", func(c *Config) { c.RateLimit.Policy = "queue" }, "rate_limit.policy"},
		{"BadLogOutput", func(c *Config) { c.Logging.Output = "syslog" }, "logging.output"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *core.ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %T", err)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("LOGSHIP_CONFIG_FILE", "/etc/logship/custom.toml")
	assert.Equal(t, "/etc/logship/custom.toml", GetConfigPath())

	t.Setenv("LOGSHIP_CONFIG_FILE", "custom.toml")
	t.Setenv("LOGSHIP_CONFIG_DIR", "/opt/logship")
	assert.Equal(t, "/opt/logship/custom.toml", GetConfigPath())

	t.Setenv("LOGSHIP_CONFIG_FILE", "")
	assert.Equal(t, "/opt/logship/logship.toml", GetConfigPath())
}

func TestCustomEnvTransform(t *testing.T) {
	assert.Equal(t, "LOGSHIP_BATCH_MAX_ENTRIES", customEnvTransform("batch.max_entries"))
}

func TestReadCredentialRequiresPath(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.ReadCredential()
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logship.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_name = "checkout"
project_id = "acme-prod"

[batch]
max_entries = 50
backpressure = "block"
block_timeout_ms = 20

[rate_limit]
rate = 100.0
burst = 200.0
policy = "drop"
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "checkout", cfg.LogName)
	assert.Equal(t, "acme-prod", cfg.ProjectID)
	assert.Equal(t, int64(50), cfg.Batch.MaxEntries)
	assert.Equal(t, BackpressureBlock, cfg.Batch.Backpressure)
	assert.Equal(t, 20*time.Millisecond, cfg.Batch.BlockTimeout())
	assert.Equal(t, PolicyDrop, cfg.RateLimit.ParsePolicy())
	// Untouched keys keep their defaults
	assert.Equal(t, int64(1<<20), cfg.Batch.MaxBytes)
	assert.Equal(t, DefaultWriteURL, cfg.HTTP.WriteURL)
}

func TestRateLimitPolicy(t *testing.T) {
	assert.Equal(t, PolicyPass, (&RateLimitConfig{}).ParsePolicy())
	assert.Equal(t, PolicyDrop, (&RateLimitConfig{Policy: "DROP"}).ParsePolicy())
}
