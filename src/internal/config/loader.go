// FILE: logship/src/internal/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lconfig "github.com/lixenwraith/config"
)

// Load reads configuration from defaults, the TOML file at path and
// LOGSHIP_* environment variables (highest precedence first: env, file,
// defaults), then validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = GetConfigPath()
	}

	cfg, err := lconfig.NewBuilder().
		WithDefaults(DefaultConfig()).
		WithEnvPrefix("LOGSHIP_").
		WithFile(path).
		WithEnvTransform(customEnvTransform).
		WithSources(
			lconfig.SourceEnv,
			lconfig.SourceFile,
			lconfig.SourceDefault,
		).
		Build()

	if err != nil {
		// A missing file is fine, defaults and env still apply
		if !strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	finalConfig := &Config{}
	if err := cfg.Scan(finalConfig); err != nil {
		return nil, fmt.Errorf("failed to scan config: %w", err)
	}

	if err := finalConfig.Validate(); err != nil {
		return nil, err
	}
	return finalConfig, nil
}

func customEnvTransform(path string) string {
	env := strings.ReplaceAll(path, ".", "_")
	env = strings.ToUpper(env)
	env = "LOGSHIP_" + env
	return env
}

// GetConfigPath resolves the config file location from LOGSHIP_CONFIG_FILE,
// LOGSHIP_CONFIG_DIR, then the user config directory.
func GetConfigPath() string {
	if configFile := os.Getenv("LOGSHIP_CONFIG_FILE"); configFile != "" {
		if filepath.IsAbs(configFile) {
			return configFile
		}
		if configDir := os.Getenv("LOGSHIP_CONFIG_DIR"); configDir != "" {
			return filepath.Join(configDir, configFile)
		}
		return configFile
	}

	if configDir := os.Getenv("LOGSHIP_CONFIG_DIR"); configDir != "" {
		return filepath.Join(configDir, "logship.toml")
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config", "logship.toml")
	}

	return "logship.toml"
}

// ReadCredential loads the service-account key file named by the config.
func (c *Config) ReadCredential() ([]byte, error) {
	if err := lconfig.NonEmpty(c.CredentialFile); err != nil {
		return nil, fmt.Errorf("credential_file: %w", err)
	}
	data, err := os.ReadFile(c.CredentialFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}
	return data, nil
}
