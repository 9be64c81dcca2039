// FILE: logship/src/cmd/logship/bootstrap.go
package main

import (
	"context"
	"fmt"
	"strings"

	"logship/src/internal/config"
	"logship/src/internal/pipeline"
	"logship/src/internal/version"

	"github.com/lixenwraith/log"
)

// applyOverrides copies command-line overrides into the loaded config.
func applyOverrides(cfg *config.Config, fc *FlagConfig) {
	if fc.CredentialFile != "" {
		cfg.CredentialFile = fc.CredentialFile
	}
	if fc.LogLevel != "" {
		level := strings.ToLower(fc.LogLevel)
		if level == "warning" {
			level = "warn"
		}
		cfg.Logging.Level = level
	}
	if fc.LogOutput != "" {
		cfg.Logging.Output = fc.LogOutput
	}
}

// bootstrapPipeline reads the credential and builds the shipping pipeline.
func bootstrapPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, error) {
	credential, err := cfg.ReadCredential()
	if err != nil {
		return nil, err
	}

	p, err := pipeline.New(ctx, cfg, credential, logger, pipeline.WithTokenPrefetch())
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	logger.Info("msg", "logship started",
		"version", version.Short(),
		"project_id", p.ProjectID,
		"log_name", cfg.LogName)
	return p, nil
}

// initializeLogger sets up the diagnostic logger from the [logging] section.
func initializeLogger(cfg *config.Config, quiet bool) error {
	logger = log.NewLogger()

	var configArgs []string

	if quiet {
		configArgs = append(configArgs,
			"disable_file=true",
			"enable_stdout=false",
			"level=255")
		return logger.InitWithDefaults(configArgs...)
	}

	levelValue, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	configArgs = append(configArgs, fmt.Sprintf("level=%d", levelValue))

	switch cfg.Logging.Output {
	case "none":
		configArgs = append(configArgs, "disable_file=true", "enable_stdout=false")

	case "stdout", "stderr":
		configArgs = append(configArgs,
			"disable_file=true",
			"enable_stdout=true",
			"stdout_target="+cfg.Logging.Output)

	case "split":
		configArgs = append(configArgs,
			"disable_file=true",
			"enable_stdout=true",
			"stdout_split_mode=true",
			"stdout_target=split")

	case "file":
		configArgs = append(configArgs, "enable_stdout=false")
		configureFileLogging(&configArgs, cfg)

	case "all":
		configArgs = append(configArgs, "enable_stdout=true")
		configureFileLogging(&configArgs, cfg)
		configureConsoleTarget(&configArgs, cfg)

	default:
		return fmt.Errorf("invalid log output mode: %s", cfg.Logging.Output)
	}

	if cfg.Logging.Console != nil && cfg.Logging.Console.Format != "" {
		configArgs = append(configArgs, fmt.Sprintf("format=%s", cfg.Logging.Console.Format))
	}

	return logger.InitWithDefaults(configArgs...)
}

func configureFileLogging(configArgs *[]string, cfg *config.Config) {
	if cfg.Logging.File == nil {
		return
	}
	*configArgs = append(*configArgs,
		fmt.Sprintf("directory=%s", cfg.Logging.File.Directory),
		fmt.Sprintf("name=%s", cfg.Logging.File.Name),
		fmt.Sprintf("max_size_mb=%d", cfg.Logging.File.MaxSizeMB),
		fmt.Sprintf("max_total_size_mb=%d", cfg.Logging.File.MaxTotalSizeMB))

	if cfg.Logging.File.RetentionHours > 0 {
		*configArgs = append(*configArgs,
			fmt.Sprintf("retention_period_hrs=%.1f", cfg.Logging.File.RetentionHours))
	}
}

func configureConsoleTarget(configArgs *[]string, cfg *config.Config) {
	target := "stderr"
	if cfg.Logging.Console != nil && cfg.Logging.Console.Target != "" {
		target = cfg.Logging.Console.Target
	}

	if target == "split" {
		*configArgs = append(*configArgs, "stdout_split_mode=true", "stdout_target=split")
	} else {
		*configArgs = append(*configArgs, fmt.Sprintf("stdout_target=%s", target))
	}
}
