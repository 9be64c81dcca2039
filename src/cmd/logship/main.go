// FILE: logship/src/cmd/logship/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"logship/src/internal/config"
	"logship/src/internal/version"

	"github.com/lixenwraith/log"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const shutdownTimeout = 10 * time.Second

var logger *log.Logger

func main() {
	flagCfg, err := ParseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	InitOutputHandler(flagCfg.Quiet)

	if flagCfg.ShowVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	cfg, err := config.Load(flagCfg.ConfigFile)
	if err != nil {
		FatalError(1, "Failed to load config: %v\n", err)
	}
	applyOverrides(cfg, flagCfg)
	if err := cfg.Validate(); err != nil {
		FatalError(1, "Invalid configuration: %v\n", err)
	}

	if flagCfg.WriteConfig != "" {
		if err := cfg.SaveToFile(flagCfg.WriteConfig); err != nil {
			FatalError(1, "Failed to write config: %v\n", err)
		}
		Print("Configuration written to %s\n", flagCfg.WriteConfig)
		os.Exit(0)
	}

	if err := initializeLogger(cfg, flagCfg.Quiet); err != nil {
		FatalError(1, "Failed to initialize logger: %v\n", err)
	}
	defer shutdownLogger()

	logger.Info("msg", "logship starting",
		"version", version.String(),
		"config_file", flagCfg.ConfigFile,
		"log_output", cfg.Logging.Output)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	p, err := bootstrapPipeline(ctx, cfg)
	if err != nil {
		logger.Error("msg", "Failed to bootstrap pipeline", "error", err)
		shutdownLogger()
		os.Exit(1)
	}

	shipper := newLineShipper(p.Handler())
	inputDone := make(chan error, 1)
	go func() {
		inputDone <- runInput(ctx, flagCfg, shipper)
	}()

	if enableStatusReporter() {
		go statusReporter(ctx, p, shipper)
	}

	select {
	case sig := <-sigChan:
		logger.Info("msg", "Shutdown signal received, flushing pending entries",
			"signal", sig)
	case err := <-inputDone:
		if err != nil {
			logger.Error("msg", "Input failed", "error", err)
		} else {
			logger.Info("msg", "Input closed, flushing pending entries")
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := p.Shutdown(shutdownCtx); err != nil {
		logger.Error("msg", "Shutdown timeout exceeded, undelivered entries abandoned",
			"error", err)
		shutdownLogger()
		os.Exit(1)
	}
	logStatus(p, shipper)
	logger.Info("msg", "Shutdown complete")
}

// runInput feeds the shipper from the followed file or stdin.
func runInput(ctx context.Context, fc *FlagConfig, shipper *lineShipper) error {
	emit := func(line string) { shipper.ship(ctx, line) }

	if fc.Follow != "" {
		logger.Info("msg", "Following file",
			"component", "input",
			"path", fc.Follow,
			"from_start", fc.FromStart)
		return followFile(ctx, fc.Follow, fc.FromStart, emit)
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		Error("Reading log lines from the terminal, press Ctrl-D to finish\n")
		logger.Warn("msg", "Standard input is a terminal",
			"component", "input")
	}
	return readLines(ctx, os.Stdin, emit)
}

func shutdownLogger() {
	if logger == nil {
		return
	}
	if err := logger.Shutdown(2 * time.Second); err != nil {
		// Best effort, the logger itself is gone
		Error("Logger shutdown error: %v\n", err)
	}
}
