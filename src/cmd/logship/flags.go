// FILE: logship/src/cmd/logship/flags.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/lixenwraith/log"
	"github.com/spf13/pflag"
)

// FlagConfig holds the parsed command line.
type FlagConfig struct {
	ConfigFile     string
	CredentialFile string
	Follow         string
	LogLevel       string
	LogOutput      string
	WriteConfig    string
	FromStart      bool
	Quiet          bool
	ShowVersion    bool
}

// ParseFlags parses args (without the program name).
func ParseFlags(args []string) (*FlagConfig, error) {
	fc := &FlagConfig{}

	fs := pflag.NewFlagSet("logship", pflag.ContinueOnError)
	fs.StringVarP(&fc.ConfigFile, "config", "c", "", "config file path")
	fs.StringVar(&fc.CredentialFile, "credential", "", "service-account key file (overrides config)")
	fs.StringVarP(&fc.Follow, "follow", "f", "", "follow this file instead of reading stdin")
	fs.BoolVar(&fc.FromStart, "from-start", false, "with --follow, ship the existing content first")
	fs.StringVar(&fc.LogLevel, "log-level", "", "diagnostic log level: debug, info, warn, error (overrides config)")
	fs.StringVar(&fc.LogOutput, "log-output", "", "diagnostic log output: file, stdout, stderr, split, all, none (overrides config)")
	fs.StringVar(&fc.WriteConfig, "write-config", "", "write the effective configuration to this path and exit")
	fs.BoolVarP(&fc.Quiet, "quiet", "q", false, "suppress all diagnostic output")
	fs.BoolVarP(&fc.ShowVersion, "version", "v", false, "show version information")
	fs.Usage = func() { customUsage(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	if fc.LogLevel != "" {
		if _, err := parseLogLevel(fc.LogLevel); err != nil {
			return nil, fmt.Errorf("invalid log-level: %s (valid: debug, info, warn, error)", fc.LogLevel)
		}
	}
	if fc.LogOutput != "" {
		validOutputs := map[string]bool{
			"file": true, "stdout": true, "stderr": true,
			"split": true, "all": true, "none": true,
		}
		if !validOutputs[fc.LogOutput] {
			return nil, fmt.Errorf("invalid log-output: %s (valid: file, stdout, stderr, split, all, none)", fc.LogOutput)
		}
	}
	if fc.FromStart && fc.Follow == "" {
		return nil, fmt.Errorf("--from-start requires --follow")
	}
	return fc, nil
}

func customUsage(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "logship - ship log lines to a Cloud Logging entries:write endpoint\n\n")
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Options:\n%s\n", fs.FlagUsages())

	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "  # Ship the output of a command\n")
	fmt.Fprintf(os.Stderr, "  myapp 2>&1 | %s --config /etc/logship.toml\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  # Follow an application log file\n")
	fmt.Fprintf(os.Stderr, "  %s --follow /var/log/myapp.log --credential key.json\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  # Write a starter config\n")
	fmt.Fprintf(os.Stderr, "  %s --write-config ./logship.toml\n\n", os.Args[0])

	fmt.Fprintf(os.Stderr, "Environment Variables:\n")
	fmt.Fprintf(os.Stderr, "  LOGSHIP_CONFIG_FILE              Config file path\n")
	fmt.Fprintf(os.Stderr, "  LOGSHIP_CONFIG_DIR               Config directory\n")
	fmt.Fprintf(os.Stderr, "  LOGSHIP_<SECTION>_<KEY>          Override any config key, e.g. LOGSHIP_BATCH_MAX_ENTRIES\n")
	fmt.Fprintf(os.Stderr, "  LOGSHIP_DISABLE_STATUS_REPORTER  Disable periodic status reports (set to 1)\n")
}

func parseLogLevel(level string) (int, error) {
	switch strings.ToLower(level) {
	case "debug":
		return int(log.LevelDebug), nil
	case "info":
		return int(log.LevelInfo), nil
	case "warn", "warning":
		return int(log.LevelWarn), nil
	case "error":
		return int(log.LevelError), nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", level)
	}
}
