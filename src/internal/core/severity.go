// FILE: logship/src/internal/core/severity.go
package core

import (
	"log/slog"
	"strings"
)

// Severity is the LogSeverity enum of the remote API, carried as its name.
type Severity string

const (
	SeverityDefault   Severity = "DEFAULT"
	SeverityDebug     Severity = "DEBUG"
	SeverityInfo      Severity = "INFO"
	SeverityNotice    Severity = "NOTICE"
	SeverityWarning   Severity = "WARNING"
	SeverityError     Severity = "ERROR"
	SeverityCritical  Severity = "CRITICAL"
	SeverityAlert     Severity = "ALERT"
	SeverityEmergency Severity = "EMERGENCY"
)

// Extended slog levels for severities slog does not name.
const (
	LevelNotice    = slog.Level(2)
	LevelCritical  = slog.Level(12)
	LevelAlert     = slog.Level(16)
	LevelEmergency = slog.Level(20)
)

// SeverityFromLevel maps a slog level onto the closest severity at or below it.
func SeverityFromLevel(level slog.Level) Severity {
	switch {
	case level >= LevelEmergency:
		return SeverityEmergency
	case level >= LevelAlert:
		return SeverityAlert
	case level >= LevelCritical:
		return SeverityCritical
	case level >= slog.LevelError:
		return SeverityError
	case level >= slog.LevelWarn:
		return SeverityWarning
	case level >= LevelNotice:
		return SeverityNotice
	case level >= slog.LevelInfo:
		return SeverityInfo
	default:
		return SeverityDebug
	}
}

// ParseSeverity accepts severity names and the common level spellings used by
// JSON loggers ("warn", "err", "fatal", ...). Unknown input yields DEFAULT.
func ParseSeverity(s string) Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "TRACE":
		return SeverityDebug
	case "INFO", "INFORMATION":
		return SeverityInfo
	case "NOTICE":
		return SeverityNotice
	case "WARN", "WARNING":
		return SeverityWarning
	case "ERROR", "ERR":
		return SeverityError
	case "CRITICAL", "CRIT", "FATAL":
		return SeverityCritical
	case "ALERT":
		return SeverityAlert
	case "EMERGENCY", "EMERG", "PANIC":
		return SeverityEmergency
	default:
		return SeverityDefault
	}
}

// Level returns the slog level used when this severity is compared against a
// minimum level.
func (s Severity) Level() slog.Level {
	switch s {
	case SeverityDebug:
		return slog.LevelDebug
	case SeverityNotice:
		return LevelNotice
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityError:
		return slog.LevelError
	case SeverityCritical:
		return LevelCritical
	case SeverityAlert:
		return LevelAlert
	case SeverityEmergency:
		return LevelEmergency
	default:
		return slog.LevelInfo
	}
}
