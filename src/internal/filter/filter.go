// FILE: logship/src/internal/filter/filter.go
package filter

import (
	"fmt"
	"regexp"
	"sync/atomic"

	"logship/src/internal/config"
	"logship/src/internal/core"

	"github.com/lixenwraith/log"
)

// Filter applies one regex rule to records
type Filter struct {
	rule     config.FilterRule
	patterns []*regexp.Regexp
	logger   *log.Logger

	// Statistics
	totalProcessed atomic.Uint64
	totalMatched   atomic.Uint64
	totalDropped   atomic.Uint64
}

// NewFilter compiles a rule, defaulting to include/or.
func NewFilter(rule config.FilterRule, logger *log.Logger) (*Filter, error) {
	if rule.Type == "" {
		rule.Type = config.FilterTypeInclude
	}
	if rule.Logic == "" {
		rule.Logic = config.FilterLogicOr
	}

	f := &Filter{
		rule:     rule,
		patterns: make([]*regexp.Regexp, 0, len(rule.Patterns)),
		logger:   logger,
	}

	for i, pattern := range rule.Patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern[%d] '%s': %w", i, pattern, err)
		}
		f.patterns = append(f.patterns, re)
	}

	logger.Debug("msg", "Filter created",
		"component", "filter",
		"type", rule.Type,
		"logic", rule.Logic,
		"pattern_count", len(rule.Patterns))

	return f, nil
}

// Apply reports whether rec passes the rule. Patterns see "<SEVERITY> <message>".
func (f *Filter) Apply(rec core.LogRecord) bool {
	f.totalProcessed.Add(1)

	if len(f.patterns) == 0 {
		return true
	}

	text := rec.Message
	if rec.Severity != "" {
		text = string(rec.Severity) + " " + text
	}

	matched := f.matches(text)
	if matched {
		f.totalMatched.Add(1)
	}

	shouldPass := false
	switch f.rule.Type {
	case config.FilterTypeInclude:
		shouldPass = matched
	case config.FilterTypeExclude:
		shouldPass = !matched
	}

	if !shouldPass {
		f.totalDropped.Add(1)
	}
	return shouldPass
}

func (f *Filter) matches(text string) bool {
	switch f.rule.Logic {
	case config.FilterLogicOr:
		for _, re := range f.patterns {
			if re.MatchString(text) {
				return true
			}
		}
		return false

	case config.FilterLogicAnd:
		for _, re := range f.patterns {
			if !re.MatchString(text) {
				return false
			}
		}
		return true

	default:
		// Shouldn't happen after validation
		f.logger.Warn("msg", "Unknown filter logic",
			"component", "filter",
			"logic", f.rule.Logic)
		return false
	}
}

// GetStats returns filter statistics
func (f *Filter) GetStats() map[string]any {
	return map[string]any{
		"type":            f.rule.Type,
		"logic":           f.rule.Logic,
		"pattern_count":   len(f.patterns),
		"total_processed": f.totalProcessed.Load(),
		"total_matched":   f.totalMatched.Load(),
		"total_dropped":   f.totalDropped.Load(),
	}
}
