// FILE: logship/src/internal/filter/chain.go
package filter

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"logship/src/internal/config"
	"logship/src/internal/core"

	"github.com/lixenwraith/log"
)

// Chain gates records on a minimum level and then on every rule in order.
type Chain struct {
	minLevel slog.Level
	filters  []*Filter
	logger   *log.Logger

	// Statistics
	totalProcessed atomic.Uint64
	totalPassed    atomic.Uint64
	belowLevel     atomic.Uint64
}

// NewChain builds a chain from the filter section. A nil cfg passes everything.
func NewChain(cfg *config.FilterConfig, logger *log.Logger) (*Chain, error) {
	if cfg == nil {
		cfg = &config.FilterConfig{}
	}

	minLevel, err := config.ParseLevel(cfg.MinLevel)
	if err != nil {
		return nil, err
	}

	chain := &Chain{
		minLevel: minLevel,
		filters:  make([]*Filter, 0, len(cfg.Rules)),
		logger:   logger,
	}

	for i, rule := range cfg.Rules {
		filter, err := NewFilter(rule, logger)
		if err != nil {
			return nil, fmt.Errorf("filter[%d]: %w", i, err)
		}
		chain.filters = append(chain.filters, filter)
	}

	logger.Info("msg", "Filter chain created",
		"component", "filter_chain",
		"min_level", minLevel.String(),
		"filter_count", len(cfg.Rules))
	return chain, nil
}

// MinLevel returns the level below which records are discarded.
func (c *Chain) MinLevel() slog.Level {
	return c.minLevel
}

// Apply runs a record through the level gate and all filters.
func (c *Chain) Apply(rec core.LogRecord) bool {
	c.totalProcessed.Add(1)

	if rec.Severity.Level() < c.minLevel {
		c.belowLevel.Add(1)
		return false
	}

	for i, filter := range c.filters {
		if !filter.Apply(rec) {
			c.logger.Debug("msg", "Record filtered out",
				"component", "filter_chain",
				"filter_index", i,
				"filter_type", filter.rule.Type)
			return false
		}
	}

	c.totalPassed.Add(1)
	return true
}

// GetStats returns aggregated statistics for the entire chain.
func (c *Chain) GetStats() map[string]any {
	filterStats := make([]map[string]any, len(c.filters))
	for i, filter := range c.filters {
		filterStats[i] = filter.GetStats()
	}

	return map[string]any{
		"filter_count":    len(c.filters),
		"total_processed": c.totalProcessed.Load(),
		"total_passed":    c.totalPassed.Load(),
		"below_level":     c.belowLevel.Load(),
		"filters":         filterStats,
	}
}
