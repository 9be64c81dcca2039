// FILE: logship/src/cmd/logship/status.go
package main

import (
	"context"
	"os"
	"time"

	"logship/src/internal/pipeline"
)

const statusInterval = 30 * time.Second

func enableStatusReporter() bool {
	return os.Getenv("LOGSHIP_DISABLE_STATUS_REPORTER") != "1"
}

// statusReporter periodically logs a delivery summary.
func statusReporter(ctx context.Context, p *pipeline.Pipeline, input *lineShipper) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logStatus(p, input)
		}
	}
}

func logStatus(p *pipeline.Pipeline, input *lineShipper) {
	stats := p.Stats()
	inputStats := input.GetStats()

	logger.Info("msg", "Status report",
		"component", "status_reporter",
		"uptime", stats.Uptime.Round(time.Second),
		"lines", inputStats["lines"],
		"appended_entries", stats.Batch.Appended,
		"dropped_entries", stats.Batch.Dropped,
		"in_flight", stats.Batch.InFlight,
		"delivered_batches", stats.Dispatcher["delivered_batches"],
		"failed_batches", stats.Dispatcher["failed_batches"],
		"retries", stats.Dispatcher["retries"],
		"token_exchanges", stats.Signer["exchanges"])
}
