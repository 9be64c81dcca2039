// FILE: logship/src/internal/dispatch/fallback.go
package dispatch

import (
	"sync/atomic"
	"time"

	"github.com/lixenwraith/log"
	"golang.org/x/time/rate"
)

// fallbackReporter writes dropped-batch notices to the local logger at a
// bounded rate, counting what it had to suppress.
type fallbackReporter struct {
	limiter *rate.Limiter
	logger  *log.Logger

	// suppressed resets with each emitted report, suppressedTotal never does
	suppressed      atomic.Uint64
	suppressedTotal atomic.Uint64
}

func newFallbackReporter(every time.Duration, burst int, logger *log.Logger) *fallbackReporter {
	return &fallbackReporter{
		limiter: rate.NewLimiter(rate.Every(every), burst),
		logger:  logger,
	}
}

func (f *fallbackReporter) report(out Outcome) bool {
	if !f.limiter.Allow() {
		f.suppressed.Add(1)
		f.suppressedTotal.Add(1)
		return false
	}

	f.logger.Error("msg", "Batch delivery failed, entries dropped",
		"component", "dispatcher",
		"seq", out.Seq,
		"entries", out.Entries,
		"attempts", out.Attempts,
		"status_code", out.StatusCode,
		"token_refreshed", out.TokenRefreshed,
		"suppressed_reports", f.suppressed.Swap(0),
		"error", out.Err)
	return true
}
