// FILE: logship/src/internal/batch/batch.go
package batch

import (
	"context"
	"encoding/json"
	"time"

	"logship/src/internal/config"
)

// SealReason records which threshold closed a batch.
type SealReason string

const (
	SealCount    SealReason = "count"
	SealBytes    SealReason = "bytes"
	SealLinger   SealReason = "linger"
	SealShutdown SealReason = "shutdown"
)

// Batch is a sealed, ordered group of encoded entries. It is never mutated
// after it leaves the accumulator.
type Batch struct {
	// Creation order, starting at 1
	Seq     uint64
	Entries []json.RawMessage
	// Estimated body size: entry lengths plus one separator each
	Bytes   int
	Created time.Time
	Reason  SealReason
}

// Len returns the number of entries.
func (b *Batch) Len() int {
	return len(b.Entries)
}

// Sender delivers one batch. It runs on an accumulator worker goroutine and
// must honour ctx, which is cancelled when shutdown gives up waiting.
type Sender interface {
	Send(ctx context.Context, b *Batch)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, b *Batch)

func (f SenderFunc) Send(ctx context.Context, b *Batch) {
	f(ctx, b)
}

// Options are the accumulator thresholds.
type Options struct {
	MaxEntries   int
	MaxBytes     int
	Linger       time.Duration
	MaxInFlight  int
	Workers      int
	Backpressure string
	BlockTimeout time.Duration
}

// OptionsFromConfig converts the validated batch section.
func OptionsFromConfig(cfg *config.BatchConfig) Options {
	return Options{
		MaxEntries:   int(cfg.MaxEntries),
		MaxBytes:     int(cfg.MaxBytes),
		Linger:       cfg.Linger(),
		MaxInFlight:  int(cfg.MaxInFlight),
		Workers:      int(cfg.Workers),
		Backpressure: cfg.Backpressure,
		BlockTimeout: cfg.BlockTimeout(),
	}
}

// Stats is a point-in-time snapshot of accumulator counters.
type Stats struct {
	Appended       uint64
	Dropped        uint64
	EncodeFailures uint64
	Oversize       uint64
	DroppedBatches uint64
	Sealed         map[SealReason]uint64
	Sent           uint64
	InFlight       int64
	Pending        int
}
