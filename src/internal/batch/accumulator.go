// FILE: logship/src/internal/batch/accumulator.go
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"logship/src/internal/config"
	"logship/src/internal/core"

	"github.com/lixenwraith/log"
)

// Accumulator groups entries into batches under count, byte and linger
// thresholds and hands sealed batches to a pool of sender workers.
// Append never waits on the network.
type Accumulator struct {
	opts   Options
	sender Sender
	logger *log.Logger

	// Pending batch
	mu           sync.Mutex
	pending      []json.RawMessage
	pendingBytes int
	timer        *time.Timer
	timerGen     uint64
	seq          uint64
	closed       bool

	// Handoff
	queue    chan *Batch
	inFlight atomic.Int64
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// Closed and replaced on every release to wake all blocked producers
	freedMu sync.Mutex
	freed   chan struct{}

	// Statistics
	appended       atomic.Uint64
	dropped        atomic.Uint64
	encodeFailures atomic.Uint64
	oversize       atomic.Uint64
	droppedBatches atomic.Uint64
	sent           atomic.Uint64
	sealedCount    atomic.Uint64
	sealedBytes    atomic.Uint64
	sealedLinger   atomic.Uint64
	sealedShutdown atomic.Uint64
}

// New validates opts and starts the sender workers.
func New(opts Options, sender Sender, logger *log.Logger) (*Accumulator, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender cannot be nil")
	}
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Accumulator{
		opts:     opts,
		sender:   sender,
		logger:   logger,
		pending:  make([]json.RawMessage, 0, opts.MaxEntries),
		queue:    make(chan *Batch, opts.MaxInFlight),
		freed:    make(chan struct{}),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < opts.Workers; i++ {
		a.wg.Add(1)
		go a.worker(i)
	}

	logger.Info("msg", "Batch accumulator started",
		"component", "accumulator",
		"max_entries", opts.MaxEntries,
		"max_bytes", opts.MaxBytes,
		"linger", opts.Linger,
		"max_in_flight", opts.MaxInFlight,
		"workers", opts.Workers,
		"backpressure", opts.Backpressure)
	return a, nil
}

func validateOptions(o Options) error {
	switch {
	case o.MaxEntries <= 0:
		return core.NewConfigError("batch.max_entries", fmt.Sprintf("must be positive: %d", o.MaxEntries), nil)
	case o.MaxBytes <= 0:
		return core.NewConfigError("batch.max_bytes", fmt.Sprintf("must be positive: %d", o.MaxBytes), nil)
	case o.Linger <= 0:
		return core.NewConfigError("batch.linger_ms", fmt.Sprintf("must be positive: %s", o.Linger), nil)
	case o.MaxInFlight <= 0:
		return core.NewConfigError("batch.max_in_flight", fmt.Sprintf("must be positive: %d", o.MaxInFlight), nil)
	case o.Workers <= 0:
		return core.NewConfigError("batch.workers", fmt.Sprintf("must be positive: %d", o.Workers), nil)
	}
	switch o.Backpressure {
	case "", config.BackpressureDrop:
	case config.BackpressureBlock:
		if o.BlockTimeout <= 0 {
			return core.NewConfigError("batch.block_timeout_ms", "must be positive with block policy", nil)
		}
	default:
		return core.NewConfigError("batch.backpressure", fmt.Sprintf("unknown policy: %s", o.Backpressure), nil)
	}
	return nil
}

// Append adds an entry to the pending batch, sealing it when a threshold is
// reached. It returns false when the entry was dropped: encoding failure,
// larger than MaxBytes on its own, no in-flight capacity, or after shutdown.
func (a *Accumulator) Append(entry core.Entry) bool {
	raw, err := json.Marshal(entry)
	if err != nil {
		a.encodeFailures.Add(1)
		a.dropped.Add(1)
		a.logger.Debug("msg", "Entry encoding failed",
			"component", "accumulator",
			"error", err)
		return false
	}
	return a.AppendRaw(raw)
}

// AppendRaw is Append for an already encoded entry.
func (a *Accumulator) AppendRaw(raw json.RawMessage) bool {
	size := len(raw) + 1
	if size > a.opts.MaxBytes {
		a.oversize.Add(1)
		a.dropped.Add(1)
		return false
	}

	if !a.acquireCapacity() {
		a.dropped.Add(1)
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		a.dropped.Add(1)
		return false
	}

	// Keep every batch within MaxBytes
	if len(a.pending) > 0 && a.pendingBytes+size > a.opts.MaxBytes {
		a.sealLocked(SealBytes)
	}

	if len(a.pending) == 0 {
		a.armTimerLocked()
	}
	a.pending = append(a.pending, raw)
	a.pendingBytes += size
	a.appended.Add(1)

	switch {
	case len(a.pending) >= a.opts.MaxEntries:
		a.sealLocked(SealCount)
	case a.pendingBytes >= a.opts.MaxBytes:
		a.sealLocked(SealBytes)
	}
	return true
}

// acquireCapacity applies the backpressure policy when the in-flight ceiling
// is reached. With the block policy the wait is bounded by BlockTimeout.
func (a *Accumulator) acquireCapacity() bool {
	if a.inFlight.Load() < int64(a.opts.MaxInFlight) {
		return true
	}
	if a.opts.Backpressure != config.BackpressureBlock {
		return false
	}

	timer := time.NewTimer(a.opts.BlockTimeout)
	defer timer.Stop()
	for {
		// Take the channel before re-checking so a release in between is not missed
		a.freedMu.Lock()
		freed := a.freed
		a.freedMu.Unlock()
		if a.inFlight.Load() < int64(a.opts.MaxInFlight) {
			return true
		}

		select {
		case <-freed:
		case <-timer.C:
			return false
		case <-a.done:
			return false
		}
	}
}

func (a *Accumulator) armTimerLocked() {
	a.timerGen++
	gen := a.timerGen
	a.timer = time.AfterFunc(a.opts.Linger, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		// A seal since arming bumps the generation
		if a.closed || gen != a.timerGen || len(a.pending) == 0 {
			return
		}
		a.sealLocked(SealLinger)
	})
}

// sealLocked closes the pending batch and queues it. Caller holds a.mu.
func (a *Accumulator) sealLocked(reason SealReason) {
	b := a.takeLocked(reason)
	if b == nil {
		return
	}

	a.inFlight.Add(1)
	select {
	case a.queue <- b:
	default:
		// Linger and byte seals can overshoot the ceiling the queue is sized for
		a.release()
		a.droppedBatches.Add(1)
		a.dropped.Add(uint64(b.Len()))
		a.logger.Warn("msg", "Dispatch queue full, batch dropped",
			"component", "accumulator",
			"seq", b.Seq,
			"entries", b.Len())
	}
}

// takeLocked detaches the pending entries as a new batch.
func (a *Accumulator) takeLocked(reason SealReason) *Batch {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.timerGen++

	if len(a.pending) == 0 {
		return nil
	}

	a.seq++
	b := &Batch{
		Seq:     a.seq,
		Entries: a.pending,
		Bytes:   a.pendingBytes,
		Created: time.Now(),
		Reason:  reason,
	}
	a.pending = make([]json.RawMessage, 0, a.opts.MaxEntries)
	a.pendingBytes = 0

	switch reason {
	case SealCount:
		a.sealedCount.Add(1)
	case SealBytes:
		a.sealedBytes.Add(1)
	case SealLinger:
		a.sealedLinger.Add(1)
	case SealShutdown:
		a.sealedShutdown.Add(1)
	}
	return b
}

func (a *Accumulator) worker(id int) {
	defer a.wg.Done()
	for b := range a.queue {
		a.sender.Send(a.ctx, b)
		a.sent.Add(1)
		a.release()
	}
	a.logger.Debug("msg", "Sender worker exited",
		"component", "accumulator",
		"worker", id)
}

// release frees one in-flight slot and wakes every blocked producer.
func (a *Accumulator) release() {
	a.inFlight.Add(-1)
	a.freedMu.Lock()
	close(a.freed)
	a.freed = make(chan struct{})
	a.freedMu.Unlock()
}

// Shutdown seals whatever is pending and waits for the workers to drain the
// queue. When ctx expires first, in-flight sends are cancelled and ctx.Err()
// is returned. Appends after Shutdown are dropped.
func (a *Accumulator) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	final := a.takeLocked(SealShutdown)
	a.mu.Unlock()
	close(a.done)

	if final != nil {
		a.inFlight.Add(1)
		select {
		case a.queue <- final:
		case <-ctx.Done():
			a.release()
			a.droppedBatches.Add(1)
			a.dropped.Add(uint64(final.Len()))
		}
	}
	close(a.queue)

	drained := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		a.cancel()
		a.logger.Info("msg", "Batch accumulator stopped",
			"component", "accumulator",
			"sent_batches", a.sent.Load(),
			"dropped_entries", a.dropped.Load())
		return nil
	case <-ctx.Done():
		a.cancel()
		a.logger.Warn("msg", "Shutdown deadline reached, abandoning in-flight batches",
			"component", "accumulator",
			"in_flight", a.inFlight.Load())
		return ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (a *Accumulator) Stats() Stats {
	a.mu.Lock()
	pending := len(a.pending)
	a.mu.Unlock()

	return Stats{
		Appended:       a.appended.Load(),
		Dropped:        a.dropped.Load(),
		EncodeFailures: a.encodeFailures.Load(),
		Oversize:       a.oversize.Load(),
		DroppedBatches: a.droppedBatches.Load(),
		Sealed: map[SealReason]uint64{
			SealCount:    a.sealedCount.Load(),
			SealBytes:    a.sealedBytes.Load(),
			SealLinger:   a.sealedLinger.Load(),
			SealShutdown: a.sealedShutdown.Load(),
		},
		Sent:     a.sent.Load(),
		InFlight: a.inFlight.Load(),
		Pending:  pending,
	}
}

// GetStats returns the counters keyed for status output.
func (a *Accumulator) GetStats() map[string]any {
	s := a.Stats()
	return map[string]any{
		"appended_entries": s.Appended,
		"dropped_entries":  s.Dropped,
		"encode_failures":  s.EncodeFailures,
		"oversize_entries": s.Oversize,
		"dropped_batches":  s.DroppedBatches,
		"sent_batches":     s.Sent,
		"in_flight":        s.InFlight,
		"pending_entries":  s.Pending,
		"sealed": map[string]any{
			"count":    s.Sealed[SealCount],
			"bytes":    s.Sealed[SealBytes],
			"linger":   s.Sealed[SealLinger],
			"shutdown": s.Sealed[SealShutdown],
		},
	}
}
