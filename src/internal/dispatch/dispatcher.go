// FILE: logship/src/internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"logship/src/internal/auth"
	"logship/src/internal/batch"
	"logship/src/internal/config"
	"logship/src/internal/core"
	"logship/src/internal/version"

	"github.com/lixenwraith/log"
	"github.com/valyala/fasthttp"
)

// TokenSource supplies bearer tokens. *auth.Signer implements it.
type TokenSource interface {
	Token(ctx context.Context) (auth.AccessToken, error)
	Refresh(ctx context.Context, rejected auth.AccessToken) (auth.AccessToken, error)
}

// Outcome is the result of delivering one batch.
type Outcome struct {
	Seq       uint64
	Entries   int
	Delivered bool
	Attempts  int
	// Status of the last reply, 0 if none
	StatusCode int
	// Backoff waits taken between attempts, in order
	Delays         []time.Duration
	TokenRefreshed bool
	Err            error
}

// Options configures a Dispatcher. Zero values select defaults.
type Options struct {
	WriteURL       string
	Timeout        time.Duration
	Compress       bool
	PartialSuccess bool
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	TLSConfig      *tls.Config

	// Called once per batch that could not be delivered
	OnFailure func(Outcome)

	// At most one fallback line per FallbackEvery, with FallbackBurst slack
	FallbackEvery time.Duration
	FallbackBurst int
}

// OptionsFromConfig converts the validated http and retry sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		WriteURL:       cfg.HTTP.WriteURL,
		Timeout:        cfg.HTTP.Timeout(),
		Compress:       cfg.HTTP.Compress,
		PartialSuccess: cfg.HTTP.PartialSuccess,
		MaxAttempts:    int(cfg.Retry.MaxAttempts),
		BaseBackoff:    cfg.Retry.BaseBackoff(),
		MaxBackoff:     cfg.Retry.MaxBackoff(),
	}
}

// Dispatcher writes batches to the remote endpoint with retry and token
// refresh. Send is safe for concurrent use.
type Dispatcher struct {
	opts     Options
	tokens   TokenSource
	client   *fasthttp.Client
	fallback *fallbackReporter
	logger   *log.Logger

	// Statistics
	attempts          atomic.Uint64
	retries           atomic.Uint64
	deliveredBatches  atomic.Uint64
	deliveredEntries  atomic.Uint64
	failedBatches     atomic.Uint64
	failedEntries     atomic.Uint64
	authRefreshes     atomic.Uint64
	lastDelivery      atomic.Value // time.Time
	lastFailureStatus atomic.Int64
}

type verdict int

const (
	verdictDelivered verdict = iota
	verdictBackoff
	verdictRetryNow
	verdictGiveUp
)

// sendState is carried across the attempts for one batch.
type sendState struct {
	token     auth.AccessToken
	haveToken bool
	refreshed bool
	status    int
}

// New creates a dispatcher.
func New(opts Options, tokens TokenSource, logger *log.Logger) (*Dispatcher, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token source cannot be nil")
	}
	if opts.WriteURL == "" {
		return nil, core.NewConfigError("http.write_url", "must not be empty", nil)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 200 * time.Millisecond
	}
	if opts.MaxBackoff < opts.BaseBackoff {
		opts.MaxBackoff = opts.BaseBackoff
	}
	if opts.FallbackEvery <= 0 {
		opts.FallbackEvery = time.Second
	}
	if opts.FallbackBurst <= 0 {
		opts.FallbackBurst = 5
	}

	d := &Dispatcher{
		opts:     opts,
		tokens:   tokens,
		fallback: newFallbackReporter(opts.FallbackEvery, opts.FallbackBurst, logger),
		logger:   logger,
		client: &fasthttp.Client{
			MaxConnsPerHost:               16,
			MaxIdleConnDuration:           30 * time.Second,
			ReadTimeout:                   opts.Timeout,
			WriteTimeout:                  opts.Timeout,
			DisableHeaderNamesNormalizing: true,
			TLSConfig:                     opts.TLSConfig,
		},
	}
	d.lastDelivery.Store(time.Time{})

	logger.Info("msg", "Dispatcher created",
		"component", "dispatcher",
		"write_url", opts.WriteURL,
		"timeout", opts.Timeout,
		"compress", opts.Compress,
		"max_attempts", opts.MaxAttempts,
		"base_backoff", opts.BaseBackoff,
		"max_backoff", opts.MaxBackoff)
	return d, nil
}

// Send delivers b, retrying transient failures with exponential backoff.
// A 401/403 reply triggers exactly one forced token refresh followed by an
// immediate retry. Failures are reported through counters, OnFailure and the
// rate-limited fallback log; nothing is returned to the producer.
func (d *Dispatcher) Send(ctx context.Context, b *batch.Batch) Outcome {
	out := Outcome{Seq: b.Seq, Entries: b.Len()}

	body, gzipped, err := encodeBody(b.Entries, d.opts.PartialSuccess, d.opts.Compress)
	if err != nil {
		out.Err = &DeliveryError{Permanent: true, Err: err}
		d.fail(out)
		return out
	}

	st := &sendState{}
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = &DeliveryError{Permanent: true, Err: err}
			break
		}

		out.Attempts = attempt
		d.attempts.Add(1)

		v, err := d.attempt(ctx, body, gzipped, st, attempt >= d.opts.MaxAttempts)
		out.StatusCode = st.status
		out.TokenRefreshed = st.refreshed
		if v == verdictDelivered {
			out.Delivered = true
			d.deliveredBatches.Add(1)
			d.deliveredEntries.Add(uint64(out.Entries))
			d.lastDelivery.Store(time.Now())
			d.logger.Debug("msg", "Batch delivered",
				"component", "dispatcher",
				"seq", b.Seq,
				"entries", out.Entries,
				"bytes", len(body),
				"attempts", attempt)
			return out
		}

		lastErr = err
		if v == verdictGiveUp {
			break
		}
		if attempt >= d.opts.MaxAttempts {
			lastErr = fmt.Errorf("giving up after %d attempts: %w", attempt, err)
			break
		}
		if v == verdictRetryNow {
			continue
		}

		delay := d.backoff(len(out.Delays) + 1)
		out.Delays = append(out.Delays, delay)
		d.retries.Add(1)
		d.logger.Warn("msg", "Batch delivery attempt failed, retrying",
			"component", "dispatcher",
			"seq", b.Seq,
			"attempt", attempt,
			"max_attempts", d.opts.MaxAttempts,
			"delay", delay,
			"error", err)

		if err := sleepCtx(ctx, delay); err != nil {
			lastErr = &DeliveryError{Permanent: true, Err: err}
			break
		}
	}

	out.Err = lastErr
	d.fail(out)
	return out
}

// attempt performs one write, acquiring a token first when needed. On the
// last attempt an auth rejection does not trigger a refresh.
func (d *Dispatcher) attempt(ctx context.Context, body []byte, gzipped bool, st *sendState, last bool) (verdict, error) {
	if !st.haveToken {
		tok, err := d.tokens.Token(ctx)
		if err != nil {
			return tokenVerdict(ctx, err)
		}
		st.token, st.haveToken = tok, true
	}

	status, respBody, err := d.post(body, gzipped, st.token)
	st.status = status
	if err != nil {
		return verdictBackoff, &DeliveryError{Err: err}
	}
	if status >= 200 && status < 300 {
		return verdictDelivered, nil
	}

	derr := statusError(status, respBody)
	switch {
	case authRejected(status):
		if st.refreshed {
			derr.Permanent = true
			return verdictGiveUp, derr
		}
		if last {
			return verdictBackoff, derr
		}
		st.refreshed = true
		d.authRefreshes.Add(1)
		d.logger.Info("msg", "Write rejected by auth, forcing token refresh",
			"component", "dispatcher",
			"status_code", status)

		tok, err := d.tokens.Refresh(ctx, st.token)
		if err != nil {
			st.haveToken = false
			return tokenVerdict(ctx, err)
		}
		st.token = tok
		return verdictRetryNow, derr

	case derr.Permanent:
		return verdictGiveUp, derr

	default:
		return verdictBackoff, derr
	}
}

// tokenVerdict classifies a token acquisition failure.
func tokenVerdict(ctx context.Context, err error) (verdict, error) {
	if ctx.Err() != nil {
		return verdictGiveUp, &DeliveryError{Permanent: true, Err: err}
	}
	var authErr *auth.Error
	if errors.As(err, &authErr) && !authErr.Retryable() {
		return verdictGiveUp, &DeliveryError{Permanent: true, Err: err}
	}
	return verdictBackoff, &DeliveryError{Err: err}
}

func (d *Dispatcher) post(body []byte, gzipped bool, tok auth.AccessToken) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(d.opts.WriteURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", tok.Header())
	req.Header.Set("User-Agent", version.UserAgent())
	if gzipped {
		req.Header.Set("Content-Encoding", "gzip")
	}
	req.SetBody(body)

	if err := d.client.DoTimeout(req, resp, d.opts.Timeout); err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}

	// Copy before the response is released
	var respBody []byte
	if len(resp.Body()) > 0 {
		respBody = append([]byte(nil), resp.Body()...)
	}
	return resp.StatusCode(), respBody, nil
}

// backoff returns base·2^(n-1) capped at MaxBackoff, for the n-th wait.
func (d *Dispatcher) backoff(n int) time.Duration {
	delay := d.opts.BaseBackoff
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= d.opts.MaxBackoff || delay <= 0 {
			return d.opts.MaxBackoff
		}
	}
	return min(delay, d.opts.MaxBackoff)
}

func (d *Dispatcher) fail(out Outcome) {
	d.failedBatches.Add(1)
	d.failedEntries.Add(uint64(out.Entries))
	d.lastFailureStatus.Store(int64(out.StatusCode))

	if d.opts.OnFailure != nil {
		d.opts.OnFailure(out)
	}
	d.fallback.report(out)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetStats returns delivery statistics.
func (d *Dispatcher) GetStats() map[string]any {
	lastDelivery, _ := d.lastDelivery.Load().(time.Time)
	return map[string]any{
		"attempts":            d.attempts.Load(),
		"retries":             d.retries.Load(),
		"delivered_batches":   d.deliveredBatches.Load(),
		"delivered_entries":   d.deliveredEntries.Load(),
		"failed_batches":      d.failedBatches.Load(),
		"failed_entries":      d.failedEntries.Load(),
		"auth_refreshes":      d.authRefreshes.Load(),
		"suppressed_reports":  d.fallback.suppressedTotal.Load(),
		"last_delivery":       lastDelivery,
		"last_failure_status": d.lastFailureStatus.Load(),
	}
}
