// FILE: logship/src/internal/pipeline/pipeline_test.go
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"logship/src/internal/config"
	"logship/src/internal/core"
	"logship/src/internal/dispatch"
	"logship/src/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	tokens *testutil.TokenServer
	writes *testutil.WriteServer
	cred   []byte
	cfg    *config.Config
}

func newEnv(t *testing.T, script ...int) *env {
	t.Helper()
	ts := testutil.NewTokenServer()
	t.Cleanup(ts.Close)
	ws := testutil.NewWriteServer(script...)
	t.Cleanup(ws.Close)

	cfg := config.DefaultConfig()
	cfg.LogName = "orders"
	cfg.HTTP.WriteURL = ws.WriteURL()
	cfg.HTTP.TimeoutMS = 2000
	cfg.Batch.MaxEntries = 3
	cfg.Batch.LingerMS = 100
	cfg.Batch.Workers = 1
	cfg.Retry.BaseBackoffMS = 5
	cfg.Retry.MaxBackoffMS = 20
	cfg.Logging.Output = "none"

	return &env{
		tokens: ts,
		writes: ws,
		cred:   testutil.CredentialJSON(t, testutil.NewRSAKeyPEM(t), ts.TokenURL()),
		cfg:    cfg,
	}
}

func (e *env) start(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(context.Background(), e.cfg, e.cred, testutil.NewLogger(), opts...)
	require.NoError(t, err)
	return p
}

func shutdown(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
}

func TestPipeline_EndToEnd(t *testing.T) {
	e := newEnv(t)
	e.cfg.Labels = map[string]string{"env": "test"}
	p := e.start(t)
	logger := p.Logger()

	for i := range 5 {
		logger.Info("order placed", "n", i, "trace_id", "abc123")
	}
	shutdown(t, p)

	delivered := e.writes.Delivered()
	require.Len(t, delivered, 2)
	require.Len(t, delivered[0], 3)
	require.Len(t, delivered[1], 2)

	first := delivered[0][0]
	assert.Equal(t, "projects/test-project/logs/orders", first["logName"])
	assert.Equal(t, "INFO", first["severity"])
	assert.Equal(t, "projects/test-project/traces/abc123", first["trace"])
	assert.NotEmpty(t, first["insertId"])
	assert.Equal(t, map[string]any{"type": "global", "labels": map[string]any{"project_id": "test-project"}}, first["resource"])
	assert.Equal(t, map[string]any{"context": "orders", "requestId": "abc123", "env": "test"}, first["labels"])

	// Per-producer order survives batching
	var got []float64
	for _, b := range delivered {
		for _, entry := range b {
			payload := entry["jsonPayload"].(map[string]any)
			got = append(got, payload["n"].(float64))
		}
	}
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, got)

	reqs := e.writes.Requests()
	for _, r := range reqs {
		assert.Equal(t, "Bearer token-1", r.Authorization)
		assert.Equal(t, "gzip", r.ContentEncoding)
	}
	assert.Equal(t, 1, e.tokens.Exchanges())

	stats := p.Stats()
	assert.Equal(t, uint64(5), stats.Batch.Appended)
	assert.Equal(t, uint64(2), stats.Batch.Sent)
	assert.Equal(t, uint64(2), stats.Dispatcher["delivered_batches"])
	assert.Equal(t, uint64(5), stats.Dispatcher["delivered_entries"])
	assert.Equal(t, uint64(5), stats.Handler["accepted"])
}

func TestPipeline_LingerFlush(t *testing.T) {
	e := newEnv(t)
	p := e.start(t)
	defer shutdown(t, p)

	p.Logger().Warn("lonely")

	require.Eventually(t, func() bool {
		return len(e.writes.Delivered()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), p.Stats().Batch.Sealed["linger"])
}

func TestPipeline_RetryAndAuthRefresh(t *testing.T) {
	e := newEnv(t, http.StatusServiceUnavailable, http.StatusUnauthorized)
	e.cfg.Batch.MaxEntries = 1
	p := e.start(t)

	p.Logger().Error("needs retry")
	shutdown(t, p)

	reqs := e.writes.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "Bearer token-1", reqs[0].Authorization)
	assert.Equal(t, "Bearer token-1", reqs[1].Authorization)
	assert.Equal(t, "Bearer token-2", reqs[2].Authorization)
	assert.Len(t, e.writes.Delivered(), 1)

	ds := p.Stats().Dispatcher
	assert.Equal(t, uint64(1), ds["auth_refreshes"])
	assert.Equal(t, uint64(1), ds["retries"])
}

func TestPipeline_FailureHandler(t *testing.T) {
	e := newEnv(t, http.StatusBadRequest)
	e.cfg.Batch.MaxEntries = 1

	var mu sync.Mutex
	var outcomes []dispatch.Outcome
	p := e.start(t, WithFailureHandler(func(o dispatch.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, o)
	}))

	p.Logger().Info("rejected")
	shutdown(t, p)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Delivered)
	assert.Equal(t, 1, outcomes[0].Attempts)
	assert.Equal(t, http.StatusBadRequest, outcomes[0].StatusCode)

	var derr *dispatch.DeliveryError
	require.True(t, errors.As(outcomes[0].Err, &derr))
	assert.True(t, derr.Permanent)
}

func TestPipeline_MinLevelAndFilters(t *testing.T) {
	e := newEnv(t)
	e.cfg.Filter = &config.FilterConfig{
		MinLevel: "warn",
		Rules: []config.FilterRule{
			{Type: config.FilterTypeExclude, Patterns: []string{"heartbeat"}},
		},
	}
	p := e.start(t)
	logger := p.Logger()

	logger.Info("not shipped")
	logger.Warn("heartbeat ok")
	logger.Warn("disk filling")
	logger.Error("disk full")
	shutdown(t, p)

	var messages []string
	for _, b := range e.writes.Delivered() {
		for _, entry := range b {
			messages = append(messages, entry["jsonPayload"].(map[string]any)["message"].(string))
		}
	}
	assert.Equal(t, []string{"disk filling", "disk full"}, messages)
	assert.Equal(t, uint64(1), p.Stats().Handler["filtered"])
}

func TestPipeline_RateLimit(t *testing.T) {
	e := newEnv(t)
	e.cfg.Batch.MaxEntries = 100
	e.cfg.RateLimit = &config.RateLimitConfig{Rate: 1, Burst: 2, Policy: "drop"}
	p := e.start(t)

	for range 10 {
		p.Logger().Info("flood")
	}
	shutdown(t, p)

	delivered := e.writes.Delivered()
	require.Len(t, delivered, 1)
	assert.Len(t, delivered[0], 2)

	stats := p.Stats()
	assert.Equal(t, uint64(8), stats.Handler["limited"])
	assert.Equal(t, uint64(8), stats.RateLimiter["dropped_by_rate"])
}

func TestPipeline_ProjectIDOverride(t *testing.T) {
	e := newEnv(t)
	e.cfg.ProjectID = "other-project"
	e.cfg.Resource = &config.ResourceConfig{Type: "k8s_container", Labels: map[string]string{"cluster_name": "c1"}}
	p := e.start(t)

	p.Logger().Info("x")
	shutdown(t, p)

	delivered := e.writes.Delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, "projects/other-project/logs/orders", delivered[0][0]["logName"])
	assert.Equal(t, map[string]any{"type": "k8s_container", "labels": map[string]any{"cluster_name": "c1"}}, delivered[0][0]["resource"])
}

func TestPipeline_TokenPrefetch(t *testing.T) {
	e := newEnv(t)
	p := e.start(t, WithTokenPrefetch())
	defer shutdown(t, p)

	require.Eventually(t, func() bool {
		return e.tokens.Exchanges() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, e.writes.Requests())
}

func TestPipeline_DropsAfterShutdown(t *testing.T) {
	e := newEnv(t)
	p := e.start(t)
	shutdown(t, p)

	p.Logger().Info("too late")
	assert.Equal(t, uint64(1), p.Stats().Handler["rejected"])
	assert.Empty(t, e.writes.Requests())
	// Second shutdown is a no-op
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_ConfigErrors(t *testing.T) {
	e := newEnv(t)

	assertField := func(t *testing.T, err error, field string) {
		t.Helper()
		var cfgErr *core.ConfigError
		require.True(t, errors.As(err, &cfgErr), "got %v", err)
		assert.Equal(t, field, cfgErr.Field)
	}

	t.Run("InvalidBatch", func(t *testing.T) {
		cfg := *e.cfg
		b := *cfg.Batch
		b.MaxEntries = 0
		cfg.Batch = &b
		_, err := New(context.Background(), &cfg, e.cred, testutil.NewLogger())
		assertField(t, err, "batch.max_entries")
	})

	t.Run("BadCredential", func(t *testing.T) {
		_, err := New(context.Background(), e.cfg, []byte("{"), testutil.NewLogger())
		assertField(t, err, "credential")
	})

	t.Run("MissingProjectID", func(t *testing.T) {
		var raw map[string]string
		require.NoError(t, json.Unmarshal(e.cred, &raw))
		delete(raw, "project_id")
		cred, err := json.Marshal(raw)
		require.NoError(t, err)

		_, err = New(context.Background(), e.cfg, cred, testutil.NewLogger())
		assertField(t, err, "project_id")
	})

	t.Run("NilLogger", func(t *testing.T) {
		_, err := New(context.Background(), e.cfg, e.cred, nil)
		assert.Error(t, err)
	})
}

func TestResourceFromConfig(t *testing.T) {
	assert.Equal(t, core.GlobalResource("p"), resourceFromConfig(nil, "p"))
	assert.Equal(t, core.GlobalResource("p"), resourceFromConfig(&config.ResourceConfig{Type: "global"}, "p"))

	r := resourceFromConfig(&config.ResourceConfig{Type: "global", Labels: map[string]string{"zone": "a"}}, "p")
	assert.Equal(t, map[string]string{"zone": "a", "project_id": "p"}, r.Labels)

	src := map[string]string{"instance_id": "i-1"}
	r = resourceFromConfig(&config.ResourceConfig{Type: "gce_instance", Labels: src}, "p")
	r.Labels["x"] = "y"
	assert.NotContains(t, src, "x")
}
