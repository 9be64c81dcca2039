// FILE: logship/src/internal/testutil/servers.go
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
)

// TokenServer is a fake OAuth token endpoint. Every successful exchange
// issues "token-<n>".
type TokenServer struct {
	*httptest.Server

	ExpiresIn int64
	Delay     time.Duration

	mu         sync.Mutex
	failStatus int
	badBody    string
	assertions []string

	exchanges atomic.Int64
}

// NewTokenServer starts a token endpoint issuing hour-long tokens.
func NewTokenServer() *TokenServer {
	ts := &TokenServer{ExpiresIn: 3600}
	ts.Server = httptest.NewServer(http.HandlerFunc(ts.handle))
	return ts
}

// URL of the token endpoint.
func (ts *TokenServer) TokenURL() string {
	return ts.Server.URL + "/token"
}

// Fail makes subsequent exchanges answer with status (0 restores success).
func (ts *TokenServer) Fail(status int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.failStatus = status
}

// RespondWith makes subsequent exchanges return body with status 200.
func (ts *TokenServer) RespondWith(body string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.badBody = body
}

// Exchanges returns how many exchange requests were received.
func (ts *TokenServer) Exchanges() int {
	return int(ts.exchanges.Load())
}

// Assertions returns the assertions received so far.
func (ts *TokenServer) Assertions() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.assertions...)
}

func (ts *TokenServer) handle(w http.ResponseWriter, r *http.Request) {
	n := ts.exchanges.Add(1)
	if ts.Delay > 0 {
		time.Sleep(ts.Delay)
	}

	body, _ := io.ReadAll(r.Body)
	form, _ := url.ParseQuery(string(body))

	ts.mu.Lock()
	ts.assertions = append(ts.assertions, form.Get("assertion"))
	failStatus := ts.failStatus
	badBody := ts.badBody
	ts.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if form.Get("grant_type") != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"unsupported_grant_type"}`)
		return
	}
	if failStatus != 0 {
		w.WriteHeader(failStatus)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"test failure"}`)
		return
	}
	if badBody != "" {
		fmt.Fprint(w, badBody)
		return
	}
	fmt.Fprintf(w, `{"access_token":"token-%d","expires_in":%d,"token_type":"Bearer"}`, n, ts.ExpiresIn)
}

// WriteRequest is one request received by WriteServer.
type WriteRequest struct {
	Authorization   string
	ContentEncoding string
	Entries         []map[string]any
	PartialSuccess  bool
}

// WriteServer is a fake entries:write endpoint. Responses follow the scripted
// status list and then default to 200.
type WriteServer struct {
	*httptest.Server

	mu       sync.Mutex
	script   []int
	requests []WriteRequest
	// Delay before answering, applied to every request
	Delay time.Duration
	// Block, when set, holds every request until closed
	Block chan struct{}
}

// NewWriteServer starts a write endpoint answering with script then 200s.
func NewWriteServer(script ...int) *WriteServer {
	ws := &WriteServer{script: script}
	ws.Server = httptest.NewServer(http.HandlerFunc(ws.handle))
	return ws
}

// WriteURL of the endpoint.
func (ws *WriteServer) WriteURL() string {
	return ws.Server.URL + "/v2/entries:write"
}

// Script replaces the remaining scripted statuses.
func (ws *WriteServer) Script(statuses ...int) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.script = statuses
}

// Requests returns the requests received so far.
func (ws *WriteServer) Requests() []WriteRequest {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return append([]WriteRequest(nil), ws.requests...)
}

// Delivered returns the entries of requests answered with 2xx, in order.
func (ws *WriteServer) Delivered() [][]map[string]any {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	var out [][]map[string]any
	for _, r := range ws.requests {
		if r.Entries != nil {
			out = append(out, r.Entries)
		}
	}
	return out
}

func (ws *WriteServer) handle(w http.ResponseWriter, r *http.Request) {
	if ws.Block != nil {
		<-ws.Block
	}
	if ws.Delay > 0 {
		time.Sleep(ws.Delay)
	}

	var reader io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, `{"error":{"code":400,"message":"bad gzip","status":"INVALID_ARGUMENT"}}`, http.StatusBadRequest)
			return
		}
		defer gz.Close()
		reader = gz
	}

	var body struct {
		Entries        []map[string]any `json:"entries"`
		PartialSuccess bool             `json:"partialSuccess"`
	}
	decodeErr := json.NewDecoder(reader).Decode(&body)

	ws.mu.Lock()
	status := http.StatusOK
	if len(ws.script) > 0 {
		status = ws.script[0]
		ws.script = ws.script[1:]
	}
	req := WriteRequest{
		Authorization:   r.Header.Get("Authorization"),
		ContentEncoding: r.Header.Get("Content-Encoding"),
		PartialSuccess:  body.PartialSuccess,
	}
	if decodeErr == nil && status >= 200 && status < 300 {
		req.Entries = body.Entries
	}
	ws.requests = append(ws.requests, req)
	ws.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if decodeErr != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"error":{"code":400,"message":%q,"status":"INVALID_ARGUMENT"}}`, decodeErr.Error())
		return
	}
	w.WriteHeader(status)
	if status >= 300 {
		fmt.Fprintf(w, `{"error":{"code":%d,"message":"scripted failure","status":"%s"}}`, status, http.StatusText(status))
		return
	}
	fmt.Fprint(w, `{}`)
}
