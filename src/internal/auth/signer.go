// FILE: logship/src/internal/auth/signer.go
package auth

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"logship/src/internal/version"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lixenwraith/log"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fastjson"
	"golang.org/x/sync/singleflight"
)

const (
	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	defaultMargin   = 60 * time.Second
	defaultLifetime = time.Hour
	defaultTimeout  = 10 * time.Second

	refreshKey = "token"
)

// AccessToken is a bearer token with its expiry instant.
type AccessToken struct {
	Value     string
	Type      string
	ExpiresAt time.Time
}

// Header returns the Authorization header value.
func (t AccessToken) Header() string {
	typ := t.Type
	if typ == "" || strings.EqualFold(typ, "bearer") {
		typ = "Bearer"
	}
	return typ + " " + t.Value
}

// Valid reports whether the token has more than margin left at now.
func (t AccessToken) Valid(now time.Time, margin time.Duration) bool {
	return t.Value != "" && t.ExpiresAt.Sub(now) > margin
}

// Options tunes a Signer. Zero values select defaults.
type Options struct {
	Scopes []string
	// Subject is set as the sub claim for domain-wide delegation
	Subject string
	// TokenURL overrides the credential's token_uri
	TokenURL string
	// Margin of remaining validity below which a cached token is refreshed
	Margin time.Duration
	// Lifetime of the signed assertion
	Lifetime time.Duration
	// Timeout of a single exchange request
	Timeout   time.Duration
	TLSConfig *tls.Config
}

// Signer exchanges signed assertions for access tokens and caches the result.
// Token is safe for concurrent use; concurrent refreshes are coalesced into a
// single exchange.
type Signer struct {
	cred     *Credential
	opts     Options
	tokenURL string
	scope    string
	client   *fasthttp.Client
	logger   *log.Logger
	now      func() time.Time

	mu    sync.RWMutex
	token *AccessToken
	group singleflight.Group

	// Statistics
	exchanges        atomic.Uint64
	exchangeFailures atomic.Uint64
	cacheHits        atomic.Uint64
	lastRefresh      atomic.Value // time.Time
}

// NewSigner builds a signer and verifies the key can sign, so a corrupt key
// fails here rather than on the first delivery.
func NewSigner(cred *Credential, opts Options, logger *log.Logger) (*Signer, error) {
	if cred == nil {
		return nil, fmt.Errorf("credential cannot be nil")
	}
	if opts.Margin <= 0 {
		opts.Margin = defaultMargin
	}
	if opts.Lifetime <= 0 {
		opts.Lifetime = defaultLifetime
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	tokenURL := cred.TokenURI
	if opts.TokenURL != "" {
		tokenURL = opts.TokenURL
	}

	s := &Signer{
		cred:     cred,
		opts:     opts,
		tokenURL: tokenURL,
		scope:    strings.Join(opts.Scopes, " "),
		logger:   logger,
		now:      time.Now,
		client: &fasthttp.Client{
			MaxConnsPerHost:     4,
			MaxIdleConnDuration: 30 * time.Second,
			ReadTimeout:         opts.Timeout,
			WriteTimeout:        opts.Timeout,
			TLSConfig:           opts.TLSConfig,
		},
	}
	s.lastRefresh.Store(time.Time{})

	if _, err := s.Assertion(); err != nil {
		return nil, err
	}

	logger.Info("msg", "Credential signer initialized",
		"component", "auth",
		"client_email", cred.ClientEmail,
		"algorithm", cred.SigningAlgorithm(),
		"token_url", tokenURL)
	return s, nil
}

// Token returns a cached token when it has more than the safety margin left.
// Otherwise it joins (or starts) the single in-flight refresh. ctx only bounds
// how long this caller waits; the exchange itself is bounded by the HTTP
// timeout so one impatient caller cannot fail the others.
func (s *Signer) Token(ctx context.Context) (AccessToken, error) {
	if tok, ok := s.cached(); ok {
		s.cacheHits.Add(1)
		return tok, nil
	}

	ch := s.group.DoChan(refreshKey, func() (any, error) {
		// A flight that finished just before this one started may already
		// have stored a fresh token
		if tok, ok := s.cached(); ok {
			return tok, nil
		}

		tok, err := s.exchange()
		if err != nil {
			s.exchangeFailures.Add(1)
			return AccessToken{}, err
		}

		s.mu.Lock()
		s.token = &tok
		s.mu.Unlock()
		s.lastRefresh.Store(s.now())
		return tok, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return AccessToken{}, res.Err
		}
		return res.Val.(AccessToken), nil
	case <-ctx.Done():
		return AccessToken{}, ctx.Err()
	}
}

// Refresh forces a new exchange when the cached token is still the one the
// server rejected. Callers holding an already-replaced token get the newer
// one without another exchange.
func (s *Signer) Refresh(ctx context.Context, rejected AccessToken) (AccessToken, error) {
	s.mu.Lock()
	if s.token != nil && s.token.Value == rejected.Value {
		s.token = nil
	}
	s.mu.Unlock()

	s.logger.Debug("msg", "Forced token refresh",
		"component", "auth",
		"rejected_expiry", rejected.ExpiresAt)
	return s.Token(ctx)
}

// Assertion builds and signs the JWT presented to the token endpoint.
func (s *Signer) Assertion() (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"iss": s.cred.ClientEmail,
		"aud": s.tokenURL,
		"iat": now.Unix(),
		"exp": now.Add(s.opts.Lifetime).Unix(),
	}
	if s.scope != "" {
		claims["scope"] = s.scope
	}
	if s.opts.Subject != "" {
		claims["sub"] = s.opts.Subject
	}

	token := jwt.NewWithClaims(s.cred.method, claims)
	if s.cred.PrivateKeyID != "" {
		token.Header["kid"] = s.cred.PrivateKeyID
	}

	signed, err := token.SignedString(s.cred.key)
	if err != nil {
		return "", &Error{Kind: KindSignature, Err: err}
	}
	return signed, nil
}

// GetStats returns token statistics.
func (s *Signer) GetStats() map[string]any {
	lastRefresh, _ := s.lastRefresh.Load().(time.Time)

	s.mu.RLock()
	var expiresAt time.Time
	if s.token != nil {
		expiresAt = s.token.ExpiresAt
	}
	s.mu.RUnlock()

	return map[string]any{
		"exchanges":         s.exchanges.Load(),
		"exchange_failures": s.exchangeFailures.Load(),
		"cache_hits":        s.cacheHits.Load(),
		"last_refresh":      lastRefresh,
		"token_expires_at":  expiresAt,
	}
}

func (s *Signer) cached() (AccessToken, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil || !s.token.Valid(s.now(), s.opts.Margin) {
		return AccessToken{}, false
	}
	return *s.token, true
}

// exchange performs one assertion-for-token round trip.
func (s *Signer) exchange() (AccessToken, error) {
	assertion, err := s.Assertion()
	if err != nil {
		return AccessToken{}, err
	}

	s.exchanges.Add(1)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	req.SetRequestURI(s.tokenURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", version.UserAgent())
	req.SetBodyString(form.Encode())

	if err := s.client.DoTimeout(req, resp, s.opts.Timeout); err != nil {
		s.logger.Warn("msg", "Token exchange request failed",
			"component", "auth",
			"token_url", s.tokenURL,
			"error", err)
		return AccessToken{}, &Error{Kind: KindExchange, Err: err}
	}

	status := resp.StatusCode()
	body := resp.Body()
	if status < 200 || status >= 300 {
		err := fmt.Errorf("token endpoint returned status %d: %s", status, describeOAuthError(body))
		s.logger.Warn("msg", "Token exchange rejected",
			"component", "auth",
			"status_code", status,
			"error", err)
		return AccessToken{}, &Error{Kind: KindExchange, StatusCode: status, Err: err}
	}

	tok, err := parseTokenResponse(body, s.now())
	if err != nil {
		return AccessToken{}, &Error{Kind: KindResponse, StatusCode: status, Err: err}
	}

	s.logger.Debug("msg", "Access token acquired",
		"component", "auth",
		"expires_at", tok.ExpiresAt)
	return tok, nil
}

func parseTokenResponse(body []byte, now time.Time) (AccessToken, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(body)
	if err != nil {
		return AccessToken{}, fmt.Errorf("malformed token response: %w", err)
	}

	value := string(v.GetStringBytes("access_token"))
	if value == "" {
		return AccessToken{}, fmt.Errorf("token response missing access_token")
	}
	expiresIn := v.GetInt64("expires_in")
	if expiresIn <= 0 {
		return AccessToken{}, fmt.Errorf("token response has invalid expires_in: %d", expiresIn)
	}
	tokenType := string(v.GetStringBytes("token_type"))
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return AccessToken{
		Value:     value,
		Type:      tokenType,
		ExpiresAt: now.Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

// describeOAuthError extracts error/error_description from an OAuth error
// body, falling back to the raw text.
func describeOAuthError(body []byte) string {
	var p fastjson.Parser
	if v, err := p.ParseBytes(body); err == nil {
		code := string(v.GetStringBytes("error"))
		desc := string(v.GetStringBytes("error_description"))
		if code != "" {
			if desc != "" {
				return code + ": " + desc
			}
			return code
		}
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return string(body)
}
