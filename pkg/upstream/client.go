// Package upstream implements the authenticated client for the identity/config
// service that owns tenant onboarding data. It maintains one process-wide
// login session and exposes the service-account and refresh-context fetches
// the resolution pipeline depends on.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/cubegate/cubegate/pkg/logger"
	"github.com/cubegate/cubegate/pkg/metrics"
)

const (
	loginPath           = "/auth/jwt/create/"
	refreshContextsPath = "/api/cube/config/refresh-contexts"

	// DefaultTimeout bounds every upstream HTTP attempt.
	DefaultTimeout = 10 * time.Second

	// expiryMargin is how close to the recorded token expiry we refuse to
	// reuse the session token. Refreshing early avoids issuing a request
	// with a token that expires mid-flight.
	expiryMargin = 30 * time.Second

	// assumedTokenValidity is used when the upstream token carries no exp
	// claim. A policy default, not a protocol guarantee.
	assumedTokenValidity = 15 * time.Minute

	retryInitialInterval = 250 * time.Millisecond

	// maxResponseBody caps how much of an upstream response we read.
	maxResponseBody = 1 << 20
)

// Client talks to the upstream identity/config service. The login session
// (access token plus expiry) is shared, mutable, process-wide state; a
// single-flight group ensures concurrent resolutions await one in-flight
// login rather than issuing N.
type Client struct {
	baseURL  string
	email    string
	password string

	httpClient *http.Client
	metrics    metrics.Metrics
	now        func() time.Time

	mu          sync.Mutex
	accessToken string
	expiry      time.Time

	loginGroup singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for upstream calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithClock overrides the time source. Tests use this to pin the expiry
// margin behavior.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Client for the service at baseURL, logging in with the fixed
// service credentials when needed.
func New(baseURL, email, password string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		email:      email,
		password:   password,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		metrics:    metrics.Noop{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate forces a login call, replacing any held session token.
func (c *Client) Authenticate(ctx context.Context) error {
	c.invalidate()
	_, err := c.authenticate(ctx)
	return err
}

// Token implements oauth2.TokenSource over the shared login session, for
// callers that want to mount the session on an oauth2.Transport.
func (c *Client) Token() (*oauth2.Token, error) {
	tok, err := c.ensureAuthenticated(context.Background())
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	expiry := c.expiry
	c.mu.Unlock()
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer", Expiry: expiry}, nil
}

// ensureAuthenticated returns a session token that is valid for at least the
// expiry margin, logging in if necessary.
func (c *Client) ensureAuthenticated(ctx context.Context) (string, error) {
	if tok, ok := c.validToken(); ok {
		return tok, nil
	}
	return c.authenticate(ctx)
}

// authenticate performs the login under a single-flight guard.
func (c *Client) authenticate(ctx context.Context) (string, error) {
	tok, err, _ := c.loginGroup.Do("login", func() (any, error) {
		// Another caller may have landed a token while we waited.
		if tok, ok := c.validToken(); ok {
			return tok, nil
		}
		return c.doLogin(ctx)
	})
	if err != nil {
		return "", err
	}
	return tok.(string), nil
}

func (c *Client) doLogin(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"email":    c.email,
		"password": c.password,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}

	status, body, err := c.send(ctx, http.MethodPost, c.baseURL+loginPath, payload, "", "login")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("%w: %w", ErrAuth, NewHTTPError(status, c.baseURL+loginPath, preview(body)))
	}

	var resp struct {
		Access string `json:"access"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: malformed login response: %w", ErrAuth, err)
	}
	if resp.Access == "" {
		return "", fmt.Errorf("%w: login response missing access token", ErrAuth)
	}

	expiry := c.tokenExpiry(resp.Access)

	c.mu.Lock()
	c.accessToken = resp.Access
	c.expiry = expiry
	c.mu.Unlock()

	logger.Debugw("upstream login succeeded", "expiry", expiry)
	return resp.Access, nil
}

// tokenExpiry decodes the exp claim from the session token without verifying
// the signature; only the upstream's own signature covers it. A token with
// no readable exp claim is assumed valid for 15 minutes.
func (c *Client) tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err == nil {
		if exp, expErr := claims.GetExpirationTime(); expErr == nil && exp != nil {
			return exp.Time
		}
	}
	logger.Warnw("upstream token has no readable exp claim, assuming validity window",
		"window", assumedTokenValidity)
	return c.now().Add(assumedTokenValidity)
}

// validToken returns the held token if it is more than the expiry margin
// away from expiring.
func (c *Client) validToken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken == "" {
		return "", false
	}
	if c.expiry.Sub(c.now()) > expiryMargin {
		return c.accessToken, true
	}
	return "", false
}

// invalidate drops the held session token so the next call logs in again.
func (c *Client) invalidate() {
	c.mu.Lock()
	c.accessToken = ""
	c.expiry = time.Time{}
	c.mu.Unlock()
}

// send performs one HTTP exchange. Network-level failures (including
// timeouts) get exactly one extra attempt; HTTP statuses are returned to the
// caller untouched.
func (c *Client) send(ctx context.Context, method, url string, payload []byte, token, operation string) (int, []byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval

	type result struct {
		status int
		body   []byte
	}

	res, err := backoff.Retry(ctx, func() (result, error) {
		status, body, err := c.attempt(ctx, method, url, payload, token)
		if err != nil {
			return result{}, err
		}
		return result{status: status, body: body}, nil
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(2),
		backoff.WithNotify(func(err error, delay time.Duration) {
			c.metrics.IncUpstreamRetry(operation)
			logger.Warnw("retrying upstream call", "operation", operation, "delay", delay, "error", err)
		}),
	)
	if err != nil {
		return 0, nil, err
	}
	return res.status, res.body, nil
}

func (c *Client) attempt(ctx context.Context, method, url string, payload []byte, token string) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func preview(body []byte) string {
	const max = 200
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
