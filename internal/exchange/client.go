// Package exchange implements the REST and WebSocket clients for the
// exchange's v4 API.
//
// The REST client (Client) routes every call through a layered pipeline,
// composed bottom-up as: transport → circuit breaker → retry → authentication.
//
//   - The circuit breaker (breaker.go) sits directly above the transport, so
//     each retry attempt is individually subject to it.
//   - Retries are resty's machinery with the delay schedule in retryDelay:
//     exponential backoff with jitter, Retry-After aware.
//   - Authentication obtains a bearer token from POST /authorize on demand,
//     attaches it to non-public requests, and on a 401 refreshes the token
//     and replays the original request exactly once.
//
// Every request also acquires the hierarchical rate limiter (ratelimit.go)
// and resolves to exactly one Outcome (outcome.go) for metrics.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"mbgo/internal/config"
	"mbgo/pkg/types"
)

// Client is the typed REST API client.
type Client struct {
	http    *resty.Client
	breaker *BreakerTransport
	tokens  *TokenStore
	creds   CredentialProvider // nil = unauthenticated usage only
	clock   *Clock
	rl      *Limiter
	cfg     config.Config
	metrics Metrics
	logger  *slog.Logger

	authMu       sync.Mutex // serializes token refresh
	blockOnLimit bool
}

// Option customizes a Client.
type Option func(*Client)

// WithBlockingRateLimit makes rate-limit acquisition wait (bounded by the
// request context) instead of failing fast.
func WithBlockingRateLimit() Option {
	return func(c *Client) { c.blockOnLimit = true }
}

// WithMetrics installs a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTransport replaces the base transport under the circuit breaker.
// Used by tests; production keeps http.DefaultTransport (HTTP/2 via ALPN).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.breaker = NewBreakerTransport(rt, c.cfg.Breaker) }
}

// NewClient creates a REST client. creds may be nil for public-only usage.
func NewClient(cfg config.Config, creds CredentialProvider, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		tokens:  NewTokenStore(),
		creds:   creds,
		clock:   NewClock(),
		cfg:     cfg,
		metrics: NopMetrics{},
		logger:  logger.With("component", "rest"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = NewBreakerTransport(http.DefaultTransport, cfg.Breaker)
	}
	c.rl = NewLimiter(cfg.Rate, c.metrics, func(u float64) {
		c.logger.Warn("rate limit utilization high", "utilization", u)
	})

	c.http = resty.NewWithClient(&http.Client{
		Transport: c.breaker,
		Timeout:   cfg.HTTP.Timeout,
	}).
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(cfg.HTTP.RetryCount).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return retryable(r, err)
		}).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			return c.retryDelay(resp.Request.Attempt, retryAfterHeader(resp)), nil
		}).
		OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
			c.clock.UpdateFromHeader(resp.Header().Get("Date"))
			return nil
		})

	return c
}

// Clock returns the server-time estimator fed by response Date headers.
func (c *Client) Clock() *Clock { return c.clock }

// Limiter returns the client's rate limiter, shared with the facade.
func (c *Client) Limiter() *Limiter { return c.rl }

// TokenStore returns the shared token store.
func (c *Client) TokenStore() *TokenStore { return c.tokens }

// BreakerState reports the circuit breaker state, for observability.
func (c *Client) BreakerState() string { return c.breaker.State().String() }

// retryable decides whether an attempt may be retried. Caller cancellation
// is never retried; per-attempt timeouts and network errors are; responses
// retry on the transient status set.
func retryable(r *resty.Response, err error) bool {
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
			return false
		}
		if r != nil && r.Request != nil && r.Request.Context().Err() != nil {
			return false
		}
		return true // network error or per-attempt timeout
	}
	switch r.StatusCode() {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryDelay computes the sleep before the next attempt: after attempt n the
// wait is min(maxDelay, baseDelay·multiplier^(n−1)) plus uniform jitter. A
// Retry-After hint overrides the computed delay when larger.
func (c *Client) retryDelay(attempt int, retryAfter time.Duration) time.Duration {
	h := c.cfg.HTTP
	backoff := float64(h.RetryBaseDelay) * math.Pow(h.RetryMultiplier, float64(attempt-1))
	delay := time.Duration(backoff)
	if delay > h.RetryMaxDelay {
		delay = h.RetryMaxDelay
	}
	if h.RespectRetryAfter && retryAfter > delay {
		delay = retryAfter
	}
	if h.RetryJitterMax > 0 {
		delay += time.Duration(rand.Int63n(int64(h.RetryJitterMax)))
	}
	return delay
}

// retryAfterHeader parses Retry-After seconds from a 429/503 response.
func retryAfterHeader(resp *resty.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := resp.Header().Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// call describes one REST operation for the pipeline.
type call struct {
	method string
	path   string
	scope  Scope             // category scope; Global is always acquired too
	key    string            // public-data bucket key, defaults to path
	public bool              // bypass authentication
	query  map[string]string
	body   any
	out    any
}

// do runs one call through rate limiting, the middleware stack, 401 refresh,
// and outcome classification. Errors surface as *Error only.
func (c *Client) do(ctx context.Context, cl call) error {
	start := time.Now()
	key := cl.key
	if key == "" {
		key = cl.path
	}

	res, err := c.acquire(ctx, cl.scope, key)
	if err != nil {
		return err
	}

	resp, sent, err := c.send(ctx, cl)

	// Authentication layer: one refresh-and-replay on 401.
	if err == nil && resp.StatusCode() == http.StatusUnauthorized && !cl.public && c.creds != nil {
		c.tokens.Invalidate()
		if _, aerr := c.authenticate(ctx); aerr == nil {
			resp, _, err = c.send(ctx, cl)
		}
	}

	c.metrics.ObserveRequest(classifyResty(resp, err), time.Since(start))

	if err != nil {
		if !sent || errors.Is(err, ErrCircuitOpen) {
			res.Release() // the request never reached the wire; give the slot back
		}
		var e *Error
		if errors.As(err, &e) {
			return e
		}
		return errorFromTransport(ctx, err)
	}
	if !resp.IsSuccess() {
		return errorFromResponse(resp.StatusCode(), resp.Body(), retryAfterHeader(resp))
	}
	return nil
}

// acquire takes the rate-limit slots for one call. Non-blocking by default:
// a rejected scope fails fast with a KindRateLimit error.
func (c *Client) acquire(ctx context.Context, scope Scope, key string) (*Reservation, error) {
	if c.blockOnLimit {
		res, err := c.rl.Wait(ctx, scope, key)
		if err != nil {
			werr := errorFromTransport(ctx, err)
			c.metrics.ObserveRequest(Classify(0, werr), 0)
			return nil, werr
		}
		return res, nil
	}
	res, hit, ok := c.rl.Allow(scope, key)
	if !ok {
		c.metrics.ObserveRequest(OutcomeRateLimited, 0)
		return nil, &Error{
			Kind:    KindRateLimit,
			Message: fmt.Sprintf("client rate limit: %s scope exhausted", hit),
		}
	}
	return res, nil
}

// send executes one request (resty retries inside). sent reports whether the
// request was handed to the transport; a false return means the call died
// before the wire (e.g. credential resolution) and its rate-limit slot is
// still refundable.
func (c *Client) send(ctx context.Context, cl call) (resp *resty.Response, sent bool, err error) {
	req := c.http.R().SetContext(ctx)
	if len(cl.query) > 0 {
		req.SetQueryParams(cl.query)
	}
	if cl.body != nil {
		req.SetBody(cl.body)
	}
	if cl.out != nil {
		req.SetResult(cl.out)
	}
	if !cl.public {
		token, err := c.ensureToken(ctx)
		if err != nil {
			return nil, false, err
		}
		req.SetHeader("Authorization", "Bearer "+token)
	}
	resp, err = req.Execute(cl.method, cl.path)
	return resp, true, err
}

// classifyResty adapts resty's response shape to the outcome classifier.
func classifyResty(resp *resty.Response, err error) Outcome {
	status := 0
	if err == nil && resp != nil {
		status = resp.StatusCode()
	}
	return Classify(status, err)
}

// ensureToken returns a fresh bearer token, authorizing if needed.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	if token, ok := c.tokens.Get(); ok {
		return token, nil
	}
	return c.authenticate(ctx)
}

// authenticate performs POST /authorize and stores the returned token.
// Serialized so concurrent expiries trigger a single authorization call.
func (c *Client) authenticate(ctx context.Context) (string, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if token, ok := c.tokens.Get(); ok {
		return token, nil
	}
	if c.creds == nil {
		return "", &Error{Kind: KindAuthentication, Message: "no credential provider configured"}
	}

	login, password, err := c.creds.Credentials(ctx)
	if err != nil {
		return "", &Error{Kind: KindAuthentication, Message: "resolve credentials", cause: err}
	}

	var out types.AuthResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(types.AuthRequest{Login: login, Password: password}).
		SetResult(&out).
		Post("/authorize")
	if err != nil {
		return "", errorFromTransport(ctx, err)
	}
	if !resp.IsSuccess() {
		e := errorFromResponse(resp.StatusCode(), resp.Body(), 0)
		e.Kind = KindAuthentication
		return "", e
	}

	c.tokens.Set(out.AccessToken, time.Unix(out.Expiration, 0))
	c.logger.Debug("authorized", "expires", out.Expiration)
	return out.AccessToken, nil
}

var symbolRe = regexp.MustCompile(`^[A-Z0-9]{2,10}-[A-Z0-9]{2,10}$`)

// validateSymbol enforces the BASE-QUOTE symbol format locally.
func validateSymbol(symbol string) error {
	if !symbolRe.MatchString(symbol) {
		return newValidation("invalid symbol %q, want BASE-QUOTE", symbol)
	}
	return nil
}

// validateAsset enforces the bare asset format (e.g. "BTC").
func validateAsset(asset string) error {
	if asset == "" || len(asset) > 10 {
		return newValidation("invalid asset %q", asset)
	}
	return nil
}
