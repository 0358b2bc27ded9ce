// breaker.go places a circuit breaker at the bottom of the middleware stack,
// directly above the transport, so every retry attempt is individually
// subject to it. While the breaker is open, calls fail with ErrCircuitOpen
// before any bytes hit the wire; after the break duration a single half-open
// probe decides whether to close again.
package exchange

import (
	"errors"
	"net/http"

	"github.com/sony/gobreaker"

	"mbgo/internal/config"
)

// ErrCircuitOpen is returned (wrapped) while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// errFailureStatus marks a delivered response that must count as a breaker
// failure. It never escapes RoundTrip.
var errFailureStatus = errors.New("failure-class status")

// BreakerTransport wraps an http.RoundTripper with a gobreaker.CircuitBreaker.
type BreakerTransport struct {
	inner http.RoundTripper
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerTransport wraps inner with a breaker tuned from cfg. The breaker
// trips when the sampling window saw at least cfg.MinimumThroughput requests
// and at least cfg.FailureRatio of them failed. Transport errors and
// 5xx/408/429 responses count as failures.
func NewBreakerTransport(inner http.RoundTripper, cfg config.BreakerConfig) *BreakerTransport {
	if inner == nil {
		inner = http.DefaultTransport
	}
	settings := gobreaker.Settings{
		Name:        "exchange-http",
		MaxRequests: 1, // exactly one half-open probe
		Interval:    cfg.SamplingInterval,
		Timeout:     cfg.BreakDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinimumThroughput {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
	}
	return &BreakerTransport{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

// State returns the breaker's current state, for observability.
func (t *BreakerTransport) State() gobreaker.State { return t.cb.State() }

// RoundTrip implements http.RoundTripper.
func (t *BreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	result, err := t.cb.Execute(func() (any, error) {
		resp, err := t.inner.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if isFailureStatus(resp.StatusCode) {
			return resp, errFailureStatus
		}
		return resp, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		// Fast-fail: the request never reached the transport. Drain nothing.
		return nil, ErrCircuitOpen
	case errors.Is(err, errFailureStatus):
		// The breaker counted the failure; the caller still gets the response.
		return result.(*http.Response), nil
	case err != nil:
		return nil, err
	}
	return result.(*http.Response), nil
}

// isFailureStatus reports whether a status counts against the breaker.
func isFailureStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}
