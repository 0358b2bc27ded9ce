package exchange

import (
	"context"
	"errors"
	"time"
)

// Outcome tags the fate of one request through the whole pipeline. Exactly
// one outcome is recorded per request; it is the sole input to metrics.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeHTTPError    Outcome = "http_error"
	OutcomeRateLimited  Outcome = "rate_limit_exceeded"
	OutcomeAuthError    Outcome = "authentication_error"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeNetworkError Outcome = "network_error"
	OutcomeCircuitOpen  Outcome = "circuit_breaker_open"
	OutcomeUnknownError Outcome = "unknown_error"
)

// Classify maps the final (status, error) of a request to its outcome tag.
// A request that received a response is classified by status; one that did
// not is classified by its error. Typed pipeline errors carry their own
// classification in Kind.
func Classify(status int, err error) Outcome {
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			switch e.Kind {
			case KindAuthentication:
				return OutcomeAuthError
			case KindRateLimit:
				return OutcomeRateLimited
			case KindCircuitOpen:
				return OutcomeCircuitOpen
			case KindTimeout:
				return OutcomeTimeout
			case KindCancelled:
				return OutcomeUnknownError
			}
			if e.Status != 0 {
				return Classify(e.Status, nil)
			}
		}
		switch {
		case errors.Is(err, ErrCircuitOpen):
			return OutcomeCircuitOpen
		case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
			return OutcomeTimeout
		case errors.Is(err, context.Canceled):
			return OutcomeUnknownError
		default:
			return OutcomeNetworkError
		}
	}
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == 401 || status == 403:
		return OutcomeAuthError
	case status == 429:
		return OutcomeRateLimited
	case status >= 400:
		return OutcomeHTTPError
	default:
		return OutcomeUnknownError
	}
}

// Metrics receives pipeline observations. The zero implementation drops
// everything; internal/metrics provides the Prometheus-backed one.
type Metrics interface {
	ObserveRequest(outcome Outcome, elapsed time.Duration)
	RateLimitHit(scope Scope)
	GlobalUtilization(u float64)
	CacheResult(hit bool)
	WSReconnect()
	WSDropped(channel string)
}

// NopMetrics is the default Metrics sink.
type NopMetrics struct{}

func (NopMetrics) ObserveRequest(Outcome, time.Duration) {}
func (NopMetrics) RateLimitHit(Scope)                    {}
func (NopMetrics) GlobalUtilization(float64)             {}
func (NopMetrics) CacheResult(bool)                      {}
func (NopMetrics) WSReconnect()                          {}
func (NopMetrics) WSDropped(string)                      {}
