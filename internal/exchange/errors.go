// errors.go defines the error taxonomy every operation resolves to.
//
// The pipeline handles retries and token refresh internally; everything else
// surfaces as an *Error whose Kind tells the caller what happened and what to
// do about it. Transport-level error types never escape this package.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// Kind classifies an error for the caller.
type Kind int

const (
	// KindValidation — input failed a local invariant; never sent.
	KindValidation Kind = iota
	// KindAuthentication — missing/invalid/expired token or failed authorization.
	KindAuthentication
	// KindRateLimit — server 429 or client-side limiter rejection.
	KindRateLimit
	// KindTransient — network error or retryable status that outlived the retry budget.
	KindTransient
	// KindCircuitOpen — fast-fail while the breaker is open.
	KindCircuitOpen
	// KindTimeout — per-request deadline exceeded.
	KindTimeout
	// KindCancelled — caller context cancelled.
	KindCancelled
	// KindDomain — the exchange returned a typed business error.
	KindDomain
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindRateLimit:
		return "rate_limit"
	case KindTransient:
		return "transient"
	case KindCircuitOpen:
		return "circuit_open"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindDomain:
		return "domain"
	}
	return "unknown"
}

// Error is the single error type surfaced by the client.
type Error struct {
	Kind       Kind
	Code       string        // exchange error code, e.g. "INSUFFICIENT_BALANCE"
	Status     int           // HTTP status, when a response was received
	Message    string
	RetryAfter time.Duration // populated from Retry-After on 429, when known
	cause      error
}

func (e *Error) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("%s: %s (%s, status %d)", e.Kind, e.Message, e.Code, e.Status)
	case e.Status != 0:
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.Status)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.cause }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func newValidation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// wireError is the JSON error body the exchange returns on 4xx/5xx.
type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorFromResponse maps a non-2xx response to the taxonomy. The body is the
// raw payload, which may or may not be the typed {code, message} envelope.
func errorFromResponse(status int, body []byte, retryAfter time.Duration) *Error {
	var w wireError
	_ = json.Unmarshal(body, &w)
	msg := w.Message
	if msg == "" {
		msg = string(body)
	}
	if msg == "" {
		msg = "request failed"
	}

	e := &Error{Code: w.Code, Status: status, Message: msg}
	switch {
	case status == 401 || status == 403:
		e.Kind = KindAuthentication
	case status == 429:
		e.Kind = KindRateLimit
		e.RetryAfter = retryAfter
	case status >= 500 || status == 408:
		e.Kind = KindTransient
	default:
		e.Kind = KindDomain
	}
	return e
}

// errorFromTransport maps a failed round trip (no response) to the taxonomy.
func errorFromTransport(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return &Error{Kind: KindCircuitOpen, Message: "circuit breaker open", cause: err}
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		return &Error{Kind: KindCancelled, Message: "cancelled by caller", cause: err}
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return &Error{Kind: KindTimeout, Message: "request deadline exceeded", cause: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCancelled, Message: "cancelled by caller", cause: err}
	default:
		return &Error{Kind: KindTransient, Message: err.Error(), cause: err}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
