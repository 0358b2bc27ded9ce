package exchange

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyByStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   Outcome
	}{
		{200, OutcomeSuccess},
		{201, OutcomeSuccess},
		{204, OutcomeSuccess},
		{400, OutcomeHTTPError},
		{401, OutcomeAuthError},
		{403, OutcomeAuthError},
		{404, OutcomeHTTPError},
		{429, OutcomeRateLimited},
		{500, OutcomeHTTPError},
		{503, OutcomeHTTPError},
		{0, OutcomeUnknownError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.status, nil), "status %d", tc.status)
	}
}

func TestClassifyByError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, OutcomeCircuitOpen, Classify(0, ErrCircuitOpen))
	assert.Equal(t, OutcomeCircuitOpen, Classify(0, fmt.Errorf("send: %w", ErrCircuitOpen)))
	assert.Equal(t, OutcomeTimeout, Classify(0, context.DeadlineExceeded))
	assert.Equal(t, OutcomeUnknownError, Classify(0, context.Canceled))
	assert.Equal(t, OutcomeNetworkError, Classify(0, errors.New("connection refused")))
}

func TestClassifyTypedErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want Outcome
	}{
		{"authentication", &Error{Kind: KindAuthentication, Message: "resolve credentials"}, OutcomeAuthError},
		{"rate limit", &Error{Kind: KindRateLimit, Message: "global scope exhausted"}, OutcomeRateLimited},
		{"circuit open", &Error{Kind: KindCircuitOpen}, OutcomeCircuitOpen},
		{"timeout", &Error{Kind: KindTimeout}, OutcomeTimeout},
		{"cancelled", &Error{Kind: KindCancelled}, OutcomeUnknownError},
		{"wrapped authentication", fmt.Errorf("do: %w", &Error{Kind: KindAuthentication}), OutcomeAuthError},
		{"domain with status", &Error{Kind: KindDomain, Status: 400}, OutcomeHTTPError},
		{"transient without status", &Error{Kind: KindTransient}, OutcomeNetworkError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(0, tc.err), tc.name)
	}
}

func TestErrorTaxonomyFromResponse(t *testing.T) {
	t.Parallel()

	e := errorFromResponse(400, []byte(`{"code":"API|2","message":"invalid qty"}`), 0)
	assert.Equal(t, KindDomain, e.Kind)
	assert.Equal(t, "API|2", e.Code)
	assert.Equal(t, "invalid qty", e.Message)

	e = errorFromResponse(401, nil, 0)
	assert.Equal(t, KindAuthentication, e.Kind)

	e = errorFromResponse(429, nil, 3000000000)
	assert.Equal(t, KindRateLimit, e.Kind)
	assert.Equal(t, "3s", e.RetryAfter.String())

	e = errorFromResponse(502, []byte("bad gateway"), 0)
	assert.Equal(t, KindTransient, e.Kind)
	assert.Equal(t, "bad gateway", e.Message)

	e = errorFromResponse(408, nil, 0)
	assert.Equal(t, KindTransient, e.Kind)
}

func TestErrorTaxonomyFromTransport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	e := errorFromTransport(ctx, fmt.Errorf("round trip: %w", ErrCircuitOpen))
	assert.Equal(t, KindCircuitOpen, e.Kind)
	assert.ErrorIs(t, e, ErrCircuitOpen)

	e = errorFromTransport(ctx, context.DeadlineExceeded)
	assert.Equal(t, KindTimeout, e.Kind)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	e = errorFromTransport(cancelled, context.Canceled)
	assert.Equal(t, KindCancelled, e.Kind)

	e = errorFromTransport(ctx, errors.New("connection reset"))
	assert.Equal(t, KindTransient, e.Kind)
}

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	e := &Error{Kind: KindDomain, Code: "INSUFFICIENT_BALANCE", Status: 400, Message: "not enough funds"}
	assert.Contains(t, e.Error(), "INSUFFICIENT_BALANCE")
	assert.Contains(t, e.Error(), "domain")

	e = &Error{Kind: KindValidation, Message: "bad symbol"}
	assert.Equal(t, "validation: bad symbol", e.Error())
}
