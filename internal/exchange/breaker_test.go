package exchange

import (
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbgo/internal/config"
)

type stubTransport struct {
	calls  atomic.Int32
	status atomic.Int32
}

func (s *stubTransport) RoundTrip(*http.Request) (*http.Response, error) {
	s.calls.Add(1)
	return &http.Response{
		StatusCode: int(s.status.Load()),
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func breakerConfig() config.BreakerConfig {
	return config.BreakerConfig{
		MinimumThroughput: 4,
		FailureRatio:      0.5,
		BreakDuration:     100 * time.Millisecond,
		SamplingInterval:  time.Minute,
	}
}

func mustRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "http://example.test/tickers", nil)
	require.NoError(t, err)
	return req
}

func TestBreakerDeliversFailureResponses(t *testing.T) {
	t.Parallel()

	inner := &stubTransport{}
	inner.status.Store(http.StatusInternalServerError)
	bt := NewBreakerTransport(inner, breakerConfig())

	// Below minimum throughput the breaker stays closed and the caller still
	// sees the 500s.
	for range 3 {
		resp, err := bt.RoundTrip(mustRequest(t))
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	}
	assert.Equal(t, gobreaker.StateClosed, bt.State())
}

func TestBreakerOpensAndFailsFast(t *testing.T) {
	t.Parallel()

	inner := &stubTransport{}
	inner.status.Store(http.StatusInternalServerError)
	bt := NewBreakerTransport(inner, breakerConfig())

	for range 8 {
		bt.RoundTrip(mustRequest(t))
	}
	require.Equal(t, gobreaker.StateOpen, bt.State())
	seen := inner.calls.Load()

	// While open, calls short-circuit before the transport.
	_, err := bt.RoundTrip(mustRequest(t))
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, seen, inner.calls.Load())
}

func TestBreakerHalfOpenProbeCloses(t *testing.T) {
	t.Parallel()

	inner := &stubTransport{}
	inner.status.Store(http.StatusInternalServerError)
	cfg := breakerConfig()
	bt := NewBreakerTransport(inner, cfg)

	for range 8 {
		bt.RoundTrip(mustRequest(t))
	}
	require.Equal(t, gobreaker.StateOpen, bt.State())

	// After the break duration a single successful probe closes the breaker.
	time.Sleep(cfg.BreakDuration + 20*time.Millisecond)
	inner.status.Store(http.StatusOK)

	resp, err := bt.RoundTrip(mustRequest(t))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, bt.State())
}

func TestBreakerHalfOpenProbeReopens(t *testing.T) {
	t.Parallel()

	inner := &stubTransport{}
	inner.status.Store(http.StatusInternalServerError)
	cfg := breakerConfig()
	bt := NewBreakerTransport(inner, cfg)

	for range 8 {
		bt.RoundTrip(mustRequest(t))
	}
	require.Equal(t, gobreaker.StateOpen, bt.State())

	time.Sleep(cfg.BreakDuration + 20*time.Millisecond)

	// The probe still fails, so the breaker opens again immediately.
	resp, err := bt.RoundTrip(mustRequest(t))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, gobreaker.StateOpen, bt.State())
}

func TestIsFailureStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{408, 429, 500, 502, 503, 504, 599} {
		assert.True(t, isFailureStatus(status), status)
	}
	for _, status := range []int{200, 201, 204, 301, 400, 401, 404, 422} {
		assert.False(t, isFailureStatus(status), status)
	}
}
