package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbgo/internal/config"
	"mbgo/pkg/types"
)

type fakeFetcher struct {
	mu      sync.Mutex
	orders  map[string]*types.Order
	errs    map[string]error
	fetches int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{orders: make(map[string]*types.Order), errs: make(map[string]error)}
}

func (f *fakeFetcher) set(o *types.Order) {
	f.mu.Lock()
	f.orders[o.ID] = o
	f.mu.Unlock()
}

func (f *fakeFetcher) GetOrder(_ context.Context, _, _, orderID string) (*types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if err := f.errs[orderID]; err != nil {
		return nil, err
	}
	o, ok := f.orders[orderID]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *o
	return &cp, nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func testConfig() config.TrackerConfig {
	return config.TrackerConfig{
		PollInterval:       time.Second,
		MinPollInterval:    time.Second,
		MaxPollInterval:    30 * time.Second,
		TrackingTimeout:    24 * time.Hour,
		CompletedRetention: 5 * time.Minute,
	}
}

func newTestTracker(t *testing.T, fetch Fetcher) (*Tracker, *time.Time) {
	t.Helper()
	tr := New(testConfig(), fetch, slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }
	return tr, &now
}

func drainEvents(tr *Tracker) []Event {
	var out []Event
	for {
		select {
		case e := <-tr.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestTrackerStatusProgression(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.set(&types.Order{ID: "1", Status: "working"})
	tr, now := newTestTracker(t, f)

	tr.Track("1", "BTC-BRL", "acct", types.StatusPending)
	tr.pollOnce(context.Background())

	got, ok := tr.Get("1")
	require.True(t, ok)
	assert.Equal(t, types.StatusOpen, got.Status)

	events := drainEvents(tr)
	require.Len(t, events, 1)
	assert.Equal(t, EventStatusChanged, events[0].Type)
	assert.Equal(t, types.StatusPending, events[0].From)
	assert.Equal(t, types.StatusOpen, events[0].To)

	// Partial fill.
	f.set(&types.Order{ID: "1", Status: "working", FilledQty: decimal.RequireFromString("0.5")})
	*now = now.Add(2 * time.Second)
	tr.pollOnce(context.Background())

	got, _ = tr.Get("1")
	assert.Equal(t, types.StatusPartiallyFilled, got.Status)
	assert.True(t, got.FilledQty.Equal(decimal.RequireFromString("0.5")))

	// Full fill emits both StatusChanged and Filled.
	f.set(&types.Order{
		ID: "1", Status: "filled",
		FilledQty: decimal.RequireFromString("1"),
		AvgPrice:  decimal.RequireFromString("350000"),
	})
	*now = now.Add(2 * time.Second)
	drainEvents(tr)
	tr.pollOnce(context.Background())

	got, _ = tr.Get("1")
	assert.Equal(t, types.StatusFilled, got.Status)
	assert.Len(t, got.History, 3)

	events = drainEvents(tr)
	require.Len(t, events, 2)
	assert.Equal(t, EventStatusChanged, events[0].Type)
	assert.Equal(t, EventFilled, events[1].Type)
	assert.True(t, events[1].FilledPrice.Equal(decimal.RequireFromString("350000")))
}

func TestTrackerDiscardsRegression(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.set(&types.Order{ID: "1", Status: "filled", FilledQty: decimal.RequireFromString("1")})
	tr, now := newTestTracker(t, f)

	tr.Track("1", "BTC-BRL", "acct", types.StatusOpen)
	tr.pollOnce(context.Background())

	got, _ := tr.Get("1")
	require.Equal(t, types.StatusFilled, got.Status)

	// A stale read claiming the order is back to working must be ignored.
	f.set(&types.Order{ID: "1", Status: "working"})
	*now = now.Add(2 * time.Second)
	drainEvents(tr)
	tr.pollOnce(context.Background())

	got, _ = tr.Get("1")
	assert.Equal(t, types.StatusFilled, got.Status)
	assert.Empty(t, drainEvents(tr))
}

func TestTrackerTerminalStopsPolling(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.set(&types.Order{ID: "1", Status: "cancelled"})
	tr, now := newTestTracker(t, f)

	tr.Track("1", "BTC-BRL", "acct", types.StatusOpen)
	tr.pollOnce(context.Background())
	require.Equal(t, 1, f.count())

	events := drainEvents(tr)
	require.Len(t, events, 2)
	assert.Equal(t, EventCancelled, events[1].Type)

	// Terminal orders are never fetched again.
	*now = now.Add(10 * time.Second)
	tr.pollOnce(context.Background())
	*now = now.Add(10 * time.Second)
	tr.pollOnce(context.Background())
	assert.Equal(t, 1, f.count())

	assert.Empty(t, tr.Active())
}

func TestTrackerCompletedRetention(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.set(&types.Order{ID: "1", Status: "filled", FilledQty: decimal.RequireFromString("1")})
	tr, now := newTestTracker(t, f)

	tr.Track("1", "BTC-BRL", "acct", types.StatusOpen)
	tr.pollOnce(context.Background())

	_, ok := tr.Get("1")
	require.True(t, ok)

	// Still resolvable within the retention window.
	*now = now.Add(time.Minute)
	tr.pollOnce(context.Background())
	_, ok = tr.Get("1")
	assert.True(t, ok)

	// Purged afterwards.
	*now = now.Add(10 * time.Minute)
	tr.pollOnce(context.Background())
	_, ok = tr.Get("1")
	assert.False(t, ok)
}

func TestTrackerTrackingTimeout(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.set(&types.Order{ID: "1", Status: "working"})
	tr, now := newTestTracker(t, f)

	tr.Track("1", "BTC-BRL", "acct", types.StatusOpen)
	*now = now.Add(25 * time.Hour)
	tr.pollOnce(context.Background())

	got, _ := tr.Get("1")
	assert.Equal(t, types.StatusExpired, got.Status)
	assert.Equal(t, 0, f.count())
}

func TestTrackerAdaptiveBackoff(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTracker(t, newFakeFetcher())

	assert.Equal(t, time.Second, tr.backoff(1))
	assert.Equal(t, 2*time.Second, tr.backoff(2))
	assert.Equal(t, 4*time.Second, tr.backoff(3))
	assert.Equal(t, 16*time.Second, tr.backoff(5))
	assert.Equal(t, 30*time.Second, tr.backoff(6)) // capped
	assert.Equal(t, 30*time.Second, tr.backoff(20))
}

func TestTrackerUnchangedOrderBacksOff(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.set(&types.Order{ID: "1", Status: "working"})
	tr, now := newTestTracker(t, f)

	tr.Track("1", "BTC-BRL", "acct", types.StatusOpen)
	tr.pollOnce(context.Background())
	require.Equal(t, 1, f.count())

	// One second later the order is in its first backoff window (1s), so the
	// next scan fetches it again; after that the window doubles.
	*now = now.Add(time.Second)
	tr.pollOnce(context.Background())
	require.Equal(t, 2, f.count())

	*now = now.Add(time.Second)
	tr.pollOnce(context.Background())
	assert.Equal(t, 2, f.count(), "inside 2s backoff window, no fetch")

	*now = now.Add(time.Second)
	tr.pollOnce(context.Background())
	assert.Equal(t, 3, f.count())
}

func TestTrackerFetchError(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.errs["1"] = errors.New("boom")
	tr, _ := newTestTracker(t, f)

	tr.Track("1", "BTC-BRL", "acct", types.StatusOpen)
	tr.pollOnce(context.Background())

	events := drainEvents(tr)
	require.Len(t, events, 1)
	assert.Equal(t, EventTrackingError, events[0].Type)
	require.Error(t, events[0].Err)

	// The order stays tracked with its prior status.
	got, ok := tr.Get("1")
	require.True(t, ok)
	assert.Equal(t, types.StatusOpen, got.Status)
}

func TestTrackerRetrackIsNoop(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTracker(t, newFakeFetcher())
	tr.Track("1", "BTC-BRL", "acct", types.StatusOpen)
	tr.Track("1", "BTC-BRL", "acct", types.StatusPending)

	got, ok := tr.Get("1")
	require.True(t, ok)
	assert.Equal(t, types.StatusOpen, got.Status)
}
