// Package tracker polls active orders until they reach a terminal status and
// emits lifecycle events.
//
// A single poll loop scans registered orders once per PollInterval and
// refreshes those that are due. An order whose status has not changed backs
// off adaptively (minPoll·2^(n−1), capped at maxPoll); any observed change
// resets the backoff. Observed transitions are monotonic: a poll returning
// an earlier lifecycle stage than the last observation is stale and
// discarded. Terminal orders stop polling and are retained for a grace
// period so late Get calls still resolve.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"mbgo/internal/config"
	"mbgo/pkg/types"
)

// Fetcher retrieves the current state of one order. Implemented by the REST
// client.
type Fetcher interface {
	GetOrder(ctx context.Context, accountID, symbol, orderID string) (*types.Order, error)
}

// EventType tags tracker events.
type EventType string

const (
	EventStatusChanged EventType = "status_changed"
	EventFilled        EventType = "filled"
	EventCancelled     EventType = "cancelled"
	EventTrackingError EventType = "tracking_error"
)

// Event is one lifecycle notification.
type Event struct {
	Type        EventType
	OrderID     string
	Symbol      string
	From        types.OrderStatus
	To          types.OrderStatus
	FilledQty   decimal.Decimal
	FilledPrice decimal.Decimal
	Reason      string // cancel reason, when the wire provides one
	Err         error  // set for EventTrackingError
	At          time.Time
}

// Transition is one recorded status change.
type Transition struct {
	From types.OrderStatus
	To   types.OrderStatus
	At   time.Time
}

// Tracked is the tracker's view of one order.
type Tracked struct {
	OrderID    string
	ExternalID string
	Symbol     string
	AccountID  string
	Side       types.Side
	Type       types.OrderType
	PlacedAt   time.Time
	Status     types.OrderStatus
	FilledQty  decimal.Decimal
	AvgPrice   decimal.Decimal
	History    []Transition

	lastChecked time.Time
	misses      int // consecutive unchanged polls, drives backoff
	nextPoll    time.Time
	completedAt time.Time
}

// Tracker owns the poll loop and the registry of tracked orders.
type Tracker struct {
	cfg    config.TrackerConfig
	fetch  Fetcher
	logger *slog.Logger

	mu     sync.Mutex
	orders map[string]*Tracked

	events chan Event
	now    func() time.Time // injectable for tests
}

// New creates a tracker. Run must be called to start polling.
func New(cfg config.TrackerConfig, fetch Fetcher, logger *slog.Logger) *Tracker {
	return &Tracker{
		cfg:    cfg,
		fetch:  fetch,
		logger: logger.With("component", "tracker"),
		orders: make(map[string]*Tracked),
		events: make(chan Event, 128),
		now:    time.Now,
	}
}

// Events returns the lifecycle event stream. Slow consumers lose the oldest
// events.
func (t *Tracker) Events() <-chan Event { return t.events }

// Track registers an order for polling. Re-tracking an id is a no-op.
func (t *Tracker) Track(orderID, symbol, accountID string, initial types.OrderStatus) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.orders[orderID]; exists {
		return
	}
	t.orders[orderID] = &Tracked{
		OrderID:   orderID,
		Symbol:    symbol,
		AccountID: accountID,
		PlacedAt:  now,
		Status:    initial,
		nextPoll:  now, // due immediately
	}
}

// Get returns a copy of the tracked order.
func (t *Tracker) Get(orderID string) (Tracked, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.orders[orderID]
	if !ok {
		return Tracked{}, false
	}
	return snapshotOrder(o), true
}

// Active returns copies of every non-terminal tracked order.
func (t *Tracker) Active() []Tracked {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Tracked, 0, len(t.orders))
	for _, o := range t.orders {
		if !o.Status.Terminal() {
			out = append(out, snapshotOrder(o))
		}
	}
	return out
}

// Run starts the poll loop. Blocks until ctx is cancelled; the event stream
// closes on return.
func (t *Tracker) Run(ctx context.Context) {
	defer close(t.events)
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.pollOnce(ctx)
		}
	}
}

// pollOnce refreshes every due order and sweeps expired/retained ones.
func (t *Tracker) pollOnce(ctx context.Context) {
	now := t.now()

	t.mu.Lock()
	var due []*Tracked
	for id, o := range t.orders {
		switch {
		case o.Status.Terminal():
			if t.cfg.CompletedRetention > 0 && now.Sub(o.completedAt) > t.cfg.CompletedRetention {
				delete(t.orders, id)
			}
		case t.cfg.TrackingTimeout > 0 && now.Sub(o.PlacedAt) > t.cfg.TrackingTimeout:
			t.transitionLocked(o, types.StatusExpired, o.FilledQty, o.AvgPrice, "tracking timeout")
		case !now.Before(o.nextPoll):
			due = append(due, o)
		}
	}
	t.mu.Unlock()

	for _, o := range due {
		if ctx.Err() != nil {
			return
		}
		t.refresh(ctx, o)
	}
}

// refresh fetches one order and applies the observed state.
func (t *Tracker) refresh(ctx context.Context, o *Tracked) {
	order, err := t.fetch.GetOrder(ctx, o.AccountID, o.Symbol, o.OrderID)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	o.lastChecked = now

	if err != nil {
		o.misses++
		o.nextPoll = now.Add(t.backoff(o.misses))
		t.emit(Event{Type: EventTrackingError, OrderID: o.OrderID, Symbol: o.Symbol, Err: err, At: now})
		return
	}

	status := types.StatusFromWire(order.Status)
	if status == types.StatusOpen && order.FilledQty.IsPositive() {
		status = types.StatusPartiallyFilled
	}

	// Monotonicity: discard stale observations.
	if !status.AtLeast(o.Status) {
		t.logger.Debug("discarding stale status",
			"order", o.OrderID, "observed", status, "current", o.Status)
		o.misses++
		o.nextPoll = now.Add(t.backoff(o.misses))
		return
	}

	if o.ExternalID == "" {
		o.ExternalID = order.ExternalID
	}
	o.Side, o.Type = order.Side, order.Type

	if status == o.Status && order.FilledQty.Equal(o.FilledQty) {
		o.misses++
		o.nextPoll = now.Add(t.backoff(o.misses))
		return
	}

	t.transitionLocked(o, status, order.FilledQty, order.AvgPrice, "")
	if !status.Terminal() {
		o.misses = 0
		o.nextPoll = now.Add(t.cfg.MinPollInterval)
	}
}

// transitionLocked applies a status change, appends history, and emits
// events. Caller holds t.mu.
func (t *Tracker) transitionLocked(o *Tracked, status types.OrderStatus, filledQty, avgPrice decimal.Decimal, reason string) {
	now := t.now()
	prev := o.Status
	o.FilledQty, o.AvgPrice = filledQty, avgPrice

	if status != prev {
		o.History = append(o.History, Transition{From: prev, To: status, At: now})
		o.Status = status
		t.emit(Event{
			Type: EventStatusChanged, OrderID: o.OrderID, Symbol: o.Symbol,
			From: prev, To: status, FilledQty: filledQty, At: now,
		})
		switch status {
		case types.StatusFilled:
			t.emit(Event{
				Type: EventFilled, OrderID: o.OrderID, Symbol: o.Symbol,
				FilledQty: filledQty, FilledPrice: avgPrice, At: now,
			})
		case types.StatusCancelled:
			t.emit(Event{
				Type: EventCancelled, OrderID: o.OrderID, Symbol: o.Symbol,
				Reason: reason, At: now,
			})
		}
	}

	if status.Terminal() {
		o.completedAt = now
	}
}

// backoff returns min(maxPoll, minPoll·2^(n−1)) for the nth unchanged poll.
func (t *Tracker) backoff(misses int) time.Duration {
	d := t.cfg.MinPollInterval
	for i := 1; i < misses; i++ {
		d *= 2
		if d >= t.cfg.MaxPollInterval {
			return t.cfg.MaxPollInterval
		}
	}
	if d > t.cfg.MaxPollInterval {
		return t.cfg.MaxPollInterval
	}
	return d
}

// emit delivers an event, evicting the oldest when the buffer is full.
func (t *Tracker) emit(e Event) {
	select {
	case t.events <- e:
	default:
		select {
		case <-t.events:
		default:
		}
		select {
		case t.events <- e:
		default:
		}
	}
}

func snapshotOrder(o *Tracked) Tracked {
	cp := *o
	cp.History = append([]Transition(nil), o.History...)
	return cp
}
