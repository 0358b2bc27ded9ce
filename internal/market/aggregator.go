// aggregator.go maintains the latest per-symbol market data snapshots and
// fans updates out to bounded subscriber streams.
//
// Snapshots are immutable values stored behind sync.Map, so reads are O(1)
// and never take a lock. On every message the aggregator stamps a receive
// time, publishes to the subscriber streams (drop-oldest on overflow), and
// replaces the stored snapshot.
package market

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"mbgo/pkg/types"
)

// TickerSnapshot is an immutable ticker observation.
type TickerSnapshot struct {
	Ticker     types.Ticker
	ReceivedAt time.Time
}

// TradeSnapshot is an immutable trade observation.
type TradeSnapshot struct {
	Symbol     string
	Trade      types.Trade
	ReceivedAt time.Time
}

// BookSnapshot is an immutable top-of-book observation.
type BookSnapshot struct {
	Symbol     string
	Bids       []types.PriceLevel
	Asks       []types.PriceLevel
	Timestamp  int64
	ReceivedAt time.Time
}

// Aggregator holds the latest snapshot per symbol and publishes updates.
type Aggregator struct {
	tickers sync.Map // symbol → *TickerSnapshot
	books   sync.Map // symbol → *BookSnapshot
	trades  sync.Map // symbol → *TradeSnapshot

	mu         sync.RWMutex
	tickerSubs []chan *TickerSnapshot
	bookSubs   []chan *BookSnapshot
	tradeSubs  []chan *TradeSnapshot
	closed     bool

	buffer int
	now    func() time.Time // injectable for tests
}

// NewAggregator creates an aggregator whose subscriber streams buffer up to
// buffer items.
func NewAggregator(buffer int) *Aggregator {
	if buffer <= 0 {
		buffer = 64
	}
	return &Aggregator{buffer: buffer, now: time.Now}
}

// OnTicker ingests a ticker message.
func (a *Aggregator) OnTicker(t types.Ticker) {
	snap := &TickerSnapshot{Ticker: t, ReceivedAt: a.now()}
	a.publishTicker(snap)
	a.tickers.Store(t.Pair, snap)
}

// OnTrade ingests a trade message.
func (a *Aggregator) OnTrade(symbol string, t types.Trade) {
	snap := &TradeSnapshot{Symbol: symbol, Trade: t, ReceivedAt: a.now()}
	a.publishTrade(snap)
	a.trades.Store(symbol, snap)
}

// OnBook ingests an order book frame.
func (a *Aggregator) OnBook(symbol string, p types.OrderBookPayload) {
	snap := &BookSnapshot{
		Symbol:     symbol,
		Bids:       p.Bids,
		Asks:       p.Asks,
		Timestamp:  p.Timestamp,
		ReceivedAt: a.now(),
	}
	a.publishBook(snap)
	a.books.Store(symbol, snap)
}

// Ticker returns the latest ticker snapshot for a symbol.
func (a *Aggregator) Ticker(symbol string) (*TickerSnapshot, bool) {
	v, ok := a.tickers.Load(symbol)
	if !ok {
		return nil, false
	}
	return v.(*TickerSnapshot), true
}

// Book returns the latest order book snapshot for a symbol.
func (a *Aggregator) Book(symbol string) (*BookSnapshot, bool) {
	v, ok := a.books.Load(symbol)
	if !ok {
		return nil, false
	}
	return v.(*BookSnapshot), true
}

// Trade returns the latest trade snapshot for a symbol.
func (a *Aggregator) Trade(symbol string) (*TradeSnapshot, bool) {
	v, ok := a.trades.Load(symbol)
	if !ok {
		return nil, false
	}
	return v.(*TradeSnapshot), true
}

// BestBid returns the latest best bid from the ticker snapshot.
func (a *Aggregator) BestBid(symbol string) (decimal.Decimal, bool) {
	snap, ok := a.Ticker(symbol)
	if !ok {
		return decimal.Decimal{}, false
	}
	return snap.Ticker.Buy, true
}

// BestAsk returns the latest best ask from the ticker snapshot.
func (a *Aggregator) BestAsk(symbol string) (decimal.Decimal, bool) {
	snap, ok := a.Ticker(symbol)
	if !ok {
		return decimal.Decimal{}, false
	}
	return snap.Ticker.Sell, true
}

// Spread returns bestAsk − bestBid from the latest ticker snapshot.
func (a *Aggregator) Spread(symbol string) (decimal.Decimal, bool) {
	snap, ok := a.Ticker(symbol)
	if !ok {
		return decimal.Decimal{}, false
	}
	return snap.Ticker.Sell.Sub(snap.Ticker.Buy), true
}

// MidPrice returns (bestBid + bestAsk) / 2 from the latest ticker snapshot.
func (a *Aggregator) MidPrice(symbol string) (decimal.Decimal, bool) {
	snap, ok := a.Ticker(symbol)
	if !ok {
		return decimal.Decimal{}, false
	}
	return snap.Ticker.Buy.Add(snap.Ticker.Sell).Div(two), true
}

// LastPrice returns the last trade price from the latest ticker snapshot.
func (a *Aggregator) LastPrice(symbol string) (decimal.Decimal, bool) {
	snap, ok := a.Ticker(symbol)
	if !ok {
		return decimal.Decimal{}, false
	}
	return snap.Ticker.Last, true
}

// SubscribeTickers returns a bounded stream of ticker snapshots across all
// symbols. The stream closes when the aggregator closes.
func (a *Aggregator) SubscribeTickers() <-chan *TickerSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := make(chan *TickerSnapshot, a.buffer)
	if a.closed {
		close(ch)
		return ch
	}
	a.tickerSubs = append(a.tickerSubs, ch)
	return ch
}

// SubscribeBooks returns a bounded stream of order book snapshots.
func (a *Aggregator) SubscribeBooks() <-chan *BookSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := make(chan *BookSnapshot, a.buffer)
	if a.closed {
		close(ch)
		return ch
	}
	a.bookSubs = append(a.bookSubs, ch)
	return ch
}

// SubscribeTrades returns a bounded stream of trade snapshots.
func (a *Aggregator) SubscribeTrades() <-chan *TradeSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := make(chan *TradeSnapshot, a.buffer)
	if a.closed {
		close(ch)
		return ch
	}
	a.tradeSubs = append(a.tradeSubs, ch)
	return ch
}

// Close closes every subscriber stream; readers observe end-of-stream.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	for _, ch := range a.tickerSubs {
		close(ch)
	}
	for _, ch := range a.bookSubs {
		close(ch)
	}
	for _, ch := range a.tradeSubs {
		close(ch)
	}
	a.tickerSubs, a.bookSubs, a.tradeSubs = nil, nil, nil
}

func (a *Aggregator) publishTicker(s *TickerSnapshot) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, ch := range a.tickerSubs {
		sendDropOldest(ch, s)
	}
}

func (a *Aggregator) publishBook(s *BookSnapshot) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, ch := range a.bookSubs {
		sendDropOldest(ch, s)
	}
}

func (a *Aggregator) publishTrade(s *TradeSnapshot) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, ch := range a.tradeSubs {
		sendDropOldest(ch, s)
	}
}

// sendDropOldest delivers to a bounded channel, evicting the oldest item
// when the consumer has fallen behind.
func sendDropOldest[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}
