// Package market provides the incremental order book engine and the market
// data aggregator.
//
// Book mirrors the exchange order book for a single symbol. It is updated
// from two sources:
//   - REST snapshots via ApplySnapshot (initial load, periodic refresh)
//   - WebSocket updates via ApplySnapshot (full frames) and ApplyDelta
//     (incremental frames keyed by a monotonic update id)
//
// Writers are serialized and readers always observe a consistent ladder —
// best bid and best ask are never torn. Derived analytics (spread, VWAP,
// imbalance) are computed against the live ladder under the read lock.
package market

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"mbgo/pkg/types"
)

// UpdateKind distinguishes snapshot from delta applications.
type UpdateKind string

const (
	UpdateSnapshot UpdateKind = "snapshot"
	UpdateDelta    UpdateKind = "delta"
)

// Update describes one applied mutation.
type Update struct {
	Kind     UpdateKind
	UpdateID int64
	Levels   int // touched levels
	At       time.Time
}

// SpreadChange is emitted when the spread moves by at least the configured
// threshold percentage.
type SpreadChange struct {
	Prev decimal.Decimal
	Curr decimal.Decimal
	Pct  float64 // relative move, in percent of the previous spread
}

// Delta is an incremental update. A level with zero quantity deletes that
// price; a positive quantity upserts it.
type Delta struct {
	UpdateID int64
	Bids     []types.PriceLevel
	Asks     []types.PriceLevel
}

// VWAPResult is the outcome of walking one side of the book for a fill.
type VWAPResult struct {
	Price    decimal.Decimal // volume-weighted average price of the fill
	Filled   decimal.Decimal // quantity actually available, ≤ requested
	Complete bool            // the book had enough depth for the full quantity
}

// BookOption customizes a Book.
type BookOption func(*Book)

// WithMaxDepth caps each side at n levels; the least aggressive levels are
// trimmed after every mutation. Zero means uncapped.
func WithMaxDepth(n int) BookOption {
	return func(b *Book) { b.maxDepth = n }
}

// WithSpreadThreshold sets the minimum relative spread move, in percent,
// that fires the SpreadChanged callback.
func WithSpreadThreshold(pct float64) BookOption {
	return func(b *Book) { b.spreadThresholdPct = pct }
}

// WithUpdateHandler registers a callback invoked after every applied
// mutation, outside the write lock.
func WithUpdateHandler(fn func(Update)) BookOption {
	return func(b *Book) { b.onUpdate = fn }
}

// WithSpreadHandler registers the SpreadChanged callback.
func WithSpreadHandler(fn func(SpreadChange)) BookOption {
	return func(b *Book) { b.onSpread = fn }
}

// Book maintains a local mirror of the order book for one symbol.
type Book struct {
	mu     sync.RWMutex
	symbol string

	bids []types.PriceLevel // descending by price (best bid first)
	asks []types.PriceLevel // ascending by price (best ask first)

	lastUpdateID   int64
	lastUpdateTime time.Time

	maxDepth           int
	spreadThresholdPct float64
	onUpdate           func(Update)
	onSpread           func(SpreadChange)
	logger             *slog.Logger
}

// NewBook creates an empty order book for a symbol.
func NewBook(symbol string, logger *slog.Logger, opts ...BookOption) *Book {
	b := &Book{
		symbol: symbol,
		logger: logger.With("component", "book", "symbol", symbol),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Symbol returns the symbol this book mirrors.
func (b *Book) Symbol() string { return b.symbol }

// ApplySnapshot atomically replaces both ladders. Zero-quantity entries are
// filtered out; input order does not matter.
func (b *Book) ApplySnapshot(bids, asks []types.PriceLevel, updateID int64) {
	newBids := sortLevels(filterLevels(bids), true)
	newAsks := sortLevels(filterLevels(asks), false)

	b.mu.Lock()
	prevSpread, hadSpread := b.spreadLocked()
	b.bids, b.asks = newBids, newAsks
	b.lastUpdateID = updateID
	b.lastUpdateTime = time.Now()
	b.trimLocked()
	b.warnCrossedLocked()
	update := Update{
		Kind:     UpdateSnapshot,
		UpdateID: updateID,
		Levels:   len(newBids) + len(newAsks),
		At:       b.lastUpdateTime,
	}
	spreadEvt := b.spreadEventLocked(prevSpread, hadSpread)
	b.mu.Unlock()

	b.notify(update, spreadEvt)
}

// ApplyDelta applies an incremental update. Returns false without touching
// the book when the delta is stale (updateID ≤ lastUpdateID).
func (b *Book) ApplyDelta(d Delta) bool {
	b.mu.Lock()
	if d.UpdateID <= b.lastUpdateID {
		b.mu.Unlock()
		return false
	}
	prevSpread, hadSpread := b.spreadLocked()

	touched := 0
	for _, lvl := range d.Bids {
		b.bids = upsertLevel(b.bids, lvl, true)
		touched++
	}
	for _, lvl := range d.Asks {
		b.asks = upsertLevel(b.asks, lvl, false)
		touched++
	}

	b.lastUpdateID = d.UpdateID
	b.lastUpdateTime = time.Now()
	b.trimLocked()
	b.warnCrossedLocked()
	update := Update{Kind: UpdateDelta, UpdateID: d.UpdateID, Levels: touched, At: b.lastUpdateTime}
	spreadEvt := b.spreadEventLocked(prevSpread, hadSpread)
	b.mu.Unlock()

	b.notify(update, spreadEvt)
	return true
}

// LastUpdateID returns the id of the last applied mutation.
func (b *Book) LastUpdateID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdateID
}

// LastUpdated returns the timestamp of the last applied mutation.
func (b *Book) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdateTime
}

// Depth returns the current number of bid and ask levels.
func (b *Book) Depth() (bids, asks int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bids), len(b.asks)
}

// BestBid returns the highest bid, if any.
func (b *Book) BestBid() (types.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bids) == 0 {
		return types.PriceLevel{}, false
	}
	return b.bids[0], true
}

// BestAsk returns the lowest ask, if any.
func (b *Book) BestAsk() (types.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.asks) == 0 {
		return types.PriceLevel{}, false
	}
	return b.asks[0], true
}

// Spread returns bestAsk − bestBid. ok is false when either side is empty.
func (b *Book) Spread() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.spreadLocked()
}

// Mid returns (bestBid + bestAsk) / 2.
func (b *Book) Mid() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return decimal.Decimal{}, false
	}
	return b.bids[0].Price.Add(b.asks[0].Price).Div(two), true
}

// SpreadPct returns the spread as a percentage of the mid price.
func (b *Book) SpreadPct() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	spread, ok := b.spreadLocked()
	if !ok || len(b.bids) == 0 {
		return 0, false
	}
	mid := b.bids[0].Price.Add(b.asks[0].Price).Div(two)
	if mid.IsZero() {
		return 0, false
	}
	pct, _ := spread.Div(mid).Mul(hundred).Float64()
	return pct, true
}

// TopBids returns up to n best bids, most aggressive first.
func (b *Book) TopBids(n int) []types.PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyLevels(b.bids, n)
}

// TopAsks returns up to n best asks, most aggressive first.
func (b *Book) TopAsks(n int) []types.PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyLevels(b.asks, n)
}

// BidVolume sums bid quantity over the top depth levels (0 = all).
func (b *Book) BidVolume(depth int) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sumVolume(b.bids, depth)
}

// AskVolume sums ask quantity over the top depth levels (0 = all).
func (b *Book) AskVolume(depth int) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sumVolume(b.asks, depth)
}

// VWAP walks the given side until qty is filled and returns the
// volume-weighted average price of the fill. Buying walks the asks, selling
// walks the bids. Returns nil when the side is empty; otherwise Filled
// reports how much of qty the book could satisfy.
func (b *Book) VWAP(side types.Side, qty decimal.Decimal) *VWAPResult {
	b.mu.RLock()
	defer b.mu.RUnlock()

	levels := b.asks
	if side == types.SideSell {
		levels = b.bids
	}
	if len(levels) == 0 || qty.IsZero() || qty.IsNegative() {
		return nil
	}

	remaining := qty
	cost := decimal.Decimal{}
	filled := decimal.Decimal{}
	for _, lvl := range levels {
		take := lvl.Quantity
		if take.GreaterThan(remaining) {
			take = remaining
		}
		cost = cost.Add(take.Mul(lvl.Price))
		filled = filled.Add(take)
		remaining = remaining.Sub(take)
		if remaining.IsZero() {
			break
		}
	}
	if filled.IsZero() {
		return nil
	}
	return &VWAPResult{
		Price:    cost.Div(filled),
		Filled:   filled,
		Complete: remaining.IsZero(),
	}
}

// Imbalance returns bidVolume / (bidVolume + askVolume) over the top n
// levels per side. 0.5 is balanced; ok is false when both sides are empty.
func (b *Book) Imbalance(n int) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bidVol := sumVolume(b.bids, n)
	askVol := sumVolume(b.asks, n)
	total := bidVol.Add(askVol)
	if total.IsZero() {
		return 0, false
	}
	ratio, _ := bidVol.Div(total).Float64()
	return ratio, true
}

var (
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

func (b *Book) spreadLocked() (decimal.Decimal, bool) {
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return decimal.Decimal{}, false
	}
	return b.asks[0].Price.Sub(b.bids[0].Price), true
}

// spreadEventLocked compares the spread before and after a mutation and
// builds the event when the move crosses the threshold.
func (b *Book) spreadEventLocked(prev decimal.Decimal, hadPrev bool) *SpreadChange {
	if b.onSpread == nil || !hadPrev || prev.IsZero() {
		return nil
	}
	curr, ok := b.spreadLocked()
	if !ok || curr.Equal(prev) {
		return nil
	}
	pct, _ := curr.Sub(prev).Abs().Div(prev).Mul(hundred).Float64()
	if pct < b.spreadThresholdPct {
		return nil
	}
	return &SpreadChange{Prev: prev, Curr: curr, Pct: pct}
}

func (b *Book) notify(u Update, s *SpreadChange) {
	if b.onUpdate != nil {
		b.onUpdate(u)
	}
	if s != nil && b.onSpread != nil {
		b.onSpread(*s)
	}
}

// warnCrossedLocked logs when best_bid ≥ best_ask. Degenerate input is
// accepted; the warning is the only signal.
func (b *Book) warnCrossedLocked() {
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return
	}
	if !b.bids[0].Price.LessThan(b.asks[0].Price) {
		b.logger.Warn("crossed book",
			"best_bid", b.bids[0].Price,
			"best_ask", b.asks[0].Price,
		)
	}
}

func (b *Book) trimLocked() {
	if b.maxDepth <= 0 {
		return
	}
	if len(b.bids) > b.maxDepth {
		b.bids = b.bids[:b.maxDepth]
	}
	if len(b.asks) > b.maxDepth {
		b.asks = b.asks[:b.maxDepth]
	}
}

func filterLevels(levels []types.PriceLevel) []types.PriceLevel {
	out := make([]types.PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		if lvl.Quantity.IsPositive() {
			out = append(out, lvl)
		}
	}
	return out
}

func sortLevels(levels []types.PriceLevel, descending bool) []types.PriceLevel {
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
	return levels
}

// upsertLevel inserts, replaces, or deletes (zero quantity) one price level
// in a sorted ladder, preserving order.
func upsertLevel(levels []types.PriceLevel, lvl types.PriceLevel, descending bool) []types.PriceLevel {
	idx := sort.Search(len(levels), func(i int) bool {
		if descending {
			return !levels[i].Price.GreaterThan(lvl.Price)
		}
		return !levels[i].Price.LessThan(lvl.Price)
	})

	found := idx < len(levels) && levels[idx].Price.Equal(lvl.Price)
	switch {
	case lvl.Quantity.IsPositive() && found:
		levels[idx].Quantity = lvl.Quantity
	case lvl.Quantity.IsPositive():
		levels = append(levels, types.PriceLevel{})
		copy(levels[idx+1:], levels[idx:])
		levels[idx] = lvl
	case found: // zero quantity deletes the level
		levels = append(levels[:idx], levels[idx+1:]...)
	}
	return levels
}

func copyLevels(levels []types.PriceLevel, n int) []types.PriceLevel {
	if n <= 0 || n > len(levels) {
		n = len(levels)
	}
	out := make([]types.PriceLevel, n)
	copy(out, levels[:n])
	return out
}

func sumVolume(levels []types.PriceLevel, depth int) decimal.Decimal {
	if depth <= 0 || depth > len(levels) {
		depth = len(levels)
	}
	total := decimal.Decimal{}
	for _, lvl := range levels[:depth] {
		total = total.Add(lvl.Quantity)
	}
	return total
}
