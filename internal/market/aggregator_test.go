package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbgo/pkg/types"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func testTicker(pair, buy, sell, last string) types.Ticker {
	return types.Ticker{
		Pair: pair,
		Buy:  decimal.RequireFromString(buy),
		Sell: decimal.RequireFromString(sell),
		Last: decimal.RequireFromString(last),
	}
}

func TestAggregatorLatestSnapshots(t *testing.T) {
	t.Parallel()

	a := NewAggregator(8)
	a.now = fixedNow

	_, ok := a.Ticker("BTC-BRL")
	assert.False(t, ok)

	a.OnTicker(testTicker("BTC-BRL", "100", "101", "100.5"))
	a.OnTicker(testTicker("BTC-BRL", "102", "103", "102.5"))

	snap, ok := a.Ticker("BTC-BRL")
	require.True(t, ok)
	assert.True(t, snap.Ticker.Buy.Equal(decimal.RequireFromString("102")), "latest wins")
	assert.Equal(t, fixedNow(), snap.ReceivedAt)

	a.OnTrade("BTC-BRL", types.Trade{TID: 7})
	tr, ok := a.Trade("BTC-BRL")
	require.True(t, ok)
	assert.Equal(t, int64(7), tr.Trade.TID)

	a.OnBook("BTC-BRL", types.OrderBookPayload{
		Bids:      []types.PriceLevel{types.Level("100", "1")},
		Asks:      []types.PriceLevel{types.Level("101", "1")},
		Timestamp: 42,
	})
	bk, ok := a.Book("BTC-BRL")
	require.True(t, ok)
	assert.Equal(t, int64(42), bk.Timestamp)
}

func TestAggregatorDerivedPrices(t *testing.T) {
	t.Parallel()

	a := NewAggregator(8)
	a.OnTicker(testTicker("BTC-BRL", "100", "102", "101"))

	bid, ok := a.BestBid("BTC-BRL")
	require.True(t, ok)
	assert.True(t, bid.Equal(decimal.RequireFromString("100")))

	ask, _ := a.BestAsk("BTC-BRL")
	assert.True(t, ask.Equal(decimal.RequireFromString("102")))

	spread, _ := a.Spread("BTC-BRL")
	assert.True(t, spread.Equal(decimal.RequireFromString("2")))

	mid, _ := a.MidPrice("BTC-BRL")
	assert.True(t, mid.Equal(decimal.RequireFromString("101")))

	last, _ := a.LastPrice("BTC-BRL")
	assert.True(t, last.Equal(decimal.RequireFromString("101")))

	_, ok = a.BestBid("ETH-BRL")
	assert.False(t, ok)
}

func TestAggregatorSubscribersReceiveUpdates(t *testing.T) {
	t.Parallel()

	a := NewAggregator(8)
	tickers := a.SubscribeTickers()
	trades := a.SubscribeTrades()
	books := a.SubscribeBooks()

	a.OnTicker(testTicker("BTC-BRL", "100", "101", "100.5"))
	a.OnTrade("BTC-BRL", types.Trade{TID: 1})
	a.OnBook("BTC-BRL", types.OrderBookPayload{Timestamp: 9})

	select {
	case s := <-tickers:
		assert.Equal(t, "BTC-BRL", s.Ticker.Pair)
	default:
		t.Fatal("ticker snapshot not delivered")
	}
	select {
	case s := <-trades:
		assert.Equal(t, int64(1), s.Trade.TID)
	default:
		t.Fatal("trade snapshot not delivered")
	}
	select {
	case s := <-books:
		assert.Equal(t, int64(9), s.Timestamp)
	default:
		t.Fatal("book snapshot not delivered")
	}
}

func TestAggregatorDropsOldestForSlowSubscriber(t *testing.T) {
	t.Parallel()

	a := NewAggregator(2)
	tickers := a.SubscribeTickers()

	for i := range 5 {
		a.OnTicker(testTicker("BTC-BRL", "100", "101", decimal.NewFromInt(int64(100+i)).String()))
	}

	// The buffer holds the 2 most recent snapshots; the latest is never lost.
	var got []string
	for range 2 {
		select {
		case s := <-tickers:
			got = append(got, s.Ticker.Last.String())
		default:
			t.Fatal("expected a buffered snapshot")
		}
	}
	assert.Equal(t, "104", got[len(got)-1])
}

func TestAggregatorClose(t *testing.T) {
	t.Parallel()

	a := NewAggregator(2)
	tickers := a.SubscribeTickers()

	a.Close()
	a.Close() // idempotent

	_, open := <-tickers
	assert.False(t, open)

	// Subscribing after close yields an already-closed stream.
	late := a.SubscribeBooks()
	_, open = <-late
	assert.False(t, open)

	// Publishing after close must not panic.
	a.OnTicker(testTicker("BTC-BRL", "1", "2", "1.5"))
}
