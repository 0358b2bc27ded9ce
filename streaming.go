package mbgo

import (
	"context"

	"mbgo/internal/market"
	"mbgo/pkg/types"
)

// ensureWS starts the streaming connection on first use.
func (c *Client) ensureWS() {
	c.wsOnce.Do(func() {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.ws.Run(c.runCtx); err != nil && c.runCtx.Err() == nil {
				c.logger.Error("streaming connection terminated", "error", err)
			}
		}()
	})
}

// StreamState reports the streaming connection lifecycle state.
func (c *Client) StreamState() string { return c.ws.State().String() }

// StreamTickers subscribes to live tickers for one symbol. The stream closes
// when ctx is cancelled or the client is closed.
func (c *Client) StreamTickers(ctx context.Context, symbol string) (<-chan types.Ticker, error) {
	c.ensureWS()
	return c.ws.Tickers(ctx, symbol)
}

// StreamTrades subscribes to live trades for one symbol.
func (c *Client) StreamTrades(ctx context.Context, symbol string) (<-chan types.Trade, error) {
	c.ensureWS()
	return c.ws.Trades(ctx, symbol)
}

// StreamBooks subscribes to live order book frames for one symbol.
func (c *Client) StreamBooks(ctx context.Context, symbol string) (<-chan types.OrderBookPayload, error) {
	c.ensureWS()
	return c.ws.Books(ctx, symbol)
}

// Aggregator returns the shared market data aggregator. It only holds data
// for symbols passed to Watch.
func (c *Client) Aggregator() *market.Aggregator { return c.agg }

// Watch subscribes every channel for the given symbols and feeds the
// aggregator until ctx is cancelled.
func (c *Client) Watch(ctx context.Context, symbols ...string) error {
	for _, symbol := range symbols {
		tickers, err := c.StreamTickers(ctx, symbol)
		if err != nil {
			return err
		}
		trades, err := c.StreamTrades(ctx, symbol)
		if err != nil {
			return err
		}
		books, err := c.StreamBooks(ctx, symbol)
		if err != nil {
			return err
		}

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for t := range tickers {
				if t.Pair == "" {
					t.Pair = symbol
				}
				c.agg.OnTicker(t)
			}
		}()
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for t := range trades {
				c.agg.OnTrade(symbol, t)
			}
		}()
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for b := range books {
				c.agg.OnBook(symbol, b)
			}
		}()
	}
	return nil
}

// LiveOrderBook returns an incremental order book for one symbol, seeded
// from a REST snapshot and kept current by the streaming connection. Frames
// carrying an update id are applied as deltas; frames without one replace
// the book. The book stops updating when ctx is cancelled.
func (c *Client) LiveOrderBook(ctx context.Context, symbol string, opts ...market.BookOption) (*market.Book, error) {
	frames, err := c.StreamBooks(ctx, symbol)
	if err != nil {
		return nil, err
	}

	book := market.NewBook(symbol, c.logger, opts...)

	snap, err := c.rest.OrderBook(ctx, symbol, 0)
	if err != nil {
		return nil, err
	}
	book.ApplySnapshot(snap.Bids, snap.Asks, snap.UpdateID)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for f := range frames {
			if f.UpdateID == 0 {
				book.ApplySnapshot(f.Bids, f.Asks, f.UpdateID)
				continue
			}
			book.ApplyDelta(market.Delta{UpdateID: f.UpdateID, Bids: f.Bids, Asks: f.Asks})
		}
	}()
	return book, nil
}
