// public.go — unauthenticated market-data endpoints. All of them bypass the
// authentication layer and draw from the PublicData rate-limit scope, one
// bucket per endpoint.
package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"mbgo/pkg/types"
)

// Tickers fetches 24h statistics for one or more symbols in a single call.
func (c *Client) Tickers(ctx context.Context, symbols []string) ([]types.Ticker, error) {
	if len(symbols) == 0 {
		return nil, newValidation("at least one symbol is required")
	}
	for _, s := range symbols {
		if err := validateSymbol(s); err != nil {
			return nil, err
		}
	}

	var out []types.Ticker
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/tickers",
		scope:  ScopePublicData,
		public: true,
		query:  map[string]string{"symbols": strings.Join(symbols, ",")},
		out:    &out,
	})
	return out, err
}

// OrderBook fetches the book for a symbol. limit caps the number of levels
// per side; 0 uses the server default.
func (c *Client) OrderBook(ctx context.Context, symbol string, limit int) (*types.OrderBookPayload, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}

	query := map[string]string{}
	if limit > 0 {
		query["limit"] = strconv.Itoa(limit)
	}
	var out types.OrderBookPayload
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/%s/orderbook", symbol),
		scope:  ScopePublicData,
		key:    "/orderbook",
		public: true,
		query:  query,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// TradesQuery narrows GET /{symbol}/trades. Zero values mean "no filter".
type TradesQuery struct {
	TID   int64 // return trades after this trade id
	Since int64 // return trades after this trade id (alias the API accepts)
	From  int64 // unix seconds, inclusive
	To    int64 // unix seconds, inclusive
	Limit int   // max 1000
}

// Trades fetches recent public trades for a symbol.
func (c *Client) Trades(ctx context.Context, symbol string, q TradesQuery) ([]types.Trade, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	if q.From > 0 && q.To > 0 && q.From > q.To {
		return nil, newValidation("trades window inverted: from %d > to %d", q.From, q.To)
	}

	query := map[string]string{}
	if q.TID > 0 {
		query["tid"] = strconv.FormatInt(q.TID, 10)
	}
	if q.Since > 0 {
		query["since"] = strconv.FormatInt(q.Since, 10)
	}
	if q.From > 0 {
		query["from"] = strconv.FormatInt(q.From, 10)
	}
	if q.To > 0 {
		query["to"] = strconv.FormatInt(q.To, 10)
	}
	if q.Limit > 0 {
		query["limit"] = strconv.Itoa(q.Limit)
	}

	var out []types.Trade
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/%s/trades", symbol),
		scope:  ScopePublicData,
		key:    "/trades",
		public: true,
		query:  query,
		out:    &out,
	})
	return out, err
}

// CandlesQuery selects the window for GET /candles. Either To+Countback or
// From+To must be set.
type CandlesQuery struct {
	Resolution types.Resolution
	From       int64 // unix seconds
	To         int64 // unix seconds
	Countback  int   // number of bars ending at To; takes precedence over From
}

// Candles fetches OHLCV bars and converts the column-oriented payload into rows.
func (c *Client) Candles(ctx context.Context, symbol string, q CandlesQuery) ([]types.Candle, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	if !q.Resolution.Valid() {
		return nil, newValidation("invalid resolution %q", q.Resolution)
	}
	if q.Countback <= 0 && (q.From <= 0 || q.To <= 0) {
		return nil, newValidation("candles need countback or a from/to window")
	}
	if q.From > 0 && q.To > 0 && q.From > q.To {
		return nil, newValidation("candles window inverted: from %d > to %d", q.From, q.To)
	}

	query := map[string]string{
		"symbol":     symbol,
		"resolution": string(q.Resolution),
		"to":         strconv.FormatInt(q.To, 10),
	}
	if q.Countback > 0 {
		query["countback"] = strconv.Itoa(q.Countback)
	} else {
		query["from"] = strconv.FormatInt(q.From, 10)
	}

	var out types.RawCandles
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/candles",
		scope:  ScopePublicData,
		public: true,
		query:  query,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return out.Rows(), nil
}

// Symbols fetches trading metadata for every listed symbol.
func (c *Client) Symbols(ctx context.Context) ([]types.SymbolInfo, error) {
	var out types.RawSymbols
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/symbols",
		scope:  ScopePublicData,
		public: true,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return out.Rows(), nil
}

// AssetFees fetches the withdrawal fee schedule for an asset.
func (c *Client) AssetFees(ctx context.Context, asset string) (*types.AssetFee, error) {
	if err := validateAsset(asset); err != nil {
		return nil, err
	}
	var out types.AssetFee
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/%s/fees", asset),
		scope:  ScopePublicData,
		key:    "/fees",
		public: true,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AssetNetworks lists the deposit/withdrawal networks for an asset.
func (c *Client) AssetNetworks(ctx context.Context, asset string) ([]types.NetworkInfo, error) {
	if err := validateAsset(asset); err != nil {
		return nil, err
	}
	var out []types.NetworkInfo
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/%s/networks", asset),
		scope:  ScopePublicData,
		key:    "/networks",
		public: true,
		out:    &out,
	})
	return out, err
}
