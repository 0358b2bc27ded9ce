// Package mbgo is a typed Go client for the Mercado Bitcoin v4 API.
//
// Client is the facade over the REST pipeline, the short-TTL public-data
// cache, the WebSocket streams, the market data aggregator, and the order
// lifecycle tracker. Construct one with New and a config.Config; background
// loops (streaming, order polling) start lazily on first use and stop on
// Close.
package mbgo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"mbgo/internal/config"
	"mbgo/internal/exchange"
	"mbgo/internal/market"
	"mbgo/internal/metrics"
	"mbgo/internal/tracker"
	"mbgo/pkg/types"
)

// Client is the top-level API client.
type Client struct {
	cfg     config.Config
	logger  *slog.Logger
	rest    *exchange.Client
	ws      *exchange.WSClient
	cache   *exchange.Cache
	agg     *market.Aggregator
	tracker *tracker.Tracker
	metrics *metrics.Metrics

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	wsOnce      sync.Once
	trackerOnce sync.Once
	closeOnce   sync.Once
}

// Option customizes a Client.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	blocking bool
	restOpts []exchange.Option
}

// WithLogger replaces the logger built from the Logging config section.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBlockingRateLimit makes REST calls wait for rate-limit capacity
// (bounded by the request context) instead of failing fast.
func WithBlockingRateLimit() Option {
	return func(o *options) { o.restOpts = append(o.restOpts, exchange.WithBlockingRateLimit()) }
}

// WithRESTOptions forwards extra options to the underlying REST client.
func WithRESTOptions(opts ...exchange.Option) Option {
	return func(o *options) { o.restOpts = append(o.restOpts, opts...) }
}

// New creates a client from cfg. Credentials are optional; without them only
// public endpoints work.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = newLogger(cfg.Logging)
	}

	var creds exchange.CredentialProvider
	if cfg.Login != "" {
		creds = exchange.StaticCredentials{Login: cfg.Login, Password: cfg.Password}
	}

	m := metrics.New()
	restOpts := append([]exchange.Option{exchange.WithMetrics(m)}, o.restOpts...)

	runCtx, runCancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:       cfg,
		logger:    logger,
		rest:      exchange.NewClient(cfg, creds, logger, restOpts...),
		ws:        exchange.NewWSClient(cfg.WSURL, cfg.WS, logger, m),
		cache:     exchange.NewCache(cfg.Cache.NegativeTTL, m),
		agg:       market.NewAggregator(cfg.WS.StreamBuffer),
		metrics:   m,
		runCtx:    runCtx,
		runCancel: runCancel,
	}
	c.tracker = tracker.New(cfg.Tracker, c.rest, logger)
	return c, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// Close stops background loops and closes every stream. Safe to call more
// than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.runCancel()
		c.ws.Close()
		c.agg.Close()
		c.wg.Wait()
	})
	return nil
}

// Metrics returns the Prometheus registry backing the client's collectors.
func (c *Client) Metrics() *metrics.Metrics { return c.metrics }

// BreakerState reports the REST circuit breaker state.
func (c *Client) BreakerState() string { return c.rest.BreakerState() }

// ServerClock returns the server-time estimator fed by response headers.
func (c *Client) ServerClock() *exchange.Clock { return c.rest.Clock() }

// --- Public market data (cached) ---

// cached runs fetch through the shared TTL cache, coalescing concurrent
// misses on the same key into one upstream call.
func cached[T any](ctx context.Context, c *Client, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	v, err := c.cache.GetOrFetch(ctx, key, ttl, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if v == nil {
		var zero T
		return zero, nil
	}
	return v.(T), nil
}

// Tickers returns 24h rolling tickers for the given symbols.
func (c *Client) Tickers(ctx context.Context, symbols ...string) ([]types.Ticker, error) {
	key := "tickers|" + strings.Join(symbols, ",")
	return cached(ctx, c, key, c.cfg.Cache.TickerTTL, func(ctx context.Context) ([]types.Ticker, error) {
		return c.rest.Tickers(ctx, symbols)
	})
}

// OrderBook returns an order book snapshot. limit caps levels per side;
// zero keeps the server default.
func (c *Client) OrderBook(ctx context.Context, symbol string, limit int) (*types.OrderBookPayload, error) {
	key := fmt.Sprintf("orderbook|%s|%d", symbol, limit)
	return cached(ctx, c, key, c.cfg.Cache.OrderBookTTL, func(ctx context.Context) (*types.OrderBookPayload, error) {
		return c.rest.OrderBook(ctx, symbol, limit)
	})
}

// Symbols returns instrument metadata for every listed symbol.
func (c *Client) Symbols(ctx context.Context) ([]types.SymbolInfo, error) {
	return cached(ctx, c, "symbols", c.cfg.Cache.SymbolTTL, func(ctx context.Context) ([]types.SymbolInfo, error) {
		return c.rest.Symbols(ctx)
	})
}

// Trades returns recent public trades, newest first.
func (c *Client) Trades(ctx context.Context, symbol string, q exchange.TradesQuery) ([]types.Trade, error) {
	return c.rest.Trades(ctx, symbol, q)
}

// Candles returns OHLCV candles for a symbol.
func (c *Client) Candles(ctx context.Context, symbol string, q exchange.CandlesQuery) ([]types.Candle, error) {
	return c.rest.Candles(ctx, symbol, q)
}

// AssetFees returns withdrawal fees for an asset.
func (c *Client) AssetFees(ctx context.Context, asset string) (*types.AssetFee, error) {
	return c.rest.AssetFees(ctx, asset)
}

// AssetNetworks returns the withdrawal networks for an asset.
func (c *Client) AssetNetworks(ctx context.Context, asset string) ([]types.NetworkInfo, error) {
	return c.rest.AssetNetworks(ctx, asset)
}

// --- Accounts ---

func (c *Client) Accounts(ctx context.Context) ([]types.Account, error) {
	return c.rest.Accounts(ctx)
}

func (c *Client) Balances(ctx context.Context, accountID string) ([]types.Balance, error) {
	return c.rest.Balances(ctx, accountID)
}

func (c *Client) Tier(ctx context.Context, accountID string) ([]types.FeeTier, error) {
	return c.rest.Tier(ctx, accountID)
}

func (c *Client) TradingFees(ctx context.Context, accountID, symbol string) (*types.TradingFees, error) {
	return c.rest.TradingFees(ctx, accountID, symbol)
}

func (c *Client) Positions(ctx context.Context, accountID string) ([]types.Position, error) {
	return c.rest.Positions(ctx, accountID)
}

// --- Trading ---

func (c *Client) ListOrders(ctx context.Context, accountID, symbol string, f types.ListOrdersFilter) ([]types.Order, error) {
	return c.rest.ListOrders(ctx, accountID, symbol, f)
}

// OrdersPager pages through the order history lazily, pageSize items at a
// time.
func (c *Client) OrdersPager(accountID, symbol string, f types.ListOrdersFilter, pageSize int) *exchange.CursorPages[types.Order] {
	return c.rest.OrdersPager(accountID, symbol, f, pageSize)
}

func (c *Client) PlaceOrder(ctx context.Context, accountID, symbol string, req types.PlaceOrderRequest) (*types.PlaceOrderResponse, error) {
	return c.rest.PlaceOrder(ctx, accountID, symbol, req)
}

// PlaceAndTrack places an order and registers it with the lifecycle tracker.
func (c *Client) PlaceAndTrack(ctx context.Context, accountID, symbol string, req types.PlaceOrderRequest) (*types.PlaceOrderResponse, error) {
	resp, err := c.rest.PlaceOrder(ctx, accountID, symbol, req)
	if err != nil {
		return nil, err
	}
	c.ensureTracker()
	c.tracker.Track(resp.OrderID, symbol, accountID, types.StatusPending)
	c.metrics.SetTrackedOrders(len(c.tracker.Active()))
	return resp, nil
}

func (c *Client) GetOrder(ctx context.Context, accountID, symbol, orderID string) (*types.Order, error) {
	return c.rest.GetOrder(ctx, accountID, symbol, orderID)
}

func (c *Client) CancelOrder(ctx context.Context, accountID, symbol, orderID string, async bool) error {
	return c.rest.CancelOrder(ctx, accountID, symbol, orderID, async)
}

func (c *Client) CancelAllOpenOrders(ctx context.Context, accountID string, f types.CancelAllFilter) ([]types.CancelAllResult, error) {
	return c.rest.CancelAllOpenOrders(ctx, accountID, f)
}

// TrackOrder registers an already-placed order with the lifecycle tracker.
func (c *Client) TrackOrder(orderID, symbol, accountID string) {
	c.ensureTracker()
	c.tracker.Track(orderID, symbol, accountID, types.StatusPending)
	c.metrics.SetTrackedOrders(len(c.tracker.Active()))
}

// TrackedOrder returns the tracker's view of one order.
func (c *Client) TrackedOrder(orderID string) (tracker.Tracked, bool) {
	return c.tracker.Get(orderID)
}

// OrderEvents returns the order lifecycle event stream.
func (c *Client) OrderEvents() <-chan tracker.Event {
	c.ensureTracker()
	return c.tracker.Events()
}

func (c *Client) ensureTracker() {
	c.trackerOnce.Do(func() {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.tracker.Run(c.runCtx)
		}()
	})
}

// --- Wallet ---

func (c *Client) Deposits(ctx context.Context, accountID, symbol string, limit, page int) ([]types.Deposit, error) {
	return c.rest.Deposits(ctx, accountID, symbol, limit, page)
}

// DepositsPager pages through the deposit history lazily.
func (c *Client) DepositsPager(accountID, symbol string, pageSize int) *exchange.Pages[types.Deposit] {
	return c.rest.DepositsPager(accountID, symbol, pageSize)
}

func (c *Client) DepositAddresses(ctx context.Context, accountID, symbol, network string) ([]types.DepositAddress, error) {
	return c.rest.DepositAddresses(ctx, accountID, symbol, network)
}

func (c *Client) FiatDeposits(ctx context.Context, accountID string, limit, page int) ([]types.FiatDeposit, error) {
	return c.rest.FiatDeposits(ctx, accountID, limit, page)
}

func (c *Client) Withdraw(ctx context.Context, accountID, symbol string, req types.WithdrawRequest) (*types.Withdrawal, error) {
	return c.rest.Withdraw(ctx, accountID, symbol, req)
}

func (c *Client) Withdrawals(ctx context.Context, accountID, symbol string, limit, page int) ([]types.Withdrawal, error) {
	return c.rest.Withdrawals(ctx, accountID, symbol, limit, page)
}

func (c *Client) GetWithdrawal(ctx context.Context, accountID, symbol string, withdrawID int64) (*types.Withdrawal, error) {
	return c.rest.GetWithdrawal(ctx, accountID, symbol, withdrawID)
}

func (c *Client) WithdrawLimits(ctx context.Context, accountID string, symbols []string) ([]types.WithdrawLimit, error) {
	return c.rest.WithdrawLimits(ctx, accountID, symbols)
}

func (c *Client) BRLWithdrawConfig(ctx context.Context, accountID string) (*types.BRLWithdrawConfig, error) {
	return c.rest.BRLWithdrawConfig(ctx, accountID)
}

func (c *Client) WithdrawAddresses(ctx context.Context, accountID, symbol string) ([]types.WithdrawAddress, error) {
	return c.rest.WithdrawAddresses(ctx, accountID, symbol)
}

func (c *Client) BankAccounts(ctx context.Context, accountID string) ([]types.BankAccount, error) {
	return c.rest.BankAccounts(ctx, accountID)
}
