// ws.go implements the WebSocket subscription manager.
//
// One connection carries every subscription. The client sends JSON
// subscription frames keyed by (channel, symbol) and receives envelope
// frames routed to per-subscription bounded channels; a full channel drops
// the oldest buffered item so a slow consumer never stalls the read loop.
//
// The connection auto-reconnects with exponential backoff
// (InitialReconnectDelay → MaxReconnectDelay) and re-subscribes every active
// subscription on reconnection. Liveness is enforced by a ping loop at
// KeepAliveInterval with a pong deadline of KeepAliveTimeout.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"mbgo/internal/config"
	"mbgo/pkg/types"
)

const wsWriteTimeout = 10 * time.Second

// ConnState is the connection lifecycle state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

type subKey struct {
	channel string
	symbol  string
}

type wsSub struct {
	key subKey
	raw chan json.RawMessage
}

// WSClient manages the streaming connection and its subscriptions.
type WSClient struct {
	url    string
	cfg    config.WSConfig
	dialer *websocket.Dialer

	conn   *websocket.Conn
	connMu sync.Mutex // protects conn reads/writes

	subsMu sync.RWMutex
	subs   map[subKey]*wsSub

	state   atomic.Int32
	closed  atomic.Bool
	logger  *slog.Logger
	metrics Metrics
}

// NewWSClient creates a client for the streaming URL. Run must be called to
// connect.
func NewWSClient(url string, cfg config.WSConfig, logger *slog.Logger, metrics Metrics) *WSClient {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &WSClient{
		url:     url,
		cfg:     cfg,
		dialer:  websocket.DefaultDialer,
		subs:    make(map[subKey]*wsSub),
		logger:  logger.With("component", "ws"),
		metrics: metrics,
	}
}

// State returns the current connection state.
func (c *WSClient) State() ConnState { return ConnState(c.state.Load()) }

// Run connects and maintains the connection with auto-reconnect. Blocks
// until ctx is cancelled, Close is called, or the reconnect budget is
// exhausted. The budget counts consecutive failed attempts per outage; it
// resets whenever a connection is established.
func (c *WSClient) Run(ctx context.Context) error {
	backoff := c.cfg.InitialReconnectDelay
	attempts := 0

	for {
		if c.closed.Load() {
			c.state.Store(int32(StateDisconnected))
			return nil
		}
		c.state.Store(int32(StateConnecting))
		connected, err := c.connectAndRead(ctx)
		if ctx.Err() != nil {
			c.state.Store(int32(StateDisconnected))
			return ctx.Err()
		}
		if c.closed.Load() {
			c.state.Store(int32(StateDisconnected))
			return nil
		}
		if connected {
			attempts = 0
			backoff = c.cfg.InitialReconnectDelay
		}

		attempts++
		if c.cfg.MaxReconnectAttempts > 0 && attempts > c.cfg.MaxReconnectAttempts {
			c.state.Store(int32(StateDisconnected))
			return fmt.Errorf("websocket: gave up after %d reconnect attempts: %w", attempts-1, err)
		}

		c.state.Store(int32(StateReconnecting))
		c.logger.Warn("websocket disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
			"attempt", attempts,
		)
		c.metrics.WSReconnect()

		select {
		case <-ctx.Done():
			c.state.Store(int32(StateDisconnected))
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.cfg.MaxReconnectDelay {
			backoff = c.cfg.MaxReconnectDelay
		}
	}
}

// Close shuts the client down for good: Run stops reconnecting and every
// subscription stream is closed so readers observe end-of-stream.
func (c *WSClient) Close() error {
	c.closed.Store(true)
	c.state.Store(int32(StateDisconnected))

	c.subsMu.Lock()
	for key, sub := range c.subs {
		delete(c.subs, key)
		close(sub.raw)
	}
	c.subsMu.Unlock()

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Tickers subscribes to the ticker channel for one symbol. The stream closes
// when ctx is cancelled or the client shuts down.
func (c *WSClient) Tickers(ctx context.Context, symbol string) (<-chan types.Ticker, error) {
	return subscribeTyped[types.Ticker](ctx, c, types.ChannelTicker, symbol)
}

// Trades subscribes to the trade channel for one symbol.
func (c *WSClient) Trades(ctx context.Context, symbol string) (<-chan types.Trade, error) {
	return subscribeTyped[types.Trade](ctx, c, types.ChannelTrade, symbol)
}

// Books subscribes to the orderbook channel for one symbol.
func (c *WSClient) Books(ctx context.Context, symbol string) (<-chan types.OrderBookPayload, error) {
	return subscribeTyped[types.OrderBookPayload](ctx, c, types.ChannelOrderBook, symbol)
}

// subscribeTyped registers a raw subscription and decodes its payloads into
// T on a bounded output channel with drop-oldest overflow.
func subscribeTyped[T any](ctx context.Context, c *WSClient, channel, symbol string) (<-chan T, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	raw, err := c.subscribe(ctx, channel, symbol)
	if err != nil {
		return nil, err
	}

	out := make(chan T, c.streamBuffer())
	go func() {
		defer close(out)
		for data := range raw {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				c.logger.Error("unmarshal stream payload", "channel", channel, "symbol", symbol, "error", err)
				continue
			}
			select {
			case out <- v:
			default:
				select {
				case <-out: // drop oldest
				default:
				}
				select {
				case out <- v:
				default:
				}
				c.metrics.WSDropped(channel)
			}
		}
	}()
	return out, nil
}

func (c *WSClient) streamBuffer() int {
	if c.cfg.StreamBuffer > 0 {
		return c.cfg.StreamBuffer
	}
	return 256
}

// subscribe registers a (channel, symbol) subscription. If connected, the
// subscribe frame is sent immediately; otherwise it is sent on the next
// (re)connect. Cancelling ctx unsubscribes.
func (c *WSClient) subscribe(ctx context.Context, channel, symbol string) (chan json.RawMessage, error) {
	key := subKey{channel: channel, symbol: symbol}

	c.subsMu.Lock()
	if c.closed.Load() {
		c.subsMu.Unlock()
		return nil, fmt.Errorf("websocket client closed")
	}
	if _, exists := c.subs[key]; exists {
		c.subsMu.Unlock()
		return nil, fmt.Errorf("already subscribed to %s:%s", channel, symbol)
	}
	sub := &wsSub{key: key, raw: make(chan json.RawMessage, c.streamBuffer())}
	c.subs[key] = sub
	c.subsMu.Unlock()

	if c.State() == StateConnected {
		if err := c.writeJSON(subscribeFrame("subscribe", channel, symbol)); err != nil {
			// The frame will be replayed on reconnect; not fatal.
			c.logger.Warn("subscribe frame failed", "channel", channel, "symbol", symbol, "error", err)
		}
	}

	go func() {
		<-ctx.Done()
		c.unsubscribe(key)
	}()

	return sub.raw, nil
}

// unsubscribe removes a subscription, closes its stream, and notifies the
// server when connected.
func (c *WSClient) unsubscribe(key subKey) {
	c.subsMu.Lock()
	sub, ok := c.subs[key]
	if ok {
		delete(c.subs, key)
		close(sub.raw)
	}
	c.subsMu.Unlock()
	if !ok {
		return
	}

	if c.State() == StateConnected {
		if err := c.writeJSON(subscribeFrame("unsubscribe", key.channel, key.symbol)); err != nil {
			c.logger.Debug("unsubscribe frame failed", "channel", key.channel, "symbol", key.symbol, "error", err)
		}
	}
}

func subscribeFrame(op, channel, symbol string) types.WSSubscribeMsg {
	return types.WSSubscribeMsg{
		Type:         op,
		Subscription: types.WSSubscription{Name: channel, ID: symbol},
	}
}

// connectAndRead dials, replays subscriptions, and reads frames until the
// connection drops. connected reports whether the handshake completed, so
// Run can distinguish a recovered outage from a failed attempt.
func (c *WSClient) connectAndRead(ctx context.Context) (connected bool, err error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.state.Store(int32(StateConnected))

	defer func() {
		c.connMu.Lock()
		conn.Close()
		c.conn = nil
		c.connMu.Unlock()
	}()

	// Replay every active subscription exactly once per connection.
	if err := c.resubscribe(); err != nil {
		return true, fmt.Errorf("resubscribe: %w", err)
	}

	c.logger.Info("websocket connected", "subscriptions", c.subCount())

	// Liveness: each pong (or data frame) extends the read deadline.
	deadline := c.cfg.KeepAliveInterval + c.cfg.KeepAliveTimeout
	conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go c.pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(deadline))
		c.dispatch(msg)
	}
}

func (c *WSClient) resubscribe() error {
	c.subsMu.RLock()
	keys := make([]subKey, 0, len(c.subs))
	for key := range c.subs {
		keys = append(keys, key)
	}
	c.subsMu.RUnlock()

	for _, key := range keys {
		if err := c.writeJSON(subscribeFrame("subscribe", key.channel, key.symbol)); err != nil {
			return err
		}
	}
	return nil
}

func (c *WSClient) subCount() int {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return len(c.subs)
}

// dispatch routes one server frame to its subscription. Messages are
// delivered in receive order per subscription; a full buffer drops the
// oldest item.
func (c *WSClient) dispatch(data []byte) {
	var env types.WSEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}
	if env.Type == "" {
		return
	}

	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	sub, ok := c.subs[subKey{channel: env.Type, symbol: env.ID}]
	if !ok {
		c.logger.Debug("frame for inactive subscription", "channel", env.Type, "symbol", env.ID)
		return
	}

	select {
	case sub.raw <- env.Data:
	default:
		select {
		case <-sub.raw: // drop oldest
		default:
		}
		select {
		case sub.raw <- env.Data:
		default:
		}
		c.metrics.WSDropped(env.Type)
	}
}

func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.KeepAliveTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (c *WSClient) writeJSON(v any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(v)
}
