// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the client — enums, market data
// payloads, account and order representations, and WebSocket envelopes. It has
// no dependencies on internal packages, so it can be imported by any layer.
//
// Every monetary value on the wire is a string; fields use decimal.Decimal so
// no precision is lost between the exchange and the caller (see decimal.go).
package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: buy or sell.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether the side is one of the two wire values.
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// OrderType enumerates the supported order types.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"    // execute immediately at best price
	OrderTypeLimit     OrderType = "limit"     // rest on the book at limitPrice
	OrderTypeStopLimit OrderType = "stoplimit" // becomes a limit order once stopPrice trades
	OrderTypePostOnly  OrderType = "post-only" // limit order that rejects if it would cross
)

// Valid reports whether the order type is a known wire value.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStopLimit, OrderTypePostOnly:
		return true
	}
	return false
}

// OrderStatus is the internal order lifecycle status.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusOpen            OrderStatus = "open"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRejected        OrderStatus = "rejected"
	StatusExpired         OrderStatus = "expired"
)

// Terminal reports whether the status is final — a terminal order never
// transitions again and polling can stop.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// rank orders statuses by lifecycle progress so regressions can be detected.
// Observed transitions must be monotonic; a poll that returns an earlier
// status than the last observation is stale and discarded.
func (s OrderStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusOpen:
		return 1
	case StatusPartiallyFilled:
		return 2
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return 3
	}
	return -1
}

// AtLeast reports whether s is at least as advanced as prev.
func (s OrderStatus) AtLeast(prev OrderStatus) bool { return s.rank() >= prev.rank() }

// StatusFromWire maps the exchange's order status strings to the internal
// enum. Unknown strings map to StatusPending so the tracker keeps polling.
func StatusFromWire(wire string) OrderStatus {
	switch wire {
	case "created", "pending":
		return StatusPending
	case "working", "open":
		return StatusOpen
	case "partially_filled", "partiallyFilled":
		return StatusPartiallyFilled
	case "filled":
		return StatusFilled
	case "cancelled", "canceled":
		return StatusCancelled
	case "rejected":
		return StatusRejected
	case "expired":
		return StatusExpired
	}
	return StatusPending
}

// Resolution is a candle interval accepted by the candles endpoint.
type Resolution string

const (
	Resolution1m  Resolution = "1m"
	Resolution15m Resolution = "15m"
	Resolution1h  Resolution = "1h"
	Resolution3h  Resolution = "3h"
	Resolution1d  Resolution = "1d"
	Resolution1w  Resolution = "1w"
	Resolution1M  Resolution = "1M"
)

// Valid reports whether the resolution is one the exchange accepts.
func (r Resolution) Valid() bool {
	switch r {
	case Resolution1m, Resolution15m, Resolution1h, Resolution3h,
		Resolution1d, Resolution1w, Resolution1M:
		return true
	}
	return false
}

// ————————————————————————————————————————————————————————————————————————
// Public market data
// ————————————————————————————————————————————————————————————————————————

// Ticker is the 24h rolling statistics for one symbol, from GET /tickers.
type Ticker struct {
	Pair string          `json:"pair"` // e.g. "BTC-BRL"
	High decimal.Decimal `json:"high"`
	Low  decimal.Decimal `json:"low"`
	Vol  decimal.Decimal `json:"vol"`
	Last decimal.Decimal `json:"last"`
	Buy  decimal.Decimal `json:"buy"`  // best bid
	Sell decimal.Decimal `json:"sell"` // best ask
	Open decimal.Decimal `json:"open"`
	Date int64           `json:"date"` // unix seconds
}

// OrderBookPayload is the REST response from GET /{symbol}/orderbook.
// Levels arrive as ["price","quantity"] string pairs (see PriceLevel codec).
type OrderBookPayload struct {
	Asks      []PriceLevel `json:"asks"` // ascending by price
	Bids      []PriceLevel `json:"bids"` // descending by price
	Timestamp int64        `json:"timestamp"`
	UpdateID  int64        `json:"update_id,omitempty"`
}

// Trade is a single public trade from GET /{symbol}/trades.
type Trade struct {
	TID    int64           `json:"tid"`
	Date   int64           `json:"date"` // unix seconds
	Type   Side            `json:"type"` // taker side
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// RawCandles is the column-oriented candles response from GET /candles
// (TradingView style: parallel arrays per field).
type RawCandles struct {
	Timestamps []int64           `json:"t"`
	Opens      []decimal.Decimal `json:"o"`
	Highs      []decimal.Decimal `json:"h"`
	Lows       []decimal.Decimal `json:"l"`
	Closes     []decimal.Decimal `json:"c"`
	Volumes    []decimal.Decimal `json:"v"`
}

// Rows converts the column-oriented payload into per-bar Candle values.
// Short columns are tolerated; the shortest column bounds the result.
func (r RawCandles) Rows() []Candle {
	n := len(r.Timestamps)
	for _, m := range []int{len(r.Opens), len(r.Highs), len(r.Lows), len(r.Closes), len(r.Volumes)} {
		if m < n {
			n = m
		}
	}
	out := make([]Candle, n)
	for i := 0; i < n; i++ {
		out[i] = Candle{
			Timestamp: r.Timestamps[i],
			Open:      r.Opens[i],
			High:      r.Highs[i],
			Low:       r.Lows[i],
			Close:     r.Closes[i],
			Volume:    r.Volumes[i],
		}
	}
	return out
}

// SymbolInfo is the metadata for one trading symbol.
type SymbolInfo struct {
	Symbol          string          // e.g. "BTC-BRL"
	Description     string          // e.g. "Bitcoin"
	Currency        string          // quote currency, e.g. "BRL"
	BaseCurrency    string          // base currency, e.g. "BTC"
	ExchangeListed  bool            // listed on the exchange
	ExchangeTraded  bool            // currently tradeable
	MinMovement     decimal.Decimal // price tick
	PricePrecision  int32
	AmountPrecision int32
	MinOrderAmount  decimal.Decimal
	MaxOrderAmount  decimal.Decimal
}

// RawSymbols is the column-oriented symbols response from GET /symbols.
type RawSymbols struct {
	Symbol          []string          `json:"symbol"`
	Description     []string          `json:"description"`
	Currency        []string          `json:"currency"`
	BaseCurrency    []string          `json:"base-currency"`
	ExchangeListed  []bool            `json:"exchange-listed"`
	ExchangeTraded  []bool            `json:"exchange-traded"`
	MinMovement     []decimal.Decimal `json:"minmovement"`
	PricePrecision  []int32           `json:"pricescale"`
	AmountPrecision []int32           `json:"amount-precision"`
	MinOrderAmount  []decimal.Decimal `json:"min-order-amount"`
	MaxOrderAmount  []decimal.Decimal `json:"max-order-amount"`
}

// Rows converts the column-oriented payload into per-symbol records.
// Columns beyond the symbol column that are short are zero-filled.
func (r RawSymbols) Rows() []SymbolInfo {
	out := make([]SymbolInfo, len(r.Symbol))
	for i := range r.Symbol {
		s := SymbolInfo{Symbol: r.Symbol[i]}
		if i < len(r.Description) {
			s.Description = r.Description[i]
		}
		if i < len(r.Currency) {
			s.Currency = r.Currency[i]
		}
		if i < len(r.BaseCurrency) {
			s.BaseCurrency = r.BaseCurrency[i]
		}
		if i < len(r.ExchangeListed) {
			s.ExchangeListed = r.ExchangeListed[i]
		}
		if i < len(r.ExchangeTraded) {
			s.ExchangeTraded = r.ExchangeTraded[i]
		}
		if i < len(r.MinMovement) {
			s.MinMovement = r.MinMovement[i]
		}
		if i < len(r.PricePrecision) {
			s.PricePrecision = r.PricePrecision[i]
		}
		if i < len(r.AmountPrecision) {
			s.AmountPrecision = r.AmountPrecision[i]
		}
		if i < len(r.MinOrderAmount) {
			s.MinOrderAmount = r.MinOrderAmount[i]
		}
		if i < len(r.MaxOrderAmount) {
			s.MaxOrderAmount = r.MaxOrderAmount[i]
		}
		out[i] = s
	}
	return out
}

// AssetFee is the withdrawal fee for one asset, from GET /{asset}/fees.
type AssetFee struct {
	Asset         string          `json:"asset"`
	Network       string          `json:"network,omitempty"`
	WithdrawalFee decimal.Decimal `json:"withdrawal_fee"`
}

// NetworkInfo describes one deposit/withdrawal network for an asset.
type NetworkInfo struct {
	Coin            string `json:"coin"`
	Network         string `json:"network"`
	DepositEnabled  bool   `json:"deposit_enabled"`
	WithdrawEnabled bool   `json:"withdraw_enabled"`
}

// ————————————————————————————————————————————————————————————————————————
// Authorization
// ————————————————————————————————————————————————————————————————————————

// AuthRequest is the body of POST /authorize.
type AuthRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// AuthResponse carries the bearer token returned by POST /authorize.
// Expiration is a unix timestamp in seconds.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	Expiration  int64  `json:"expiration"`
}

// ————————————————————————————————————————————————————————————————————————
// Account
// ————————————————————————————————————————————————————————————————————————

// Account identifies one trading account; most endpoints are scoped by its ID.
type Account struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Currency string `json:"currency"` // settlement currency, e.g. "BRL"
}

// Balance is the per-asset balance inside an account.
type Balance struct {
	Symbol    string          `json:"symbol"` // asset, e.g. "BTC"
	Available decimal.Decimal `json:"available"`
	OnHold    decimal.Decimal `json:"on_hold"`
	Total     decimal.Decimal `json:"total"`
}

// FeeTier is the account's current maker/taker tier from GET /accounts/{id}/tier.
type FeeTier struct {
	Tier     int64           `json:"tier"`
	MakerFee decimal.Decimal `json:"maker_fee"`
	TakerFee decimal.Decimal `json:"taker_fee"`
}

// TradingFees are the per-symbol rates from GET /accounts/{id}/{symbol}/fees.
type TradingFees struct {
	Symbol            string          `json:"symbol"`
	MakerFeeRate      decimal.Decimal `json:"maker_fee_rate"`
	TakerFeeRate      decimal.Decimal `json:"taker_fee_rate"`
	MakerFeeBaseRate  decimal.Decimal `json:"maker_fee_base_rate,omitempty"`
	TakerFeeQuoteRate decimal.Decimal `json:"taker_fee_quote_rate,omitempty"`
}

// Position is an open position from GET /accounts/{id}/positions.
type Position struct {
	ID         string          `json:"id"`
	Instrument string          `json:"instrument"` // symbol
	Side       Side            `json:"side"`
	Qty        decimal.Decimal `json:"qty"`
	AvgPrice   decimal.Decimal `json:"avgPrice"`
	Category   string          `json:"category,omitempty"`
}

// ————————————————————————————————————————————————————————————————————————
// Trading
// ————————————————————————————————————————————————————————————————————————

// Order is one order as returned by the trading endpoints.
type Order struct {
	ID         string          `json:"id"`
	ExternalID string          `json:"externalId,omitempty"` // client-assigned id
	Symbol     string          `json:"instrument"`
	Side       Side            `json:"side"`
	Type       OrderType       `json:"type"`
	Status     string          `json:"status"` // wire status; map with StatusFromWire
	Qty        decimal.Decimal `json:"qty"`
	LimitPrice decimal.Decimal `json:"limitPrice,omitempty"`
	StopPrice  decimal.Decimal `json:"stopPrice,omitempty"`
	Cost       decimal.Decimal `json:"cost,omitempty"` // quote amount for market-by-cost
	FilledQty  decimal.Decimal `json:"filledQty"`
	AvgPrice   decimal.Decimal `json:"avgPrice"` // average fill price
	CreatedAt  int64           `json:"created_at"`
	UpdatedAt  int64           `json:"updated_at,omitempty"`
}

// PlaceOrderRequest is the body of POST /accounts/{id}/{symbol}/orders.
// Exactly one of Qty or Cost is required for market orders; limit and
// stoplimit orders require Qty plus the relevant price fields.
type PlaceOrderRequest struct {
	Side       Side            `json:"side"`
	Type       OrderType       `json:"type"`
	Qty        decimal.Decimal `json:"qty,omitempty"`
	Cost       decimal.Decimal `json:"cost,omitempty"`
	LimitPrice decimal.Decimal `json:"limitPrice,omitempty"`
	StopPrice  decimal.Decimal `json:"stopPrice,omitempty"`
	ExternalID string          `json:"externalId,omitempty"`
	Async      bool            `json:"async,omitempty"`
}

// PlaceOrderResponse is the acknowledgement for a placed order.
type PlaceOrderResponse struct {
	OrderID string `json:"orderId"`
}

// ListOrdersFilter narrows GET /accounts/{id}/{symbol}/orders.
// Zero values mean "no filter". IDFrom/IDTo are order-id cursors; the
// pagination layer treats the last returned id as the next IDFrom.
type ListOrdersFilter struct {
	HasExecutions *bool
	Side          Side
	Status        string // wire status filter
	IDFrom        string
	IDTo          string
	CreatedFrom   int64 // unix seconds, inclusive
	CreatedTo     int64 // unix seconds, inclusive
	Limit         int
}

// CancelAllFilter scopes DELETE /accounts/{id}/cancel_all_open_orders.
type CancelAllFilter struct {
	Symbol        string // empty = all symbols
	HasExecutions *bool  // only orders with/without fills
}

// CancelAllResult reports one symbol's cancellations.
type CancelAllResult struct {
	Symbol   string   `json:"symbol"`
	OrderIDs []string `json:"order_ids"`
}

// ————————————————————————————————————————————————————————————————————————
// Wallet
// ————————————————————————————————————————————————————————————————————————

// Deposit is one crypto deposit from GET /accounts/{id}/wallet/{symbol}/deposits.
type Deposit struct {
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	Network       string          `json:"network,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Address       string          `json:"address,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Status        string          `json:"status"`
	CreatedAt     int64           `json:"created_at"`
}

// DepositAddress is one receive address for an asset/network pair.
type DepositAddress struct {
	Address   string `json:"hash"`
	Network   string `json:"network,omitempty"`
	Extra     string `json:"extra,omitempty"` // memo/tag where the network needs one
	QRCodeURL string `json:"qrcode,omitempty"`
}

// FiatDeposit is one BRL deposit from GET /accounts/{id}/wallet/fiat/deposits.
type FiatDeposit struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Method    string          `json:"method,omitempty"` // e.g. "pix"
	Status    string          `json:"status"`
	CreatedAt int64           `json:"created_at"`
}

// WithdrawRequest is the body of POST /accounts/{id}/wallet/{symbol}/withdraw.
// For crypto withdrawals set Address/Network; for BRL set AccountRef to a
// registered bank account id.
type WithdrawRequest struct {
	Quantity    decimal.Decimal `json:"quantity"`
	Address     string          `json:"address,omitempty"`
	Network     string          `json:"network,omitempty"`
	Extra       string          `json:"extra,omitempty"`
	AccountRef  string          `json:"account_ref,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Withdrawal is one withdrawal record.
type Withdrawal struct {
	ID            int64           `json:"id"`
	Symbol        string          `json:"coin"`
	Network       string          `json:"network,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	Fee           decimal.Decimal `json:"fee"`
	Address       string          `json:"address,omitempty"`
	TransactionID string          `json:"tx,omitempty"`
	Status        string          `json:"status"`
	CreatedAt     int64           `json:"created_at"`
}

// WithdrawLimit is the remaining daily limit for one asset.
type WithdrawLimit struct {
	Symbol    string          `json:"symbol"`
	Limit     decimal.Decimal `json:"limit"`
	Used      decimal.Decimal `json:"used"`
	Available decimal.Decimal `json:"available"`
}

// BRLWithdrawConfig is the fiat withdrawal configuration from
// GET /accounts/{id}/wallet/fiat/brl/withdraw-config.
type BRLWithdrawConfig struct {
	Fee         decimal.Decimal `json:"fee"`
	MinAmount   decimal.Decimal `json:"min_amount"`
	MaxAmount   decimal.Decimal `json:"max_amount"`
	DailyLimit  decimal.Decimal `json:"daily_limit"`
	ProcessHour string          `json:"process_hour,omitempty"`
}

// WithdrawAddress is a pre-registered crypto withdrawal destination.
type WithdrawAddress struct {
	ID      string `json:"id"`
	Symbol  string `json:"symbol"`
	Network string `json:"network,omitempty"`
	Address string `json:"address"`
	Extra   string `json:"extra,omitempty"`
	Label   string `json:"label,omitempty"`
}

// BankAccount is a registered fiat destination.
type BankAccount struct {
	ID       string `json:"id"`
	Bank     string `json:"bank"`
	Branch   string `json:"branch"`
	Account  string `json:"account"`
	Holder   string `json:"holder"`
	Document string `json:"document,omitempty"` // CPF/CNPJ
}

// ————————————————————————————————————————————————————————————————————————
// WebSocket frames
// ————————————————————————————————————————————————————————————————————————
// The stream speaks JSON frames keyed by (channel, symbol). The client sends
// WSSubscribeMsg; the server replies with WSEnvelope frames whose Data payload
// depends on the channel: Ticker for "ticker", Trade for "trade", and
// OrderBookPayload for "orderbook".

// Channel names accepted by the stream.
const (
	ChannelTicker    = "ticker"
	ChannelTrade     = "trade"
	ChannelOrderBook = "orderbook"
)

// WSSubscription identifies one (channel, symbol) stream.
type WSSubscription struct {
	Name  string `json:"name"`            // channel
	ID    string `json:"id"`              // symbol
	Limit int    `json:"limit,omitempty"` // orderbook depth, when supported
}

// WSSubscribeMsg is sent to subscribe or unsubscribe.
type WSSubscribeMsg struct {
	Type         string         `json:"type"` // "subscribe" or "unsubscribe"
	Subscription WSSubscription `json:"subscription"`
}

// WSEnvelope is every server frame: channel, symbol, and a channel-specific
// payload left raw for the dispatcher to decode.
type WSEnvelope struct {
	Type string          `json:"type"` // channel name
	ID   string          `json:"id"`   // symbol
	TS   int64           `json:"ts,omitempty"`
	Data json.RawMessage `json:"data"`
}

// SinceTime converts a unix-seconds field to time.Time, zero-safe.
func SinceTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
