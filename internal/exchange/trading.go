// trading.go — order placement, retrieval, and cancellation. Mutating calls
// draw from the Trading scope (3/s); listings draw from ListOrders (10/s).
package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"mbgo/pkg/types"
)

// ListOrders lists orders for one account/symbol, newest first, narrowed by
// the filter.
func (c *Client) ListOrders(ctx context.Context, accountID, symbol string, f types.ListOrdersFilter) ([]types.Order, error) {
	if accountID == "" {
		return nil, newValidation("accountID is required")
	}
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	if f.CreatedFrom > 0 && f.CreatedTo > 0 && f.CreatedFrom > f.CreatedTo {
		return nil, newValidation("orders window inverted: from %d > to %d", f.CreatedFrom, f.CreatedTo)
	}

	query := map[string]string{}
	if f.HasExecutions != nil {
		query["has_executions"] = strconv.FormatBool(*f.HasExecutions)
	}
	if f.Side != "" {
		if !f.Side.Valid() {
			return nil, newValidation("invalid side %q", f.Side)
		}
		query["side"] = string(f.Side)
	}
	if f.Status != "" {
		query["status"] = f.Status
	}
	if f.IDFrom != "" {
		query["id_from"] = f.IDFrom
	}
	if f.IDTo != "" {
		query["id_to"] = f.IDTo
	}
	if f.CreatedFrom > 0 {
		query["created_at_from"] = strconv.FormatInt(f.CreatedFrom, 10)
	}
	if f.CreatedTo > 0 {
		query["created_at_to"] = strconv.FormatInt(f.CreatedTo, 10)
	}
	if f.Limit > 0 {
		query["limit"] = strconv.Itoa(f.Limit)
	}

	var out []types.Order
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/accounts/%s/%s/orders", accountID, symbol),
		scope:  ScopeListOrders,
		query:  query,
		out:    &out,
	})
	return out, err
}

// OrdersPager returns a cursor pager over ListOrders, treating the last
// returned order id as the next id_from cursor. Iteration stops on a short
// page.
func (c *Client) OrdersPager(accountID, symbol string, f types.ListOrdersFilter, pageSize int) *CursorPages[types.Order] {
	fetch := func(ctx context.Context, limit int, cursor string) ([]types.Order, error) {
		pf := f
		pf.Limit = limit
		if cursor != "" {
			pf.IDFrom = cursor
		}
		return c.ListOrders(ctx, accountID, symbol, pf)
	}
	return NewCursorPages(fetch, pageSize, func(o types.Order) string { return o.ID })
}

// PlaceOrder submits a new order. Validation follows the order type: limit
// needs a limit price, stoplimit additionally a stop price, and market
// orders need exactly one of qty or cost. A missing externalId is filled
// with a fresh uuid so fills can always be correlated.
func (c *Client) PlaceOrder(ctx context.Context, accountID, symbol string, req types.PlaceOrderRequest) (*types.PlaceOrderResponse, error) {
	if accountID == "" {
		return nil, newValidation("accountID is required")
	}
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	if !req.Side.Valid() {
		return nil, newValidation("invalid side %q", req.Side)
	}
	if !req.Type.Valid() {
		return nil, newValidation("invalid order type %q", req.Type)
	}

	switch req.Type {
	case types.OrderTypeMarket:
		if req.Qty.IsZero() == req.Cost.IsZero() {
			return nil, newValidation("market order needs exactly one of qty or cost")
		}
	case types.OrderTypeLimit, types.OrderTypePostOnly:
		if req.Qty.IsZero() || req.LimitPrice.IsZero() {
			return nil, newValidation("%s order needs qty and limitPrice", req.Type)
		}
	case types.OrderTypeStopLimit:
		if req.Qty.IsZero() || req.LimitPrice.IsZero() || req.StopPrice.IsZero() {
			return nil, newValidation("stoplimit order needs qty, limitPrice and stopPrice")
		}
	}
	if req.Qty.IsNegative() || req.Cost.IsNegative() || req.LimitPrice.IsNegative() || req.StopPrice.IsNegative() {
		return nil, newValidation("order amounts must be positive")
	}
	if req.ExternalID == "" {
		req.ExternalID = uuid.NewString()
	}

	var out types.PlaceOrderResponse
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   fmt.Sprintf("/accounts/%s/%s/orders", accountID, symbol),
		scope:  ScopeTrading,
		body:   req,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder fetches one order by id.
func (c *Client) GetOrder(ctx context.Context, accountID, symbol, orderID string) (*types.Order, error) {
	if accountID == "" || orderID == "" {
		return nil, newValidation("accountID and orderID are required")
	}
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	var out types.Order
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/accounts/%s/%s/orders/%s", accountID, symbol, orderID),
		scope:  ScopeListOrders,
		key:    "/orders/get",
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder cancels one order. With async the server acknowledges before
// the cancellation is final.
func (c *Client) CancelOrder(ctx context.Context, accountID, symbol, orderID string, async bool) error {
	if accountID == "" || orderID == "" {
		return newValidation("accountID and orderID are required")
	}
	if err := validateSymbol(symbol); err != nil {
		return err
	}
	query := map[string]string{}
	if async {
		query["async"] = "true"
	}
	return c.do(ctx, call{
		method: http.MethodDelete,
		path:   fmt.Sprintf("/accounts/%s/%s/orders/%s", accountID, symbol, orderID),
		scope:  ScopeTrading,
		query:  query,
	})
}

// CancelAllOpenOrders cancels every open order in the account, optionally
// scoped to one symbol or to orders with/without executions.
func (c *Client) CancelAllOpenOrders(ctx context.Context, accountID string, f types.CancelAllFilter) ([]types.CancelAllResult, error) {
	if accountID == "" {
		return nil, newValidation("accountID is required")
	}
	query := map[string]string{}
	if f.Symbol != "" {
		if err := validateSymbol(f.Symbol); err != nil {
			return nil, err
		}
		query["symbol"] = f.Symbol
	}
	if f.HasExecutions != nil {
		query["has_executions"] = strconv.FormatBool(*f.HasExecutions)
	}

	var out []types.CancelAllResult
	err := c.do(ctx, call{
		method: http.MethodDelete,
		path:   fmt.Sprintf("/accounts/%s/cancel_all_open_orders", accountID),
		scope:  ScopeTrading,
		query:  query,
		out:    &out,
	})
	return out, err
}
