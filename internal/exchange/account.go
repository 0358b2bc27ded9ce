// account.go — authenticated account endpoints. These have no per-second
// category bucket; only the global window applies.
package exchange

import (
	"context"
	"fmt"
	"net/http"

	"mbgo/pkg/types"
)

// Accounts lists the accounts attached to the authenticated user.
func (c *Client) Accounts(ctx context.Context) ([]types.Account, error) {
	var out []types.Account
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/accounts",
		scope:  ScopeGlobal,
		out:    &out,
	})
	return out, err
}

// Balances lists per-asset balances for one account.
func (c *Client) Balances(ctx context.Context, accountID string) ([]types.Balance, error) {
	if accountID == "" {
		return nil, newValidation("accountID is required")
	}
	var out []types.Balance
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/accounts/%s/balances", accountID),
		scope:  ScopeGlobal,
		out:    &out,
	})
	return out, err
}

// Tier returns the account's maker/taker fee tier.
func (c *Client) Tier(ctx context.Context, accountID string) ([]types.FeeTier, error) {
	if accountID == "" {
		return nil, newValidation("accountID is required")
	}
	var out []types.FeeTier
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/accounts/%s/tier", accountID),
		scope:  ScopeGlobal,
		out:    &out,
	})
	return out, err
}

// TradingFees returns the account's effective rates for one symbol.
func (c *Client) TradingFees(ctx context.Context, accountID, symbol string) (*types.TradingFees, error) {
	if accountID == "" {
		return nil, newValidation("accountID is required")
	}
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	var out types.TradingFees
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/accounts/%s/%s/fees", accountID, symbol),
		scope:  ScopeGlobal,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Positions lists the account's open positions.
func (c *Client) Positions(ctx context.Context, accountID string) ([]types.Position, error) {
	if accountID == "" {
		return nil, newValidation("accountID is required")
	}
	var out []types.Position
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/accounts/%s/positions", accountID),
		scope:  ScopeGlobal,
		out:    &out,
	})
	return out, err
}
