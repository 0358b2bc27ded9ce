// wallet.go — deposits, withdrawals, and their configuration. Authenticated;
// only the global rate-limit window applies.
package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"mbgo/pkg/types"
)

// Deposits lists crypto deposits for one asset, paginated.
func (c *Client) Deposits(ctx context.Context, accountID, symbol string, limit, page int) ([]types.Deposit, error) {
	if accountID == "" {
		return nil, newValidation("accountID is required")
	}
	if err := validateAsset(symbol); err != nil {
		return nil, err
	}
	query := map[string]string{}
	if limit > 0 {
		query["limit"] = strconv.Itoa(limit)
	}
	if page > 0 {
		query["page"] = strconv.Itoa(page)
	}
	var out []types.Deposit
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/accounts/%s/wallet/%s/deposits", accountID, symbol),
		scope:  ScopeGlobal,
		query:  query,
		out:    &out,
	})
	return out, err
}

// DepositsPager returns a lazy pager over Deposits.
func (c *Client) DepositsPager(accountID, symbol string, pageSize int) *Pages[types.Deposit] {
	fetch := func(ctx context.Context, limit, page int) ([]types.Deposit, error) {
		return c.Deposits(ctx, accountID, symbol, limit, page)
	}
	return NewPages(fetch, pageSize)
}

// DepositAddresses lists receive addresses for an asset, optionally scoped
// to one network.
func (c *Client) DepositAddresses(ctx context.Context, accountID, symbol, network string) ([]types.DepositAddress, error) {
	if accountID == "" {
		return nil, newValidation("accountID is required")
	}
	if err := validateAsset(symbol); err != nil {
		return nil, err
	}
	query := map[string]string{}
	if network != "" {
		query["network"] = network
	}
	var out []types.DepositAddress
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/accounts/%s/wallet/%s/deposits/addresses", accountID, symbol),
		scope:  ScopeGlobal,
		query:  query,
		out:    &out,
	})
	return out, err
}

// FiatDeposits lists BRL deposits.
func (c *Client) FiatDeposits(ctx context.Context, accountID string, limit, page int) ([]types.FiatDeposit, error) {
	if accountID == "" {
		return nil, newValidation("accountID is required")
	}
	query := map[string]string{}
	if limit > 0 {
		query["limit"] = strconv.Itoa(limit)
	}
	if page > 0 {
		query["page"] = strconv.Itoa(page)
	}
	var out []types.FiatDeposit
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/accounts/%s/wallet/fiat/deposits", accountID),
		scope:  ScopeGlobal,
		query:  query,
		out:    &out,
	})
	return out, err
}

// Withdraw submits a withdrawal. Crypto withdrawals need a destination
// address (or a registered address id); BRL withdrawals need a bank account
// reference.
func (c *Client) Withdraw(ctx context.Context, accountID, symbol string, req types.WithdrawRequest) (*types.Withdrawal, error) {
	if accountID == "" {
		return nil, newValidation("accountID is required")
	}
	if err := validateAsset(symbol); err != nil {
		return nil, err
	}
	if req.Quantity.IsZero() || req.Quantity.IsNegative() {
		return nil, newValidation("withdraw quantity must be positive")
	}
	if strings.EqualFold(symbol, "BRL") {
		if req.AccountRef == "" {
			return nil, newValidation("BRL withdrawal needs account_ref")
		}
	} else if req.Address == "" && req.AccountRef == "" {
		return nil, newValidation("crypto withdrawal needs address or account_ref")
	}

	var out types.Withdrawal
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   fmt.Sprintf("/accounts/%s/wallet/%s/withdraw", accountID, symbol),
		scope:  ScopeGlobal,
		body:   req,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Withdrawals lists withdrawals for one asset, paginated.
func (c *Client) Withdrawals(ctx context.Context, accountID, symbol string, limit, page int) ([]types.Withdrawal, error) {
	if accountID == "" {
		return nil, newValidation("accountID is required")
	}
	if err := validateAsset(symbol); err != nil {
		return nil, err
	}
	query := map[string]string{}
	if limit > 0 {
		query["limit"] = strconv.Itoa(limit)
	}
	if page > 0 {
		query["page"] = strconv.Itoa(page)
	}
	var out []types.Withdrawal
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/accounts/%s/wallet/%s/withdraw", accountID, symbol),
		scope:  ScopeGlobal,
		query:  query,
		out:    &out,
	})
	return out, err
}

// GetWithdrawal fetches one withdrawal by id.
func (c *Client) GetWithdrawal(ctx context.Context, accountID, symbol string, withdrawID int64) (*types.Withdrawal, error) {
	if accountID == "" || withdrawID <= 0 {
		return nil, newValidation("accountID and withdrawID are required")
	}
	if err := validateAsset(symbol); err != nil {
		return nil, err
	}
	var out types.Withdrawal
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/accounts/%s/wallet/%s/withdraw/%d", accountID, symbol, withdrawID),
		scope:  ScopeGlobal,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// WithdrawLimits returns remaining daily limits, optionally for a subset of
// assets.
func (c *Client) WithdrawLimits(ctx context.Context, accountID string, symbols []string) ([]types.WithdrawLimit, error) {
	if accountID == "" {
		return nil, newValidation("accountID is required")
	}
	query := map[string]string{}
	if len(symbols) > 0 {
		query["symbols"] = strings.Join(symbols, ",")
	}
	var out []types.WithdrawLimit
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/accounts/%s/wallet/limits", accountID),
		scope:  ScopeGlobal,
		query:  query,
		out:    &out,
	})
	return out, err
}

// BRLWithdrawConfig returns the fiat withdrawal configuration.
func (c *Client) BRLWithdrawConfig(ctx context.Context, accountID string) (*types.BRLWithdrawConfig, error) {
	if accountID == "" {
		return nil, newValidation("accountID is required")
	}
	var out types.BRLWithdrawConfig
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/accounts/%s/wallet/fiat/brl/withdraw-config", accountID),
		scope:  ScopeGlobal,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// WithdrawAddresses lists pre-registered crypto withdrawal destinations.
func (c *Client) WithdrawAddresses(ctx context.Context, accountID, symbol string) ([]types.WithdrawAddress, error) {
	if accountID == "" {
		return nil, newValidation("accountID is required")
	}
	if err := validateAsset(symbol); err != nil {
		return nil, err
	}
	var out []types.WithdrawAddress
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/accounts/%s/wallet/%s/withdraw/addresses", accountID, symbol),
		scope:  ScopeGlobal,
		out:    &out,
	})
	return out, err
}

// BankAccounts lists registered fiat destinations.
func (c *Client) BankAccounts(ctx context.Context, accountID string) ([]types.BankAccount, error) {
	if accountID == "" {
		return nil, newValidation("accountID is required")
	}
	var out []types.BankAccount
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   fmt.Sprintf("/accounts/%s/wallet/bank-accounts", accountID),
		scope:  ScopeGlobal,
		out:    &out,
	})
	return out, err
}
