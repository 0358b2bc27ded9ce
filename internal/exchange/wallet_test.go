package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbgo/pkg/types"
)

func TestWithdrawValidation(t *testing.T) {
	t.Parallel()

	c := newTestClient(testConfig("http://unreachable.invalid"))
	qty := decimal.NewFromInt(1)

	cases := []struct {
		name   string
		symbol string
		req    types.WithdrawRequest
	}{
		{"zero quantity", "BTC", types.WithdrawRequest{Address: "bc1q..."}},
		{"negative quantity", "BTC", types.WithdrawRequest{Quantity: qty.Neg(), Address: "bc1q..."}},
		{"crypto without destination", "BTC", types.WithdrawRequest{Quantity: qty}},
		{"fiat without bank account", "BRL", types.WithdrawRequest{Quantity: qty}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Withdraw(context.Background(), "acc-1", tc.symbol, tc.req)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindValidation))
		})
	}
}

func TestWithdrawFiatAcceptsAccountRef(t *testing.T) {
	t.Parallel()

	var authCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", authHandler(&authCalls))
	mux.HandleFunc("POST /accounts/{account}/wallet/BRL/withdraw", func(w http.ResponseWriter, r *http.Request) {
		var req types.WithdrawRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bank-1", req.AccountRef)
		require.NoError(t, json.NewEncoder(w).Encode(types.Withdrawal{Quantity: req.Quantity}))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(testConfig(srv.URL))

	w, err := c.Withdraw(context.Background(), "acc-1", "BRL", types.WithdrawRequest{
		Quantity:   decimal.RequireFromString("150.50"),
		AccountRef: "bank-1",
	})
	require.NoError(t, err)
	assert.True(t, w.Quantity.Equal(decimal.RequireFromString("150.50")))
}

func TestDepositsPagerWalksPages(t *testing.T) {
	t.Parallel()

	var authCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", authHandler(&authCalls))
	mux.HandleFunc("GET /accounts/{account}/wallet/{symbol}/deposits", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))

		// Two full pages, then a short one.
		n := limit
		if page == 3 {
			n = 1
		}
		out := make([]types.Deposit, n)
		for i := range out {
			out[i].ID = strconv.Itoa((page-1)*limit + i)
		}
		require.NoError(t, json.NewEncoder(w).Encode(out))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(testConfig(srv.URL))

	deposits, err := c.DepositsPager("acc-1", "BTC", 2).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, deposits, 5)
	assert.Equal(t, "0", deposits[0].ID)
	assert.Equal(t, "4", deposits[4].ID)
}
