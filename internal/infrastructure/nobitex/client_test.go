package nobitex_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xausdorf/payrelay/internal/domain/apperror"
	"github.com/Xausdorf/payrelay/internal/domain/exchange"
	"github.com/Xausdorf/payrelay/internal/infrastructure/nobitex"
)

func newServer(t *testing.T, handler http.HandlerFunc) *nobitex.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return nobitex.NewClient(srv.URL, "api-key", time.Second)
}

func TestGetBalance_CoercesNumericStrings(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/balance", r.URL.Path)
		assert.Equal(t, "Token api-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"assets":{"usdt":"1.5","rls":2500000,"btc":"0"}}`))
	})

	balance, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, exchange.Balance{"usdt": 1.5, "rls": 2500000, "btc": 0}, balance)
}

func TestGetBalance_Non2xxIsExchangeError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status":"failed","message":"bad token"}`))
	})

	_, err := c.GetBalance(context.Background())

	var exErr *apperror.ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, http.StatusForbidden, exErr.Status)
	assert.Contains(t, exErr.Body, "bad token")
}

func TestPlaceOrder_MapsNumericIDAndStringFilled(t *testing.T) {
	var got map[string]any
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":98765,"status":"Active","filled":"12.25"}`))
	})

	order, err := c.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "USDTIRT", Type: exchange.OrderBuy, Amount: 500000,
	})
	require.NoError(t, err)
	assert.Equal(t, &exchange.Order{OrderID: "98765", Status: "Active", Filled: 12.25}, order)
	assert.Equal(t, "USDTIRT", got["symbol"])
	assert.Equal(t, "buy", got["type"])
	assert.EqualValues(t, 500000, got["amount"])
}

func TestPlaceOrder_RemoteRejectionSurfaces(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"OverValueOrder"}`))
	})

	_, err := c.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "USDTIRT", Type: exchange.OrderSell, Amount: 1,
	})

	var exErr *apperror.ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, "place order", exErr.Op)
	assert.Equal(t, http.StatusUnprocessableEntity, exErr.Status)
}

func TestPlaceOrder_InvalidType(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("exchange must not be called")
	})

	_, err := c.PlaceOrder(context.Background(), exchange.OrderRequest{Symbol: "USDTIRT", Type: "hold", Amount: 1})

	var vErr *apperror.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "type", vErr.Field)
}

func TestWithdraw_ReturnsRawResult(t *testing.T) {
	var got map[string]any
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/withdrawals", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"ok","withdraw":{"id":7,"amount":"10.5"}}`))
	})

	out, err := c.Withdraw(context.Background(), exchange.WithdrawRequest{Address: "TXYZ", Amount: 10.5})
	require.NoError(t, err)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "usdt", got["currency"])
	assert.Equal(t, "TXYZ", got["address"])
	assert.EqualValues(t, 10.5, got["amount"])
}

func TestWithdraw_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := nobitex.NewClient(url, "api-key", time.Second)
	_, err := c.Withdraw(context.Background(), exchange.WithdrawRequest{Address: "TXYZ", Amount: 1})

	var exErr *apperror.ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Zero(t, exErr.Status)
}
