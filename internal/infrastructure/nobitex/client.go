package nobitex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/Xausdorf/payrelay/internal/domain/apperror"
	"github.com/Xausdorf/payrelay/internal/domain/exchange"
	"github.com/Xausdorf/payrelay/internal/infrastructure/httpclient"
)

const (
	balancePath  = "/v1/balance"
	ordersPath   = "/v1/orders"
	withdrawPath = "/v1/withdrawals"

	withdrawCurrency = "usdt"
)

type Client struct {
	http   *httpclient.Client
	apiKey string
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		http:   httpclient.New("nobitex", baseURL, timeout),
		apiKey: apiKey,
	}
}

var _ exchange.Exchange = (*Client)(nil)

type balanceResponse struct {
	Assets map[string]decimal.Decimal `json:"assets"`
}

type orderResponse struct {
	ID     flexString      `json:"id"`
	Status string          `json:"status"`
	Filled decimal.Decimal `json:"filled"`
}

type withdrawRequest struct {
	Currency string  `json:"currency"`
	Address  string  `json:"address"`
	Amount   float64 `json:"amount"`
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

func (c *Client) GetBalance(ctx context.Context) (exchange.Balance, error) {
	var out balanceResponse
	if err := c.call(ctx, "get balance", http.MethodGet, balancePath, nil, &out); err != nil {
		return nil, err
	}

	balance := make(exchange.Balance, len(out.Assets))
	for asset, qty := range out.Assets {
		balance[asset] = qty.InexactFloat64()
	}
	return balance, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var out orderResponse
	if err := c.call(ctx, "place order", http.MethodPost, ordersPath, req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &apperror.ExchangeError{Op: "place order", Status: http.StatusOK, Err: errors.New("id missing from response")}
	}
	return &exchange.Order{
		OrderID: string(out.ID),
		Status:  out.Status,
		Filled:  out.Filled.InexactFloat64(),
	}, nil
}

func (c *Client) Withdraw(ctx context.Context, req exchange.WithdrawRequest) (map[string]any, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body := withdrawRequest{Currency: withdrawCurrency, Address: req.Address, Amount: req.Amount}
	var out map[string]any
	if err := c.call(ctx, "withdraw", http.MethodPost, withdrawPath, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, op, method, path string, body, out any) error {
	req := c.http.R(ctx).SetHeader("Authorization", "Token "+c.apiKey)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	slog.InfoContext(ctx, "nobitex call started", slog.String("op", op))
	resp, err := c.http.Do(req, method, path)
	if err != nil {
		return &apperror.ExchangeError{Op: op, Err: err}
	}
	slog.InfoContext(ctx, "nobitex call completed", slog.String("op", op), slog.Int("status", resp.StatusCode()))

	return decode(op, resp, out)
}

func decode(op string, resp *resty.Response, out any) error {
	if !httpclient.IsSuccess(resp) {
		return &apperror.ExchangeError{Op: op, Status: resp.StatusCode(), Body: resp.String()}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &apperror.ExchangeError{Op: op, Status: resp.StatusCode(), Body: resp.String(), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
