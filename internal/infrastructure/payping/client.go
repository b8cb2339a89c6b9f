package payping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Xausdorf/payrelay/internal/domain/apperror"
	"github.com/Xausdorf/payrelay/internal/domain/payment"
	"github.com/Xausdorf/payrelay/internal/infrastructure/httpclient"
)

const (
	tokenPath  = "/token"
	payPath    = "/new/v2/pay"
	verifyPath = "/new/v2/pay/verify"
	payoutPath = "/v2/payouts"

	tokenExpirySkew = 30 * time.Second
)

type Credentials struct {
	ClientID     string
	ClientSecret string
}

type Client struct {
	http    *httpclient.Client
	creds   Credentials
	timeout time.Duration
	now     func() time.Time
	fetches singleflight.Group

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(baseURL string, creds Credentials, timeout time.Duration) *Client {
	return &Client{
		http:    httpclient.New("payping", baseURL, timeout),
		creds:   creds,
		timeout: timeout,
		now:     time.Now,
	}
}

var _ payment.Gateway = (*Client)(nil)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type createResponse struct {
	Code       string `json:"code"`
	PaymentURL string `json:"paymentUrl"`
	URL        string `json:"url"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

type verifyResponse struct {
	Status *string `json:"status"`
	Amount int64   `json:"amount"`
}

type payoutResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Authenticate exchanges the client credentials for a bearer token. A token
// with a known lifetime is reused until shortly before it expires. Concurrent
// callers share one in-flight token request and each of them stops waiting
// when its own ctx is done.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	if token, ok := c.cachedToken(); ok {
		return token, nil
	}

	ch := c.fetches.DoChan(tokenPath, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.fetchToken(fetchCtx)
	})
	select {
	case <-ctx.Done():
		return "", &apperror.AuthError{Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) cachedToken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, true
	}
	return "", false
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	req := c.http.R(ctx).SetFormData(map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.creds.ClientID,
		"client_secret": c.creds.ClientSecret,
	})
	resp, err := c.http.Do(req, http.MethodPost, tokenPath)
	if err != nil {
		return "", &apperror.AuthError{Err: err}
	}
	if !httpclient.IsSuccess(resp) {
		return "", &apperror.AuthError{Status: resp.StatusCode(), Body: resp.String()}
	}

	var tok tokenResponse
	if err := json.Unmarshal(resp.Body(), &tok); err != nil {
		return "", &apperror.AuthError{Status: resp.StatusCode(), Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tok.AccessToken == "" {
		return "", &apperror.AuthError{Status: resp.StatusCode(), Err: errors.New("access_token missing from response")}
	}

	c.mu.Lock()
	c.token = ""
	if tok.ExpiresIn > 0 {
		c.token = tok.AccessToken
		c.tokenExpiry = c.now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpirySkew)
	}
	c.mu.Unlock()
	return tok.AccessToken, nil
}

func (c *Client) CreatePayment(ctx context.Context, req payment.Request) (*payment.Created, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var out createResponse
	if err := c.post(ctx, "create payment", payPath, req, &out); err != nil {
		return nil, err
	}

	paymentURL := out.PaymentURL
	if paymentURL == "" {
		paymentURL = out.URL
	}
	if out.Code == "" || paymentURL == "" {
		return nil, &apperror.GatewayError{Op: "create payment", Status: http.StatusOK, Err: errors.New("code or payment url missing from response")}
	}
	return &payment.Created{Code: out.Code, PaymentURL: paymentURL}, nil
}

func (c *Client) VerifyPayment(ctx context.Context, code string) (*payment.Verification, error) {
	if code == "" {
		return nil, apperror.Invalid("code", "is required")
	}

	var out verifyResponse
	if err := c.post(ctx, "verify payment", verifyPath, verifyRequest{Code: code}, &out); err != nil {
		return nil, err
	}
	if out.Status == nil {
		return nil, &apperror.GatewayError{Op: "verify payment", Status: http.StatusOK, Err: errors.New("status missing from response")}
	}
	return &payment.Verification{Status: *out.Status, Amount: out.Amount}, nil
}

func (c *Client) CreatePayout(ctx context.Context, req payment.PayoutRequest) (*payment.Payout, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var out payoutResponse
	if err := c.post(ctx, "create payout", payoutPath, req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &apperror.GatewayError{Op: "create payout", Status: http.StatusOK, Err: errors.New("id missing from response")}
	}
	return &payment.Payout{PayoutID: out.ID, Status: out.Status}, nil
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "payping call started", slog.String("op", op))
	req := c.http.R(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	resp, err := c.http.Do(req, http.MethodPost, path)
	if err != nil {
		return &apperror.GatewayError{Op: op, Err: err}
	}
	slog.InfoContext(ctx, "payping call completed", slog.String("op", op), slog.Int("status", resp.StatusCode()))

	return decode(op, resp, out)
}

func decode(op string, resp *resty.Response, out any) error {
	if !httpclient.IsSuccess(resp) {
		return &apperror.GatewayError{Op: op, Status: resp.StatusCode(), Body: resp.String()}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &apperror.GatewayError{Op: op, Status: resp.StatusCode(), Body: resp.String(), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
