package httpclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	breakerTripAfter   = 5
	breakerOpenTimeout = 30 * time.Second
)

var errServerFailure = errors.New("upstream server error")

// Client is a resty client bound to one upstream, with a per-call timeout and
// a circuit breaker. It never retries.
type Client struct {
	rest    *resty.Client
	breaker *gobreaker.CircuitBreaker[*resty.Response]
}

func New(name, baseURL string, timeout time.Duration) *Client {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport))

	breaker := gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:    name,
		Timeout: breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("upstream circuit breaker state changed",
				slog.String("upstream", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &Client{rest: rest, breaker: breaker}
}

// R starts a request carrying ctx.
func (c *Client) R(ctx context.Context) *resty.Request {
	return c.rest.R().SetContext(ctx)
}

// Do executes req. The returned error is set only when no HTTP response was
// obtained (transport failure, timeout, open breaker); non-2xx responses are
// returned as is for the caller to map.
func (c *Client) Do(req *resty.Request, method, path string) (*resty.Response, error) {
	var resp *resty.Response
	_, err := c.breaker.Execute(func() (*resty.Response, error) {
		r, err := req.Execute(method, path)
		if err != nil {
			return nil, err
		}
		resp = r
		if r.StatusCode() >= http.StatusInternalServerError {
			return r, errServerFailure
		}
		return r, nil
	})
	if err != nil && !errors.Is(err, errServerFailure) {
		return nil, err
	}
	return resp, nil
}

func IsSuccess(resp *resty.Response) bool {
	return resp.StatusCode() >= 200 && resp.StatusCode() < 300
}
