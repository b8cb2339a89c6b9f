package httpclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xausdorf/payrelay/internal/infrastructure/httpclient"
)

func TestDo_ReturnsNon2xxAsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad"}`))
	}))
	defer srv.Close()

	c := httpclient.New("test", srv.URL, time.Second)
	resp, err := c.Do(c.R(context.Background()), http.MethodGet, "/x")

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	assert.False(t, httpclient.IsSuccess(resp))
	assert.JSONEq(t, `{"error":"bad"}`, string(resp.Body()))
}

func TestDo_BreakerOpensAfterConsecutiveServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := httpclient.New("test", srv.URL, time.Second)
	for n := 0; n < 5; n++ {
		resp, err := c.Do(c.R(context.Background()), http.MethodGet, "/x")
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode())
	}

	resp, err := c.Do(c.R(context.Background()), http.MethodGet, "/x")
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Nil(t, resp)
	assert.Equal(t, int32(5), hits.Load())
}

func TestDo_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := httpclient.New("test", srv.URL, 20*time.Millisecond)
	resp, err := c.Do(c.R(context.Background()), http.MethodGet, "/slow")

	require.Error(t, err)
	assert.Nil(t, resp)
}
