package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xausdorf/payrelay/internal/infrastructure/config"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PAYPING_CLIENT_ID", "client")
	t.Setenv("PAYPING_CLIENT_SECRET", "secret")
	t.Setenv("NOBITEX_API_KEY", "key")
	t.Setenv("PAYOUT_SHEBA", "IR820540102680020817909002")
	t.Setenv("RPC_URL", "https://rpc.example.org")
	t.Setenv("HOT_WALLET_ADDRESS", "TXYZ-hot-wallet")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.payping.ir", cfg.PayPingBaseURL)
	assert.Equal(t, "https://api.nobitex.ir", cfg.NobitexBaseURL)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 15*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 80*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.RequireSuccessStatus)
	assert.False(t, cfg.OrderEnabled)
	assert.Equal(t, config.DedupMemory, cfg.DedupStore)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_RequestTimeoutCoversWebhookBudget(t *testing.T) {
	setRequired(t)
	t.Setenv("UPSTREAM_TIMEOUT", "5s")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.WebhookBudget())
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)

	t.Setenv("UPSTREAM_TIMEOUT", "30s")
	cfg, err = config.Load()
	require.NoError(t, err)
	assert.Equal(t, 155*time.Second, cfg.RequestTimeout)

	t.Setenv("REQUEST_TIMEOUT", "20s")
	cfg, err = config.Load()
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, cfg.RequestTimeout)
	assert.Less(t, cfg.RequestTimeout, cfg.WebhookBudget())
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("PAYPING_CLIENT_SECRET", "")
	t.Setenv("HOT_WALLET_ADDRESS", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAYPING_CLIENT_SECRET is required")
	assert.Contains(t, err.Error(), "HOT_WALLET_ADDRESS is required")
}

func TestLoad_TestnetSwitchesExchangeURL(t *testing.T) {
	setRequired(t)
	t.Setenv("TESTNET", "true")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "https://testnetapi.nobitex.ir", cfg.NobitexBaseURL)

	t.Setenv("NOBITEX_BASE_URL", "https://exchange.local/")
	cfg, err = config.Load()
	require.NoError(t, err)
	assert.Equal(t, "https://exchange.local", cfg.NobitexBaseURL)
}

func TestLoad_InvalidValues(t *testing.T) {
	setRequired(t)
	t.Setenv("UPSTREAM_TIMEOUT", "soon")
	t.Setenv("EXCHANGE_ORDER_TYPE", "hold")
	t.Setenv("DEDUP_STORE", "postgres")
	t.Setenv("RPC_URL", "not a url")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPSTREAM_TIMEOUT")
	assert.Contains(t, err.Error(), "EXCHANGE_ORDER_TYPE")
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "RPC_URL")
}

func TestLoad_KafkaBrokers(t *testing.T) {
	setRequired(t)
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}
