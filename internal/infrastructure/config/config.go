package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DedupNone     = "none"
	DedupMemory   = "memory"
	DedupRedis    = "redis"
	DedupPostgres = "postgres"

	defaultPayPingURL        = "https://api.payping.ir"
	defaultNobitexURL        = "https://api.nobitex.ir"
	defaultNobitexTestnetURL = "https://testnetapi.nobitex.ir"

	defaultUpstreamTimeout = 15 * time.Second
	minRequestTimeout      = 60 * time.Second

	// webhookUpstreamCalls is the worst case for one webhook: token and
	// verify, token and payout, then the order.
	webhookUpstreamCalls = 5
	webhookBudgetMargin  = 5 * time.Second
)

type Config struct {
	PayPingClientID     string
	PayPingClientSecret string
	PayPingBaseURL      string

	NobitexAPIKey    string
	NobitexAPISecret string
	NobitexBaseURL   string
	Testnet          bool

	PayoutSheba      string
	RPCURL           string
	HotWalletAddress string

	HTTPAddr        string
	GRPCAddr        string
	UpstreamTimeout time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	RequireSuccessStatus bool
	SuccessStatus        string
	OrderEnabled         bool
	OrderSymbol          string
	OrderType            string

	DedupStore  string
	DedupTTL    time.Duration
	RedisAddr   string
	DatabaseURL string

	KafkaBrokers        []string
	KafkaTopic          string
	JournalPollInterval time.Duration

	ServiceName string
}

// Load reads .env (when present) and the process environment. Missing
// required keys and malformed values are reported together.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	r := &reader{}
	cfg := &Config{
		PayPingClientID:     r.required("PAYPING_CLIENT_ID"),
		PayPingClientSecret: r.required("PAYPING_CLIENT_SECRET"),
		PayPingBaseURL:      r.url("PAYPING_BASE_URL", defaultPayPingURL),

		NobitexAPIKey:    r.required("NOBITEX_API_KEY"),
		NobitexAPISecret: getEnv("NOBITEX_API_SECRET", ""),
		Testnet:          r.bool("TESTNET", false),

		PayoutSheba:      r.required("PAYOUT_SHEBA"),
		RPCURL:           r.requiredURL("RPC_URL"),
		HotWalletAddress: r.required("HOT_WALLET_ADDRESS"),

		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:        getEnv("GRPC_ADDR", ":50051"),
		UpstreamTimeout: r.duration("UPSTREAM_TIMEOUT", defaultUpstreamTimeout),
		ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 10*time.Second),

		RequireSuccessStatus: r.bool("PAYOUT_REQUIRE_SUCCESS", true),
		SuccessStatus:        getEnv("PAYMENT_SUCCESS_STATUS", "success"),
		OrderEnabled:         r.bool("EXCHANGE_ORDER_ENABLED", false),
		OrderSymbol:          getEnv("EXCHANGE_ORDER_SYMBOL", "USDTIRT"),
		OrderType:            strings.ToLower(getEnv("EXCHANGE_ORDER_TYPE", "buy")),

		DedupStore:  strings.ToLower(getEnv("DEDUP_STORE", DedupMemory)),
		DedupTTL:    r.duration("DEDUP_TTL", 168*time.Hour),
		RedisAddr:   getEnv("REDIS_ADDR", ""),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		KafkaBrokers:        splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "payrelay.steps"),
		JournalPollInterval: r.duration("JOURNAL_POLL_INTERVAL", 2*time.Second),

		ServiceName: getEnv("OTEL_SERVICE_NAME", "payrelay"),
	}

	cfg.RequestTimeout = r.duration("REQUEST_TIMEOUT", max(minRequestTimeout, cfg.WebhookBudget()))

	defaultExchange := defaultNobitexURL
	if cfg.Testnet {
		defaultExchange = defaultNobitexTestnetURL
	}
	cfg.NobitexBaseURL = r.url("NOBITEX_BASE_URL", defaultExchange)

	r.check(cfg.OrderType == "buy" || cfg.OrderType == "sell", "EXCHANGE_ORDER_TYPE must be buy or sell")
	switch cfg.DedupStore {
	case DedupNone, DedupMemory:
	case DedupRedis:
		r.check(cfg.RedisAddr != "", "REDIS_ADDR is required when DEDUP_STORE=redis")
	case DedupPostgres:
		r.check(cfg.DatabaseURL != "", "DATABASE_URL is required when DEDUP_STORE=postgres")
	default:
		r.check(false, "DEDUP_STORE must be one of none, memory, redis, postgres")
	}

	if err := r.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WebhookBudget is the longest a webhook can spend waiting on upstreams. A
// REQUEST_TIMEOUT below it can cut the chain short after a payout.
func (c *Config) WebhookBudget() time.Duration {
	return webhookUpstreamCalls*c.UpstreamTimeout + webhookBudgetMargin
}

// LoadDatabaseURL is the reduced loader used by the migrate command.
func LoadDatabaseURL() (string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("load .env: %w", err)
	}
	dsn := getEnv("DATABASE_URL", "")
	if dsn == "" {
		return "", errors.New("config: DATABASE_URL is required")
	}
	return dsn, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type reader struct {
	problems []string
}

func (r *reader) check(ok bool, problem string) {
	if !ok {
		r.problems = append(r.problems, problem)
	}
}

func (r *reader) required(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	r.check(v != "", key+" is required")
	return v
}

func (r *reader) requiredURL(key string) string {
	v := r.required(key)
	if v != "" {
		r.check(validURL(v), key+" must be an absolute URL")
	}
	return v
}

func (r *reader) url(key, fallback string) string {
	v := strings.TrimRight(getEnv(key, fallback), "/")
	r.check(validURL(v), key+" must be an absolute URL")
	return v
}

func (r *reader) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	r.check(err == nil, key+" must be a boolean")
	return b
}

func (r *reader) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	r.check(err == nil && d > 0, key+" must be a positive duration")
	return d
}

func (r *reader) err() error {
	if len(r.problems) == 0 {
		return nil
	}
	return errors.New("config: " + strings.Join(r.problems, "; "))
}

func validURL(v string) bool {
	u, err := url.Parse(v)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
