package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Xausdorf/payrelay/internal/domain/repository"
	"github.com/Xausdorf/payrelay/internal/infrastructure/config"
	"github.com/Xausdorf/payrelay/internal/infrastructure/memstore"
	"github.com/Xausdorf/payrelay/internal/infrastructure/postgres"
	"github.com/Xausdorf/payrelay/internal/infrastructure/redisstore"
)

type stores struct {
	deliveries repository.DeliveryRepository
	journal    repository.JournalRepository

	pool  *pgxpool.Pool
	redis *redis.Client
}

// openStores picks the delivery store from DEDUP_STORE. The journal lives in
// Postgres when Postgres is configured, in memory when Kafka will drain it,
// and is disabled otherwise.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}

	switch cfg.DedupStore {
	case config.DedupNone:
	case config.DedupMemory:
		st.deliveries = memstore.NewDeliveryRepo(cfg.DedupTTL)
	case config.DedupRedis:
		st.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := st.redis.Ping(ctx).Err(); err != nil {
			st.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		st.deliveries = redisstore.NewDeliveryRepo(st.redis, cfg.DedupTTL)
	case config.DedupPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		st.pool = pool
		if err := postgres.Migrate(pool); err != nil {
			st.Close()
			return nil, err
		}
		st.deliveries = postgres.NewDeliveryRepo(pool, cfg.DedupTTL)
		st.journal = postgres.NewJournalRepo(pool)
	}

	if st.journal == nil && len(cfg.KafkaBrokers) > 0 {
		st.journal = memstore.NewJournalRepo()
	}
	if cfg.DedupStore == config.DedupNone {
		slog.Warn("webhook deduplication disabled: redelivered codes are paid out again")
	}
	return st, nil
}

func (s *stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Error("redis close failed", "error", err)
		}
	}
}
