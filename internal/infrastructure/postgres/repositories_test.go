package postgres_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Xausdorf/payrelay/internal/domain/entity"
	"github.com/Xausdorf/payrelay/internal/infrastructure/postgres"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests are skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("payrelay"),
		tcpostgres.WithUsername("payrelay"),
		tcpostgres.WithPassword("payrelay"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(pool))
	// second run is a no-op
	require.NoError(t, postgres.Migrate(pool))
	return pool
}

func TestDeliveryRepo(t *testing.T) {
	pool := setupTestDB(t)
	repo := postgres.NewDeliveryRepo(pool, time.Hour)
	ctx := context.Background()

	t.Run("concurrent claims admit one", func(t *testing.T) {
		var claimed atomic.Int32
		var wg sync.WaitGroup
		for n := 0; n < 10; n++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := repo.Claim(ctx, "race-code")
				assert.NoError(t, err)
				if ok {
					claimed.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, claimed.Load())
	})

	t.Run("processed record is returned", func(t *testing.T) {
		_, ok, err := repo.Claim(ctx, "abc123")
		require.NoError(t, err)
		require.True(t, ok)

		d := entity.NewDelivery("abc123")
		require.NoError(t, d.MarkProcessed([]byte(`{"status":"processed"}`)))
		require.NoError(t, repo.Save(ctx, d))

		existing, ok, err := repo.Claim(ctx, "abc123")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.True(t, existing.Finished())
		assert.JSONEq(t, `{"status":"processed"}`, string(existing.ResponseBody()))
	})

	t.Run("failed record keeps step", func(t *testing.T) {
		d := entity.NewDelivery("failed-code")
		require.NoError(t, d.MarkFailed(entity.StepOrder))
		require.NoError(t, repo.Save(ctx, d))

		existing, ok, err := repo.Claim(ctx, "failed-code")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, entity.StepOrder, existing.FailedStep())
	})

	t.Run("release allows reclaim", func(t *testing.T) {
		_, _, err := repo.Claim(ctx, "released-code")
		require.NoError(t, err)
		require.NoError(t, repo.Release(ctx, "released-code"))

		_, ok, err := repo.Claim(ctx, "released-code")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("stale processing claim is taken over", func(t *testing.T) {
		old := time.Now().UTC().Add(-2 * time.Hour)
		require.NoError(t, repo.Save(ctx,
			entity.ReconstructDelivery("stale-code", entity.DeliveryProcessing, "", nil, old, old)))

		existing, ok, err := repo.Claim(ctx, "stale-code")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Nil(t, existing)

		_, ok, err = repo.Claim(ctx, "stale-code")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("old processed record is kept", func(t *testing.T) {
		old := time.Now().UTC().Add(-2 * time.Hour)
		require.NoError(t, repo.Save(ctx,
			entity.ReconstructDelivery("old-code", entity.DeliveryProcessed, "", []byte(`{"status":"processed"}`), old, old)))

		existing, ok, err := repo.Claim(ctx, "old-code")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.True(t, existing.Finished())
	})
}

func TestJournalRepo(t *testing.T) {
	pool := setupTestDB(t)
	repo := postgres.NewJournalRepo(pool)
	ctx := context.Background()

	now := time.Now().UTC()
	verify := entity.ReconstructStep(uuid.New(), "abc123", entity.StepVerify, entity.OutcomeSucceeded,
		[]byte(`{"status":"success"}`), now, nil)
	payout := entity.ReconstructStep(uuid.New(), "abc123", entity.StepPayout, entity.OutcomeFailed,
		nil, now.Add(time.Second), nil)
	require.NoError(t, repo.Append(ctx, verify))
	require.NoError(t, repo.Append(ctx, payout))

	pending, err := repo.Unpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, verify.ID(), pending[0].ID())
	assert.JSONEq(t, `{"status":"success"}`, string(pending[0].Detail()))
	assert.Nil(t, pending[1].Detail())

	require.NoError(t, repo.MarkPublished(ctx, verify.ID()))

	pending, err = repo.Unpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, entity.StepPayout, pending[0].Name())
}
