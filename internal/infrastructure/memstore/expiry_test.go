package memstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xausdorf/payrelay/internal/domain/entity"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestRepo(ttl time.Duration) (*DeliveryRepo, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	repo := NewDeliveryRepo(ttl)
	repo.now = clock.now
	return repo, clock
}

func TestClaim_ExpiredRecordIsReclaimed(t *testing.T) {
	repo, clock := newTestRepo(time.Hour)
	ctx := context.Background()

	_, ok, err := repo.Claim(ctx, "abc123")
	require.NoError(t, err)
	require.True(t, ok)

	clock.t = clock.t.Add(30 * time.Minute)
	_, ok, err = repo.Claim(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, ok)

	clock.t = clock.t.Add(time.Hour)
	_, ok, err = repo.Claim(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSave_RefreshesExpiry(t *testing.T) {
	repo, clock := newTestRepo(time.Hour)
	ctx := context.Background()

	_, _, err := repo.Claim(ctx, "abc123")
	require.NoError(t, err)

	clock.t = clock.t.Add(50 * time.Minute)
	d := entity.NewDelivery("abc123")
	require.NoError(t, d.MarkProcessed([]byte(`{"status":"processed"}`)))
	require.NoError(t, repo.Save(ctx, d))

	clock.t = clock.t.Add(50 * time.Minute)
	existing, ok, err := repo.Claim(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, existing.Finished())
}

func TestClaim_SweepsExpiredRecords(t *testing.T) {
	repo, clock := newTestRepo(time.Hour)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, _, err := repo.Claim(ctx, fmt.Sprintf("code-%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 100, repo.Len())

	clock.t = clock.t.Add(2 * time.Hour)
	_, ok, err := repo.Claim(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, repo.Len())
}

func TestClaim_ZeroTTLNeverExpires(t *testing.T) {
	repo, clock := newTestRepo(0)
	ctx := context.Background()

	_, _, err := repo.Claim(ctx, "abc123")
	require.NoError(t, err)

	clock.t = clock.t.Add(24 * 365 * time.Hour)
	_, ok, err := repo.Claim(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, ok)
}
