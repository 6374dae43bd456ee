package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/herbtrace-api/internal/models"
	appErrors "github.com/noah-isme/herbtrace-api/pkg/errors"
)

func TestCacheRepositoryWithoutClientMisses(t *testing.T) {
	repo := NewCacheRepository(nil, nil)

	var dest map[string]interface{}
	require.ErrorIs(t, repo.Get(context.Background(), "idem:key", &dest), appErrors.ErrCacheMiss)
	require.NoError(t, repo.Set(context.Background(), "idem:key", map[string]string{"a": "b"}, time.Minute))
	require.NoError(t, repo.Close())
}

func TestCacheRepositoryReserveWithoutClientAlwaysGranted(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := repo.Reserve(ctx, "idem:key:lock", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	require.NoError(t, repo.Release(ctx, "idem:key:lock"))
}

func TestCacheRepositoryReserveSurfacesConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	repo := NewCacheRepository(client, nil)
	t.Cleanup(func() { _ = repo.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ok, err := repo.Reserve(ctx, "idem:key:lock", time.Minute)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "redis setnx idem:key:lock")

	err = repo.Release(ctx, "idem:key:lock")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis del idem:key:lock")
}

func TestRedisEventPublisherWithoutClient(t *testing.T) {
	publisher := NewRedisEventPublisher(nil, "")
	assert.Equal(t, "herbtrace.events", publisher.Channel())

	err := publisher.Publish(context.Background(), models.Event{Type: models.EventHarvest})
	require.Error(t, err)
}

func TestRedisEventPublisherSurfacesConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	publisher := NewRedisEventPublisher(client, "lots")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := publisher.Publish(ctx, models.Event{Type: models.EventLotFinalized, LotID: "lot-1", Timestamp: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish lot_finalized to lots")
}
