package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentflow/dentflow-backend/pkg/config"
)

func newStore(t *testing.T, ttl time.Duration) (*IdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewWithClient(client, ttl), mr
}

func TestAcquire(t *testing.T) {
	store, _ := newStore(t, time.Hour)
	ctx := context.Background()

	ok, err := store.Acquire(ctx, "clinic-1:restock:abc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Acquire(ctx, "clinic-1:restock:abc")
	require.NoError(t, err)
	assert.False(t, ok, "second claim of the same key must fail")

	ok, err = store.Acquire(ctx, "clinic-2:restock:abc")
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")
}

func TestRelease(t *testing.T) {
	store, _ := newStore(t, time.Hour)
	ctx := context.Background()

	_, err := store.Acquire(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "k"))

	ok, err := store.Acquire(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquire_Expires(t *testing.T) {
	store, mr := newStore(t, time.Minute)
	ctx := context.Background()

	_, err := store.Acquire(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"k"))

	mr.FastForward(2 * time.Minute)

	ok, err := store.Acquire(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := New(context.Background(), &config.RedisConfig{Addr: mr.Addr(), IdempotencyTTL: time.Hour})
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, "up", store.Health(context.Background())["status"])

	mr.Close()
	assert.Equal(t, "down", store.Health(context.Background())["status"])
}

func TestNew_Unreachable(t *testing.T) {
	_, err := New(context.Background(), &config.RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
