package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayo6706/transaction-stream-processor/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*ReferenceCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReferenceCache(client, ttl), mr
}

func TestReferenceCache_RememberAndLookup(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	_, ok := cache.Lookup(ctx, "R1")
	assert.False(t, ok)

	id := domain.NewTransactionID()
	cache.Remember(ctx, "R1", id)

	got, ok := cache.Lookup(ctx, "R1")
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestReferenceCache_FirstOwnerWins(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	first := domain.NewTransactionID()
	cache.Remember(ctx, "R1", first)
	cache.Remember(ctx, "R1", domain.NewTransactionID())

	got, ok := cache.Lookup(ctx, "R1")
	require.True(t, ok)
	assert.Equal(t, first, got)
}

func TestReferenceCache_ExpiresAfterTTL(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	cache.Remember(ctx, "R1", domain.NewTransactionID())
	mr.FastForward(2 * time.Minute)

	_, ok := cache.Lookup(ctx, "R1")
	assert.False(t, ok)
}

func TestReferenceCache_CorruptEntryIsMiss(t *testing.T) {
	cache, mr := newTestCache(t, time.Hour)
	require.NoError(t, mr.Set(redisKey("R1"), "not-json"))

	_, ok := cache.Lookup(context.Background(), "R1")
	assert.False(t, ok)
}

func TestReferenceCache_RedisDownIsMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewReferenceCache(client, time.Hour)

	ctx := context.Background()
	cache.Remember(ctx, "R1", domain.NewTransactionID())
	_, ok := cache.Lookup(ctx, "R1")
	assert.False(t, ok)
}

func TestReferenceCache_NilIsNoop(t *testing.T) {
	var cache *ReferenceCache
	cache.Remember(context.Background(), "R1", domain.NewTransactionID())
	_, ok := cache.Lookup(context.Background(), "R1")
	assert.False(t, ok)
}
