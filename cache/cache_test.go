package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCatalogCacheRoundTripAndInvalidate(t *testing.T) {
	_, rdb := setupRedis(t)
	c := NewCatalogCache(rdb, time.Minute)
	ctx := context.Background()

	var got []string
	found, err := c.Get(ctx, "products:all", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "products:all", []string{"pho", "banh mi"}))
	found, err = c.Get(ctx, "products:all", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"pho", "banh mi"}, got)

	require.NoError(t, c.Invalidate(ctx))
	got = nil
	found, err = c.Get(ctx, "products:all", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCatalogCacheExpires(t *testing.T) {
	mr, rdb := setupRedis(t)
	c := NewCatalogCache(rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "categories", []int{1, 2}))
	mr.FastForward(2 * time.Minute)

	var got []int
	found, err := c.Get(ctx, "categories", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIdempotencyStoreSeen(t *testing.T) {
	_, rdb := setupRedis(t)
	s := NewIdempotencyStore(rdb, time.Minute)
	ctx := context.Background()
	key := s.Key("checkout", "abc")

	seen, err := s.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = s.Seen(ctx, key)
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, s.Forget(ctx, key))
	seen, err = s.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen)
}
