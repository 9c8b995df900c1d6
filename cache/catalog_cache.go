package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const catalogVersionKey = "catalog:version"

// CatalogCache is a cache-aside store for catalog reads. Invalidate bumps a
// version counter so every previously cached key becomes unreachable and
// expires on its own TTL.
type CatalogCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCatalogCache(rdb *redis.Client, ttl time.Duration) *CatalogCache {
	return &CatalogCache{rdb: rdb, ttl: ttl}
}

func (c *CatalogCache) key(ctx context.Context, name string) (string, error) {
	v, err := c.rdb.Get(ctx, catalogVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("catalog:v%d:%s", v, name), nil
}

// Get decodes the cached value into dest and reports whether it was found.
func (c *CatalogCache) Get(ctx context.Context, name string, dest any) (bool, error) {
	key, err := c.key(ctx, name)
	if err != nil {
		return false, err
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, dest)
}

func (c *CatalogCache) Set(ctx context.Context, name string, value any) error {
	key, err := c.key(ctx, name)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, c.ttl).Err()
}

func (c *CatalogCache) Invalidate(ctx context.Context) error {
	return c.rdb.Incr(ctx, catalogVersionKey).Err()
}
