package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	redis "github.com/redis/go-redis/v9"

	"salesanalysis/backend/internal/domain"
)

const redisMasterPrefix = "sales:master:"

// RedisMasterCache shares master data between server instances. Expiry is
// left to redis.
type RedisMasterCache struct {
	client *redis.Client
}

func NewRedisMasterCache(addr string, password string, db int) *RedisMasterCache {
	return NewRedisMasterCacheWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

func NewRedisMasterCacheWithClient(client *redis.Client) *RedisMasterCache {
	return &RedisMasterCache{client: client}
}

func (c *RedisMasterCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisMasterCache) Close() error {
	return c.client.Close()
}

// Get drops an undecodable value so the next read refetches.
func (c *RedisMasterCache) Get(ctx context.Context, key string) (*domain.MasterData, bool, error) {
	raw, err := c.client.Get(ctx, redisMasterPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var data domain.MasterData
	if err := json.Unmarshal(raw, &data); err != nil {
		_ = c.client.Del(ctx, redisMasterPrefix+key).Err()
		return nil, false, fmt.Errorf("decode cached master data: %w", err)
	}
	return &data, true, nil
}

func (c *RedisMasterCache) Set(ctx context.Context, key string, value *domain.MasterData, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	if ttl <= 0 {
		return fmt.Errorf("master cache ttl must be positive, got %s", ttl)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisMasterPrefix+key, payload, ttl).Err()
}

func (c *RedisMasterCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, redisMasterPrefix+key).Err()
}
