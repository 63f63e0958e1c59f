package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/syntick/syntick/shared/config"
	"github.com/syntick/syntick/shared/models"
)

const cacheKeyPrefix = "syntick:"

// RedisCache is a short-TTL write-through cache of the latest price, live
// candle and system status.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects and pings the server.
func NewRedisCache(cfg *config.InfraConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Printf("✅ connected to Redis at %s", cfg.RedisAddr)
	return &RedisCache{client: client, ttl: cfg.RedisTTL}, nil
}

// SetLatest writes the freshest values under fixed keys with the cache TTL.
func (c *RedisCache) SetLatest(ctx context.Context, price float64, snap models.LiveSnapshot, status models.SystemStatus) error {
	pipe := c.client.Pipeline()
	pipe.Set(ctx, cacheKeyPrefix+"latest:price", price, c.ttl)

	if data, err := json.Marshal(snap); err == nil {
		pipe.Set(ctx, cacheKeyPrefix+"latest:candle", data, c.ttl)
	}
	if data, err := json.Marshal(status); err == nil {
		pipe.Set(ctx, cacheKeyPrefix+"status", data, c.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache latest: %w", err)
	}
	return nil
}

// LatestPrice reads the cached price. ok is false on a miss.
func (c *RedisCache) LatestPrice(ctx context.Context) (price float64, ok bool, err error) {
	err = c.client.Get(ctx, cacheKeyPrefix+"latest:price").Scan(&price)
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get latest price: %w", err)
	}
	return price, true, nil
}

// Close releases the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
