package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"volsignals-bot/internal/models"
)

const keyPrefix = "candle:"

// Redis backs the candle cache with a Redis instance, letting the cache
// survive process restarts.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Redis{client: client}, nil
}

func (c *Redis) Get(ctx context.Context, symbol string) (models.Candle, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+symbol).Bytes()
	if err == redis.Nil {
		return models.Candle{}, false, nil
	}
	if err != nil {
		return models.Candle{}, false, fmt.Errorf("redis get %s: %w", symbol, err)
	}
	var candle models.Candle
	if err := json.Unmarshal(data, &candle); err != nil {
		return models.Candle{}, false, fmt.Errorf("corrupt cached candle for %s: %w", symbol, err)
	}
	return candle, true, nil
}

func (c *Redis) Set(ctx context.Context, symbol string, candle models.Candle, ttl time.Duration) error {
	data, err := json.Marshal(candle)
	if err != nil {
		return fmt.Errorf("failed to marshal candle for %s: %w", symbol, err)
	}
	if err := c.client.Set(ctx, keyPrefix+symbol, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", symbol, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Redis) Close() error {
	return c.client.Close()
}
