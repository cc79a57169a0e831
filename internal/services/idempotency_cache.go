package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/setrag/rail-booking-backend/internal/models"
)

const idempotencyKeyPrefix = "booking:idempotency:"

// IdempotencyCache remembers booking results by idempotency key so replays
// skip the database. The ledger stays authoritative: a miss is never an answer.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) (*models.BookingResult, error)
	Set(ctx context.Context, key string, result *models.BookingResult) error
	Delete(ctx context.Context, key string) error
}

// RedisIdempotencyCache stores results as JSON strings with a TTL
type RedisIdempotencyCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisIdempotencyCache creates a cache backed by the given client
func NewRedisIdempotencyCache(client redis.Cmdable, ttl time.Duration) *RedisIdempotencyCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyCache{client: client, ttl: ttl}
}

// Get returns the cached result, or nil on a miss
func (c *RedisIdempotencyCache) Get(ctx context.Context, key string) (*models.BookingResult, error) {
	raw, err := c.client.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency cache: %w", err)
	}

	var result models.BookingResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached booking: %w", err)
	}
	return &result, nil
}

// Set stores the result under key
func (c *RedisIdempotencyCache) Set(ctx context.Context, key string, result *models.BookingResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode booking result: %w", err)
	}
	if err := c.client.Set(ctx, idempotencyKeyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write idempotency cache: %w", err)
	}
	return nil
}

// Delete forgets the result stored under key
func (c *RedisIdempotencyCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, idempotencyKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to evict idempotency cache: %w", err)
	}
	return nil
}

// NoopIdempotencyCache is used when Redis is not configured
type NoopIdempotencyCache struct{}

// Get always misses
func (NoopIdempotencyCache) Get(ctx context.Context, key string) (*models.BookingResult, error) {
	return nil, nil
}

// Set discards the result
func (NoopIdempotencyCache) Set(ctx context.Context, key string, result *models.BookingResult) error {
	return nil
}

// Delete does nothing
func (NoopIdempotencyCache) Delete(ctx context.Context, key string) error {
	return nil
}
