package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/slabscan/api/internal/model"
)

// ErrResultNotFound is returned when no parsed result is cached for a card.
var ErrResultNotFound = errors.New("result not found")

const (
	resultKeyPrefix = "grading:result:"
	rawKeyPrefix    = "grading:raw:"
)

// RedisResultCache keeps parsed results and raw reports keyed by card id.
type RedisResultCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisResultCache(redisClient *redis.Client, ttl time.Duration) *RedisResultCache {
	return &RedisResultCache{
		redis: redisClient,
		ttl:   ttl,
	}
}

// SaveResult caches a validated result
func (c *RedisResultCache) SaveResult(ctx context.Context, cardID string, result *model.ParsedGradingResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return c.redis.Set(ctx, resultKeyPrefix+cardID, data, c.ttl).Err()
}

// GetResult returns the cached result for a card
func (c *RedisResultCache) GetResult(ctx context.Context, cardID string) (*model.ParsedGradingResult, error) {
	data, err := c.redis.Get(ctx, resultKeyPrefix+cardID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrResultNotFound
		}
		return nil, err
	}

	var result model.ParsedGradingResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

// SaveRaw retains a report that failed validation for manual reprocessing
func (c *RedisResultCache) SaveRaw(ctx context.Context, cardID, raw string) error {
	return c.redis.Set(ctx, rawKeyPrefix+cardID, raw, c.ttl).Err()
}

// GetRaw returns a retained raw report
func (c *RedisResultCache) GetRaw(ctx context.Context, cardID string) (string, error) {
	raw, err := c.redis.Get(ctx, rawKeyPrefix+cardID).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrResultNotFound
		}
		return "", err
	}
	return raw, nil
}
