package serial

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "serial:"
	// Keys outlive their day so late requests around midnight still count on.
	keyTTL = 48 * time.Hour
)

// RedisSequence uses INCR so every API replica shares one counter.
type RedisSequence struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisSequence {
	return &RedisSequence{client: client}
}

func (s *RedisSequence) Next(ctx context.Context, prefix string, day time.Time) (int64, error) {
	key := keyPrefix + dayKey(prefix, day)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("next serial: %w", err)
	}
	return incr.Val(), nil
}
