package claimlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"findiff/pkg/platform/sentinel"
)

const keyPrefix = "claim:"

// releaseScript deletes the key only when the caller still owns the lease.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLock implements leases with SET NX PX so every API replica shares them.
type RedisLock struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire claim lock: %w", err)
	}
	if !ok {
		return "", sentinel.ErrLocked
	}
	return token, nil
}

func (l *RedisLock) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{keyPrefix + key}, token).Err(); err != nil {
		return fmt.Errorf("release claim lock: %w", err)
	}
	return nil
}
