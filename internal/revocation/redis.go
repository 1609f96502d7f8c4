package revocation

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "kitahub:revoked:"

// RedisStore backs the blacklist with Redis key expiry. SET with a TTL is
// atomic, which gives Add its idempotence for free: re-adding rewrites the
// entry with the same remaining lifetime.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects a Store to the given Redis instance.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("revocation: redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Add(ctx context.Context, tokenID, personID string, ttl time.Duration) error {
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, redisKeyPrefix+tokenID, personID, ttl).Err()
}

func (s *RedisStore) Contains(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKeyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
