package idempotent

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyService 基于 SETNX 的幂等性服务
type RedisIdempotencyService struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

func NewRedisService(client redis.Cmdable, keyPrefix string, ttl time.Duration) *RedisIdempotencyService {
	return &RedisIdempotencyService{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (s *RedisIdempotencyService) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, 1, s.ttl).Result()
	if err != nil {
		return false, err
	}
	// SETNX 成功说明是第一次见到这个key
	return !ok, nil
}

func (s *RedisIdempotencyService) MExists(ctx context.Context, keys ...string) ([]bool, error) {
	res := make([]bool, len(keys))
	for i := range keys {
		seen, err := s.Exists(ctx, keys[i])
		if err != nil {
			return nil, err
		}
		res[i] = seen
	}
	return res, nil
}
