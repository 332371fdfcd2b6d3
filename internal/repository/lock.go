package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Locker 提供一次性抢占锁，用于保证昂贵的片段对齐只执行一次。
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// redisLocker 是 Locker 的 Redis SETNX 实现。
type redisLocker struct {
	client *redis.Client
}

// NewRedisLocker 创建一个基于 Redis 的 Locker。
func NewRedisLocker(client *redis.Client) Locker {
	return &redisLocker{client: client}
}

func (l *redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "1", ttl).Result()
}

func (l *redisLocker) Unlock(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}
