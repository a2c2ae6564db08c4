package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSyncLocker serializes synchronization passes per user across all
// instances. The lock is TTL-bounded so a crashed pass cannot wedge a user.
type RedisSyncLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSyncLocker creates a locker using the provided Redis client and TTL.
func NewRedisSyncLocker(client *redis.Client, ttl time.Duration) *RedisSyncLocker {
	return &RedisSyncLocker{client: client, ttl: ttl}
}

func (r *RedisSyncLocker) key(userID string) string {
	return "synclock:" + userID
}

// Acquire takes the user's sync lock. It returns true when the lock was free.
func (r *RedisSyncLocker) Acquire(ctx context.Context, userID string) (bool, error) {
	return r.client.SetNX(ctx, r.key(userID), 1, r.ttl).Result()
}

// Release frees the lock so the next pass can run before the TTL expires.
func (r *RedisSyncLocker) Release(ctx context.Context, userID string) error {
	return r.client.Del(ctx, r.key(userID)).Err()
}
