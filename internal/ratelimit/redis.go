package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Limiter shared by every process pointing at the same server.
type Redis struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedis namespaces keys under prefix; a trailing colon is dropped since
// keys add their own separator.
func NewRedis(client *redis.Client, prefix string) *Redis {
	prefix = strings.TrimRight(prefix, ":")
	if prefix == "" {
		prefix = "geocass:ratelimit"
	}
	return &Redis{client: client, prefix: prefix, now: time.Now}
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (r *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	k := r.key(key, window)

	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", k, err)
	}
	if n == 1 {
		// The window index is part of the key; expiry only reclaims memory.
		if err := r.client.Expire(ctx, k, window+time.Minute).Err(); err != nil {
			return false, fmt.Errorf("expire %s: %w", k, err)
		}
	}
	return n <= int64(limit), nil
}

func (r *Redis) key(key string, window time.Duration) string {
	return fmt.Sprintf("%s:%s:%s:%d", r.prefix, key, window, windowIndex(r.now(), window))
}
