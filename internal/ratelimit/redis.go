package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "cernio:ratelimit:"

var _ Limiter = (*RedisLimiter)(nil)

// RedisLimiter is a fixed window limiter shared by every instance using the same Redis.
type RedisLimiter struct {
	cli    *redis.Client
	max    int64
	window time.Duration
}

// NewRedisLimiter connects to the Redis at url and allows max requests per key per window.
func NewRedisLimiter(ctx context.Context, url string, max int, window time.Duration) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}

	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisLimiter{cli: cli, max: int64(max), window: window}, nil
}

// Allow counts the request against key. The first request of a window sets its expiry.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	key = keyPrefix + key

	var incr *redis.IntCmd
	_, err := l.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis incr: %w", err)
	}

	return incr.Val() <= l.max, nil
}

func (l *RedisLimiter) Close() error {
	return l.cli.Close()
}
