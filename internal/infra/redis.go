package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions tunes the cache client. Zero values keep the URL's settings.
type RedisOptions struct {
	ClientName  string
	PoolSize    int
	DialTimeout time.Duration
}

// NewRedisClient connects the client backing OTP send throttling and
// idempotent replays.
func NewRedisClient(ctx context.Context, url string, opts RedisOptions) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	cfg, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.ClientName != "" {
		cfg.ClientName = opts.ClientName
	}
	if opts.PoolSize > 0 {
		cfg.PoolSize = opts.PoolSize
	}
	if opts.DialTimeout > 0 {
		cfg.DialTimeout = opts.DialTimeout
	}

	client := redis.NewClient(cfg)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}
