package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/uikit-demo/session-service/internal/config"
)

// NewRedisClient creates a client for cfg.Redis and pings it once. The client
// is returned even when the ping fails so callers can decide to degrade.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return client, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr(), err)
	}
	return client, nil
}

// NeedsRedis reports whether the configuration uses Redis for anything.
func NeedsRedis(cfg *config.Config) bool {
	return cfg.Session.Backend == "redis" || (cfg.RateLimit.Enabled && cfg.RateLimit.UseRedis)
}
