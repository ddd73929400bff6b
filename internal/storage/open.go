package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/uikit-demo/session-service/internal/config"
	"github.com/uikit-demo/session-service/internal/database"
	"github.com/uikit-demo/session-service/pkg/logger"
)

// Open builds the backend named by cfg.Session.Backend. rdb is only used by
// the redis backend and must be non-nil for it. The returned func releases
// backend resources and is always safe to call.
func Open(ctx context.Context, cfg *config.Config, rdb *redis.Client) (Storage, func(), error) {
	noop := func() {}
	switch cfg.Session.Backend {
	case "", "memory":
		return NewMemoryStorage(), noop, nil
	case "file":
		fs, err := NewFileStorage(afero.NewOsFs(), cfg.File.Dir)
		if err != nil {
			return nil, noop, err
		}
		return fs, noop, nil
	case "redis":
		if rdb == nil {
			return nil, noop, fmt.Errorf("redis backend selected but no redis client available")
		}
		return NewRedisStorage(rdb, cfg.Redis.Prefix), noop, nil
	case "mongo":
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			return nil, noop, err
		}
		col := client.Database(cfg.MongoDB.Database).Collection(cfg.MongoDB.Collection)
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warnf("mongo disconnect: %v", err)
			}
		}
		return NewMongoStorage(col), closeFn, nil
	case "minio":
		ms, err := NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			return nil, noop, err
		}
		return ms, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Session.Backend)
}
