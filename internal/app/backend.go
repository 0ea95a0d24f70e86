package service

import (
	"context"
	"fmt"

	"github.com/okian/ludus/internal/adapters/repository"
	"github.com/okian/ludus/internal/adapters/repository/memory"
	"github.com/okian/ludus/internal/adapters/repository/redisstore"
	"github.com/okian/ludus/internal/adapters/repository/sqlitestore"
	"github.com/okian/ludus/internal/config"
)

// OpenBackend builds the storage backend selected by cfg, adds payload
// compression when configured and instruments the result.
func OpenBackend(ctx context.Context, cfg *config.Config) (repository.Backend, error) {
	var (
		b   repository.Backend
		err error
	)
	switch cfg.Backend {
	case "memory":
		b = memory.New()
	case "redis":
		b, err = redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redisstore.WithLockTTL(cfg.Redis.LockTTL),
			redisstore.WithEventRetention(cfg.Redis.EventRetention))
	case "sqlite":
		b, err = sqlitestore.Open(ctx, cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Compression == "zstd" {
		c, err := repository.Compressed(b)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b = c
	}
	return repository.Instrumented(b), nil
}
