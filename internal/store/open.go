// File: internal/store/open.go
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/internal/config"
)

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case config.StoreFile, "":
		return NewFileStore(cfg.Dir, logger)
	case config.StorePostgres:
		return OpenPostgres(ctx, cfg.Database.URL, logger)
	case config.StoreRedis:
		return OpenRedis(ctx, cfg.Redis, logger)
	case config.StoreMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
