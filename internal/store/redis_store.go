// File: internal/store/redis_store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/api/schemas"
	"github.com/xkilldash9x/feedpilot/internal/config"
)

// RedisStore keeps each bundle under prefix+siteID with an optional expiry.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
	owned  bool
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. Close leaves the client open.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, logger: logger.Named("redis_store")}
}

// OpenRedis dials the configured server and verifies it answers.
func OpenRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	s := NewRedisStore(client, cfg.KeyPrefix, cfg.TTL, logger)
	s.owned = true
	return s, nil
}

func (s *RedisStore) key(siteID string) string { return s.prefix + siteID }

func (s *RedisStore) Load(ctx context.Context, siteID string) (*schemas.CredentialBundle, error) {
	if err := checkSiteID(siteID); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.key(siteID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials for %s: %w", siteID, err)
	}
	return decode(siteID, data)
}

func (s *RedisStore) Save(ctx context.Context, siteID string, bundle *schemas.CredentialBundle) error {
	if err := checkSiteID(siteID); err != nil {
		return err
	}
	data, err := encode(siteID, bundle)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(siteID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save credentials for %s: %w", siteID, err)
	}
	s.logger.Debug("Credentials stored", zap.String("key", s.key(siteID)), zap.Duration("ttl", s.ttl))
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, siteID string) error {
	if err := s.client.Del(ctx, s.key(siteID)).Err(); err != nil {
		return fmt.Errorf("failed to delete credentials for %s: %w", siteID, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}
