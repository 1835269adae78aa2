// File: internal/store/postgres_store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS site_credentials (
	site_id  TEXT PRIMARY KEY,
	bundle   JSONB NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL
)`
	selectBundleSQL = `SELECT bundle FROM site_credentials WHERE site_id = $1`
	upsertBundleSQL = `INSERT INTO site_credentials (site_id, bundle, saved_at) VALUES ($1, $2, $3)
ON CONFLICT (site_id) DO UPDATE SET bundle = EXCLUDED.bundle, saved_at = EXCLUDED.saved_at`
	deleteBundleSQL = `DELETE FROM site_credentials WHERE site_id = $1`
)

// PostgresStore keeps credential bundles as JSONB rows.
type PostgresStore struct {
	pool   DBPool
	log    *zap.Logger
	closer func()
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new store instance and verifies the connection.
// The caller keeps ownership of pool.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("postgres_store"),
	}, nil
}

// OpenPostgres connects to url, ensures the schema exists and returns a store
// that closes the pool on Close.
func OpenPostgres(ctx context.Context, url string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := NewPostgresStore(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s.closer = pool.Close
	return s, nil
}

// EnsureSchema creates the credentials table if it is missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create site_credentials table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, siteID string) (*schemas.CredentialBundle, error) {
	if err := checkSiteID(siteID); err != nil {
		return nil, err
	}
	var raw []byte
	err := s.pool.QueryRow(ctx, selectBundleSQL, siteID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials for %s: %w", siteID, err)
	}
	return decode(siteID, raw)
}

func (s *PostgresStore) Save(ctx context.Context, siteID string, bundle *schemas.CredentialBundle) error {
	if err := checkSiteID(siteID); err != nil {
		return err
	}
	data, err := encode(siteID, bundle)
	if err != nil {
		return err
	}
	savedAt := bundle.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx, upsertBundleSQL, siteID, data, savedAt)
	if err != nil {
		return fmt.Errorf("failed to save credentials for %s: %w", siteID, err)
	}
	s.log.Debug("Credentials upserted", zap.String("site", siteID), zap.Int64("rows", tag.RowsAffected()))
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, siteID string) error {
	if _, err := s.pool.Exec(ctx, deleteBundleSQL, siteID); err != nil {
		return fmt.Errorf("failed to delete credentials for %s: %w", siteID, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}
