// File: internal/store/file_store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/api/schemas"
)

// FileStore keeps one JSON file per site under a directory.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates dir if needed. A leading ~ is expanded to the home
// directory.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand store dir %q: %w", dir, err)
	}
	if err := os.MkdirAll(expanded, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store dir %q: %w", expanded, err)
	}
	return &FileStore{dir: expanded, logger: logger.Named("file_store")}, nil
}

// Path returns the file that holds the credentials for siteID.
func (s *FileStore) Path(siteID string) string {
	return filepath.Join(s.dir, siteID+"_cookies.json")
}

func (s *FileStore) Load(_ context.Context, siteID string) (*schemas.CredentialBundle, error) {
	if err := checkSiteID(siteID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(siteID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials for %s: %w", siteID, err)
	}
	return decode(siteID, data)
}

// Save writes to a temp file in the same directory and renames it into place
// so readers never see a partial file.
func (s *FileStore) Save(_ context.Context, siteID string, bundle *schemas.CredentialBundle) error {
	if err := checkSiteID(siteID); err != nil {
		return err
	}
	data, err := encode(siteID, bundle)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, siteID+"_*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials for %s: %w", siteID, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict permissions for %s: %w", siteID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush credentials for %s: %w", siteID, err)
	}
	if err := os.Rename(tmpName, s.Path(siteID)); err != nil {
		return fmt.Errorf("failed to commit credentials for %s: %w", siteID, err)
	}
	s.logger.Debug("Credentials written", zap.String("site", siteID), zap.String("path", s.Path(siteID)))
	return nil
}

func (s *FileStore) Delete(_ context.Context, siteID string) error {
	if err := checkSiteID(siteID); err != nil {
		return err
	}
	if err := os.Remove(s.Path(siteID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete credentials for %s: %w", siteID, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
