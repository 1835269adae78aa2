// File: internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/feedpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvalidSiteID is returned for site identifiers that cannot be used as a
// file name or key segment.
var ErrInvalidSiteID = errors.New("invalid site id")

var siteIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,127}$`)

// Store persists one credential bundle per site identity.
type Store interface {
	// Load returns nil, nil when nothing is stored for siteID.
	Load(ctx context.Context, siteID string) (*schemas.CredentialBundle, error)
	// Save overwrites whatever was stored for siteID.
	Save(ctx context.Context, siteID string, bundle *schemas.CredentialBundle) error
	Delete(ctx context.Context, siteID string) error
	Close() error
}

func checkSiteID(siteID string) error {
	if !siteIDPattern.MatchString(siteID) {
		return fmt.Errorf("%w: %q", ErrInvalidSiteID, siteID)
	}
	return nil
}

// encode stamps a bundle that carries no site id with the id it is stored
// under. A bundle that already names a site is stored as given.
func encode(siteID string, bundle *schemas.CredentialBundle) ([]byte, error) {
	if bundle == nil {
		return nil, fmt.Errorf("cannot save a nil bundle for %s", siteID)
	}
	stamped := *bundle
	if stamped.SiteID == "" {
		stamped.SiteID = siteID
	}
	data, err := json.Marshal(&stamped)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials for %s: %w", siteID, err)
	}
	return data, nil
}

// decode accepts a bundle object, or a bare cookie array as written by older
// cookie export tools.
func decode(siteID string, data []byte) (*schemas.CredentialBundle, error) {
	var bundle schemas.CredentialBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		var cookies []schemas.Cookie
		if arrErr := json.Unmarshal(data, &cookies); arrErr != nil {
			return nil, fmt.Errorf("failed to decode credentials for %s: %w", siteID, err)
		}
		bundle.Cookies = cookies
	}
	if bundle.SiteID == "" {
		bundle.SiteID = siteID
	}
	return &bundle, nil
}
