// File: internal/orchestrator/login.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/api/schemas"
	"github.com/xkilldash9x/feedpilot/internal/config"
	"github.com/xkilldash9x/feedpilot/internal/site"
)

// ErrLoginTimeout is returned when nobody completed the login in time.
var ErrLoginTimeout = errors.New("timed out waiting for manual login")

// ManualLogin opens the site's login page in a visible browser and waits for a
// person to sign in.
type ManualLogin struct {
	Timeout time.Duration
	Poll    time.Duration
	logger  *zap.Logger
}

var _ LoginRecovery = (*ManualLogin)(nil)

// NewManualLogin applies the 300s timeout and 2s poll defaults.
func NewManualLogin(cfg config.AgentConfig, logger *zap.Logger) *ManualLogin {
	m := &ManualLogin{Timeout: cfg.LoginTimeout, Poll: cfg.LoginPoll, logger: logger.Named("manual_login")}
	if m.Timeout <= 0 {
		m.Timeout = 300 * time.Second
	}
	if m.Poll <= 0 {
		m.Poll = 2 * time.Second
	}
	return m
}

// Recover navigates to the login page, polls until the session looks logged in
// and returns the fresh cookie jar.
func (m *ManualLogin) Recover(ctx context.Context, driver schemas.BrowserDriver, profile site.Profile) (*schemas.CredentialBundle, error) {
	loginURL := profile.LoginURL()
	if loginURL == "" {
		loginURL = profile.HomeURL()
	}
	if loginURL == "" {
		return nil, fmt.Errorf("site %s has no login page", profile.ID())
	}

	if err := driver.Navigate(ctx, loginURL); err != nil {
		return nil, fmt.Errorf("failed to open login page: %w", err)
	}
	m.logger.Info("Waiting for manual login in the browser window",
		zap.String("site", profile.ID()),
		zap.String("url", loginURL),
		zap.Duration("timeout", m.Timeout))

	waitCtx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()
	ticker := time.NewTicker(m.Poll)
	defer ticker.Stop()

	for {
		if m.loggedIn(waitCtx, driver, profile, loginURL) {
			break
		}
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w after %s", ErrLoginTimeout, m.Timeout)
		case <-ticker.C:
		}
	}

	bundle, err := driver.GetCookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture cookies after login: %w", err)
	}
	m.logger.Info("Manual login complete", zap.String("site", profile.ID()), zap.Int("cookies", len(bundle.Cookies)))
	return bundle, nil
}

// loggedIn prefers the profile's logged-in selector. Without one, the session
// counts as logged in once the page left the login URL and no wall matches.
func (m *ManualLogin) loggedIn(ctx context.Context, driver schemas.BrowserDriver, profile site.Profile, loginURL string) bool {
	if sel := profile.LoggedInSelector(); sel != "" {
		n, err := driver.Count(ctx, sel)
		return err == nil && n > 0
	}
	page, err := driver.Snapshot(ctx)
	if err != nil || page.URL == "" || page.URL == loginURL {
		return false
	}
	if wall := profile.LoginWall(); wall != nil {
		if _, hit := wall.Match(ctx, page, driver); hit {
			return false
		}
	}
	return true
}

// Login runs a standalone manual login for profile in a fresh session and
// stores the result.
func Login(ctx context.Context, sessions SessionFactory, creds Credentials, recovery LoginRecovery, profile site.Profile) (*schemas.CredentialBundle, error) {
	driver, err := sessions.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}
	defer driver.Close()

	bundle, err := recovery.Recover(ctx, driver, profile)
	if err != nil {
		return nil, err
	}
	if err := creds.Merge(ctx, profile.ID(), bundle); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}
	return bundle, nil
}
