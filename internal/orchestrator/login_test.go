//go:build !integration

package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/feedpilot/api/schemas"
	"github.com/xkilldash9x/feedpilot/internal/config"
	"github.com/xkilldash9x/feedpilot/internal/mocks"
	"github.com/xkilldash9x/feedpilot/internal/site"
	"github.com/xkilldash9x/feedpilot/internal/store"
)

func githubProfile(t *testing.T) site.Profile {
	t.Helper()
	p, err := site.DefaultRegistry().Resolve("https://github.com/trending")
	require.NoError(t, err)
	return p
}

func fastLogin(t *testing.T, timeout time.Duration) *ManualLogin {
	return NewManualLogin(config.AgentConfig{LoginTimeout: timeout, LoginPoll: 5 * time.Millisecond}, zaptest.NewLogger(t))
}

func TestNewManualLogin_Defaults(t *testing.T) {
	m := NewManualLogin(config.AgentConfig{}, zaptest.NewLogger(t))
	assert.Equal(t, 300*time.Second, m.Timeout)
	assert.Equal(t, 2*time.Second, m.Poll)
}

func TestManualLogin_WaitsForLoggedInSelector(t *testing.T) {
	profile := githubProfile(t)
	driver := mocks.NewMockBrowserDriver()
	driver.On("Navigate", mock.Anything, "https://github.com/login").Return(nil).Once()
	driver.On("Count", mock.Anything, profile.LoggedInSelector()).Return(0, nil).Twice()
	driver.On("Count", mock.Anything, profile.LoggedInSelector()).Return(1, nil).Once()
	driver.On("GetCookies", mock.Anything).Return(&schemas.CredentialBundle{
		Cookies: []schemas.Cookie{{Name: "user_session", Value: "v", Domain: "github.com", Path: "/"}},
	}, nil).Once()

	bundle, err := fastLogin(t, time.Second).Recover(context.Background(), driver, profile)

	require.NoError(t, err)
	assert.Equal(t, "user_session", bundle.Cookies[0].Name)
	driver.AssertExpectations(t)
}

func TestManualLogin_Timeout(t *testing.T) {
	profile := githubProfile(t)
	driver := mocks.NewMockBrowserDriver()
	driver.On("Navigate", mock.Anything, mock.Anything).Return(nil).Once()
	driver.On("Count", mock.Anything, mock.Anything).Return(0, nil)

	_, err := fastLogin(t, 30*time.Millisecond).Recover(context.Background(), driver, profile)

	require.ErrorIs(t, err, ErrLoginTimeout)
	driver.AssertNotCalled(t, "GetCookies", mock.Anything)
}

func TestManualLogin_CallerCancellation(t *testing.T) {
	profile := githubProfile(t)
	driver := mocks.NewMockBrowserDriver()
	driver.On("Navigate", mock.Anything, mock.Anything).Return(nil).Once()
	driver.On("Count", mock.Anything, mock.Anything).Return(0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := fastLogin(t, time.Minute).Recover(ctx, driver, profile)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrLoginTimeout))
}

func TestManualLogin_NavigationFailure(t *testing.T) {
	driver := mocks.NewMockBrowserDriver()
	driver.On("Navigate", mock.Anything, mock.Anything).Return(errors.New("net::ERR_NAME_NOT_RESOLVED")).Once()

	_, err := fastLogin(t, time.Second).Recover(context.Background(), driver, githubProfile(t))
	assert.ErrorContains(t, err, "failed to open login page")
}

type stubRecovery struct {
	bundle *schemas.CredentialBundle
	err    error
}

func (s stubRecovery) Recover(context.Context, schemas.BrowserDriver, site.Profile) (*schemas.CredentialBundle, error) {
	return s.bundle, s.err
}

func TestLogin_StoresBundleAndClosesSession(t *testing.T) {
	logger := zaptest.NewLogger(t)
	guard := store.NewGuard(store.NewMemoryStore(), logger)
	driver := mocks.NewMockBrowserDriver()
	driver.On("Close").Return(nil).Once()
	fresh := &schemas.CredentialBundle{Cookies: []schemas.Cookie{{Name: "user_session", Value: "v", Domain: "github.com", Path: "/"}}}

	_, err := Login(context.Background(), &fakeSessions{driver: driver}, guard, stubRecovery{bundle: fresh}, githubProfile(t))
	require.NoError(t, err)

	saved, err := guard.Load(context.Background(), "github")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "github", saved.SiteID)
	driver.AssertExpectations(t)
}

func TestLogin_RecoveryError(t *testing.T) {
	logger := zaptest.NewLogger(t)
	guard := store.NewGuard(store.NewMemoryStore(), logger)
	driver := mocks.NewMockBrowserDriver()
	driver.On("Close").Return(nil).Once()

	_, err := Login(context.Background(), &fakeSessions{driver: driver}, guard, stubRecovery{err: ErrLoginTimeout}, githubProfile(t))
	require.ErrorIs(t, err, ErrLoginTimeout)

	saved, err := guard.Load(context.Background(), "github")
	require.NoError(t, err)
	assert.Nil(t, saved)
}
