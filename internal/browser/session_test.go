// internal/browser/session_test.go
package browser

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/feedpilot/api/schemas"
	"github.com/xkilldash9x/feedpilot/internal/config"
)

// =============================================================================
//  SCRIPTS
// =============================================================================

func TestScriptsQuoteSelectors(t *testing.T) {
	sel := `a[title="it's \"quoted\""]`
	for name, script := range map[string]string{
		"count":   countScript(sel),
		"extract": extractScript(sel),
	} {
		t.Run(name, func(t *testing.T) {
			assert.Contains(t, script, jsString(sel))
			assert.NotContains(t, script, `querySelectorAll(a[`)
		})
	}
	assert.Equal(t, "window.scrollBy(0, -400)", scrollScript(-400))
}

func TestRestoreLocalStorageScript(t *testing.T) {
	script := restoreLocalStorageScript("https://www.bilibili.com", map[string]string{"theme": "dark"})
	assert.Contains(t, script, `location.origin !== "https://www.bilibili.com"`)
	assert.Contains(t, script, `{"theme":"dark"}`)
}

func TestDigest(t *testing.T) {
	assert.Equal(t, "a b c", digest("  a\n\n b\t\tc  ", 0))
	assert.Equal(t, "热门视频", digest("热门视频 排行榜", 4))
	assert.Equal(t, "", digest("   ", 10))
}

// =============================================================================
//  COOKIES
// =============================================================================

func TestCookieConversion(t *testing.T) {
	in := []*network.Cookie{
		{Name: "SESSDATA", Value: "abc", Domain: ".bilibili.com", Path: "/", Expires: 1893456000.5, HTTPOnly: true, Secure: true, SameSite: network.CookieSameSiteLax},
		{Name: "tmp", Value: "1", Domain: "www.bilibili.com", Path: "/", Expires: -1, Session: true},
		nil,
	}
	cookies := fromNetworkCookies(in)
	require.Len(t, cookies, 2)
	assert.Equal(t, "Lax", cookies[0].SameSite)
	assert.Zero(t, cookies[1].Expires)

	params := toCookieParams(append(cookies, schemas.Cookie{Name: "nodomain", Value: "x"}))
	require.Len(t, params, 2)
	require.NotNil(t, params[0].Expires)
	assert.Equal(t, int64(1893456000), time.Time(*params[0].Expires).Unix())
	assert.Equal(t, network.CookieSameSiteLax, params[0].SameSite)
	assert.Nil(t, params[1].Expires, "session cookies carry no expiry")
	assert.Empty(t, params[1].SameSite)
}

func TestToCookieParams_DefaultsAndUnknownSameSite(t *testing.T) {
	params := toCookieParams([]schemas.Cookie{{Name: "a", Value: "b", Domain: "github.com", SameSite: "weird"}})
	require.Len(t, params, 1)
	assert.Equal(t, "/", params[0].Path)
	assert.Empty(t, params[0].SameSite)
}

// =============================================================================
//  LIFECYCLE
// =============================================================================

func TestClosedSessionRejectsActions(t *testing.T) {
	ctx, cancel := contextWithCancel()
	dir := t.TempDir()
	s := newSession(ctx, cancel, config.BrowserConfig{}, dir, zaptest.NewLogger(t))
	closed := 0
	s.onClose = func() { closed++ }

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "Close is idempotent")
	assert.Equal(t, 1, closed)

	_, err := s.Count(ctx, "a")
	assert.True(t, errors.Is(err, schemas.ErrNoSession))
	assert.True(t, errors.Is(s.Navigate(ctx, "https://example.com"), schemas.ErrNoSession))
	assert.NoDirExists(t, dir)
}

func TestNewSessionHasUniqueIDs(t *testing.T) {
	ctx, cancel := contextWithCancel()
	defer cancel()
	a := newSession(ctx, cancel, config.BrowserConfig{}, "", zaptest.NewLogger(t))
	b := newSession(ctx, cancel, config.BrowserConfig{}, "", zaptest.NewLogger(t))
	assert.NotEqual(t, a.ID(), b.ID())
	assert.False(t, strings.Contains(a.ID(), " "))
}

func TestManagerShutdownWithoutSessions(t *testing.T) {
	m := NewManager(config.BrowserConfig{Headless: true}, zaptest.NewLogger(t))
	assert.Zero(t, m.Active())
	ctx, cancel := contextWithCancel()
	defer cancel()
	assert.NoError(t, m.Shutdown(ctx))
}
