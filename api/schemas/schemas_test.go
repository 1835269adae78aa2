package schemas_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/feedpilot/api/schemas"
)

// getTestTime provides a fixed, reproducible timestamp for consistent test results.
func getTestTime(t *testing.T) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, "2025-10-26T10:00:00.123456789Z")
	require.NoError(t, err, "Test setup failed: unable to parse fixed timestamp")
	return ts
}

func TestCredentialBundle_Empty(t *testing.T) {
	t.Parallel()
	var nilBundle *schemas.CredentialBundle
	assert.True(t, nilBundle.Empty())
	assert.True(t, (&schemas.CredentialBundle{SiteID: "bilibili.com"}).Empty())
	assert.False(t, (&schemas.CredentialBundle{Cookies: []schemas.Cookie{{Name: "SESSDATA"}}}).Empty())
	assert.False(t, (&schemas.CredentialBundle{LocalStorage: map[string]string{"k": "v"}}).Empty())
}

func TestCredentialBundle_Merge(t *testing.T) {
	t.Parallel()
	ts := getTestTime(t)

	old := &schemas.CredentialBundle{
		SiteID: "bilibili.com",
		Cookies: []schemas.Cookie{
			{Name: "SESSDATA", Value: "old", Domain: ".bilibili.com", Path: "/"},
			{Name: "buvid3", Value: "keep", Domain: ".bilibili.com", Path: "/"},
		},
		Origin:       "https://www.bilibili.com",
		LocalStorage: map[string]string{"theme": "dark"},
	}
	fresh := &schemas.CredentialBundle{
		Cookies: []schemas.Cookie{
			{Name: "SESSDATA", Value: "new", Domain: ".bilibili.com", Path: "/"},
		},
		SavedAt: ts,
	}

	t.Run("FreshWinsAndOldIsCarried", func(t *testing.T) {
		merged := old.Merge(fresh)
		require.Len(t, merged.Cookies, 2)
		byName := map[string]string{}
		for _, c := range merged.Cookies {
			byName[c.Name] = c.Value
		}
		assert.Equal(t, "new", byName["SESSDATA"])
		assert.Equal(t, "keep", byName["buvid3"])
		assert.Equal(t, "bilibili.com", merged.SiteID)
		assert.Equal(t, ts, merged.SavedAt)
		assert.Equal(t, "dark", merged.LocalStorage["theme"], "local storage is carried when fresh has none")
	})

	t.Run("InputsAreNotMutated", func(t *testing.T) {
		merged := old.Merge(fresh)
		merged.LocalStorage["theme"] = "light"
		merged.Cookies[0].Value = "mutated"
		assert.Equal(t, "dark", old.LocalStorage["theme"])
		assert.Equal(t, "old", old.Cookies[0].Value)
		assert.Equal(t, "new", fresh.Cookies[0].Value)
	})

	t.Run("NilSides", func(t *testing.T) {
		var none *schemas.CredentialBundle
		assert.Equal(t, fresh.Cookies, none.Merge(fresh).Cookies)
		assert.Equal(t, old.Cookies, old.Merge(nil).Cookies)
		assert.Nil(t, none.Merge(nil))
	})
}

func TestComposeSystemPrompt(t *testing.T) {
	t.Parallel()
	req := schemas.GenerationRequest{SystemPrompt: "plan"}
	assert.Equal(t, "plan", schemas.ComposeSystemPrompt(req))

	req.SchemaHint = `{"steps": []}`
	out := schemas.ComposeSystemPrompt(req)
	assert.Contains(t, out, "plan")
	assert.Contains(t, out, `{"steps": []}`)
}
