package site

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/feedpilot/api/schemas"
	"github.com/xkilldash9x/feedpilot/internal/mocks"
)

func TestResolve(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		url    string
		wantID string
	}{
		{"https://www.bilibili.com/v/popular/all", "bilibili"},
		{"https://search.bilibili.com/all?keyword=go", "bilibili"},
		{"https://bilibili.com", "bilibili"},
		{"https://github.com/trending", "github"},
		{"https://www.zhihu.com/hot", "zhihu"},
		{"https://twitter.com/golang", "x"},
		{"https://www.youtube.com/feed/trending", "youtube"},
		{"https://www.google.com/search?q=go", "google"},
		{"https://news.ycombinator.com/", "ycombinator.com"},
		{"https://www.bbc.co.uk/news", "bbc.co.uk"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			p, err := r.Resolve(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, p.ID())
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Resolve("not a url")
	assert.Error(t, err)
	_, err = r.Resolve("://bad")
	assert.Error(t, err)
}

func TestGenericProfile(t *testing.T) {
	p, err := DefaultRegistry().Resolve("https://m.example.co.uk/feed")
	require.NoError(t, err)
	assert.Equal(t, "example.co.uk", p.ID())
	assert.Equal(t, "https://m.example.co.uk", p.HomeURL())
	assert.NotNil(t, p.LoginWall())
	assert.Empty(t, p.SelectorHints())
}

func TestInfer(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		instruction string
		wantID      string
	}{
		{"打开B站，获取热门视频前5个", "bilibili"},
		{"在GitHub搜索机器学习项目，按star排序获取前5个", "github"},
		{"get the top answers on Zhihu", "zhihu"},
		{"百度搜索天气", "baidu"},
		{"latest tweets from golang on twitter", "x"},
		{"trending videos on youtub", "youtube"},
		{"top repos on gihub", "github"},
		{"extract the next headlines", "google"},
		{"find cheap flights", "google"},
	}
	for _, tt := range tests {
		t.Run(tt.instruction, func(t *testing.T) {
			assert.Equal(t, tt.wantID, r.Infer(tt.instruction).ID())
		})
	}
}

func TestInferURL(t *testing.T) {
	u, err := DefaultRegistry().InferURL("哔哩哔哩 热门")
	require.NoError(t, err)
	assert.Equal(t, "https://www.bilibili.com", u)

	_, err = NewRegistry().InferURL("anything")
	assert.Error(t, err)
}

func TestSignature_Match(t *testing.T) {
	ctx := context.Background()
	sig := Signature{
		URLContains:   []string{"passport.bilibili.com/login"},
		TitleContains: []string{"Sign in"},
		TextContains:  []string{"扫码登录"},
		Selectors:     []string{".login-modal"},
	}

	signal, hit := sig.Match(ctx, schemas.PageState{URL: "https://passport.bilibili.com/login?gourl=x"}, nil)
	assert.True(t, hit)
	assert.Contains(t, signal, "url contains")

	_, hit = sig.Match(ctx, schemas.PageState{Title: "SIGN IN to continue"}, nil)
	assert.True(t, hit, "title match is case insensitive")

	_, hit = sig.Match(ctx, schemas.PageState{TextDigest: "请扫码登录"}, nil)
	assert.True(t, hit)

	driver := mocks.NewMockBrowserDriver()
	driver.On("Count", mock.Anything, ".login-modal").Return(1, nil).Once()
	signal, hit = sig.Match(ctx, schemas.PageState{URL: "https://www.bilibili.com"}, driver)
	assert.True(t, hit)
	assert.Equal(t, "selector .login-modal", signal)

	missing := mocks.NewMockBrowserDriver()
	missing.On("Count", mock.Anything, ".login-modal").Return(0, errors.New("no document")).Once()
	_, hit = sig.Match(ctx, schemas.PageState{URL: "https://www.bilibili.com"}, missing)
	assert.False(t, hit)
}

func TestDefinition_LoginWallNilWhenEmpty(t *testing.T) {
	p, ok := DefaultRegistry().Get("baidu")
	require.True(t, ok)
	assert.Nil(t, p.LoginWall())

	p, ok = DefaultRegistry().Get("bilibili")
	require.True(t, ok)
	assert.NotNil(t, p.LoginWall())
	assert.Equal(t, ".header-avatar-wrap", p.LoggedInSelector())
}

const profilesYAML = `
sites:
  - id: hackernews
    name: Hacker News
    hosts: ["news.ycombinator.com"]
    keywords: ["hackernews", "hn"]
    home_url: https://news.ycombinator.com
    login_url: https://news.ycombinator.com/login
    login_signature:
      url_contains: ["ycombinator.com/login"]
    selector_hints: ["tr.athing"]
  - id: bilibili
    hosts: ["*.bilibili.com"]
    home_url: https://www.bilibili.com/v/popular/all
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profilesYAML), 0o600))

	r := DefaultRegistry()
	before := len(r.All())
	n, err := r.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, r.All(), before+1, "bilibili is overridden in place")

	p, err := r.Resolve("https://news.ycombinator.com/news")
	require.NoError(t, err)
	assert.Equal(t, "hackernews", p.ID())
	assert.Equal(t, []string{"tr.athing"}, p.SelectorHints())
	assert.Equal(t, "hackernews", r.Infer("top stories on HN").ID())

	bili, _ := r.Get("bilibili")
	assert.Equal(t, "https://www.bilibili.com/v/popular/all", bili.HomeURL())
	assert.Equal(t, "bilibili", r.All()[0].ID(), "override keeps the original position")
}

func TestParseDefinitions_Invalid(t *testing.T) {
	_, err := ParseDefinitions([]byte("sites:\n  - name: nameless\n    hosts: [a.com]\n"))
	assert.ErrorContains(t, err, "missing 'id'")

	_, err = ParseDefinitions([]byte("sites:\n  - id: nohost\n"))
	assert.ErrorContains(t, err, "has no hosts")

	_, err = ParseDefinitions([]byte("sites: [unclosed"))
	assert.Error(t, err)
}
