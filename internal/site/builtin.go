// File: internal/site/builtin.go
package site

// DefaultSiteID is used when an instruction names no known site.
const DefaultSiteID = "google"

// builtinDefinitions returns fresh copies so callers may compile and mutate them.
func builtinDefinitions() []*Definition {
	return []*Definition{
		{
			SiteID:      "bilibili",
			DisplayName: "Bilibili",
			Hosts:       []string{"bilibili.com", "*.bilibili.com", "b23.tv"},
			Words:       []string{"bilibili", "b站", "哔哩哔哩"},
			Home:        "https://www.bilibili.com",
			Login:       "https://passport.bilibili.com/login",
			Wall: Signature{
				URLContains: []string{"passport.bilibili.com/login"},
				Selectors:   []string{".bili-mini-mask .login-pwd-wp"},
			},
			LoggedIn: ".header-avatar-wrap",
			Hints:    []string{".bili-video-card", ".video-card", ".video-item", "a[href*='/video/']"},
		},
		{
			SiteID:      "google",
			DisplayName: "Google Search",
			Hosts:       []string{"google.com", "www.google.*"},
			Words:       []string{"google", "谷歌"},
			Home:        "https://www.google.com",
			Login:       "https://accounts.google.com/ServiceLogin",
			Wall:        Signature{URLContains: []string{"accounts.google.com/v3/signin", "accounts.google.com/servicelogin"}},
			Hints:       []string{"#search div.g", "#rso > div", "a h3"},
		},
		{
			SiteID:      "github",
			DisplayName: "GitHub",
			Hosts:       []string{"github.com", "*.github.com"},
			Words:       []string{"github"},
			Home:        "https://github.com",
			Login:       "https://github.com/login",
			Wall:        Signature{URLContains: []string{"github.com/login", "github.com/session"}},
			LoggedIn:    "meta[name='user-login'][content]:not([content=''])",
			Hints:       []string{"article.Box-row", "[data-testid='results-list'] > div", ".repo-list-item"},
		},
		{
			SiteID:      "zhihu",
			DisplayName: "Zhihu",
			Hosts:       []string{"zhihu.com", "*.zhihu.com"},
			Words:       []string{"zhihu", "知乎"},
			Home:        "https://www.zhihu.com",
			Login:       "https://www.zhihu.com/signin",
			Wall: Signature{
				URLContains: []string{"zhihu.com/signin"},
				Selectors:   []string{".signFlowModal"},
			},
			LoggedIn: ".AppHeader-profile",
			Hints:    []string{".TopstoryItem", ".List-item", ".SearchResult-Card"},
		},
		{
			SiteID:      "baidu",
			DisplayName: "Baidu",
			Hosts:       []string{"baidu.com", "*.baidu.com"},
			Words:       []string{"baidu", "百度"},
			Home:        "https://www.baidu.com",
			Login:       "https://passport.baidu.com/v2/?login",
			Hints:       []string{"#content_left .result", "#content_left .c-container"},
		},
		{
			SiteID:      "youtube",
			DisplayName: "YouTube",
			Hosts:       []string{"youtube.com", "*.youtube.com", "youtu.be"},
			Words:       []string{"youtube", "油管"},
			Home:        "https://www.youtube.com",
			Login:       "https://accounts.google.com/ServiceLogin?service=youtube",
			Wall:        Signature{URLContains: []string{"accounts.google.com"}},
			LoggedIn:    "#avatar-btn",
			Hints:       []string{"ytd-rich-item-renderer", "ytd-video-renderer"},
		},
		{
			SiteID:      "x",
			DisplayName: "X",
			Hosts:       []string{"x.com", "*.x.com", "twitter.com", "*.twitter.com"},
			Words:       []string{"twitter", "推特", "x.com"},
			Home:        "https://x.com",
			Login:       "https://x.com/i/flow/login",
			Wall:        Signature{URLContains: []string{"/i/flow/login", "/login?redirect_after_login"}},
			LoggedIn:    "[data-testid='SideNav_AccountSwitcher_Button']",
			Hints:       []string{"article[data-testid='tweet']", "[data-testid='cellInnerDiv']"},
		},
	}
}
