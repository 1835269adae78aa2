// File: internal/site/profile.go
package site

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"

	"github.com/xkilldash9x/feedpilot/api/schemas"
	"github.com/xkilldash9x/feedpilot/internal/agent"
)

// Profile captures the conventions of one site. New sites are added by
// registering another Profile, not by touching the pipeline.
type Profile interface {
	ID() string
	Name() string
	// Matches reports whether the URL belongs to this site.
	Matches(u *url.URL) bool
	// Keywords are the words in an instruction that name this site.
	Keywords() []string
	HomeURL() string
	LoginURL() string
	// LoginWall recognizes the logged-out state. Nil when the site has no
	// known signature.
	LoginWall() agent.LoginWall
	// LoggedInSelector appears only for an authenticated user.
	LoggedInSelector() string
	// SelectorHints lists item container selectors known to work on the site.
	SelectorHints() []string
}

// Signature is a declarative login-wall detector. Any single match fires.
type Signature struct {
	URLContains   []string `yaml:"url_contains"`
	TitleContains []string `yaml:"title_contains"`
	TextContains  []string `yaml:"text_contains"`
	// Selectors match elements that only a login prompt shows.
	Selectors []string `yaml:"selectors"`
}

var _ agent.LoginWall = Signature{}

// Empty reports whether the signature can never match.
func (s Signature) Empty() bool {
	return len(s.URLContains)+len(s.TitleContains)+len(s.TextContains)+len(s.Selectors) == 0
}

// Match implements agent.LoginWall.
func (s Signature) Match(ctx context.Context, page schemas.PageState, driver schemas.BrowserDriver) (string, bool) {
	if hit, ok := containsAny(page.URL, s.URLContains); ok {
		return "url contains " + hit, true
	}
	if hit, ok := containsAny(page.Title, s.TitleContains); ok {
		return "title contains " + hit, true
	}
	if hit, ok := containsAny(page.TextDigest, s.TextContains); ok {
		return "text contains " + hit, true
	}
	if driver == nil {
		return "", false
	}
	for _, sel := range s.Selectors {
		n, err := driver.Count(ctx, sel)
		if err == nil && n > 0 {
			return "selector " + sel, true
		}
	}
	return "", false
}

func containsAny(haystack string, needles []string) (string, bool) {
	if haystack == "" {
		return "", false
	}
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if n != "" && strings.Contains(lower, strings.ToLower(n)) {
			return n, true
		}
	}
	return "", false
}

// Definition is a data driven Profile, used for the built-ins and for profiles
// loaded from YAML.
type Definition struct {
	SiteID      string    `yaml:"id"`
	DisplayName string    `yaml:"name"`
	Hosts       []string  `yaml:"hosts"`
	Words       []string  `yaml:"keywords"`
	Home        string    `yaml:"home_url"`
	Login       string    `yaml:"login_url"`
	Wall        Signature `yaml:"login_signature"`
	LoggedIn    string    `yaml:"logged_in_selector"`
	Hints       []string  `yaml:"selector_hints"`

	matchers []glob.Glob
}

var _ Profile = (*Definition)(nil)

// compile prepares the host patterns. Patterns use '.' as the separator, so
// "*.bilibili.com" matches one subdomain level and "**.bilibili.com" any.
func (d *Definition) compile() error {
	if d.SiteID == "" {
		return fmt.Errorf("site profile is missing 'id'")
	}
	if len(d.Hosts) == 0 {
		return fmt.Errorf("site profile '%s' has no hosts", d.SiteID)
	}
	d.matchers = make([]glob.Glob, 0, len(d.Hosts))
	for _, h := range d.Hosts {
		g, err := glob.Compile(strings.ToLower(h), '.')
		if err != nil {
			return fmt.Errorf("site profile '%s': invalid host pattern '%s': %w", d.SiteID, h, err)
		}
		d.matchers = append(d.matchers, g)
	}
	if d.DisplayName == "" {
		d.DisplayName = d.SiteID
	}
	return nil
}

func (d *Definition) ID() string   { return d.SiteID }
func (d *Definition) Name() string { return d.DisplayName }

func (d *Definition) Matches(u *url.URL) bool {
	if u == nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, g := range d.matchers {
		if g.Match(host) {
			return true
		}
	}
	return false
}

func (d *Definition) Keywords() []string       { return d.Words }
func (d *Definition) HomeURL() string          { return d.Home }
func (d *Definition) LoginURL() string         { return d.Login }
func (d *Definition) LoggedInSelector() string { return d.LoggedIn }
func (d *Definition) SelectorHints() []string  { return d.Hints }

func (d *Definition) LoginWall() agent.LoginWall {
	if d.Wall.Empty() {
		return nil
	}
	return d.Wall
}
