// File: internal/site/generic.go
package site

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/feedpilot/internal/agent"
)

var genericWall = Signature{URLContains: []string{"/login", "/signin", "/sign-in", "/sign_in"}}

// genericProfile covers any host without a dedicated profile. Its identity is
// the registrable domain, so www.example.co.uk and m.example.co.uk share
// credentials.
type genericProfile struct {
	domain string
	home   string
}

var _ Profile = (*genericProfile)(nil)

func newGenericProfile(u *url.URL) *genericProfile {
	host := strings.ToLower(u.Hostname())
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil || domain == "" {
		domain = host
	}
	if domain == "" {
		domain = "unknown"
	}
	home := ""
	if u.Host != "" {
		scheme := u.Scheme
		if scheme == "" {
			scheme = "https"
		}
		home = scheme + "://" + u.Host
	}
	return &genericProfile{domain: domain, home: home}
}

func (g *genericProfile) ID() string   { return g.domain }
func (g *genericProfile) Name() string { return g.domain }

func (g *genericProfile) Matches(u *url.URL) bool {
	if u == nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == g.domain || strings.HasSuffix(host, "."+g.domain)
}

func (g *genericProfile) Keywords() []string         { return nil }
func (g *genericProfile) HomeURL() string            { return g.home }
func (g *genericProfile) LoginURL() string           { return "" }
func (g *genericProfile) LoginWall() agent.LoginWall { return genericWall }
func (g *genericProfile) LoggedInSelector() string   { return "" }
func (g *genericProfile) SelectorHints() []string    { return nil }
