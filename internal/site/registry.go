// File: internal/site/registry.go
package site

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// fuzzyMinLen is the shortest keyword matched with typo tolerance.
const fuzzyMinLen = 5

// Registry holds the known site profiles in registration order.
type Registry struct {
	mu       sync.RWMutex
	profiles []Profile
	byID     map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]int)}
}

// DefaultRegistry creates a registry holding the built-in profiles.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, d := range builtinDefinitions() {
		if err := r.RegisterDefinition(d); err != nil {
			panic(fmt.Sprintf("invalid built-in site profile: %v", err))
		}
	}
	return r
}

// Register adds a profile. A profile with an existing id replaces the old one
// in place.
func (r *Registry) Register(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.byID[p.ID()]; ok {
		r.profiles[i] = p
		return
	}
	r.byID[p.ID()] = len(r.profiles)
	r.profiles = append(r.profiles, p)
}

// RegisterDefinition validates and registers a data driven profile.
func (r *Registry) RegisterDefinition(d *Definition) error {
	if err := d.compile(); err != nil {
		return err
	}
	r.Register(d)
	return nil
}

// Get returns the profile with the given id.
func (r *Registry) Get(id string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return r.profiles[i], true
}

// All returns the registered profiles in registration order.
func (r *Registry) All() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Profile(nil), r.profiles...)
}

// Resolve returns the profile owning rawURL, or a generic profile keyed by the
// registrable domain when no registered profile claims it.
func (r *Registry) Resolve(rawURL string) (Profile, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid target URL '%s': %w", rawURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("target URL '%s' has no host", rawURL)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.profiles {
		if p.Matches(u) {
			return p, nil
		}
	}
	return newGenericProfile(u), nil
}

// Infer picks the site an instruction talks about. Exact keyword hits win over
// near misses; with neither, the default site is returned.
func (r *Registry) Infer(instruction string) Profile {
	text := strings.ToLower(instruction)
	tokens := asciiTokens(text)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.profiles {
		for _, kw := range p.Keywords() {
			if keywordHit(text, tokens, strings.ToLower(kw)) {
				return p
			}
		}
	}
	for _, p := range r.profiles {
		for _, kw := range p.Keywords() {
			if fuzzyHit(tokens, strings.ToLower(kw)) {
				return p
			}
		}
	}
	if i, ok := r.byID[DefaultSiteID]; ok {
		return r.profiles[i]
	}
	if len(r.profiles) > 0 {
		return r.profiles[0]
	}
	return nil
}

// InferURL returns the home URL of the inferred site.
func (r *Registry) InferURL(instruction string) (string, error) {
	p := r.Infer(instruction)
	if p == nil || p.HomeURL() == "" {
		return "", fmt.Errorf("no site could be inferred from the instruction")
	}
	return p.HomeURL(), nil
}

// keywordHit matches plain ASCII words against whole tokens so that short
// names do not fire inside longer words. Anything else is a substring match.
func keywordHit(text string, tokens []string, kw string) bool {
	if kw == "" {
		return false
	}
	if !isPlainWord(kw) {
		return strings.Contains(text, kw)
	}
	for _, t := range tokens {
		if t == kw {
			return true
		}
	}
	return false
}

func fuzzyHit(tokens []string, kw string) bool {
	if !isPlainWord(kw) || utf8.RuneCountInString(kw) < fuzzyMinLen {
		return false
	}
	for _, t := range tokens {
		if len(t) >= fuzzyMinLen-1 && levenshtein.ComputeDistance(t, kw) <= 1 {
			return true
		}
	}
	return false
}

func isPlainWord(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isASCIIAlnum(s[i]) {
			return false
		}
	}
	return s != ""
}

// asciiTokens splits text into runs of ASCII letters and digits. CJK text has
// no spaces, so "在github搜索" yields "github".
func asciiTokens(text string) []string {
	var tokens []string
	start := -1
	for i := 0; i < len(text); i++ {
		if isASCIIAlnum(text[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, text[start:i])
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, text[start:])
	}
	return tokens
}

func isASCIIAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
