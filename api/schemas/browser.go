package schemas

import (
	"errors"
	"time"
)

// -- Browser Sentinels --

var (
	// ErrSelectorNotFound is returned by a driver when a selector resolves to zero elements.
	ErrSelectorNotFound = errors.New("selector matched no elements")
	// ErrNoSession is returned once a driver has been closed.
	ErrNoSession = errors.New("browser session is closed")
)

// -- Page Schemas --

// PageState is an opaque snapshot of what the browser currently shows. It is
// refreshed by the orchestrator before each planning call.
type PageState struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	TextDigest string    `json:"text_digest"`
	CapturedAt time.Time `json:"captured_at"`
}

// RawFragment is one DOM element captured by an extract operation.
type RawFragment struct {
	Selector string            `json:"selector"`
	Index    int               `json:"index"`
	HTML     string            `json:"html"`
	Text     string            `json:"text"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

// WaitCondition describes what a wait operation blocks on. A non-empty Selector
// waits for visibility, otherwise Delay is slept.
type WaitCondition struct {
	Selector string        `json:"selector,omitempty"`
	Delay    time.Duration `json:"delay,omitempty"`
}

// -- Credential Schemas --

// Cookie mirrors the fields of a browser cookie that survive a save/restore cycle.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"` // Seconds since epoch, zero or negative for session cookies.
	HTTPOnly bool    `json:"http_only"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"same_site,omitempty"`
}

func (c Cookie) key() string {
	return c.Name + "\x00" + c.Domain + "\x00" + c.Path
}

// CredentialBundle is the persisted authenticated state for one site identity.
type CredentialBundle struct {
	SiteID       string            `json:"site_id"`
	Cookies      []Cookie          `json:"cookies"`
	Origin       string            `json:"origin,omitempty"`
	LocalStorage map[string]string `json:"local_storage,omitempty"`
	SavedAt      time.Time         `json:"saved_at"`
}

// Empty reports whether the bundle carries no state worth persisting.
func (b *CredentialBundle) Empty() bool {
	return b == nil || (len(b.Cookies) == 0 && len(b.LocalStorage) == 0)
}

// Merge returns a new bundle holding the cookies of b overlaid by the cookies of
// fresh. Cookies are identified by name, domain and path; fresh wins. Local
// storage is replaced wholesale when fresh captured any.
func (b *CredentialBundle) Merge(fresh *CredentialBundle) *CredentialBundle {
	if b == nil {
		return fresh.clone()
	}
	if fresh == nil {
		return b.clone()
	}

	out := fresh.clone()
	seen := make(map[string]struct{}, len(fresh.Cookies))
	for _, c := range fresh.Cookies {
		seen[c.key()] = struct{}{}
	}
	var carried []Cookie
	for _, c := range b.Cookies {
		if _, ok := seen[c.key()]; !ok {
			carried = append(carried, c)
		}
	}
	out.Cookies = append(carried, out.Cookies...)

	if len(out.LocalStorage) == 0 && len(b.LocalStorage) > 0 {
		out.Origin = b.Origin
		out.LocalStorage = make(map[string]string, len(b.LocalStorage))
		for k, v := range b.LocalStorage {
			out.LocalStorage[k] = v
		}
	}
	if out.SiteID == "" {
		out.SiteID = b.SiteID
	}
	return out
}

func (b *CredentialBundle) clone() *CredentialBundle {
	if b == nil {
		return nil
	}
	out := *b
	out.Cookies = append([]Cookie(nil), b.Cookies...)
	if b.LocalStorage != nil {
		out.LocalStorage = make(map[string]string, len(b.LocalStorage))
		for k, v := range b.LocalStorage {
			out.LocalStorage[k] = v
		}
	}
	return &out
}
