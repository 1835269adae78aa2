// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/api/schemas"
	"github.com/xkilldash9x/feedpilot/internal/config"
)

const (
	nodePollInterval  = 100 * time.Millisecond
	defaultNavTimeout = 30 * time.Second
)

// Session is one browser process with a single tab. It implements
// schemas.BrowserDriver and is owned by exactly one run.
type Session struct {
	id         string
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *zap.Logger
	cfg        config.BrowserConfig
	profileDir string

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

// Ensure Session implements the interface.
var _ schemas.BrowserDriver = (*Session)(nil)

func newSession(ctx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, profileDir string, logger *zap.Logger) *Session {
	sessionID := uuid.New().String()
	return &Session{
		id:         sessionID,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger.With(zap.String("session_id", sessionID)),
		cfg:        cfg,
		profileDir: profileDir,
	}
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// runActions executes chromedp actions bounded by both the session lifetime and ctx.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.isClosed
	s.mu.Unlock()
	if closed {
		return schemas.ErrNoSession
	}

	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	timeout := s.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = defaultNavTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.runActions(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (s *Session) Click(ctx context.Context, selector string) error {
	if err := s.waitPresent(ctx, selector); err != nil {
		return err
	}
	return s.runActions(ctx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
	)
}

func (s *Session) Input(ctx context.Context, selector, text string, submit bool) error {
	if err := s.waitPresent(ctx, selector); err != nil {
		return err
	}
	actions := []chromedp.Action{
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	}
	if submit {
		actions = append(actions, chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery))
	}
	return s.runActions(ctx, actions...)
}

func (s *Session) Scroll(ctx context.Context, amount int) error {
	return s.runActions(ctx, chromedp.Evaluate(scrollScript(amount), nil))
}

func (s *Session) Wait(ctx context.Context, cond schemas.WaitCondition, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if cond.Selector != "" {
		return s.runActions(ctx, chromedp.WaitVisible(cond.Selector, chromedp.ByQuery))
	}
	return s.runActions(ctx, chromedp.Sleep(cond.Delay))
}

// Count returns the number of elements matching selector. An invalid selector
// is reported as an error rather than zero.
func (s *Session) Count(ctx context.Context, selector string) (int, error) {
	var n int
	if err := s.runActions(ctx, chromedp.Evaluate(countScript(selector), &n)); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid selector %q", selector)
	}
	return n, nil
}

// waitPresent polls until selector matches or ctx is done. A selector that never
// matched is reported as schemas.ErrSelectorNotFound.
func (s *Session) waitPresent(ctx context.Context, selector string) error {
	ticker := time.NewTicker(nodePollInterval)
	defer ticker.Stop()
	for {
		n, err := s.Count(ctx, selector)
		if err == nil && n > 0 {
			return nil
		}
		if errors.Is(err, schemas.ErrNoSession) {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", schemas.ErrSelectorNotFound, selector)
		case <-ticker.C:
		}
	}
}

type extractedNode struct {
	HTML  string            `json:"html"`
	Text  string            `json:"text"`
	Attrs map[string]string `json:"attrs"`
}

// Extract captures every element matching selector. No match is an empty
// result, not an error.
func (s *Session) Extract(ctx context.Context, selector string) ([]schemas.RawFragment, error) {
	var nodes []extractedNode
	if err := s.runActions(ctx, chromedp.Evaluate(extractScript(selector), &nodes)); err != nil {
		return nil, fmt.Errorf("extract %q: %w", selector, err)
	}
	out := make([]schemas.RawFragment, 0, len(nodes))
	for i, n := range nodes {
		out = append(out, schemas.RawFragment{
			Selector: selector,
			Index:    i,
			HTML:     clip(n.HTML, maxFragmentHTML),
			Text:     n.Text,
			Attrs:    n.Attrs,
		})
	}
	s.logger.Debug("Extracted fragments", zap.String("selector", selector), zap.Int("count", len(out)))
	return out, nil
}

func (s *Session) Snapshot(ctx context.Context) (schemas.PageState, error) {
	var state schemas.PageState
	var text string
	if err := s.runActions(ctx,
		chromedp.Location(&state.URL),
		chromedp.Title(&state.Title),
		chromedp.Evaluate(visibleTextScript, &text),
	); err != nil {
		return schemas.PageState{}, fmt.Errorf("snapshot: %w", err)
	}
	state.TextDigest = digest(text, s.cfg.TextDigestLimit)
	state.CapturedAt = time.Now().UTC()
	return state, nil
}

// GetCookies captures every cookie of the browser plus the local storage of the
// current origin.
func (s *Session) GetCookies(ctx context.Context) (*schemas.CredentialBundle, error) {
	bundle := &schemas.CredentialBundle{}
	var cookies []*network.Cookie
	err := s.runActions(ctx,
		chromedp.ActionFunc(func(c context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(c)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get cookies via CDP: %w", err)
	}
	bundle.Cookies = fromNetworkCookies(cookies)

	if err := s.runActions(ctx,
		chromedp.Evaluate(originScript, &bundle.Origin),
		chromedp.Evaluate(readLocalStorageScript, &bundle.LocalStorage),
	); err != nil {
		s.logger.Warn("Could not capture local storage.", zap.Error(err))
	}
	if bundle.Origin == "null" {
		bundle.Origin, bundle.LocalStorage = "", nil
	}
	return bundle, nil
}

// SetCookies installs the bundle's cookies immediately. Local storage is
// written by a script that runs on the next document of the bundle's origin.
func (s *Session) SetCookies(ctx context.Context, bundle *schemas.CredentialBundle) error {
	if bundle.Empty() {
		return nil
	}
	actions := []chromedp.Action{}
	if params := toCookieParams(bundle.Cookies); len(params) > 0 {
		actions = append(actions, network.SetCookies(params))
	}
	if bundle.Origin != "" && len(bundle.LocalStorage) > 0 {
		script := restoreLocalStorageScript(bundle.Origin, bundle.LocalStorage)
		actions = append(actions, chromedp.ActionFunc(func(c context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(c)
			return err
		}))
	}
	if err := s.runActions(ctx, actions...); err != nil {
		return fmt.Errorf("failed to restore credentials: %w", err)
	}
	s.logger.Debug("Credentials restored", zap.Int("cookies", len(bundle.Cookies)))
	return nil
}

// Close terminates the browser process and removes its profile directory.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")
	closeCtx, cancel := context.WithTimeout(Detach(s.ctx), 5*time.Second)
	if err := chromedp.Cancel(closeCtx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("Graceful browser close failed.", zap.Error(err))
	}
	cancel()
	if s.cancel != nil {
		s.cancel()
	}

	var err error
	if s.profileDir != "" {
		if rmErr := os.RemoveAll(s.profileDir); rmErr != nil {
			err = fmt.Errorf("failed to remove profile dir: %w", rmErr)
		}
	}
	if s.onClose != nil {
		s.onClose()
	}
	return err
}

// -- Cookie conversion --

func fromNetworkCookies(in []*network.Cookie) []schemas.Cookie {
	out := make([]schemas.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		expires := c.Expires
		if c.Session {
			expires = 0
		}
		out = append(out, schemas.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out
}

func toCookieParams(in []schemas.Cookie) []*network.CookieParam {
	out := make([]*network.CookieParam, 0, len(in))
	for _, c := range in {
		if c.Name == "" || c.Domain == "" {
			continue
		}
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if p.Path == "" {
			p.Path = "/"
		}
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			t := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
			p.Expires = &t
		}
		switch network.CookieSameSite(c.SameSite) {
		case network.CookieSameSiteStrict, network.CookieSameSiteLax, network.CookieSameSiteNone:
			p.SameSite = network.CookieSameSite(c.SameSite)
		}
		out = append(out, p)
	}
	return out
}
