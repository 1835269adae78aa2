package agent

import (
	"context"
	"strings"
	"sync"

	"github.com/xkilldash9x/feedpilot/api/schemas"
)

// -- Login Wall Fake --

// fakeWall reports a hit once the page URL contains trigger.
type fakeWall struct {
	trigger string

	mu    sync.Mutex
	calls int
}

func (w *fakeWall) Match(_ context.Context, page schemas.PageState, _ schemas.BrowserDriver) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.trigger != "" && page.URL != "" && strings.Contains(page.URL, w.trigger) {
		return "url contains " + w.trigger, true
	}
	return "", false
}

func (w *fakeWall) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}
