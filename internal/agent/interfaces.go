// File: internal/agent/interfaces.go
package agent

import (
	"context"

	"github.com/xkilldash9x/feedpilot/api/schemas"
)

// LoginWall recognizes a logged-out page for one site. Match returns a short
// description of the signal that fired.
type LoginWall interface {
	Match(ctx context.Context, page schemas.PageState, driver schemas.BrowserDriver) (signal string, hit bool)
}

// Session is everything the executor needs about the live browser of a run.
type Session struct {
	Driver schemas.BrowserDriver
	SiteID string
	// Wall may be nil for sites without a known login signature.
	Wall LoginWall
}

// stepHandler performs one attempt of a step against the driver.
type stepHandler func(ctx context.Context, driver schemas.BrowserDriver, step Step) ([]schemas.RawFragment, error)
