// internal/browser/context.go
package browser

import (
	"context"
	"errors"
	"time"
)

// CombineContext creates a new context derived from ctx1 (the session context,
// which carries the CDP target) that is canceled when either ctx1 or ctx2 (the
// operation context) is done. ctx2's deadline is copied so an expired operation
// reports context.DeadlineExceeded rather than a bare cancellation.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)
	cancelDeadline := context.CancelFunc(func() {})
	if deadline, ok := ctx2.Deadline(); ok {
		combinedCtx, cancelDeadline = context.WithDeadline(combinedCtx, deadline)
	}

	stop := context.AfterFunc(ctx2, func() {
		// An expired deadline is already mirrored above.
		if !errors.Is(ctx2.Err(), context.DeadlineExceeded) {
			cancel()
		}
	})
	return combinedCtx, func() {
		stop()
		cancelDeadline()
		cancel()
	}
}

// valueOnlyContext inherits values (the CDP target) from its parent but none of
// its deadline or cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that keeps the values of ctx but is not canceled with it.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
