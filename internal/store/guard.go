// File: internal/store/guard.go
package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/api/schemas"
)

// Guard serializes access to a Store per site id so concurrent runs against the
// same site cannot lose each other's cookie updates.
type Guard struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewGuard wraps store.
func NewGuard(store Store, logger *zap.Logger) *Guard {
	return &Guard{
		store:  store,
		logger: logger.Named("store_guard"),
		now:    time.Now,
		locks:  make(map[string]*keyLock),
	}
}

func (g *Guard) lock(siteID string) func() {
	g.mu.Lock()
	l, ok := g.locks[siteID]
	if !ok {
		l = &keyLock{}
		g.locks[siteID] = l
	}
	l.refs++
	g.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, siteID)
		}
		g.mu.Unlock()
	}
}

// Load reads the bundle for siteID while holding its lock.
func (g *Guard) Load(ctx context.Context, siteID string) (*schemas.CredentialBundle, error) {
	unlock := g.lock(siteID)
	defer unlock()
	return g.store.Load(ctx, siteID)
}

// Update runs a read-modify-write cycle under the site lock. A nil bundle from
// fn leaves the stored value untouched.
func (g *Guard) Update(ctx context.Context, siteID string, fn func(old *schemas.CredentialBundle) (*schemas.CredentialBundle, error)) error {
	unlock := g.lock(siteID)
	defer unlock()

	old, err := g.store.Load(ctx, siteID)
	if err != nil {
		return err
	}
	next, err := fn(old)
	if err != nil || next == nil {
		return err
	}
	if next.SavedAt.IsZero() {
		next.SavedAt = g.now().UTC()
	}
	if err := g.store.Save(ctx, siteID, next); err != nil {
		return err
	}
	g.logger.Debug("Credentials updated", zap.String("site", siteID), zap.Int("cookies", len(next.Cookies)))
	return nil
}

// Merge overlays fresh onto the stored bundle and saves the result.
func (g *Guard) Merge(ctx context.Context, siteID string, fresh *schemas.CredentialBundle) error {
	if fresh.Empty() {
		return nil
	}
	return g.Update(ctx, siteID, func(old *schemas.CredentialBundle) (*schemas.CredentialBundle, error) {
		merged := old.Merge(fresh)
		merged.SavedAt = time.Time{}
		return merged, nil
	})
}

// Invalidate drops the stored bundle, used when a restored session turned out
// to be logged out.
func (g *Guard) Invalidate(ctx context.Context, siteID string) error {
	unlock := g.lock(siteID)
	defer unlock()
	if err := g.store.Delete(ctx, siteID); err != nil {
		return err
	}
	g.logger.Info("Stored credentials invalidated", zap.String("site", siteID))
	return nil
}

// Close closes the underlying store.
func (g *Guard) Close() error {
	return g.store.Close()
}
