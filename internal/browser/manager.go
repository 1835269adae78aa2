// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/api/schemas"
	"github.com/xkilldash9x/feedpilot/internal/browser/stealth"
	"github.com/xkilldash9x/feedpilot/internal/config"
)

const startupTimeout = 45 * time.Second

// Manager launches one browser process per session and tracks them so they can
// all be torn down on shutdown.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	sessions map[string]*Session
	mu       sync.RWMutex
	wg       sync.WaitGroup // tracks open sessions
}

// NewManager creates a new browser manager. No browser starts until the first session is requested.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// NewSession starts a fresh browser with its own allocator and profile
// directory and returns its driver.
func (m *Manager) NewSession(ctx context.Context) (schemas.BrowserDriver, error) {
	return m.newSession(ctx, m.cfg)
}

// NewHeadfulSession is NewSession with the window forced visible, for flows
// that need a person at the keyboard.
func (m *Manager) NewHeadfulSession(ctx context.Context) (schemas.BrowserDriver, error) {
	cfg := m.cfg
	cfg.Headless = false
	return m.newSession(ctx, cfg)
}

func (m *Manager) newSession(ctx context.Context, cfg config.BrowserConfig) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	profileDir, err := os.MkdirTemp("", "feedpilot-profile-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create profile dir: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), DefaultAllocatorOptions(cfg, profileDir)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(m.logger.Sugar().Debugf),
	)
	cancel := func() {
		tabCancel()
		allocCancel()
	}
	session := newSession(tabCtx, cancel, cfg, profileDir, m.logger)

	// The first Run on the tab context starts the browser, and the browser lives as
	// long as the context given to that call, so it must not carry a deadline.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()
	select {
	case err = <-started:
	case <-ctx.Done():
		err = ctx.Err()
	case <-time.After(startupTimeout):
		err = fmt.Errorf("browser did not start within %s", startupTimeout)
	}
	if err == nil {
		initCtx, initCancel := context.WithTimeout(ctx, startupTimeout)
		err = session.runActions(initCtx, stealth.Apply(stealth.PersonaFor(cfg), session.logger))
		initCancel()
	}
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	m.wg.Add(1)
	session.onClose = func() {
		m.mu.Lock()
		delete(m.sessions, session.ID())
		m.mu.Unlock()
		m.wg.Done()
		m.logger.Debug("Session removed from manager.", zap.String("session_id", session.ID()))
	}
	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.logger.Info("New session created.", zap.String("session_id", session.ID()), zap.Bool("headless", cfg.Headless))
	return session, nil
}

// Active reports the number of open sessions.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown closes every open session and waits for them, bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()

	if len(open) == 0 {
		return nil
	}
	m.logger.Info("Shutting down browser sessions.", zap.Int("count", len(open)))
	for _, s := range open {
		go func(s *Session) {
			if err := s.Close(); err != nil {
				m.logger.Warn("Error during session close in shutdown.", zap.String("session_id", s.ID()), zap.Error(err))
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("All sessions closed gracefully.")
		return nil
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close.", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}
