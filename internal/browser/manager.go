// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/shashank9mittal/uxray/api/schemas"
	"github.com/shashank9mittal/uxray/internal/config"
)

// Manager owns the browser process lifecycle and hands out page sessions.
// Initialization is deferred until the first page is requested.
type Manager struct {
	cfg    *config.Config
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	sessions map[string]*Session
	mu       sync.Mutex
	wg       sync.WaitGroup

	initOnce sync.Once
	initErr  error
	closed   bool
}

var _ schemas.BrowserManager = (*Manager)(nil)

// NewManager creates a browser manager bound to the given configuration.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   logger.Named("browser_manager"),
		sessions: make(map[string]*Session),
	}
}

// initialize builds the exec allocator that owns the Chrome process.
func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		if m.cfg.Browser.ViewportWidth <= 0 || m.cfg.Browser.ViewportHeight <= 0 {
			m.initErr = fmt.Errorf("viewport must have positive dimensions, got %dx%d",
				m.cfg.Browser.ViewportWidth, m.cfg.Browser.ViewportHeight)
			return
		}

		opts := append([]chromedp.ExecAllocatorOption{},
			chromedp.NoFirstRun,
			chromedp.NoDefaultBrowserCheck,
			chromedp.WindowSize(m.cfg.Browser.ViewportWidth, m.cfg.Browser.ViewportHeight),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if m.cfg.Browser.Headless {
			opts = append(opts, chromedp.Headless)
		}
		if m.cfg.Browser.IgnoreTLSErrors {
			opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
		}
		for _, arg := range m.cfg.Browser.Args {
			opts = append(opts, chromedp.Flag(arg, true))
		}

		// The allocator context must outlive the caller's request context,
		// otherwise the browser dies with the first request.
		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		m.logger.Info("Browser allocator initialized.",
			zap.Bool("headless", m.cfg.Browser.Headless),
			zap.Int("viewport_width", m.cfg.Browser.ViewportWidth),
			zap.Int("viewport_height", m.cfg.Browser.ViewportHeight),
		)
	})
	return m.initErr
}

// NewPage creates a new browser tab wrapped in a Session.
func (m *Manager) NewPage(ctx context.Context) (schemas.Page, error) {
	// Reserve the waitgroup slot under the same lock section as the closed
	// check, so a concurrent Shutdown cannot pass wg.Wait between the check
	// and this session's registration.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("browser manager is shut down")
	}
	m.wg.Add(1)
	m.mu.Unlock()

	if err := m.initialize(ctx); err != nil {
		m.wg.Done()
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx)

	session, err := NewSession(tabCtx, tabCancel, m.cfg, m.logger, func(id string) {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		m.wg.Done()
	})
	if err != nil {
		tabCancel()
		m.wg.Done()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := session.Initialize(ctx); err != nil {
		tabCancel()
		m.wg.Done()
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		// Shutdown ran while the tab was coming up and cannot see this
		// session; close it here. Close releases the reserved slot through
		// the onClose callback.
		if cerr := session.Close(ctx); cerr != nil {
			m.logger.Warn("Failed to close orphaned session.", zap.Error(cerr))
		}
		return nil, fmt.Errorf("browser manager is shut down")
	}
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.logger.Debug("New page session created.", zap.String("session_id", session.ID()))
	return session, nil
}

// Shutdown closes all open sessions and tears down the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		if err := s.Close(ctx); err != nil {
			m.logger.Warn("Failed to close session during shutdown.",
				zap.String("session_id", s.ID()), zap.Error(err))
		}
	}
	m.wg.Wait()

	if m.allocCancel != nil {
		m.allocCancel()
	}
	m.logger.Info("Browser manager shut down.")
	return nil
}
