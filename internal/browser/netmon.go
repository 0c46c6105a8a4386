// internal/browser/netmon.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// NetworkMonitor listens to CDP network events for one tab and tracks
// in-flight requests so callers can wait for activity quiescence.
type NetworkMonitor struct {
	logger *zap.Logger

	// The context for the browser tab this monitor is attached to.
	sessionCtx context.Context
	// A separate context so the listener goroutine can be stopped cleanly.
	listenerCtx    context.Context
	cancelListener context.CancelFunc

	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	lastDone time.Time

	isStarted bool
}

// NewNetworkMonitor creates a monitor for a specific session.
func NewNetworkMonitor(sessionCtx context.Context, logger *zap.Logger) *NetworkMonitor {
	return &NetworkMonitor{
		sessionCtx: sessionCtx,
		logger:     logger.Named("netmon"),
		inflight:   make(map[network.RequestID]struct{}),
		lastDone:   time.Now(),
	}
}

// Start enables the network domain and begins tracking events.
func (m *NetworkMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isStarted {
		return nil
	}

	m.listenerCtx, m.cancelListener = context.WithCancel(m.sessionCtx)

	chromedp.ListenTarget(m.listenerCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			m.requestStarted(e.RequestID)
		case *network.EventLoadingFinished:
			m.requestDone(e.RequestID)
		case *network.EventLoadingFailed:
			m.requestDone(e.RequestID)
		}
	})

	if err := chromedp.Run(ctx, network.Enable()); err != nil {
		m.cancelListener()
		return err
	}

	m.isStarted = true
	m.logger.Debug("Network monitor started.")
	return nil
}

// Stop detaches the listener.
func (m *NetworkMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelListener != nil {
		m.cancelListener()
	}
	m.isStarted = false
}

func (m *NetworkMonitor) requestStarted(id network.RequestID) {
	m.mu.Lock()
	m.inflight[id] = struct{}{}
	m.mu.Unlock()
}

func (m *NetworkMonitor) requestDone(id network.RequestID) {
	m.mu.Lock()
	delete(m.inflight, id)
	if len(m.inflight) == 0 {
		m.lastDone = time.Now()
	}
	m.mu.Unlock()
}

// quietSince reports whether the network has had zero in-flight requests for
// at least the given period.
func (m *NetworkMonitor) quietSince(quiet time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight) == 0 && time.Since(m.lastDone) >= quiet
}

// WaitQuiet blocks until the network has been quiet for the given period or
// the context expires.
func (m *NetworkMonitor) WaitQuiet(ctx context.Context, quiet time.Duration) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.quietSince(quiet) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
