// internal/browser/session.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shashank9mittal/uxray/api/schemas"
	"github.com/shashank9mittal/uxray/internal/config"
)

// Session represents one live browser tab and implements schemas.Page.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    *config.Config

	netmon *NetworkMonitor

	onClose func(id string)

	mu       sync.Mutex
	isClosed bool
}

var _ schemas.Page = (*Session)(nil)

// NewSession creates a Session wrapper around a chromedp tab context.
func NewSession(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg *config.Config,
	logger *zap.Logger,
	onClose func(id string),
) (*Session, error) {
	sessionID := uuid.New().String()
	return &Session{
		id:      sessionID,
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		logger:  logger.With(zap.String("session_id", sessionID)),
		onClose: onClose,
	}, nil
}

// Initialize connects the tab target and starts the network monitor.
func (s *Session) Initialize(ctx context.Context) error {
	runCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx); err != nil {
		return fmt.Errorf("failed to connect browser target: %w", err)
	}

	s.netmon = NewNetworkMonitor(s.ctx, s.logger)
	if err := s.netmon.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start network monitor: %w", err)
	}
	return nil
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string { return s.id }

// Navigate loads the location and surfaces bad HTTP statuses and timeouts as
// navigation failures rather than generic errors.
func (s *Session) Navigate(ctx context.Context, location string) (schemas.NavigationResult, error) {
	navCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()
	navCtx, cancelTimeout := context.WithTimeout(navCtx, s.cfg.Network.NavigationTimeout)
	defer cancelTimeout()

	start := time.Now()
	resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(location))
	elapsed := time.Since(start)

	if err != nil {
		return schemas.NavigationResult{Location: location, LoadTime: elapsed},
			schemas.NewFlowError(schemas.KindNavigation, err, "navigation to %q failed", location)
	}

	result := schemas.NavigationResult{Location: location, LoadTime: elapsed}
	if resp != nil {
		result.StatusCode = int(resp.Status)
		if resp.Status >= 400 {
			return result, schemas.NewFlowError(schemas.KindNavigation, nil,
				"navigation to %q returned status %d", location, resp.Status)
		}
	}

	if current, locErr := s.Location(ctx); locErr == nil {
		result.Location = current
	}

	// Best effort: give the page a chance to settle before perception runs.
	if err := chromedp.Run(navCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		s.logger.Debug("WaitReady after navigation failed.", zap.Error(err))
	}

	s.logger.Info("Navigation complete.",
		zap.String("location", result.Location),
		zap.Int("status", result.StatusCode),
		zap.Duration("load_time", elapsed),
	)
	return result, nil
}

// Location returns the page's current URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

// Title returns the page's current title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

// Viewport reads the live rendering surface dimensions.
func (s *Session) Viewport(ctx context.Context) (schemas.Viewport, error) {
	var vp schemas.Viewport
	expr := `({width: window.innerWidth, height: window.innerHeight})`
	if err := s.Evaluate(ctx, expr, &vp); err != nil {
		return schemas.Viewport{}, fmt.Errorf("failed to read viewport: %w", err)
	}
	return vp, nil
}

// visibleTextLimit caps the body text returned for goal checking. Anything a
// goal token would match appears well within this window.
const visibleTextLimit = 20000

// VisibleText returns the page's visible textual content, capped.
func (s *Session) VisibleText(ctx context.Context) (string, error) {
	var text string
	expr := fmt.Sprintf(`(document.body ? document.body.innerText : "").slice(0, %d)`, visibleTextLimit)
	if err := s.Evaluate(ctx, expr, &text); err != nil {
		return "", fmt.Errorf("failed to read visible text: %w", err)
	}
	return text, nil
}

// Evaluate runs a read/query expression and unmarshals the result into out.
func (s *Session) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return s.run(ctx, chromedp.Evaluate(expression, out))
}

// CaptureScreenshot grabs a viewport-only JPEG. Quality is fixed low to keep
// artifacts bounded in size.
func (s *Session) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var captureErr error
		buf, captureErr = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(60).
			Do(c)
		return captureErr
	}))
	if err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return buf, nil
}

// WaitQuiet blocks until network activity has been quiet for the given
// period, or ctx expires.
func (s *Session) WaitQuiet(ctx context.Context, quiet time.Duration) error {
	if s.netmon == nil {
		return nil
	}
	waitCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()
	return s.netmon.WaitQuiet(waitCtx, quiet)
}

// ClickAt dispatches a raw pointer click at viewport coordinates. This goes
// through CDP input events, so overlay interception does not apply.
func (s *Session) ClickAt(ctx context.Context, x, y float64) error {
	return s.run(ctx, chromedp.MouseClickXY(x, y))
}

// Click performs a structural click on the first element matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// ForceClick invokes the element's click() from script, ignoring any
// interception or visibility checks.
func (s *Session) ForceClick(ctx context.Context, selector string) error {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) { throw new Error("element not found"); }
		el.click();
		return true;
	})()`, jsString(selector))
	var ok bool
	return s.Evaluate(ctx, expr, &ok)
}

// Fill focuses the element and types the value key by key.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	return s.run(ctx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

// SetValue clears the element and sets its value directly.
func (s *Session) SetValue(ctx context.Context, selector, value string) error {
	return s.run(ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
	)
}

// SelectOption sets the select element's value and fires the change events
// frameworks listen for.
func (s *Session) SelectOption(ctx context.Context, selector, value string) error {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) { throw new Error("element not found"); }
		el.value = %s;
		el.dispatchEvent(new Event("input", {bubbles: true}));
		el.dispatchEvent(new Event("change", {bubbles: true}));
		return el.value;
	})()`, jsString(selector), jsString(value))
	var selected string
	if err := s.Evaluate(ctx, expr, &selected); err != nil {
		return err
	}
	if selected != value {
		return fmt.Errorf("option %q not present in select", value)
	}
	return nil
}

// Close terminates the browser session. It is safe to call more than once;
// only the first call has any effect.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	if s.netmon != nil {
		s.netmon.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose(s.id)
	}
	return nil
}

// run executes chromedp actions respecting both the session lifetime and the
// incoming request context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// combineContext derives a context from primary that is additionally canceled
// when secondary is done. chromedp requires the tab context as the parent.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// jsString renders s as a safe JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
