// internal/flow/mocks_test.go
package flow

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shashank9mittal/uxray/api/schemas"
	"github.com/shashank9mittal/uxray/internal/browser"
)

// fakePage is a scriptable schemas.Page that counts Close calls so tests can
// assert the page is released exactly once.
type fakePage struct {
	navigateFn func(location string) (schemas.NavigationResult, error)
	location   string
	title      string
	text       string
	closeCount atomic.Int32
}

func (p *fakePage) Navigate(ctx context.Context, location string) (schemas.NavigationResult, error) {
	if p.navigateFn != nil {
		return p.navigateFn(location)
	}
	p.location = location
	return schemas.NavigationResult{Location: location, StatusCode: 200}, nil
}
func (p *fakePage) Location(ctx context.Context) (string, error) { return p.location, nil }
func (p *fakePage) Title(ctx context.Context) (string, error) { return p.title, nil }
func (p *fakePage) Viewport(ctx context.Context) (schemas.Viewport, error) {
	return schemas.Viewport{Width: 1280, Height: 800}, nil
}
func (p *fakePage) VisibleText(ctx context.Context) (string, error) { return p.text, nil }
func (p *fakePage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return nil
}
func (p *fakePage) CaptureScreenshot(ctx context.Context) ([]byte, error) { return nil, nil }
func (p *fakePage) WaitQuiet(ctx context.Context, quiet time.Duration) error { return nil }
func (p *fakePage) ClickAt(ctx context.Context, x, y float64) error { return nil }
func (p *fakePage) Click(ctx context.Context, selector string) error { return nil }
func (p *fakePage) ForceClick(ctx context.Context, selector string) error { return nil }
func (p *fakePage) Fill(ctx context.Context, selector, value string) error { return nil }
func (p *fakePage) SetValue(ctx context.Context, selector, value string) error {
	return nil
}
func (p *fakePage) SelectOption(ctx context.Context, selector, value string) error {
	return nil
}
func (p *fakePage) Close(ctx context.Context) error {
	p.closeCount.Add(1)
	return nil
}

var _ schemas.Page = (*fakePage)(nil)

// fakeBrowser hands out one fakePage.
type fakeBrowser struct {
	page         *fakePage
	newPageErr   error
	newPageCalls int
}

func (b *fakeBrowser) NewPage(ctx context.Context) (schemas.Page, error) {
	b.newPageCalls++
	if b.newPageErr != nil {
		return nil, b.newPageErr
	}
	return b.page, nil
}
func (b *fakeBrowser) Shutdown(ctx context.Context) error { return nil }

// spyStore wraps the real session store and counts lifecycle calls so tests
// can assert every page touch goes through the store's phase lock.
type spyStore struct {
	*browser.SessionStore
	withCalls  atomic.Int32
	closeCalls atomic.Int32
}

func newSpyStore(b *fakeBrowser) *spyStore {
	return &spyStore{SessionStore: browser.NewSessionStore(b, zap.NewNop())}
}

func (s *spyStore) WithSession(id string, fn func(page schemas.Page) error) error {
	s.withCalls.Add(1)
	return s.SessionStore.WithSession(id, fn)
}

func (s *spyStore) Close(ctx context.Context, id string) error {
	s.closeCalls.Add(1)
	return s.SessionStore.Close(ctx, id)
}

// fakePerceiver returns a scripted candidate list per step.
type fakePerceiver struct {
	perStep [][]schemas.CandidateElement
	err     error
	calls   int
}

func (f *fakePerceiver) Perceive(ctx context.Context, page schemas.Page) ([]schemas.CandidateElement, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.perStep) == 0 {
		return nil, nil
	}
	idx := f.calls - 1
	if idx >= len(f.perStep) {
		idx = len(f.perStep) - 1
	}
	return f.perStep[idx], nil
}

// fakeOracle clicks the first candidate and reports the goal achieved after
// a configured number of checks.
type fakeOracle struct {
	decideErr    error
	checkErr     error
	achieveAfter int // goal achieved on the Nth check; 0 means never
	decideCalls  int
	checkCalls   int
}

func (f *fakeOracle) SelectNextAction(ctx context.Context, goal string, candidates []schemas.CandidateElement) (schemas.Decision, error) {
	f.decideCalls++
	if f.decideErr != nil {
		return schemas.Decision{}, f.decideErr
	}
	return schemas.Decision{
		SelectedLocalID: candidates[0].LocalID,
		Action:          schemas.ActionClick,
	}, nil
}

func (f *fakeOracle) IsGoalAchieved(ctx context.Context, goal string, state schemas.PageState) (bool, error) {
	f.checkCalls++
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return f.achieveAfter > 0 && f.checkCalls >= f.achieveAfter, nil
}

// fakeExecutor records executions and returns scripted results.
type fakeExecutor struct {
	results []schemas.ExecutionResult
	calls   int
}

func (f *fakeExecutor) Execute(ctx context.Context, page schemas.Page, candidate schemas.CandidateElement, decision schemas.Decision) schemas.ExecutionResult {
	f.calls++
	if len(f.results) == 0 {
		return schemas.ExecutionResult{Success: true, MethodUsed: "pointer-center"}
	}
	idx := f.calls - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx]
}
