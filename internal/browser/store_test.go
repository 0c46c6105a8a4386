// internal/browser/store_test.go
package browser

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shashank9mittal/uxray/api/schemas"
)

// stubPage implements schemas.Page at the level the store cares about:
// identity and close tracking.
type stubPage struct {
	mu         sync.Mutex
	closeCalls int
}

func (p *stubPage) Navigate(ctx context.Context, location string) (schemas.NavigationResult, error) {
	return schemas.NavigationResult{Location: location, StatusCode: 200}, nil
}
func (p *stubPage) Location(ctx context.Context) (string, error) { return "", nil }
func (p *stubPage) Title(ctx context.Context) (string, error) { return "", nil }
func (p *stubPage) Viewport(ctx context.Context) (schemas.Viewport, error) {
	return schemas.Viewport{}, nil
}
func (p *stubPage) VisibleText(ctx context.Context) (string, error) { return "", nil }
func (p *stubPage) Evaluate(ctx context.Context, expression string, out interface{}) error {
	return nil
}
func (p *stubPage) CaptureScreenshot(ctx context.Context) ([]byte, error) { return nil, nil }
func (p *stubPage) WaitQuiet(ctx context.Context, quiet time.Duration) error { return nil }
func (p *stubPage) ClickAt(ctx context.Context, x, y float64) error { return nil }
func (p *stubPage) Click(ctx context.Context, selector string) error { return nil }
func (p *stubPage) ForceClick(ctx context.Context, selector string) error { return nil }
func (p *stubPage) Fill(ctx context.Context, selector, value string) error { return nil }
func (p *stubPage) SetValue(ctx context.Context, selector, value string) error { return nil }
func (p *stubPage) SelectOption(ctx context.Context, selector, value string) error {
	return nil
}
func (p *stubPage) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCalls++
	return nil
}

type stubManager struct {
	pages []*stubPage
}

func (m *stubManager) NewPage(ctx context.Context) (schemas.Page, error) {
	page := &stubPage{}
	m.pages = append(m.pages, page)
	return page, nil
}
func (m *stubManager) Shutdown(ctx context.Context) error { return nil }

func TestSessionStoreLifecycle(t *testing.T) {
	manager := &stubManager{}
	store := NewSessionStore(manager, zap.NewNop())
	ctx := context.Background()

	id, err := store.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, store.Len())

	page, ok := store.Get(id)
	require.True(t, ok)
	assert.Same(t, schemas.Page(manager.pages[0]), page)

	require.NoError(t, store.Close(ctx, id))
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 1, manager.pages[0].closeCalls)

	_, ok = store.Get(id)
	assert.False(t, ok)
	assert.Error(t, store.Close(ctx, id), "double close of an id is an error")
}

func TestSessionStoreUnknownID(t *testing.T) {
	store := NewSessionStore(&stubManager{}, zap.NewNop())

	_, ok := store.Get("session-404")
	assert.False(t, ok)
	assert.Error(t, store.WithSession("session-404", func(schemas.Page) error { return nil }))
}

func TestSessionStoreWithSessionSerializesPhases(t *testing.T) {
	store := NewSessionStore(&stubManager{}, zap.NewNop())
	id, err := store.Create(context.Background())
	require.NoError(t, err)

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.WithSession(id, func(schemas.Page) error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "phase lock admits one caller at a time")
}

func TestSessionStoreCloseAll(t *testing.T) {
	manager := &stubManager{}
	store := NewSessionStore(manager, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx)
		require.NoError(t, err)
	}
	require.Equal(t, 3, store.Len())

	store.CloseAll(ctx)
	assert.Equal(t, 0, store.Len())
	for _, page := range manager.pages {
		assert.Equal(t, 1, page.closeCalls)
	}
}
