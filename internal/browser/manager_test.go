// internal/browser/manager_test.go
package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shashank9mittal/uxray/internal/config"
)

func TestNewPageRejectsInvalidViewport(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Browser.ViewportWidth = 0
	m := NewManager(cfg, zap.NewNop())

	_, err := m.NewPage(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "viewport")

	// Initialization failure is sticky across calls.
	_, err = m.NewPage(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "viewport")
}

func TestNewPageAfterShutdown(t *testing.T) {
	cfg := config.NewDefaultConfig()
	m := NewManager(cfg, zap.NewNop())

	require.NoError(t, m.Shutdown(context.Background()))

	_, err := m.NewPage(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shut down")

	// Shutdown is idempotent.
	require.NoError(t, m.Shutdown(context.Background()))
}
