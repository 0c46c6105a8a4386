// internal/browser/store.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/shashank9mittal/uxray/api/schemas"
)

// SessionStore tracks live page sessions by identifier with an explicit
// create/get/close lifecycle. It is injected into callers instead of being
// ambient global state. A per-session mutex guarantees at most one in-flight
// phase per shared session.
type SessionStore struct {
	manager schemas.BrowserManager
	logger  *zap.Logger

	mu      sync.RWMutex
	entries map[string]*storeEntry
	nextID  int
}

var _ schemas.SessionStore = (*SessionStore)(nil)

type storeEntry struct {
	page schemas.Page
	// phaseMu serializes phases for callers sharing this session.
	phaseMu sync.Mutex
}

// NewSessionStore creates a store backed by the given browser manager.
func NewSessionStore(manager schemas.BrowserManager, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		manager: manager,
		logger:  logger.Named("session_store"),
		entries: make(map[string]*storeEntry),
	}
}

// Create opens a new page session and returns its store identifier.
func (s *SessionStore) Create(ctx context.Context) (string, error) {
	page, err := s.manager.NewPage(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create page session: %w", err)
	}

	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("session-%d", s.nextID)
	s.entries[id] = &storeEntry{page: page}
	s.mu.Unlock()

	s.logger.Debug("Session registered.", zap.String("store_id", id))
	return id, nil
}

// Get returns the page for an identifier.
func (s *SessionStore) Get(id string) (schemas.Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return entry.page, true
}

// WithSession runs fn holding the session's phase lock, so two callers
// sharing one session never interleave page mutations.
func (s *SessionStore) WithSession(id string, fn func(page schemas.Page) error) error {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown session %q", id)
	}

	entry.phaseMu.Lock()
	defer entry.phaseMu.Unlock()
	return fn(entry.page)
}

// Close releases a session and removes it from the store.
func (s *SessionStore) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	entry, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown session %q", id)
	}

	s.logger.Debug("Session closed.", zap.String("store_id", id))
	return entry.page.Close(ctx)
}

// CloseAll releases every tracked session. Errors are logged, not returned,
// so one bad tab cannot block shutdown.
func (s *SessionStore) CloseAll(ctx context.Context) {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[string]*storeEntry)
	s.mu.Unlock()

	for id, entry := range entries {
		if err := entry.page.Close(ctx); err != nil {
			s.logger.Warn("Failed to close session.", zap.String("store_id", id), zap.Error(err))
		}
	}
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
