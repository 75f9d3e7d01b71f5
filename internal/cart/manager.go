package cart

import (
	"context"
	"log/slog"
	"sync"
)

// Manager hands out one hydrated Store per user key. Each store hydrates at
// most once for the lifetime of the process; subsequent requests for the same
// user share the store, which mirrors the one-actor-per-browsing-context
// model of the storefront.
type Manager struct {
	mu      sync.Mutex
	stores  map[string]*Store
	storage Storage
	logger  *slog.Logger
}

func NewManager(storage Storage, logger *slog.Logger) *Manager {
	return &Manager{
		stores:  make(map[string]*Store),
		storage: storage,
		logger:  logger,
	}
}

// Store returns the cart store for the given user, hydrating it on first use.
func (m *Manager) Store(ctx context.Context, userID string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stores[userID]; ok {
		return s
	}

	s := NewStore(ctx, m.storage, userID, m.logger)
	m.stores[userID] = s
	return s
}
