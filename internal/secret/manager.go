package secret

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Manager routes secret references to providers by URI scheme. The gateway
// resolves configuration values such as "env://INFERD_JWT_SECRET" or
// "vault://secret/data/inferd#api_key" once at startup; a value without a
// scheme is returned verbatim so literal DSNs and keys keep working.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewManager builds an empty manager. Register providers before resolving.
func NewManager() *Manager {
	return &Manager{providers: make(map[string]Provider)}
}

// Register installs a provider for one scheme, replacing any previous one.
func (m *Manager) Register(scheme string, provider Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[scheme] = provider
}

// Get resolves one reference. References carry a "scheme://path" shape;
// anything else is treated as a literal value and returned unchanged.
func (m *Manager) Get(ctx context.Context, ref string) (string, error) {
	scheme, path, ok := strings.Cut(ref, "://")
	if !ok {
		return ref, nil
	}

	m.mu.RLock()
	provider, found := m.providers[scheme]
	m.mu.RUnlock()
	if !found {
		return "", fmt.Errorf("no secret provider registered for scheme %q", scheme)
	}
	return provider.Get(ctx, path)
}

// Close shuts down every registered provider.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for scheme, p := range m.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s provider: %w", scheme, err))
		}
	}
	return errors.Join(errs...)
}
