// Package secret resolves configuration references such as env://NAME and
// vault://path#field into literal values when the gateway boots.
package secret

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedProvider memoizes another provider's lookups for a TTL, so a config
// tree referencing the same Vault path several times (API keys, the JWT
// secret, the snapshot DSN) costs one round trip. Errors are never cached.
type CachedProvider struct {
	inner Provider
	items *gocache.Cache
}

// NewCachedProvider wraps inner with a TTL cache.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		items: gocache.New(ttl, 2*ttl),
	}
}

// Get serves from the cache when possible, otherwise asks the inner
// provider and remembers a successful answer.
func (p *CachedProvider) Get(ctx context.Context, path string) (string, error) {
	if cached, found := p.items.Get(path); found {
		if val, ok := cached.(string); ok {
			return val, nil
		}
	}

	val, err := p.inner.Get(ctx, path)
	if err != nil {
		return "", err
	}
	p.items.Set(path, val, gocache.DefaultExpiration)
	return val, nil
}

// Close shuts down the inner provider.
func (p *CachedProvider) Close() error {
	return p.inner.Close()
}
