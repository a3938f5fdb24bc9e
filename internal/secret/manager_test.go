package secret

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	values map[string]string
	calls  int
}

func (s *stubProvider) Get(_ context.Context, path string) (string, error) {
	s.calls++
	if v, ok := s.values[path]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

func (s *stubProvider) Close() error { return nil }

func TestManagerRoutesByScheme(t *testing.T) {
	m := NewManager()
	m.Register("stub", &stubProvider{values: map[string]string{"jwt": "s3cret"}})

	val, err := m.Get(context.Background(), "stub://jwt")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", val)
}

func TestManagerStaticValuePassthrough(t *testing.T) {
	m := NewManager()

	val, err := m.Get(context.Background(), "plain-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", val)
}

func TestManagerUnknownScheme(t *testing.T) {
	m := NewManager()

	_, err := m.Get(context.Background(), "vault://secret/data/inferd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no secret provider")
}

func TestCachedProviderCachesHits(t *testing.T) {
	inner := &stubProvider{values: map[string]string{"key": "v1"}}
	cached := NewCachedProvider(inner, time.Minute)

	for range 3 {
		val, err := cached.Get(context.Background(), "key")
		require.NoError(t, err)
		assert.Equal(t, "v1", val)
	}
	assert.Equal(t, 1, inner.calls, "repeated lookups should hit the cache")
}

func TestCachedProviderDoesNotCacheErrors(t *testing.T) {
	inner := &stubProvider{}
	cached := NewCachedProvider(inner, time.Minute)

	_, err := cached.Get(context.Background(), "missing")
	require.Error(t, err)
	_, err = cached.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}
