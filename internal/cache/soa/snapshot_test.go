package soa

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/blueberrycongee/inferd/internal/embedding"
)

func snapshotTestConfig() Config {
	return Config{
		Dimension:           16,
		MaxEntries:          4,
		SimilarityThreshold: 0.95,
		HitProtection:       time.Hour,
	}
}

func newSnapshotClient(t *testing.T, addr string) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newCacheWithSnapshot(t *testing.T, client redis.UniversalClient) *Cache {
	t.Helper()
	cfg := snapshotTestConfig()
	c, err := New(
		embedding.NewHashEmbedder(cfg.Dimension),
		cfg,
		WithSnapshot(NewRedisSnapshot(client, "")),
	)
	require.NoError(t, err)
	return c
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := miniredis.RunT(t)
	client := newSnapshotClient(t, s.Addr())
	ctx := context.Background()

	first := newCacheWithSnapshot(t, client)
	_, err := first.Insert(ctx, "question one", "answer one")
	require.NoError(t, err)
	_, err = first.Insert(ctx, "question two", "answer two")
	require.NoError(t, err)

	// A hit on "question one", then another insert so the bumped hit count
	// reaches the snapshot.
	res, err := first.Lookup(ctx, "question one")
	require.NoError(t, err)
	require.True(t, res.Hit)
	_, err = first.Insert(ctx, "question three", "answer three")
	require.NoError(t, err)

	second := newCacheWithSnapshot(t, client)
	assert.Equal(t, 3, second.Stats().Entries)

	for prompt, want := range map[string]string{
		"question one":   "answer one",
		"question two":   "answer two",
		"question three": "answer three",
	} {
		res, err := second.Lookup(ctx, prompt)
		require.NoError(t, err)
		assert.True(t, res.Hit, "expected %q to be restored", prompt)
		assert.Equal(t, want, res.Response)
		assert.InDelta(t, 1.0, res.Similarity, 1e-6)
	}
	requireDense(t, second)

	second.mu.RLock()
	defer second.mu.RUnlock()
	target := hashPrompt("question one")
	found := false
	for i := 0; i < second.n; i++ {
		if second.entries[i].PromptHash == target {
			assert.Equal(t, int64(1), second.entries[i].HitCount(), "hit count should survive the round trip")
			found = true
		}
	}
	assert.True(t, found)
}

func TestSnapshotEmptyRedisStartsEmpty(t *testing.T) {
	s := miniredis.RunT(t)
	client := newSnapshotClient(t, s.Addr())

	c := newCacheWithSnapshot(t, client)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestSnapshotPartialStateStartsEmpty(t *testing.T) {
	cfg := snapshotTestConfig()
	ctx := context.Background()

	seed := func(t *testing.T, client *redis.Client) {
		c := newCacheWithSnapshot(t, client)
		_, err := c.Insert(ctx, "alpha", "answer alpha")
		require.NoError(t, err)
		_, err = c.Insert(ctx, "beta", "answer beta")
		require.NoError(t, err)
	}

	t.Run("missing embeddings blob", func(t *testing.T) {
		s := miniredis.RunT(t)
		client := newSnapshotClient(t, s.Addr())
		seed(t, client)
		require.NoError(t, client.Del(ctx, "soa_cache:embeddings").Err())

		c := newCacheWithSnapshot(t, client)
		assert.Equal(t, 0, c.Stats().Entries)
	})

	t.Run("truncated embeddings blob", func(t *testing.T) {
		s := miniredis.RunT(t)
		client := newSnapshotClient(t, s.Addr())
		seed(t, client)
		require.NoError(t, client.Set(ctx, "soa_cache:embeddings", make([]byte, 7), 0).Err())

		c := newCacheWithSnapshot(t, client)
		assert.Equal(t, 0, c.Stats().Entries)
	})

	t.Run("missing entry key", func(t *testing.T) {
		s := miniredis.RunT(t)
		client := newSnapshotClient(t, s.Addr())
		seed(t, client)
		require.NoError(t, client.Del(ctx, "soa_cache:entry:0").Err())

		c := newCacheWithSnapshot(t, client)
		assert.Equal(t, 0, c.Stats().Entries)
	})

	t.Run("malformed entry payload", func(t *testing.T) {
		s := miniredis.RunT(t)
		client := newSnapshotClient(t, s.Addr())
		seed(t, client)
		require.NoError(t, client.Set(ctx, "soa_cache:entry:1", "{not json", 0).Err())

		c := newCacheWithSnapshot(t, client)
		assert.Equal(t, 0, c.Stats().Entries)
	})

	t.Run("unparseable count", func(t *testing.T) {
		s := miniredis.RunT(t)
		client := newSnapshotClient(t, s.Addr())
		seed(t, client)
		require.NoError(t, client.Set(ctx, "soa_cache:count", "not-a-number", 0).Err())

		c := newCacheWithSnapshot(t, client)
		assert.Equal(t, 0, c.Stats().Entries)
	})

	t.Run("count beyond capacity", func(t *testing.T) {
		s := miniredis.RunT(t)
		client := newSnapshotClient(t, s.Addr())
		seed(t, client)
		require.NoError(t, client.Set(ctx, "soa_cache:count", strconv.Itoa(cfg.MaxEntries+1), 0).Err())

		c := newCacheWithSnapshot(t, client)
		assert.Equal(t, 0, c.Stats().Entries)
	})
}

func TestSnapshotRewrittenAfterInvalidate(t *testing.T) {
	s := miniredis.RunT(t)
	client := newSnapshotClient(t, s.Addr())
	ctx := context.Background()

	first := newCacheWithSnapshot(t, client)
	_, err := first.Insert(ctx, "stale", "stale answer")
	require.NoError(t, err)
	_, err = first.Insert(ctx, "current", "current answer")
	require.NoError(t, err)
	require.Equal(t, 1, first.Invalidate(ctx, "stale"))

	second := newCacheWithSnapshot(t, client)
	assert.Equal(t, 1, second.Stats().Entries)

	res, err := second.Lookup(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, res.Hit, "invalidated entry must not come back from the snapshot")

	res, err = second.Lookup(ctx, "current")
	require.NoError(t, err)
	assert.True(t, res.Hit)
	assert.Equal(t, "current answer", res.Response)
}

func TestSnapshotWriteFailureDoesNotFailInsert(t *testing.T) {
	s := miniredis.RunT(t)
	client := newSnapshotClient(t, s.Addr())
	ctx := context.Background()

	c := newCacheWithSnapshot(t, client)
	s.Close()

	slot, err := c.Insert(ctx, "prompt", "response")
	require.NoError(t, err, "snapshot failures must stay soft")
	assert.Equal(t, 0, slot)

	res, err := c.Lookup(ctx, "prompt")
	require.NoError(t, err)
	assert.True(t, res.Hit)
	assert.Equal(t, "response", res.Response)
}

// setupRedisIfAvailable starts a throwaway Redis container. Returns an empty
// address when Docker is not available so the caller can skip.
func setupRedisIfAvailable(t *testing.T) string {
	t.Helper()

	defer func() {
		if r := recover(); r != nil {
			t.Logf("docker setup failed (panic recovered): %v", r)
		}
	}()

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Logf("failed to start redis container: %v", err)
		return ""
	}
	t.Cleanup(func() {
		if terminateErr := container.Terminate(ctx); terminateErr != nil {
			t.Logf("failed to terminate redis container: %v", terminateErr)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Logf("failed to get container host: %v", err)
		return ""
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Logf("failed to get container port: %v", err)
		return ""
	}
	return host + ":" + port.Port()
}

func TestSnapshotAgainstRealRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	addr := setupRedisIfAvailable(t)
	if addr == "" {
		t.Skip("docker not available")
	}

	client := newSnapshotClient(t, addr)
	ctx := context.Background()

	first := newCacheWithSnapshot(t, client)
	_, err := first.Insert(ctx, "persistent question", "persistent answer")
	require.NoError(t, err)

	second := newCacheWithSnapshot(t, client)
	res, err := second.Lookup(ctx, "persistent question")
	require.NoError(t, err)
	assert.True(t, res.Hit)
	assert.Equal(t, "persistent answer", res.Response)
}
