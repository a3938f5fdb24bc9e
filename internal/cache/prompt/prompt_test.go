package prompt

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSet(t *testing.T) {
	c := New(Config{})

	_, ok := c.Get("what is go")
	assert.False(t, ok)

	c.Set("what is go", "a language")
	got, ok := c.Get("what is go")
	require.True(t, ok)
	assert.Equal(t, "a language", got)

	// A different prompt stays a miss.
	_, ok = c.Get("what is rust")
	assert.False(t, ok)
}

func TestSetOverwritesExisting(t *testing.T) {
	c := New(Config{})
	c.Set("p", "first")
	c.Set("p", "second")

	got, ok := c.Get("p")
	require.True(t, ok)
	assert.Equal(t, "second", got)
}

func TestCapacityBound(t *testing.T) {
	c := New(Config{MaxEntries: 3})
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("prompt-%d", i), "r")
	}
	assert.Equal(t, 3, c.Stats().Entries)

	// Existing keys can still be refreshed at capacity.
	c.Set("prompt-0", "updated")
	got, ok := c.Get("prompt-0")
	require.True(t, ok)
	assert.Equal(t, "updated", got)
}

func TestTTLExpiry(t *testing.T) {
	c := New(Config{TTL: 20 * time.Millisecond})
	c.Set("p", "r")

	_, ok := c.Get("p")
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = c.Get("p")
	assert.False(t, ok)
}

func TestClearAndStats(t *testing.T) {
	c := New(Config{})
	c.Set("p", "r")
	c.Get("p")
	c.Get("q")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)

	c.Clear()
	stats = c.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(0), stats.Hits)
}
