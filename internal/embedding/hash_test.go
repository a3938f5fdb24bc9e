package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("identical texts produce identical vectors", func(t *testing.T) {
		e := NewHashEmbedder(768)

		a, err := e.Embed(ctx, "What is machine learning?")
		require.NoError(t, err)
		b, err := e.Embed(ctx, "What is machine learning?")
		require.NoError(t, err)

		assert.Equal(t, a, b)
		assert.Len(t, a, 768)
	})

	t.Run("different texts produce different vectors", func(t *testing.T) {
		e := NewHashEmbedder(64)

		a, err := e.Embed(ctx, "What is machine learning?")
		require.NoError(t, err)
		b, err := e.Embed(ctx, "How does blockchain work?")
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("vector is not degenerate", func(t *testing.T) {
		e := NewHashEmbedder(128)

		vec, err := e.Embed(ctx, "hello")
		require.NoError(t, err)

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		assert.Greater(t, norm, 1e-8)
	})

	t.Run("invalid dimension falls back to default", func(t *testing.T) {
		e := NewHashEmbedder(0)
		assert.Equal(t, 768, e.Dimension())
	})
}
