package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("primary result is used when valid", func(t *testing.T) {
		want := []float32{1, 2, 3, 4}
		e := NewFallbackEmbedder(func(context.Context, string) ([]float32, error) {
			return want, nil
		}, 4, nil)

		got, err := e.Embed(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("primary error falls back to hash", func(t *testing.T) {
		e := NewFallbackEmbedder(func(context.Context, string) ([]float32, error) {
			return nil, errors.New("backend down")
		}, 16, nil)

		got, err := e.Embed(ctx, "hello")
		require.NoError(t, err)

		hash, err := NewHashEmbedder(16).Embed(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, hash, got)
	})

	t.Run("wrong dimension falls back to hash", func(t *testing.T) {
		e := NewFallbackEmbedder(func(context.Context, string) ([]float32, error) {
			return []float32{1, 2}, nil
		}, 16, nil)

		got, err := e.Embed(ctx, "hello")
		require.NoError(t, err)
		assert.Len(t, got, 16)
	})

	t.Run("nil primary behaves like hash embedder", func(t *testing.T) {
		e := NewFallbackEmbedder(nil, 32, nil)

		a, err := e.Embed(ctx, "same text")
		require.NoError(t, err)
		b, err := e.Embed(ctx, "same text")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}
