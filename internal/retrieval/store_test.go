package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/inferd/internal/embedding"
	"github.com/blueberrycongee/inferd/pkg/types"
)

// fixedEmbedder returns preset vectors per text so similarity is exact.
type fixedEmbedder struct {
	dim     int
	vectors map[string][]float32
	failOn  string
}

func (f *fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if text == f.failOn {
		return nil, errors.New("embedding backend down")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	v := make([]float32, f.dim)
	v[0] = 1
	return v, nil
}

func (f *fixedEmbedder) Dimension() int { return f.dim }
func (f *fixedEmbedder) Model() string  { return "fixed" }

func axisEmbedder() *fixedEmbedder {
	return &fixedEmbedder{
		dim: 4,
		vectors: map[string][]float32{
			"x axis": {1, 0, 0, 0},
			"y axis": {0, 1, 0, 0},
			"mostly x": {0.9, 0.1, 0, 0},
			"zero":   {0, 0, 0, 0},
		},
	}
}

func chunk(text, source string, id int) types.DocumentChunk {
	return types.DocumentChunk{Text: text, Source: source, ChunkID: id}
}

func TestAddAndSearch(t *testing.T) {
	s, err := New(axisEmbedder(), Config{Dimension: 4})
	require.NoError(t, err)

	added := s.Add(context.Background(), []types.DocumentChunk{
		chunk("x axis", "a.txt", 0),
		chunk("y axis", "a.txt", 1),
	})
	assert.Equal(t, 2, added)
	assert.Equal(t, 2, s.Len())

	hits, err := s.Search(context.Background(), "mostly x", 2, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "x axis", hits[0].Text)
	assert.InDelta(t, 0.9939, hits[0].Score, 1e-3)
}

func TestSearchOrdersByScoreAndCapsAtK(t *testing.T) {
	emb := axisEmbedder()
	emb.vectors["near x"] = []float32{0.95, 0.05, 0, 0}
	s, err := New(emb, Config{Dimension: 4})
	require.NoError(t, err)

	s.Add(context.Background(), []types.DocumentChunk{
		chunk("y axis", "a", 0),
		chunk("near x", "a", 1),
		chunk("x axis", "a", 2),
	})

	hits, err := s.Search(context.Background(), "mostly x", 2, 0.1)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	// "near x" is the closest to the query, "x axis" second.
	assert.Equal(t, "near x", hits[0].Text)
	assert.Equal(t, "x axis", hits[1].Text)
}

func TestSearchThresholdFiltersAll(t *testing.T) {
	s, err := New(axisEmbedder(), Config{Dimension: 4})
	require.NoError(t, err)

	s.Add(context.Background(), []types.DocumentChunk{chunk("y axis", "a", 0)})

	hits, err := s.Search(context.Background(), "x axis", 2, 0.5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchDegenerateQueryMatchesNothing(t *testing.T) {
	s, err := New(axisEmbedder(), Config{Dimension: 4})
	require.NoError(t, err)

	s.Add(context.Background(), []types.DocumentChunk{chunk("x axis", "a", 0)})

	hits, err := s.Search(context.Background(), "zero", 2, 0.0001)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchSkipsDegenerateRows(t *testing.T) {
	s, err := New(axisEmbedder(), Config{Dimension: 4})
	require.NoError(t, err)

	s.Add(context.Background(), []types.DocumentChunk{
		chunk("zero", "a", 0),
		chunk("x axis", "a", 1),
	})

	hits, err := s.Search(context.Background(), "x axis", 5, 0.1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "x axis", hits[0].Text)
}

func TestAddDropsFailedEmbeddings(t *testing.T) {
	emb := axisEmbedder()
	emb.failOn = "poison"
	s, err := New(emb, Config{Dimension: 4})
	require.NoError(t, err)

	added := s.Add(context.Background(), []types.DocumentChunk{
		chunk("x axis", "a", 0),
		chunk("poison", "a", 1),
		chunk("", "a", 2),
	})
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, s.Len())
}

func TestClear(t *testing.T) {
	s, err := New(axisEmbedder(), Config{Dimension: 4})
	require.NoError(t, err)

	s.Add(context.Background(), []types.DocumentChunk{chunk("x axis", "a", 0)})
	assert.Equal(t, 1, s.Clear(context.Background()))
	assert.Equal(t, 0, s.Len())

	hits, err := s.Search(context.Background(), "x axis", 2, 0.1)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStatsCountsDistinctSources(t *testing.T) {
	s, err := New(axisEmbedder(), Config{Dimension: 4})
	require.NoError(t, err)

	s.Add(context.Background(), []types.DocumentChunk{
		chunk("x axis", "a.txt", 0),
		chunk("y axis", "a.txt", 1),
		chunk("mostly x", "b.txt", 0),
	})

	stats := s.Stats()
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 2, stats.Sources)
	assert.Equal(t, 4, stats.Dimension)
}

func TestPersistenceRoundTrip(t *testing.T) {
	base := filepath.Join(t.TempDir(), "rag_store")
	emb := embedding.NewHashEmbedder(16)

	s1, err := New(emb, Config{Dimension: 16, StoragePath: base})
	require.NoError(t, err)
	s1.Add(context.Background(), []types.DocumentChunk{
		chunk("the mitochondria is the powerhouse of the cell", "bio.txt", 0),
		chunk("rust prevents data races at compile time", "rust.txt", 0),
	})

	s2, err := New(emb, Config{Dimension: 16, StoragePath: base})
	require.NoError(t, err)
	require.Equal(t, 2, s2.Len())

	// Exact text re-queried against the reloaded store scores 1.
	hits, err := s2.Search(context.Background(), "rust prevents data races at compile time", 1, 0.9)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "rust.txt", hits[0].Source)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
}

func TestLoadDiscardsMismatchedPair(t *testing.T) {
	base := filepath.Join(t.TempDir(), "rag_store")
	emb := embedding.NewHashEmbedder(16)

	s1, err := New(emb, Config{Dimension: 16, StoragePath: base})
	require.NoError(t, err)
	s1.Add(context.Background(), []types.DocumentChunk{chunk("some text", "a", 0)})

	t.Run("missing vector file", func(t *testing.T) {
		require.NoError(t, os.Remove(base+".vec"))
		s2, err := New(emb, Config{Dimension: 16, StoragePath: base})
		require.NoError(t, err)
		assert.Equal(t, 0, s2.Len())
	})

	t.Run("wrong dimension", func(t *testing.T) {
		s1.Add(context.Background(), []types.DocumentChunk{chunk("more text", "a", 1)})
		wrong := embedding.NewHashEmbedder(8)
		s2, err := New(wrong, Config{Dimension: 8, StoragePath: base})
		require.NoError(t, err)
		assert.Equal(t, 0, s2.Len())
	})

	t.Run("corrupt metadata", func(t *testing.T) {
		require.NoError(t, os.WriteFile(base+".json", []byte("{not json"), 0o644))
		s2, err := New(emb, Config{Dimension: 16, StoragePath: base})
		require.NoError(t, err)
		assert.Equal(t, 0, s2.Len())
	})
}

func TestClearRewritesPersistedState(t *testing.T) {
	base := filepath.Join(t.TempDir(), "rag_store")
	emb := embedding.NewHashEmbedder(16)

	s1, err := New(emb, Config{Dimension: 16, StoragePath: base})
	require.NoError(t, err)
	s1.Add(context.Background(), []types.DocumentChunk{chunk("text", "a", 0)})
	s1.Clear(context.Background())

	s2, err := New(emb, Config{Dimension: 16, StoragePath: base})
	require.NoError(t, err)
	assert.Equal(t, 0, s2.Len())
}

func TestAugmentPrompt(t *testing.T) {
	out := AugmentPrompt("what is x?", []types.DocumentChunk{
		{Text: "x is the first axis"},
		{Text: "axes are orthogonal"},
	})
	assert.Contains(t, out, "Context:\n")
	assert.Contains(t, out, "x is the first axis")
	assert.Contains(t, out, "axes are orthogonal")
	assert.Contains(t, out, "Question:\nwhat is x?")

	assert.Equal(t, "plain", AugmentPrompt("plain", nil))
}
