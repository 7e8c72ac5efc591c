package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_DimensionsAndUnitLength(t *testing.T) {
	e := NewStaticEmbedder(0)

	vec, err := e.Embed(context.Background(), "governed by the laws of New York")

	require.NoError(t, err)
	assert.Len(t, vec, DefaultStaticDimensions)
	assert.InDelta(t, 1.0, vectorMagnitude(vec), 1e-5)
}

func TestStaticEmbedder_Deterministic(t *testing.T) {
	a, _ := NewStaticEmbedder(128).Embed(context.Background(), "automatic renewal")
	b, _ := NewStaticEmbedder(128).Embed(context.Background(), "automatic renewal")
	assert.Equal(t, a, b)
}

func TestStaticEmbedder_SimilarTextsScoreHigher(t *testing.T) {
	ctx := context.Background()
	e := NewStaticEmbedder(256)

	query, _ := e.Embed(ctx, "governing law New York")
	close1, _ := e.Embed(ctx, "governed by the laws of New York")
	far, _ := e.Embed(ctx, "neither party shall be liable")

	assert.Greater(t, cosineSimilarity(query, close1), cosineSimilarity(query, far))
}

func TestStaticEmbedder_BlankTextIsZeroVector(t *testing.T) {
	vec, err := NewStaticEmbedder(16).Embed(context.Background(), "   ")

	require.NoError(t, err)
	assert.Equal(t, make([]float32, 16), vec)
}

func TestStaticEmbedder_ClosedRejects(t *testing.T) {
	e := NewStaticEmbedder(16)
	require.NoError(t, e.Close())

	_, err := e.EmbedBatch(context.Background(), []string{"x"})
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

func TestNormalize_ZeroVectorUnchanged(t *testing.T) {
	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
	assert.InDelta(t, 1.0, vectorMagnitude(Normalize([]float32{3, 4})), 1e-6)
}
