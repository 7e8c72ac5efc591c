package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_RepeatedQueryHitsCache(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)

	first, err := c.Embed(context.Background(), "termination")
	require.NoError(t, err)
	second, err := c.Embed(context.Background(), "termination")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.embedCalls.Load())
	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCachedEmbedder_BatchSendsOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)
	_, _ = c.Embed(context.Background(), "a")

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})

	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(2), vecs[1][0])
	assert.Equal(t, float32(3), vecs[2][0])
	assert.Equal(t, int64(1), inner.batchCalls.Load())
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 0)

	assert.Equal(t, "counting", c.ModelName())
	assert.Equal(t, 2, c.Dimensions())
	assert.Same(t, inner, c.Inner())
}

func TestCachedEmbedder_ObserverSeesEveryLookup(t *testing.T) {
	c := NewCachedEmbedder(&countingEmbedder{}, 10)
	var seen []bool
	c.SetObserver(func(hit bool) { seen = append(seen, hit) })

	_, _ = c.Embed(context.Background(), "a")
	_, _ = c.Embed(context.Background(), "a")
	_, _ = c.EmbedBatch(context.Background(), []string{"a", "b"})

	assert.Equal(t, []bool{false, true, true, false}, seen)
}
