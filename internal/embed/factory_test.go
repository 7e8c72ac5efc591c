package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedder_StaticWithCache(t *testing.T) {
	e, err := NewEmbedder(context.Background(), Options{Provider: ProviderStatic, Dimensions: 64, CacheSize: 8})

	require.NoError(t, err)
	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok)
	assert.IsType(t, &StaticEmbedder{}, cached.Inner())
	assert.Equal(t, 64, e.Dimensions())
}

func TestNewEmbedder_AutoFallsBackToStatic(t *testing.T) {
	// Nothing listens on this port.
	e, err := NewEmbedder(context.Background(), Options{Provider: ProviderAuto, OllamaHost: "http://127.0.0.1:1"})

	require.NoError(t, err)
	assert.Equal(t, "static", e.ModelName())
}

func TestNewEmbedder_ExplicitOllamaDoesNotFallBack(t *testing.T) {
	_, err := NewEmbedder(context.Background(), Options{Provider: ProviderOllama, OllamaHost: "http://127.0.0.1:1"})
	assert.Error(t, err)
}

func TestNewEmbedder_UnknownProvider(t *testing.T) {
	_, err := NewEmbedder(context.Background(), Options{Provider: "mlx"})
	assert.Error(t, err)
}

func TestNewEmbedder_OllamaUsesLocalModelName(t *testing.T) {
	srv, _ := newOllamaServer(t, 0)

	e, err := NewEmbedder(context.Background(), Options{
		Provider: ProviderOllama, OllamaHost: srv.URL, Model: localDefaultModel,
	})

	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaModel, e.ModelName())
}
