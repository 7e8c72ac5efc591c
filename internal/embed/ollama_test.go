package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func newOllamaServer(t *testing.T, failFirst int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"all-minilm:latest"}]}`))
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failFirst {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
			return
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		n := 1
		if list, ok := req.Input.([]any); ok {
			n = len(list)
		}
		resp := ollamaEmbedResponse{Model: req.Model}
		for i := 0; i < n; i++ {
			resp.Embeddings = append(resp.Embeddings, []float64{3, 4, float64(i)})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func fastRetry() amerrors.RetryConfig {
	return amerrors.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestOllamaEmbedder_HealthCheckDetectsDimensions(t *testing.T) {
	srv, _ := newOllamaServer(t, 0)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Retry: fastRetry()})

	require.NoError(t, err)
	assert.Equal(t, 3, e.Dimensions())
	assert.Equal(t, DefaultOllamaModel, e.ModelName())
}

func TestOllamaEmbedder_MissingModel(t *testing.T) {
	srv, _ := newOllamaServer(t, 0)

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeBackendUnavailable, amerrors.GetCode(err))
}

func TestOllamaEmbedder_BatchesAndNormalizes(t *testing.T) {
	srv, calls := newOllamaServer(t, 0)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host: srv.URL, BatchSize: 2, SkipHealthCheck: true, Retry: fastRetry(),
	})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})

	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, int32(2), calls.Load())
	for _, v := range vecs {
		assert.InDelta(t, 1.0, vectorMagnitude(v), 1e-5)
	}
}

func TestOllamaEmbedder_RetriesTransientFailure(t *testing.T) {
	srv, calls := newOllamaServer(t, 1)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, SkipHealthCheck: true, Retry: fastRetry()})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "indemnification")

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOllamaEmbedder_GivesUpAfterRetries(t *testing.T) {
	srv, _ := newOllamaServer(t, 100)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, SkipHealthCheck: true, Retry: fastRetry()})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "indemnification")

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeEmbeddingFailed, amerrors.GetCode(err))
}
