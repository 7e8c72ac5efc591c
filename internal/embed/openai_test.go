package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func newOpenAIServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"detail":"quota exceeded"}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Reply in reverse order to exercise index sorting.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := []float32{0, 2}
			if len(req.Input[i]) == 1 {
				vec = []float32{2, 0}
			}
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": vec,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "m"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIEmbedder_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	assert.Equal(t, amerrors.ErrCodeConfigInvalid, amerrors.GetCode(err))
}

func TestOpenAIEmbedder_OrdersByIndex(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusOK)
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1", Retry: fastRetry()})
	require.NoError(t, err)
	assert.Equal(t, 0, e.Dimensions())

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bbbb"})

	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1}, vecs[1])
	assert.Equal(t, 2, e.Dimensions())
	assert.Equal(t, DefaultOpenAIModel, e.ModelName())
}

func TestOpenAIEmbedder_APIErrorSurfacesDetail(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusTooManyRequests)
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1", Retry: fastRetry()})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")

	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeEmbeddingFailed, amerrors.GetCode(err))
	assert.Contains(t, err.Error(), "openai embedding failed")
}
