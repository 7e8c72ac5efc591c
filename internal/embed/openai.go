package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	openai "github.com/sashabaranov/go-openai"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// DefaultOpenAIModel is used when the configured model is the local default.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig holds settings for an OpenAI-compatible embedding API.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // empty = api.openai.com
	Model   string

	// Dimensions requests shortened vectors from models that support it
	// (0 = model default).
	Dimensions int

	BatchSize int
	Retry     amerrors.RetryConfig
}

// OpenAIEmbedder embeds text through the /embeddings endpoint of any
// OpenAI-compatible server.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	requested int
	batchSize int
	retry     amerrors.RetryConfig

	dims   atomic.Int64
	closed atomic.Bool
}

// NewOpenAIEmbedder creates an OpenAI-compatible embedding provider.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, amerrors.ConfigError("openai provider requires an API key", nil).
			WithSuggestion("Set AMANRAG_OPENAI_API_KEY or OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	e := &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     openai.EmbeddingModel(cfg.Model),
		requested: cfg.Dimensions,
		batchSize: cfg.BatchSize,
		retry:     cfg.Retry,
	}
	e.dims.Store(int64(cfg.Dimensions))
	return e, nil
}

// Embed generates embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in BatchSize requests, preserving input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.closed.Load() {
		return nil, fmt.Errorf("embedder is closed")
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		batch := texts[start:min(start+e.batchSize, len(texts))]

		vecs, err := amerrors.RetryWithResult(ctx, e.retry, func() ([][]float32, error) {
			return e.create(ctx, batch)
		})
		if err != nil {
			return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed, "openai embedding failed", err)
		}
		results = append(results, vecs...)
	}
	return results, nil
}

func (e *OpenAIEmbedder) create(ctx context.Context, batch []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          batch,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.requested > 0 {
		req.Dimensions = e.requested
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, parseAPIError(err)
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(batch), len(resp.Data))
	}

	// Servers may return items out of order; Index is authoritative.
	sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vecs[i] = Normalize(d.Embedding)
	}
	if len(vecs) > 0 {
		e.dims.CompareAndSwap(0, int64(len(vecs[0])))
	}
	return vecs, nil
}

// parseAPIError extracts a human-readable error from the API response.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("embedding API error %d: %s", reqErr.HTTPStatusCode, detail)
		}
		return fmt.Errorf("embedding API error %d: %s", reqErr.HTTPStatusCode, string(reqErr.Body))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}

	return fmt.Errorf("embedding request failed: %w", err)
}

// extractDetail reads the "detail" field some compatible servers use.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

// Dimensions returns the configured or first observed dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return int(e.dims.Load())
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return string(e.model)
}

// Available verifies the API via ListModels.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	if e.closed.Load() {
		return false
	}
	_, err := e.client.ListModels(ctx)
	return err == nil
}

// Close marks the embedder closed.
func (e *OpenAIEmbedder) Close() error {
	e.closed.Store(true)
	return nil
}
