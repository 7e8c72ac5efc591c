package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings. Offline and deterministic.
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses a local Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses an OpenAI-compatible embeddings API.
	ProviderOpenAI ProviderType = "openai"

	// ProviderAuto tries Ollama and falls back to static.
	ProviderAuto ProviderType = "auto"
)

// localDefaultModel is the sentence-transformers name configured by default;
// remote providers substitute their own build of a comparable model.
const localDefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// Options selects and configures an embedder.
type Options struct {
	Provider      ProviderType
	Model         string
	Dimensions    int
	OllamaHost    string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	BatchSize     int

	// CacheSize wraps the embedder in an LRU when > 0.
	CacheSize int

	Logger *slog.Logger
}

// NewEmbedder creates the embedder named by opts.Provider.
// An explicitly selected remote provider that is unreachable is an error;
// only ProviderAuto falls back to static.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		embedder Embedder
		err      error
	)

	switch ProviderType(strings.ToLower(string(opts.Provider))) {
	case ProviderStatic, "":
		embedder = NewStaticEmbedder(opts.Dimensions)

	case ProviderOllama:
		embedder, err = newOllama(ctx, opts)

	case ProviderOpenAI:
		model := opts.Model
		if model == localDefaultModel {
			model = DefaultOpenAIModel
		}
		embedder, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    opts.OpenAIAPIKey,
			BaseURL:   opts.OpenAIBaseURL,
			Model:     model,
			BatchSize: opts.BatchSize,
			Retry:     amerrors.DefaultRetryConfig(),
		})

	case ProviderAuto:
		embedder, err = newOllama(ctx, opts)
		if err != nil {
			logger.Warn("embedder_fallback",
				slog.String("from", string(ProviderOllama)),
				slog.String("to", string(ProviderStatic)),
				slog.String("reason", err.Error()))
			embedder, err = NewStaticEmbedder(opts.Dimensions), nil
		}

	default:
		return nil, amerrors.ConfigError(fmt.Sprintf("unknown embeddings provider %q", opts.Provider), nil)
	}

	if err != nil {
		return nil, err
	}

	if opts.CacheSize > 0 {
		embedder = NewCachedEmbedder(embedder, opts.CacheSize)
	}

	logger.Debug("embedder_ready",
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))

	return embedder, nil
}

func newOllama(ctx context.Context, opts Options) (Embedder, error) {
	cfg := DefaultOllamaConfig()
	if opts.OllamaHost != "" {
		cfg.Host = opts.OllamaHost
	}
	if opts.Model != "" && opts.Model != localDefaultModel {
		cfg.Model = opts.Model
	}
	if opts.BatchSize > 0 {
		cfg.BatchSize = opts.BatchSize
	}
	return NewOllamaEmbedder(ctx, cfg)
}
