package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/metrics"
	"github.com/Aman-CERP/amanrag/internal/search"
)

// app holds what a command needs to reach the retrieval service.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	embedder embed.Embedder
	service  *search.Service

	closeLog func()
}

// newApp loads configuration, opens logging and builds the embedder. The
// service is constructed but its artifacts load on first use.
func newApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	return newAppWith(ctx, opts, cfg, false)
}

func newAppWith(ctx context.Context, opts *globalOptions, cfg *config.Config, logToStderr bool) (*app, error) {
	logger, closeLog := setupLogging(opts, cfg.Server.LogLevel, logToStderr)

	e, err := newEmbedder(ctx, cfg, logger)
	if err != nil {
		closeLog()
		return nil, err
	}

	svc := search.NewService(search.ConfigFrom(cfg), e, search.WithLogger(logger))
	return &app{
		cfg:      cfg,
		logger:   logger,
		embedder: e,
		service:  svc,
		closeLog: closeLog,
	}, nil
}

// Close releases the service, the embedder and the log file.
func (a *app) Close() error {
	err := errors.Join(a.service.Close(), a.embedder.Close())
	a.closeLog()
	return err
}

// newEmbedder builds the configured embedder and reports cache lookups to
// the embedding cache counter.
func newEmbedder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (embed.Embedder, error) {
	e, err := embed.NewEmbedder(ctx, embed.Options{
		Provider:      embed.ProviderType(cfg.Embeddings.Provider),
		Model:         cfg.Embeddings.Model,
		Dimensions:    cfg.Embeddings.Dimensions,
		OllamaHost:    cfg.Embeddings.OllamaHost,
		OpenAIBaseURL: cfg.Embeddings.OpenAIBaseURL,
		OpenAIAPIKey:  config.OpenAIAPIKey(),
		BatchSize:     cfg.Embeddings.BatchSize,
		CacheSize:     cfg.Embeddings.CacheSize,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	if cached, ok := e.(*embed.CachedEmbedder); ok {
		cached.SetObserver(metrics.EmbeddingCache)
	}
	return e, nil
}

// withApp runs fn against a freshly built app and closes it afterwards.
func withApp(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	return errors.Join(runErr, a.Close())
}
