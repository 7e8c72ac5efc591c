package search

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/store"
)

const testDims = 64

var buildTime = time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC)

func contractCorpus() []store.Document {
	return []store.Document{
		{ID: "D1", Text: "governed by the laws of New York"},
		{ID: "D2", Text: "neither party shall be liable"},
		{ID: "D3", Text: "automatic renewal unless terminated"},
	}
}

// writeIndex builds every artifact a search needs into dir.
func writeIndex(t *testing.T, dir string, docs []store.Document, meta map[string]store.DocMeta) {
	t.Helper()
	ctx := context.Background()
	layout := store.NewLayout(dir)

	lex := store.NewOkapiIndex()
	require.NoError(t, lex.Build(ctx, docs))
	require.NoError(t, lex.Save(dir))

	dense := store.NewHNSWDenseIndex(embed.NewStaticEmbedder(testDims), store.DenseConfig{})
	require.NoError(t, dense.Build(ctx, docs))
	require.NoError(t, dense.Save(dir))

	if meta != nil {
		require.NoError(t, store.SaveMetadata(layout.DocsMeta(), meta))
	}
	require.NoError(t, store.WriteBuildMeta(layout.BuildMeta(), store.NewBuildMeta(buildTime, len(docs))))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestService(t *testing.T, dir string, e embed.Embedder, opts ...Option) *Service {
	t.Helper()
	return newTestServiceWith(t, Config{IndexDir: dir}, e, opts...)
}

func newTestServiceWith(t *testing.T, cfg Config, e embed.Embedder, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	s := NewService(cfg, e, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func hitIDs(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.DocID
	}
	return out
}

// failingEmbedder reports the static embedder's shape but cannot embed.
type failingEmbedder struct {
	embed.Embedder
	calls atomic.Int64
}

func newFailingEmbedder() *failingEmbedder {
	return &failingEmbedder{Embedder: embed.NewStaticEmbedder(testDims)}
}

func (f *failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls.Add(1)
	return nil, errors.New("connection refused")
}

// stallingEmbedder never answers and ignores cancellation.
type stallingEmbedder struct {
	embed.Embedder
	release chan struct{}
}

func newStallingEmbedder() *stallingEmbedder {
	return &stallingEmbedder{Embedder: embed.NewStaticEmbedder(testDims), release: make(chan struct{})}
}

func (s *stallingEmbedder) Embed(context.Context, string) ([]float32, error) {
	<-s.release
	return nil, errors.New("released")
}
