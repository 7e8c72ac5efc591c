// Package integration exercises the build job, the retrieval service and
// artifact hot reload together.
package integration

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store"
	"github.com/Aman-CERP/amanrag/internal/watcher"
)

const testDims = 64

var contractClauses = []string{
	`{"_id":"D1","title":"","text":"governed by the laws of New York","metadata":{"type":"msa"}}`,
	`{"_id":"D2","title":"","text":"neither party shall be liable","metadata":{"type":"nda"}}`,
	`{"_id":"D3","title":"","text":"automatic renewal unless terminated"}`,
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func writeCorpus(t *testing.T, dir string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, index.CorpusFile),
		[]byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func build(t *testing.T, e embed.Embedder, corpusDir, indexDir string) *index.RunnerResult {
	t.Helper()
	runner, err := index.NewRunner(index.RunnerDependencies{Embedder: e, Logger: quietLogger()})
	require.NoError(t, err)
	res, err := runner.Run(context.Background(), index.RunnerConfig{
		IndexDir:  indexDir,
		CorpusDir: corpusDir,
	})
	require.NoError(t, err)
	return res
}

func lexicalOnly(query string, k int, filters store.Filters) search.Request {
	return search.Request{
		Query:       query,
		K:           k,
		BM25Weight:  search.Weight(1),
		FaissWeight: search.Weight(0),
		Filters:     filters,
	}
}

func ids(hits []search.Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.DocID
	}
	return out
}

func TestBuildThenSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: the contract corpus built into an index
	root := t.TempDir()
	corpusDir, indexDir := filepath.Join(root, "acord"), filepath.Join(root, "indices")
	writeCorpus(t, corpusDir, contractClauses...)
	e := embed.NewStaticEmbedder(testDims)
	res := build(t, e, corpusDir, indexDir)
	require.Equal(t, 3, res.Docs)

	svc := search.NewService(search.Config{IndexDir: indexDir}, e, search.WithLogger(quietLogger()))
	defer func() { _ = svc.Close() }()
	ctx := context.Background()

	// When: searching lexical-only for the governing law clause
	hits, err := svc.Search(ctx, lexicalOnly("governing law New York", 1, store.Filters{}))

	// Then: D1 wins
	require.NoError(t, err)
	assert.Equal(t, []string{"D1"}, ids(hits))

	// When: filtering by a type D1 does not have
	hits, err = svc.Search(ctx, lexicalOnly("governed by the laws", 3, store.Filters{Type: "nda"}))

	// Then: D1 is excluded but D3, which has no metadata, still passes
	require.NoError(t, err)
	assert.NotContains(t, ids(hits), "D1")
	assert.Subset(t, []string{"D2", "D3"}, ids(hits))

	// And: stats reflect the build
	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.BM25Docs)
	assert.Equal(t, 3, st.FaissDocs)
	assert.NotNil(t, st.LastBuild)
}

func TestDeterministicAcrossRuns(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	root := t.TempDir()
	corpusDir, indexDir := filepath.Join(root, "acord"), filepath.Join(root, "indices")
	writeCorpus(t, corpusDir, contractClauses...)
	e := embed.NewStaticEmbedder(testDims)
	build(t, e, corpusDir, indexDir)

	svc := search.NewService(search.Config{IndexDir: indexDir}, e, search.WithLogger(quietLogger()))
	defer func() { _ = svc.Close() }()

	req := search.Request{Query: "party liable renewal", K: 3}
	first, err := svc.Search(context.Background(), req)
	require.NoError(t, err)
	for range 5 {
		again, err := svc.Search(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestWatchReloadPicksUpRebuild(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: a served index with a reloader watching it
	root := t.TempDir()
	corpusDir, indexDir := filepath.Join(root, "acord"), filepath.Join(root, "indices")
	writeCorpus(t, corpusDir, contractClauses...)
	e := embed.NewStaticEmbedder(testDims)
	build(t, e, corpusDir, indexDir)

	svc := search.NewService(search.Config{IndexDir: indexDir}, e, search.WithLogger(quietLogger()))
	defer func() { _ = svc.Close() }()

	hits, err := svc.Search(context.Background(), lexicalOnly("force majeure", 5, store.Filters{}))
	require.NoError(t, err)
	require.NotContains(t, ids(hits), "D4")

	w, err := watcher.New(watcher.Options{DebounceWindow: 50 * time.Millisecond})
	require.NoError(t, err)
	reloader := watcher.NewReloader(w, svc, quietLogger())
	reloaded := make(chan struct{}, 4)
	reloader.OnReload(func() { reloaded <- struct{}{} })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- reloader.Run(ctx, indexDir) }()
	time.Sleep(200 * time.Millisecond)

	// When: a rebuild adds a clause
	writeCorpus(t, corpusDir, append(contractClauses,
		`{"_id":"D4","title":"","text":"force majeure excuses performance"}`)...)
	build(t, e, corpusDir, indexDir)

	// Then: the service reloads and finds it without a restart
	select {
	case <-reloaded:
	case <-ctx.Done():
		t.Fatal("timed out waiting for reload")
	}
	hits, err = svc.Search(context.Background(), lexicalOnly("force majeure", 1, store.Filters{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"D4"}, ids(hits))

	cancel()
	assert.NoError(t, <-done)
}
