package mcp

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/state"
)

// fakeRetriever is an in-memory search.Retriever.
type fakeRetriever struct {
	mu         sync.Mutex
	hits       []search.Hit
	searchErr  error
	writeErr   error
	lastReq    search.Request
	queries    map[string]state.Payload
	watchlists map[string][]string
}

var _ search.Retriever = (*fakeRetriever)(nil)

func newFakeRetriever() *fakeRetriever {
	return &fakeRetriever{
		queries:    map[string]state.Payload{},
		watchlists: map[string][]string{},
	}
}

func (f *fakeRetriever) Search(_ context.Context, req search.Request) ([]search.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	if err := req.Validate(search.DefaultMaxK); err != nil {
		return nil, err
	}
	return f.hits, f.searchErr
}

func (f *fakeRetriever) Stats(context.Context) (search.Stats, error) {
	build := "2024-04-02T09:30:00.000000Z"
	return search.Stats{BM25Docs: 3, FaissDocs: 3, LastBuild: &build}, nil
}

func (f *fakeRetriever) ListSavedQueries(context.Context) (map[string]state.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries, nil
}

func (f *fakeRetriever) SaveQuery(_ context.Context, name string, payload state.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := state.ValidateName(name); err != nil {
		return err
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	f.queries[name] = payload
	return nil
}

func (f *fakeRetriever) DeleteQuery(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.queries, name)
	return nil
}

func (f *fakeRetriever) ListWatchlists(context.Context) (map[string][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watchlists, nil
}

func (f *fakeRetriever) SaveWatchlist(_ context.Context, name string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := state.ValidateName(name); err != nil {
		return err
	}
	f.watchlists[name] = state.DedupeIDs(ids)
	return nil
}

func (f *fakeRetriever) DeleteWatchlist(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.watchlists, name)
	return nil
}

func newTestServer(t *testing.T, r search.Retriever) *Server {
	t.Helper()
	s, err := NewServer(r, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return s
}

func ptr(s string) *string { return &s }

func stateWriteErr() error {
	return amerrors.New(amerrors.ErrCodeStateWriteFailed, "state write failed", nil)
}
