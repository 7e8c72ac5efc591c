package mcp

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/state"
	"github.com/Aman-CERP/amanrag/internal/store"
)

func TestNewServer_RequiresRetriever(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)
}

func TestServer_InfoAndTools(t *testing.T) {
	s := newTestServer(t, newFakeRetriever())

	name, _ := s.Info()
	assert.Equal(t, "amanrag", name)
	assert.NotNil(t, s.MCPServer())

	var names []string
	for _, tool := range s.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{
		ToolSearch, ToolIndexStats,
		ToolListSavedQueries, ToolSaveQuery, ToolDeleteQuery,
		ToolListWatchlists, ToolSaveWatchlist, ToolDeleteWatchlist,
	}, names)
}

func TestCallTool_SearchMapsArguments(t *testing.T) {
	// Given: a retriever with one hit
	r := newFakeRetriever()
	r.hits = []search.Hit{{DocID: "D1", Score: 1, Source: "acord"}}
	s := newTestServer(t, r)

	// When: calling search with weights and filters
	out, err := s.CallTool(context.Background(), ToolSearch, map[string]any{
		"query":        "governing law",
		"k":            3,
		"bm25_weight":  1.0,
		"faiss_weight": 0.0,
		"filters":      map[string]any{"type": "msa", "date_from": "2024-01-01"},
	})
	require.NoError(t, err)

	// Then: the request reaches the retriever intact
	assert.Equal(t, SearchOutput{Results: r.hits}, out)
	assert.Equal(t, "governing law", r.lastReq.Query)
	assert.Equal(t, 3, r.lastReq.K)
	require.NotNil(t, r.lastReq.BM25Weight)
	assert.Equal(t, 1.0, *r.lastReq.BM25Weight)
	require.NotNil(t, r.lastReq.FaissWeight)
	assert.Equal(t, 0.0, *r.lastReq.FaissWeight)
	assert.Equal(t, store.Filters{Type: "msa", DateFrom: "2024-01-01"}, r.lastReq.Filters)
}

func TestCallTool_SearchEmptyResultsIsEmptyList(t *testing.T) {
	out, err := newTestServer(t, newFakeRetriever()).CallTool(context.Background(), ToolSearch, map[string]any{"query": "x"})

	require.NoError(t, err)
	assert.Equal(t, SearchOutput{Results: []search.Hit{}}, out)
}

func TestCallTool_EmptyQueryIsInvalidParams(t *testing.T) {
	_, err := newTestServer(t, newFakeRetriever()).CallTool(context.Background(), ToolSearch, map[string]any{"query": "  "})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "Query is empty")
}

func TestCallTool_BadArgumentTypes(t *testing.T) {
	_, err := newTestServer(t, newFakeRetriever()).CallTool(context.Background(), ToolSearch, map[string]any{"k": "ten"})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestCallTool_UnknownTool(t *testing.T) {
	_, err := newTestServer(t, newFakeRetriever()).CallTool(context.Background(), "nonexistent", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestCallTool_Stats(t *testing.T) {
	out, err := newTestServer(t, newFakeRetriever()).CallTool(context.Background(), ToolIndexStats, nil)

	require.NoError(t, err)
	st, ok := out.(search.Stats)
	require.True(t, ok)
	assert.Equal(t, 3, st.BM25Docs)
}

func TestCallTool_SavedQueryLifecycle(t *testing.T) {
	ctx := context.Background()
	r := newFakeRetriever()
	s := newTestServer(t, r)

	out, err := s.CallTool(ctx, ToolSaveQuery, map[string]any{"name": "ny", "payload": map[string]any{"query": "New York"}})
	require.NoError(t, err)
	assert.Equal(t, MutationOutput{OK: true, Name: "ny"}, out)

	out, err = s.CallTool(ctx, ToolListSavedQueries, nil)
	require.NoError(t, err)
	assert.Equal(t, SavedQueriesOutput{SavedQueries: map[string]state.Payload{"ny": {"query": "New York"}}}, out)

	_, err = s.CallTool(ctx, ToolDeleteQuery, map[string]any{"name": "ny"})
	require.NoError(t, err)
	_, err = s.CallTool(ctx, ToolDeleteQuery, map[string]any{"name": "missing"})
	require.NoError(t, err)
	assert.Empty(t, r.queries)
}

func TestCallTool_WatchlistLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t, newFakeRetriever())

	out, err := s.CallTool(ctx, ToolSaveWatchlist, map[string]any{"name": "w", "doc_ids": []any{"A", "B", "A", "C"}})
	require.NoError(t, err)
	size := 4
	assert.Equal(t, MutationOutput{OK: true, Name: "w", Size: &size}, out)

	out, err = s.CallTool(ctx, ToolListWatchlists, nil)
	require.NoError(t, err)
	assert.Equal(t, WatchlistsOutput{Watchlists: map[string][]string{"w": {"A", "B", "C"}}}, out)

	_, err = s.CallTool(ctx, ToolDeleteWatchlist, map[string]any{"name": "w"})
	require.NoError(t, err)
}

func TestCallTool_WriteFailureSurfaces(t *testing.T) {
	r := newFakeRetriever()
	r.writeErr = stateWriteErr()

	_, err := newTestServer(t, r).CallTool(context.Background(), ToolSaveQuery, map[string]any{"name": "q", "payload": map[string]any{}})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeStateWriteFailed, mcpErr.Code)
}

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ss, err := s.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func TestProtocol_ListsAndCallsTools(t *testing.T) {
	// Given: a client connected over an in-memory transport
	r := newFakeRetriever()
	r.hits = []search.Hit{{DocID: "D1", Score: 0.75, Source: "acord"}}
	cs := connect(t, newTestServer(t, r))
	ctx := context.Background()

	// When: listing tools
	list, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)

	// Then: every tool is advertised
	assert.Len(t, list.Tools, 8)

	// When: calling search
	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolSearch,
		Arguments: map[string]any{"query": "governing law"},
	})
	require.NoError(t, err)

	// Then: the text content is the markdown rendering
	require.False(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "### 1. D1 (score: 0.7500)")
}

func TestProtocol_ToolErrorIsReported(t *testing.T) {
	cs := connect(t, newTestServer(t, newFakeRetriever()))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolSearch,
		Arguments: map[string]any{"query": ""},
	})

	require.NoError(t, err)
	assert.True(t, res.IsError)
}
