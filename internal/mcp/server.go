package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// ServerName is reported to MCP clients.
const ServerName = "amanrag"

// Server bridges MCP clients with the retrieval service.
type Server struct {
	mcp       *mcp.Server
	retriever search.Retriever
	logger    *slog.Logger
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var toolInfos = []ToolInfo{
	{ToolSearch, "Hybrid clause search over the contract corpus. Combines keyword (BM25) and semantic rankings; tune bm25_weight and faiss_weight to favor exact wording or meaning. Filters narrow by contract metadata."},
	{ToolIndexStats, "Report how many documents each index holds, when the index was last built and which embedding model it uses."},
	{ToolListSavedQueries, "List every saved query with its stored payload."},
	{ToolSaveQuery, "Save or overwrite a named query payload."},
	{ToolDeleteQuery, "Delete a saved query. Deleting a missing name succeeds."},
	{ToolListWatchlists, "List every watchlist with its document ids."},
	{ToolSaveWatchlist, "Save or overwrite a named list of document ids. Duplicates are dropped, first occurrence kept."},
	{ToolDeleteWatchlist, "Delete a watchlist. Deleting a missing name succeeds."},
}

// NewServer creates an MCP server over r. logger may be nil.
func NewServer(r search.Retriever, logger *slog.Logger) (*Server, error) {
	if r == nil {
		return nil, errors.New("retriever is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{retriever: r, logger: logger}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: ServerName, Version: version.Version},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), toolInfos...)
}

func describe(name string) string {
	for _, t := range toolInfos {
		if t.Name == name {
			return t.Description
		}
	}
	return ""
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSearch, Description: describe(ToolSearch)}, s.mcpSearch)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolIndexStats, Description: describe(ToolIndexStats)}, s.mcpStats)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolListSavedQueries, Description: describe(ToolListSavedQueries)}, s.mcpListQueries)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSaveQuery, Description: describe(ToolSaveQuery)}, s.mcpSaveQuery)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolDeleteQuery, Description: describe(ToolDeleteQuery)}, s.mcpDeleteQuery)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolListWatchlists, Description: describe(ToolListWatchlists)}, s.mcpListWatchlists)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSaveWatchlist, Description: describe(ToolSaveWatchlist)}, s.mcpSaveWatchlist)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolDeleteWatchlist, Description: describe(ToolDeleteWatchlist)}, s.mcpDeleteWatchlist)

	s.logger.Debug("MCP tools registered", slog.Int("count", len(toolInfos)))
}

// CallTool invokes a tool by name with JSON-shaped arguments, bypassing the
// protocol layer.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSearch:
		return call(ctx, args, s.search)
	case ToolIndexStats:
		return call(ctx, args, func(ctx context.Context, _ IndexStatsInput) (search.Stats, error) {
			return s.retriever.Stats(ctx)
		})
	case ToolListSavedQueries:
		return call(ctx, args, s.listQueries)
	case ToolSaveQuery:
		return call(ctx, args, s.saveQuery)
	case ToolDeleteQuery:
		return call(ctx, args, s.deleteQuery)
	case ToolListWatchlists:
		return call(ctx, args, s.listWatchlists)
	case ToolSaveWatchlist:
		return call(ctx, args, s.saveWatchlist)
	case ToolDeleteWatchlist:
		return call(ctx, args, s.deleteWatchlist)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func call[In, Out any](ctx context.Context, args map[string]any, fn func(context.Context, In) (Out, error)) (any, error) {
	var in In
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
		}
	}
	out, err := fn(ctx, in)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Server) search(ctx context.Context, in SearchInput) (SearchOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	hits, err := s.retriever.Search(ctx, in.request())
	duration := time.Since(start)
	if err != nil {
		attrs := append([]slog.Attr{
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
		}, amerrors.LogAttrs(err)...)
		s.logger.LogAttrs(ctx, slog.LevelWarn, "mcp_search_failed", attrs...)
		return SearchOutput{}, MapError(err)
	}

	s.logger.Info("mcp_search_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(hits)))

	if hits == nil {
		hits = []search.Hit{}
	}
	return SearchOutput{Results: hits}, nil
}

func (s *Server) listQueries(ctx context.Context, _ ListInput) (SavedQueriesOutput, error) {
	qs, err := s.retriever.ListSavedQueries(ctx)
	if err != nil {
		return SavedQueriesOutput{}, MapError(err)
	}
	return SavedQueriesOutput{SavedQueries: qs}, nil
}

func (s *Server) saveQuery(ctx context.Context, in SaveQueryInput) (MutationOutput, error) {
	if err := s.retriever.SaveQuery(ctx, in.Name, in.Payload); err != nil {
		return MutationOutput{}, MapError(err)
	}
	return MutationOutput{OK: true, Name: in.Name}, nil
}

func (s *Server) deleteQuery(ctx context.Context, in NameInput) (MutationOutput, error) {
	if err := s.retriever.DeleteQuery(ctx, in.Name); err != nil {
		return MutationOutput{}, MapError(err)
	}
	return MutationOutput{OK: true, Name: in.Name}, nil
}

func (s *Server) listWatchlists(ctx context.Context, _ ListInput) (WatchlistsOutput, error) {
	ws, err := s.retriever.ListWatchlists(ctx)
	if err != nil {
		return WatchlistsOutput{}, MapError(err)
	}
	return WatchlistsOutput{Watchlists: ws}, nil
}

func (s *Server) saveWatchlist(ctx context.Context, in SaveWatchlistInput) (MutationOutput, error) {
	if err := s.retriever.SaveWatchlist(ctx, in.Name, in.DocIDs); err != nil {
		return MutationOutput{}, MapError(err)
	}
	size := len(in.DocIDs)
	return MutationOutput{OK: true, Name: in.Name, Size: &size}, nil
}

func (s *Server) deleteWatchlist(ctx context.Context, in NameInput) (MutationOutput, error) {
	if err := s.retriever.DeleteWatchlist(ctx, in.Name); err != nil {
		return MutationOutput{}, MapError(err)
	}
	return MutationOutput{OK: true, Name: in.Name}, nil
}

// Protocol handlers. Search adds a markdown rendering for clients that only
// read text content; the rest rely on the structured output.

func (s *Server) mcpSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	out, err := s.search(ctx, in)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatSearchResults(in.Query, out.Results)}},
	}, out, nil
}

func (s *Server) mcpStats(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatsInput) (*mcp.CallToolResult, search.Stats, error) {
	st, err := s.retriever.Stats(ctx)
	if err != nil {
		return nil, search.Stats{}, MapError(err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatStats(st)}},
	}, st, nil
}

func (s *Server) mcpListQueries(ctx context.Context, _ *mcp.CallToolRequest, in ListInput) (*mcp.CallToolResult, SavedQueriesOutput, error) {
	out, err := s.listQueries(ctx, in)
	return nil, out, err
}

func (s *Server) mcpSaveQuery(ctx context.Context, _ *mcp.CallToolRequest, in SaveQueryInput) (*mcp.CallToolResult, MutationOutput, error) {
	out, err := s.saveQuery(ctx, in)
	return nil, out, err
}

func (s *Server) mcpDeleteQuery(ctx context.Context, _ *mcp.CallToolRequest, in NameInput) (*mcp.CallToolResult, MutationOutput, error) {
	out, err := s.deleteQuery(ctx, in)
	return nil, out, err
}

func (s *Server) mcpListWatchlists(ctx context.Context, _ *mcp.CallToolRequest, in ListInput) (*mcp.CallToolResult, WatchlistsOutput, error) {
	out, err := s.listWatchlists(ctx, in)
	return nil, out, err
}

func (s *Server) mcpSaveWatchlist(ctx context.Context, _ *mcp.CallToolRequest, in SaveWatchlistInput) (*mcp.CallToolResult, MutationOutput, error) {
	out, err := s.saveWatchlist(ctx, in)
	return nil, out, err
}

func (s *Server) mcpDeleteWatchlist(ctx context.Context, _ *mcp.CallToolRequest, in NameInput) (*mcp.CallToolResult, MutationOutput, error) {
	out, err := s.deleteWatchlist(ctx, in)
	return nil, out, err
}

// Serve runs the server over stdio until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
