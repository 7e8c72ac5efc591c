package mcp

import (
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/state"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Tool names.
const (
	ToolSearch           = "search"
	ToolIndexStats       = "index_stats"
	ToolListSavedQueries = "list_saved_queries"
	ToolSaveQuery        = "save_query"
	ToolDeleteQuery      = "delete_query"
	ToolListWatchlists   = "list_watchlists"
	ToolSaveWatchlist    = "save_watchlist"
	ToolDeleteWatchlist  = "delete_watchlist"
)

// FiltersInput narrows results by document metadata. Documents without
// metadata always pass.
type FiltersInput struct {
	Type         string `json:"type,omitempty" jsonschema:"contract type, exact match"`
	BusinessUnit string `json:"business_unit,omitempty" jsonschema:"business unit, exact match"`
	Jurisdiction string `json:"jurisdiction,omitempty" jsonschema:"governing jurisdiction, exact match"`
	Counterparty string `json:"counterparty,omitempty" jsonschema:"counterparty name, exact match"`
	DateFrom     string `json:"date_from,omitempty" jsonschema:"earliest document date, YYYY-MM-DD"`
	DateTo       string `json:"date_to,omitempty" jsonschema:"latest document date, YYYY-MM-DD"`
}

func (f FiltersInput) toStore() store.Filters {
	return store.Filters{
		Type:         f.Type,
		BusinessUnit: f.BusinessUnit,
		Jurisdiction: f.Jurisdiction,
		Counterparty: f.Counterparty,
		DateFrom:     f.DateFrom,
		DateTo:       f.DateTo,
	}
}

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query       string       `json:"query" jsonschema:"the clause or topic to search for"`
	K           int          `json:"k,omitempty" jsonschema:"number of results, default 10"`
	BM25Weight  *float64     `json:"bm25_weight,omitempty" jsonschema:"weight of the keyword ranking, default 0.5"`
	FaissWeight *float64     `json:"faiss_weight,omitempty" jsonschema:"weight of the semantic ranking, default 0.5"`
	Filters     FiltersInput `json:"filters,omitempty" jsonschema:"metadata filters"`
}

func (in SearchInput) request() search.Request {
	return search.Request{
		Query:       in.Query,
		K:           in.K,
		BM25Weight:  in.BM25Weight,
		FaissWeight: in.FaissWeight,
		Filters:     in.Filters.toStore(),
	}
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []search.Hit `json:"results" jsonschema:"ranked documents"`
}

// IndexStatsInput has no parameters.
type IndexStatsInput struct{}

// NameInput selects a saved query or watchlist.
type NameInput struct {
	Name string `json:"name" jsonschema:"the entry name"`
}

// SaveQueryInput defines the input schema for save_query.
type SaveQueryInput struct {
	Name    string        `json:"name" jsonschema:"the saved query name"`
	Payload state.Payload `json:"payload" jsonschema:"opaque JSON object stored verbatim"`
}

// SaveWatchlistInput defines the input schema for save_watchlist.
type SaveWatchlistInput struct {
	Name   string   `json:"name" jsonschema:"the watchlist name"`
	DocIDs []string `json:"doc_ids" jsonschema:"document ids, duplicates are dropped"`
}

// ListInput has no parameters.
type ListInput struct{}

// SavedQueriesOutput lists every saved query.
type SavedQueriesOutput struct {
	SavedQueries map[string]state.Payload `json:"saved_queries"`
}

// WatchlistsOutput lists every watchlist.
type WatchlistsOutput struct {
	Watchlists map[string][]string `json:"watchlists"`
}

// MutationOutput acknowledges a save or delete. Size is set for watchlist
// saves and counts the ids submitted.
type MutationOutput struct {
	OK   bool   `json:"ok"`
	Name string `json:"name"`
	Size *int   `json:"size,omitempty"`
}
