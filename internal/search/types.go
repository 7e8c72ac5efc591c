// Package search is the hybrid retrieval service. It combines the lexical
// and dense rankings by weighted min-max fusion, orders the fused list by
// Reciprocal Rank Fusion position, applies metadata filters, and owns the
// saved query and watchlist store for the process lifetime.
package search

import (
	"context"
	"fmt"
	"math"
	"strings"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/state"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Defaults for a search request.
const (
	DefaultK           = 10
	DefaultMaxK        = 100
	DefaultBM25Weight  = 0.5
	DefaultFaissWeight = 0.5
	DefaultOverFetch   = 50
	DefaultSource      = "acord"
)

// Request is one search call.
type Request struct {
	Query string `json:"query"`
	K     int    `json:"k"`

	// BM25Weight and FaissWeight scale the normalized lexical and dense
	// scores. They are independent and need not sum to 1. Nil selects the
	// configured default.
	BM25Weight  *float64 `json:"bm25_weight,omitempty"`
	FaissWeight *float64 `json:"faiss_weight,omitempty"`

	Filters store.Filters `json:"filters"`
}

// Weight returns a pointer to w, for building a Request inline.
func Weight(w float64) *float64 {
	return &w
}

// Validate reports input errors before the engine runs. maxK <= 0 means no
// upper bound.
func (r Request) Validate(maxK int) error {
	if strings.TrimSpace(r.Query) == "" {
		return amerrors.QueryEmptyError()
	}
	if r.K < 0 {
		return amerrors.New(amerrors.ErrCodeInvalidLimit, "k must be positive", nil)
	}
	if maxK > 0 && r.K > maxK {
		return amerrors.New(amerrors.ErrCodeInvalidLimit,
			fmt.Sprintf("k must be at most %d", maxK), nil)
	}
	if err := validateWeight("bm25_weight", r.BM25Weight); err != nil {
		return err
	}
	return validateWeight("faiss_weight", r.FaissWeight)
}

// Payload is the request as persisted by a saved query, with defaults
// applied. Filters is nil when none is set.
func (r Request) Payload() state.Payload {
	k := r.K
	if k == 0 {
		k = DefaultK
	}
	bm25, faiss := DefaultBM25Weight, DefaultFaissWeight
	if r.BM25Weight != nil {
		bm25 = *r.BM25Weight
	}
	if r.FaissWeight != nil {
		faiss = *r.FaissWeight
	}

	var filters map[string]any
	if !r.Filters.IsZero() {
		filters = make(map[string]any)
		for key, v := range map[string]string{
			"type":          r.Filters.Type,
			"business_unit": r.Filters.BusinessUnit,
			"jurisdiction":  r.Filters.Jurisdiction,
			"counterparty":  r.Filters.Counterparty,
			"date_from":     r.Filters.DateFrom,
			"date_to":       r.Filters.DateTo,
		} {
			if v != "" {
				filters[key] = v
			}
		}
	}

	return state.Payload{
		"query":        r.Query,
		"k":            k,
		"bm25_weight":  bm25,
		"faiss_weight": faiss,
		"filters":      filters,
	}
}

func validateWeight(name string, w *float64) error {
	if w == nil {
		return nil
	}
	if *w < 0 || math.IsNaN(*w) || math.IsInf(*w, 0) {
		return amerrors.New(amerrors.ErrCodeInvalidWeight,
			fmt.Sprintf("%s must be a finite non-negative number", name), nil)
	}
	return nil
}

// Hit is one ranked search result. Metadata fields are nil when the
// document has no recorded value.
type Hit struct {
	DocID       string  `json:"doc_id"`
	Score       float64 `json:"score"`
	Title       *string `json:"title"`
	Snippet     *string `json:"snippet"`
	Path        *string `json:"path"`
	Source      string  `json:"source"`
	ClauseStart *int    `json:"clause_start"`
	ClauseEnd   *int    `json:"clause_end"`
}

// Stats describes the loaded index.
type Stats struct {
	BM25Docs  int     `json:"bm25_docs"`
	FaissDocs int     `json:"faiss_docs"`
	LastBuild *string `json:"last_build"`
	ModelName *string `json:"model_name"`
}

// Retriever is the operation set the CLI, MCP and HTTP surfaces depend on.
type Retriever interface {
	Search(ctx context.Context, req Request) ([]Hit, error)
	Stats(ctx context.Context) (Stats, error)

	ListSavedQueries(ctx context.Context) (map[string]state.Payload, error)
	SaveQuery(ctx context.Context, name string, payload state.Payload) error
	DeleteQuery(ctx context.Context, name string) error

	ListWatchlists(ctx context.Context) (map[string][]string, error)
	SaveWatchlist(ctx context.Context, name string, docIDs []string) error
	DeleteWatchlist(ctx context.Context, name string) error
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
