// Package store holds the on-disk retrieval indexes and per-document
// metadata: a BM25 lexical index (native Okapi or bleve), an HNSW dense
// index, and the metadata side tables written by the build job.
package store

import (
	"context"
	"sort"
	"strings"
)

// Document is one indexable unit of the corpus.
type Document struct {
	ID   string
	Text string
}

// RankedEntry is a scored document. Scores are only comparable within the
// ranker that produced them.
type RankedEntry struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// LexicalIndex ranks documents by term statistics.
type LexicalIndex interface {
	// Build replaces the index contents with docs, in corpus order.
	Build(ctx context.Context, docs []Document) error

	// Query returns up to k entries, best first, ties in corpus order.
	// Querying an unbuilt index returns an empty list.
	Query(ctx context.Context, text string, k int) ([]RankedEntry, error)

	// Save writes the index artifacts under the index directory.
	Save(dir string) error

	// Load replaces the index contents from the index directory.
	Load(dir string) error

	// Count returns the number of indexed documents.
	Count() int

	Close() error
}

// DenseIndex ranks documents by embedding similarity.
type DenseIndex interface {
	Build(ctx context.Context, docs []Document) error
	Query(ctx context.Context, text string, k int) ([]RankedEntry, error)
	Save(dir string) error
	Load(dir string) error
	Count() int
	Close() error
}

// Tokenize lowercases text and splits it on whitespace.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// sortRanked orders entries by descending score, then by corpus position.
func sortRanked(entries []RankedEntry, position func(docID string) int) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return position(entries[i].DocID) < position(entries[j].DocID)
	})
}
