package index

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
)

func TestMRRAtK(t *testing.T) {
	rel := map[string]int{"b": 1, "z": 0}
	tests := []struct {
		name   string
		ranked []string
		k      int
		want   float64
	}{
		{"first", []string{"b", "a"}, 10, 1},
		{"second", []string{"a", "b"}, 10, 0.5},
		{"zero relevance is not relevant", []string{"z", "a", "b"}, 10, 1.0 / 3},
		{"outside cutoff", []string{"a", "c", "b"}, 2, 0},
		{"empty", nil, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MRRAtK(tt.ranked, rel, tt.k), 1e-12)
		})
	}
}

func TestNDCGAtK(t *testing.T) {
	rel := map[string]int{"a": 2, "b": 1}

	// Ideal order scores 1
	assert.InDelta(t, 1.0, NDCGAtK([]string{"a", "b"}, rel, 10), 1e-12)

	// Swapped order: dcg = 1/1 + 3/log2(3), idcg = 3/1 + 1/log2(3)
	want := (1 + 3/math.Log2(3)) / (3 + 1/math.Log2(3))
	assert.InDelta(t, want, NDCGAtK([]string{"b", "a"}, rel, 10), 1e-12)

	// No judgments
	assert.Zero(t, NDCGAtK([]string{"a"}, nil, 10))

	// Ideal is cut to k
	assert.InDelta(t, 1.0, NDCGAtK([]string{"a"}, rel, 1), 1e-12)
}

func TestNDCGAtK_NegativeGradesAddNoGain(t *testing.T) {
	// Given: a judged-irrelevant document ranked first
	rel := map[string]int{"a": 1, "bad": -1}

	// Then: it neither lowers dcg nor the ideal
	got := NDCGAtK([]string{"bad", "a"}, rel, 10)
	assert.InDelta(t, 1/math.Log2(3), got, 1e-12)

	// Only negative judgments: nothing to gain
	assert.Zero(t, NDCGAtK([]string{"bad"}, map[string]int{"bad": -2}, 10))
}

// fakeRetriever answers from a fixed table.
type fakeRetriever struct {
	search.Retriever
	results map[string][]string
	err     error
	queries []string
}

func (f *fakeRetriever) Search(_ context.Context, req search.Request) ([]search.Hit, error) {
	f.queries = append(f.queries, req.Query)
	if f.err != nil {
		return nil, f.err
	}
	if req.Query == "" {
		return nil, amerrors.QueryEmptyError()
	}
	var hits []search.Hit
	for _, id := range f.results[req.Query] {
		hits = append(hits, search.Hit{DocID: id})
	}
	return hits, nil
}

func TestEvaluate_AveragesOverQueries(t *testing.T) {
	// Given: one perfect query, one half-rank query and one empty query
	r := &fakeRetriever{results: map[string][]string{
		"law":   {"D1"},
		"renew": {"D9", "D3"},
	}}
	queries := []Query{{"q1", "law"}, {"q2", "renew"}, {"q3", ""}}
	qrels := Qrels{"q1": {"D1": 1}, "q2": {"D3": 1}, "q3": {"D2": 1}}

	// When: evaluating
	var progress []int
	m, err := Evaluate(context.Background(), r, queries, qrels, 0, func(done, _ int) {
		progress = append(progress, done)
	})
	require.NoError(t, err)

	// Then: the empty query scores zero instead of failing the run
	assert.Equal(t, 3, m.Queries)
	assert.InDelta(t, (1+0.5+0)/3, m.MRR, 1e-12)
	assert.InDelta(t, (1+1/math.Log2(3)+0)/3, m.NDCG, 1e-12)
	assert.Equal(t, []int{1, 2, 3}, progress)
}

func TestEvaluate_Limit(t *testing.T) {
	r := &fakeRetriever{}
	queries := []Query{{"q1", "a"}, {"q2", "b"}, {"q3", "c"}}

	m, err := Evaluate(context.Background(), r, queries, nil, 2, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, m.Queries)
	assert.Equal(t, []string{"a", "b"}, r.queries)
}

func TestEvaluate_NoQueries(t *testing.T) {
	m, err := Evaluate(context.Background(), &fakeRetriever{}, nil, nil, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, Metrics{}, m)
}

func TestEvaluate_SearchFailureStops(t *testing.T) {
	r := &fakeRetriever{err: errors.New("boom")}

	_, err := Evaluate(context.Background(), r, []Query{{"q1", "a"}}, nil, 0, nil)

	assert.EqualError(t, err, "boom")
}

func TestEvaluate_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Evaluate(ctx, &fakeRetriever{}, []Query{{"q1", "a"}}, nil, 0, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteResults_Shape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_results.json")

	require.NoError(t, WriteResults(path, Metrics{MRR: 0.5, NDCG: 0.25, Queries: 4}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]map[string]float64
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]map[string]float64{"metrics": {"MRR@10": 0.5, "nDCG@10": 0.25}}, got)
}
