package index

import (
	"context"
	"math"
	"sort"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Evaluation defaults.
const (
	DefaultEvalLimit = 200
	EvalK            = 10
)

// Metric names as written to last_results.json.
const (
	MetricMRR  = "MRR@10"
	MetricNDCG = "nDCG@10"
)

// Metrics is the evaluation summary, averaged over the evaluated queries.
type Metrics struct {
	MRR     float64 `json:"MRR@10"`
	NDCG    float64 `json:"nDCG@10"`
	Queries int     `json:"-"`
}

// Map returns the metrics keyed by name.
func (m Metrics) Map() map[string]float64 {
	return map[string]float64{MetricMRR: m.MRR, MetricNDCG: m.NDCG}
}

type lastResults struct {
	Metrics Metrics `json:"metrics"`
}

// WriteResults persists metrics as {"metrics": {...}}.
func WriteResults(path string, m Metrics) error {
	return store.WriteJSONAtomic(path, lastResults{Metrics: m})
}

// Evaluate runs the first limit queries through r and averages MRR@10 and
// nDCG@10 against qrels. Queries without judgments score zero. progress may
// be nil.
func Evaluate(ctx context.Context, r search.Retriever, queries []Query, qrels Qrels, limit int, progress func(done, total int)) (Metrics, error) {
	if limit > 0 && len(queries) > limit {
		queries = queries[:limit]
	}
	if len(queries) == 0 {
		return Metrics{}, nil
	}

	var mrr, ndcg float64
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return Metrics{}, err
		}
		hits, err := r.Search(ctx, search.Request{Query: q.Text, K: EvalK})
		if err != nil && !amerrors.IsValidation(err) {
			return Metrics{}, err
		}
		ranked := make([]string, len(hits))
		for j, h := range hits {
			ranked[j] = h.DocID
		}
		rel := qrels[q.ID]
		mrr += MRRAtK(ranked, rel, EvalK)
		ndcg += NDCGAtK(ranked, rel, EvalK)
		if progress != nil {
			progress(i+1, len(queries))
		}
	}

	n := float64(len(queries))
	return Metrics{MRR: mrr / n, NDCG: ndcg / n, Queries: len(queries)}, nil
}

// MRRAtK is the reciprocal 1-based rank of the first relevant document in
// the top k, or 0.
func MRRAtK(ranked []string, rel map[string]int, k int) float64 {
	for i, id := range topK(ranked, k) {
		if rel[id] > 0 {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// NDCGAtK is the graded nDCG of the top k with gain 2^rel - 1 and a log2
// position discount. The ideal ordering sorts every judged relevance
// descending.
func NDCGAtK(ranked []string, rel map[string]int, k int) float64 {
	gains := make([]int, 0, k)
	for _, id := range topK(ranked, k) {
		gains = append(gains, rel[id])
	}
	dcg := discounted(gains)

	ideal := make([]int, 0, len(rel))
	for _, v := range rel {
		ideal = append(ideal, v)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ideal)))
	idcg := discounted(topK(ideal, k))
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

// discounted sums gains of positive relevances; zero and negative grades
// contribute nothing.
func discounted(rels []int) float64 {
	var sum float64
	for i, r := range rels {
		if r <= 0 {
			continue
		}
		sum += (math.Pow(2, float64(r)) - 1) / math.Log2(float64(i+2))
	}
	return sum
}

func topK[T any](s []T, k int) []T {
	if k >= 0 && len(s) > k {
		return s[:k]
	}
	return s
}
