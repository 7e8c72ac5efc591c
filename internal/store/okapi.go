package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
)

// BM25 Okapi parameters.
const (
	DefaultK1      = 1.5
	DefaultB       = 0.75
	DefaultEpsilon = 0.25
)

// OkapiIndex is an in-memory BM25 Okapi index persisted with gob.
// Every document is scored, so documents with score 0 fill the tail when
// fewer than k documents match.
type OkapiIndex struct {
	mu sync.RWMutex

	k1, b, epsilon float64

	docIDs   []string
	docFreqs []map[string]int
	docLens  []int
	idf      map[string]float64
	avgdl    float64
}

// okapiSnapshot is the gob form of lexical.gob.
type okapiSnapshot struct {
	DocIDs   []string
	DocFreqs []map[string]int
	DocLens  []int
	IDF      map[string]float64
	AvgDL    float64
	K1       float64
	B        float64
	Epsilon  float64
}

// NewOkapiIndex creates an empty index with the default parameters.
func NewOkapiIndex() *OkapiIndex {
	return &OkapiIndex{k1: DefaultK1, b: DefaultB, epsilon: DefaultEpsilon}
}

// Build tokenizes docs and computes term statistics.
func (o *OkapiIndex) Build(_ context.Context, docs []Document) error {
	docIDs := make([]string, len(docs))
	docFreqs := make([]map[string]int, len(docs))
	docLens := make([]int, len(docs))
	nd := make(map[string]int)
	total := 0

	for i, doc := range docs {
		tokens := Tokenize(doc.Text)
		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}
		for tok := range freqs {
			nd[tok]++
		}
		docIDs[i] = doc.ID
		docFreqs[i] = freqs
		docLens[i] = len(tokens)
		total += len(tokens)
	}

	var avgdl float64
	if len(docs) > 0 {
		avgdl = float64(total) / float64(len(docs))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.docIDs = docIDs
	o.docFreqs = docFreqs
	o.docLens = docLens
	o.avgdl = avgdl
	o.idf = computeIDF(nd, len(docs), o.epsilon)
	return nil
}

// computeIDF applies ln((N-n+0.5)/(n+0.5)) and replaces negative values
// with epsilon times the mean idf.
func computeIDF(nd map[string]int, n int, epsilon float64) map[string]float64 {
	idf := make(map[string]float64, len(nd))
	if len(nd) == 0 {
		return idf
	}

	var sum float64
	var negative []string
	for term, freq := range nd {
		v := math.Log(float64(n)-float64(freq)+0.5) - math.Log(float64(freq)+0.5)
		idf[term] = v
		sum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}

	eps := epsilon * sum / float64(len(idf))
	for _, term := range negative {
		idf[term] = eps
	}
	return idf
}

// Scores returns the BM25 score for every document, in corpus order.
func (o *OkapiIndex) Scores(text string) []float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.scores(Tokenize(text))
}

func (o *OkapiIndex) scores(query []string) []float64 {
	scores := make([]float64, len(o.docIDs))
	for _, q := range query {
		idf, ok := o.idf[q]
		if !ok {
			continue
		}
		for i, freqs := range o.docFreqs {
			f := float64(freqs[q])
			if f == 0 {
				continue
			}
			norm := 1 - o.b + o.b*float64(o.docLens[i])/o.avgdl
			scores[i] += idf * (f * (o.k1 + 1) / (f + o.k1*norm))
		}
	}
	return scores
}

// Query returns the top k documents by BM25 score.
func (o *OkapiIndex) Query(_ context.Context, text string, k int) ([]RankedEntry, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if k <= 0 || len(o.docIDs) == 0 {
		return []RankedEntry{}, nil
	}

	scores := o.scores(Tokenize(text))
	entries := make([]RankedEntry, len(scores))
	for i, s := range scores {
		entries[i] = RankedEntry{DocID: o.docIDs[i], Score: s}
	}
	// entries start in corpus order, so a stable sort keeps ties there
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })

	if len(entries) > k {
		entries = entries[:k]
	}
	return entries, nil
}

// Save writes lexical.gob.
func (o *OkapiIndex) Save(dir string) error {
	o.mu.RLock()
	snap := okapiSnapshot{
		DocIDs:   o.docIDs,
		DocFreqs: o.docFreqs,
		DocLens:  o.docLens,
		IDF:      o.idf,
		AvgDL:    o.avgdl,
		K1:       o.k1,
		B:        o.b,
		Epsilon:  o.epsilon,
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(snap)
	o.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode lexical index: %w", err)
	}

	return WriteFileAtomic(NewLayout(dir).LexicalGob(), buf.Bytes(), 0o644)
}

// Load reads lexical.gob.
func (o *OkapiIndex) Load(dir string) error {
	path := NewLayout(dir).LexicalGob()
	f, err := os.Open(path)
	if err != nil {
		return openError(path, err)
	}
	defer f.Close()

	var snap okapiSnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return corruptIndex(path, err)
	}
	if len(snap.DocFreqs) != len(snap.DocIDs) || len(snap.DocLens) != len(snap.DocIDs) {
		return corruptIndex(path, fmt.Errorf("inconsistent lengths: %d ids, %d freqs, %d lens",
			len(snap.DocIDs), len(snap.DocFreqs), len(snap.DocLens)))
	}
	if snap.IDF == nil {
		snap.IDF = map[string]float64{}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.docIDs = snap.DocIDs
	o.docFreqs = snap.DocFreqs
	o.docLens = snap.DocLens
	o.idf = snap.IDF
	o.avgdl = snap.AvgDL
	o.k1, o.b, o.epsilon = snap.K1, snap.B, snap.Epsilon
	return nil
}

// Count returns the number of indexed documents.
func (o *OkapiIndex) Count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.docIDs)
}

// Close is a no-op; the index lives in memory.
func (o *OkapiIndex) Close() error { return nil }

var _ LexicalIndex = (*OkapiIndex)(nil)
