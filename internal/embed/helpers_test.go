package embed

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
)

func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// countingEmbedder encodes each text's length into a 2-dim vector and
// counts calls.
type countingEmbedder struct {
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	failOn     string
}

func (m *countingEmbedder) vector(text string) []float32 {
	return []float32{float32(len(text)), 1}
}

func (m *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	return m.vector(text), nil
}

func (m *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if m.failOn != "" && t == m.failOn {
			return nil, errors.New("backend exploded")
		}
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *countingEmbedder) Dimensions() int                  { return 2 }
func (m *countingEmbedder) ModelName() string                { return "counting" }
func (m *countingEmbedder) Available(_ context.Context) bool { return true }
func (m *countingEmbedder) Close() error                     { return nil }
