package search

import (
	"sort"

	"github.com/Aman-CERP/amanrag/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
const DefaultRRFConstant = 60

// absentRank orders documents missing from the RRF output after every
// ranked document.
const absentRank = 1_000_000

// Normalize min-max scales scores into [0,1], preserving order. When every
// score is equal (including a single entry) all normalized scores are 0.
func Normalize(entries []store.RankedEntry) []store.RankedEntry {
	out := make([]store.RankedEntry, len(entries))
	if len(entries) == 0 {
		return out
	}

	lo, hi := entries[0].Score, entries[0].Score
	for _, e := range entries[1:] {
		if e.Score < lo {
			lo = e.Score
		}
		if e.Score > hi {
			hi = e.Score
		}
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	for i, e := range entries {
		out[i] = store.RankedEntry{DocID: e.DocID, Score: (e.Score - lo) / span}
	}
	return out
}

// RRF fuses ranked lists by Reciprocal Rank Fusion:
//
//	score(d) = Σ 1 / (kRRF + rank_i(d))
//
// with 1-based ranks, one per document per list. Only positions matter, never raw scores. The result is
// sorted by descending fused score, ties in first-seen order across lists,
// and truncated to k. Inputs are not modified.
func RRF(lists [][]store.RankedEntry, k, kRRF int) []store.RankedEntry {
	if kRRF <= 0 {
		kRRF = DefaultRRFConstant
	}

	scores := make(map[string]float64)
	var order []string
	for _, list := range lists {
		// A document repeated within one list keeps its last position.
		ranks := make(map[string]int, len(list))
		for rank, e := range list {
			if _, seen := scores[e.DocID]; !seen {
				order = append(order, e.DocID)
				scores[e.DocID] = 0
			}
			ranks[e.DocID] = rank
		}
		for id, rank := range ranks {
			scores[id] += 1.0 / float64(kRRF+rank+1)
		}
	}

	fused := make([]store.RankedEntry, len(order))
	for i, id := range order {
		fused[i] = store.RankedEntry{DocID: id, Score: scores[id]}
	}
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})

	if k >= 0 && len(fused) > k {
		fused = fused[:k]
	}
	return fused
}

// combine merges normalized lists by weighted sum. A document present in
// only one list receives only that list's term. Output is sorted by
// descending combined score, ties in first-seen order with lexical first.
func combine(lexical, dense []store.RankedEntry, lexicalWeight, denseWeight float64) []store.RankedEntry {
	scores := make(map[string]float64, len(lexical)+len(dense))
	var order []string

	add := func(list []store.RankedEntry, w float64) {
		for _, e := range list {
			if _, seen := scores[e.DocID]; !seen {
				order = append(order, e.DocID)
			}
			scores[e.DocID] += w * e.Score
		}
	}
	add(lexical, lexicalWeight)
	add(dense, denseWeight)

	out := make([]store.RankedEntry, len(order))
	for i, id := range order {
		out[i] = store.RankedEntry{DocID: id, Score: scores[id]}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// rerankByRRF orders candidates by RRF position ascending (documents absent
// from positions last), then by weighted score descending, and truncates
// to k.
func rerankByRRF(candidates []store.RankedEntry, positions map[string]int, k int) []store.RankedEntry {
	out := make([]store.RankedEntry, len(candidates))
	copy(out, candidates)

	pos := func(id string) int {
		if p, ok := positions[id]; ok {
			return p
		}
		return absentRank
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := pos(out[i].DocID), pos(out[j].DocID)
		if pi != pj {
			return pi < pj
		}
		return out[i].Score > out[j].Score
	})

	if len(out) > k {
		out = out[:k]
	}
	return out
}

// rrfPositions maps each fused document to its 0-based position.
func rrfPositions(fused []store.RankedEntry) map[string]int {
	positions := make(map[string]int, len(fused))
	for i, e := range fused {
		positions[e.DocID] = i
	}
	return positions
}
