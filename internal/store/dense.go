package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sync"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Dense index defaults.
const (
	DefaultHNSWM        = 16
	MinHNSWEfSearch     = 100
	DefaultHNSWSeed     = 42
	defaultHNSWLevelGen = 0.25
)

// DenseConfig configures an HNSWDenseIndex.
type DenseConfig struct {
	M        int
	EfSearch int
	Seed     int64

	// Pool controls build-time embedding concurrency.
	Pool embed.PoolOptions
}

// HNSWDenseIndex is a cosine nearest-neighbor index over normalized
// embeddings. Graph keys are corpus positions.
type HNSWDenseIndex struct {
	embedder embed.Embedder
	cfg      DenseConfig

	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	docIDs []string
	dims   int
	model  string
}

// denseMeta is the gob form of dense/index.meta.
type denseMeta struct {
	Dimensions int
	Model      string
	M          int
	EfSearch   int
	Docs       int
}

// NewHNSWDenseIndex creates an empty dense index.
func NewHNSWDenseIndex(e embed.Embedder, cfg DenseConfig) *HNSWDenseIndex {
	if cfg.M <= 0 {
		cfg.M = DefaultHNSWM
	}
	if cfg.EfSearch < MinHNSWEfSearch {
		cfg.EfSearch = MinHNSWEfSearch
	}
	if cfg.Seed == 0 {
		cfg.Seed = DefaultHNSWSeed
	}
	return &HNSWDenseIndex{embedder: e, cfg: cfg}
}

func (d *HNSWDenseIndex) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = d.cfg.M
	g.EfSearch = d.cfg.EfSearch
	g.Ml = defaultHNSWLevelGen
	// fixed seed keeps level assignment, and so the graph, reproducible
	g.Rng = rand.New(rand.NewSource(d.cfg.Seed))
	return g
}

// Build embeds every document and inserts it in corpus order. Documents
// that embed to a zero vector keep their id but are left out of the graph,
// since cosine distance is undefined for them.
func (d *HNSWDenseIndex) Build(ctx context.Context, docs []Document) error {
	texts := make([]string, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
		ids[i] = doc.ID
	}

	vecs, err := embed.EmbedAll(ctx, d.embedder, texts, d.cfg.Pool)
	if err != nil {
		return amerrors.New(amerrors.ErrCodeEmbeddingFailed, "failed to embed corpus", err)
	}

	graph := d.newGraph()
	dims := 0
	for i, v := range vecs {
		if dims == 0 {
			dims = len(v)
		}
		if len(v) != dims {
			return amerrors.New(amerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("document %s embedded to %d dims, expected %d", ids[i], len(v), dims), nil)
		}
		unit := embed.Normalize(v)
		if isZero(unit) {
			continue
		}
		graph.Add(hnsw.MakeNode(uint64(i), unit))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.graph = graph
	d.docIDs = ids
	d.dims = dims
	d.model = d.embedder.ModelName()
	return nil
}

// Query embeds text and returns the k most similar documents.
func (d *HNSWDenseIndex) Query(ctx context.Context, text string, k int) ([]RankedEntry, error) {
	d.mu.RLock()
	empty := d.graph == nil || d.graph.Len() == 0
	d.mu.RUnlock()
	if empty || k <= 0 {
		return []RankedEntry{}, nil
	}

	vec, err := d.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return d.QueryVector(vec, k)
}

// QueryVector returns the k most similar documents to vec.
// Similarity is 1 - cosine distance; ties resolve to corpus order.
func (d *HNSWDenseIndex) QueryVector(vec []float32, k int) ([]RankedEntry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.graph == nil || d.graph.Len() == 0 || k <= 0 {
		return []RankedEntry{}, nil
	}
	if len(vec) != d.dims {
		return nil, amerrors.New(amerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query has %d dims, index has %d", len(vec), d.dims), nil)
	}

	q := embed.Normalize(vec)
	if isZero(q) {
		return []RankedEntry{}, nil
	}

	nodes := d.graph.Search(q, k)
	keys := make(map[string]uint64, len(nodes))
	entries := make([]RankedEntry, 0, len(nodes))
	for _, n := range nodes {
		if n.Key >= uint64(len(d.docIDs)) {
			continue
		}
		id := d.docIDs[n.Key]
		keys[id] = n.Key
		sim := 1 - float64(hnsw.CosineDistance(q, n.Value))
		entries = append(entries, RankedEntry{DocID: id, Score: sim})
	}
	sortRanked(entries, func(id string) int { return int(keys[id]) })
	return entries, nil
}

// Save writes dense/index.hnsw, dense/doc_ids.json and dense/index.meta.
func (d *HNSWDenseIndex) Save(dir string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.graph == nil {
		return fmt.Errorf("dense index has not been built")
	}

	layout := NewLayout(dir)

	var graphBuf bytes.Buffer
	if err := d.graph.Export(&graphBuf); err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := WriteFileAtomic(layout.DenseGraph(), graphBuf.Bytes(), 0o644); err != nil {
		return err
	}

	if err := WriteJSONAtomic(layout.DenseIDs(), d.docIDs); err != nil {
		return err
	}

	var metaBuf bytes.Buffer
	meta := denseMeta{
		Dimensions: d.dims,
		Model:      d.model,
		M:          d.cfg.M,
		EfSearch:   d.cfg.EfSearch,
		Docs:       len(d.docIDs),
	}
	if err := gob.NewEncoder(&metaBuf).Encode(meta); err != nil {
		return fmt.Errorf("encode dense meta: %w", err)
	}
	return WriteFileAtomic(layout.DenseMeta(), metaBuf.Bytes(), 0o644)
}

// Load reads the dense artifacts written by Save.
func (d *HNSWDenseIndex) Load(dir string) error {
	layout := NewLayout(dir)

	metaFile, err := os.Open(layout.DenseMeta())
	if err != nil {
		return openError(layout.DenseMeta(), err)
	}
	var meta denseMeta
	err = gob.NewDecoder(metaFile).Decode(&meta)
	_ = metaFile.Close()
	if err != nil {
		return corruptIndex(layout.DenseMeta(), err)
	}

	data, err := os.ReadFile(layout.DenseIDs())
	if err != nil {
		return openError(layout.DenseIDs(), err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return corruptIndex(layout.DenseIDs(), err)
	}

	graphFile, err := os.Open(layout.DenseGraph())
	if err != nil {
		return openError(layout.DenseGraph(), err)
	}
	defer graphFile.Close()

	graph := d.newGraph()
	// Import needs an io.ByteReader
	if err := graph.Import(bufio.NewReader(graphFile)); err != nil {
		return corruptIndex(layout.DenseGraph(), err)
	}
	graph.EfSearch = max(graph.EfSearch, d.cfg.EfSearch)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.graph = graph
	d.docIDs = ids
	d.dims = meta.Dimensions
	d.model = meta.Model
	return nil
}

// Count returns the number of indexed documents.
func (d *HNSWDenseIndex) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docIDs)
}

// Dimensions returns the vector width of the loaded index.
func (d *HNSWDenseIndex) Dimensions() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dims
}

// ModelName returns the embedder model the index was built with.
func (d *HNSWDenseIndex) ModelName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.model
}

// Close drops the graph. The embedder is owned by the caller.
func (d *HNSWDenseIndex) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.graph = nil
	return nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

var _ DenseIndex = (*HNSWDenseIndex)(nil)
