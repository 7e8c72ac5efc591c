package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"
)

const (
	bleveAnalyzerName = "lower_whitespace"
	bleveTextField    = "text"
	blevePosField     = "pos"
	bleveBatchSize    = 1000
)

// BleveLexicalIndex is a lexical backend on bleve/v2. It tokenizes like
// OkapiIndex (whitespace split plus lowercase) but uses bleve's scoring and
// returns matching documents only.
type BleveLexicalIndex struct {
	mu sync.RWMutex

	index  bleve.Index
	docs   []Document // retained after Build so Save can write to disk
	docIDs []string
}

// NewBleveLexicalIndex creates an empty index.
func NewBleveLexicalIndex() *BleveLexicalIndex {
	return &BleveLexicalIndex{}
}

func newBleveMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(bleveAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     whitespace.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add analyzer: %w", err)
	}
	im.DefaultAnalyzer = bleveAnalyzerName

	text := bleve.NewTextFieldMapping()
	text.Analyzer = bleveAnalyzerName
	text.Store = false
	text.IncludeInAll = false

	pos := bleve.NewNumericFieldMapping()
	pos.Store = false
	pos.IncludeInAll = false

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt(bleveTextField, text)
	doc.AddFieldMappingsAt(blevePosField, pos)
	im.DefaultMapping = doc

	return im, nil
}

func indexInto(idx bleve.Index, docs []Document) error {
	batch := idx.NewBatch()
	for i, doc := range docs {
		err := batch.Index(doc.ID, map[string]interface{}{
			bleveTextField: doc.Text,
			blevePosField:  float64(i),
		})
		if err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
		if batch.Size() >= bleveBatchSize {
			if err := idx.Batch(batch); err != nil {
				return fmt.Errorf("failed to execute batch: %w", err)
			}
			batch = idx.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := idx.Batch(batch); err != nil {
			return fmt.Errorf("failed to execute batch: %w", err)
		}
	}
	return nil
}

// Build indexes docs into an in-memory bleve index.
func (b *BleveLexicalIndex) Build(_ context.Context, docs []Document) error {
	im, err := newBleveMapping()
	if err != nil {
		return err
	}
	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := indexInto(idx, docs); err != nil {
		_ = idx.Close()
		return err
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index != nil {
		_ = b.index.Close()
	}
	b.index = idx
	b.docs = docs
	b.docIDs = ids
	return nil
}

// Query runs a match query, best score first, ties in corpus order.
func (b *BleveLexicalIndex) Query(ctx context.Context, text string, k int) ([]RankedEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.index == nil || k <= 0 || strings.TrimSpace(text) == "" {
		return []RankedEntry{}, nil
	}

	q := bleve.NewMatchQuery(text)
	q.SetField(bleveTextField)

	req := bleve.NewSearchRequestOptions(q, k, 0, false)
	req.SortBy([]string{"-_score", blevePosField})

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	entries := make([]RankedEntry, 0, len(res.Hits))
	for _, hit := range res.Hits {
		entries = append(entries, RankedEntry{DocID: hit.ID, Score: hit.Score})
	}
	return entries, nil
}

// Save writes lexical.bleve/ and lexical_ids.json. The bleve directory is
// built next to the target and swapped in.
func (b *BleveLexicalIndex) Save(dir string) error {
	b.mu.RLock()
	docs, ids := b.docs, b.docIDs
	b.mu.RUnlock()

	if docs == nil {
		return fmt.Errorf("bleve index has no built documents to save")
	}

	layout := NewLayout(dir)
	target := layout.BleveDir()
	tmp := target + ".tmp"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.RemoveAll(tmp); err != nil {
		return fmt.Errorf("failed to clear %s: %w", tmp, err)
	}

	im, err := newBleveMapping()
	if err != nil {
		return err
	}
	disk, err := bleve.New(tmp, im)
	if err != nil {
		return fmt.Errorf("failed to create bleve index: %w", err)
	}
	if err := indexInto(disk, docs); err != nil {
		_ = disk.Close()
		_ = os.RemoveAll(tmp)
		return err
	}
	if err := disk.Close(); err != nil {
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("failed to close bleve index: %w", err)
	}

	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("failed to remove old bleve index: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to move bleve index into place: %w", err)
	}

	return WriteJSONAtomic(layout.BleveIDs(), ids)
}

// Load opens lexical.bleve/ read-only.
func (b *BleveLexicalIndex) Load(dir string) error {
	layout := NewLayout(dir)

	data, err := os.ReadFile(layout.BleveIDs())
	if err != nil {
		return openError(layout.BleveIDs(), err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return corruptIndex(layout.BleveIDs(), err)
	}

	if _, err := os.Stat(layout.BleveDir()); err != nil {
		return openError(layout.BleveDir(), err)
	}
	idx, err := bleve.OpenUsing(layout.BleveDir(), map[string]interface{}{"read_only": true})
	if err != nil {
		return corruptIndex(layout.BleveDir(), err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index != nil {
		_ = b.index.Close()
	}
	b.index = idx
	b.docs = nil
	b.docIDs = ids
	return nil
}

// Count returns the number of indexed documents.
func (b *BleveLexicalIndex) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.docIDs)
}

// Close closes the bleve index.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.index == nil {
		return nil
	}
	err := b.index.Close()
	b.index = nil
	return err
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)
