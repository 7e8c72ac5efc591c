package store

import "path/filepath"

// Layout names every artifact inside an index directory.
type Layout struct {
	Dir string
}

// NewLayout returns the layout rooted at dir.
func NewLayout(dir string) Layout {
	return Layout{Dir: dir}
}

func (l Layout) LexicalGob() string  { return filepath.Join(l.Dir, "lexical.gob") }
func (l Layout) BleveDir() string    { return filepath.Join(l.Dir, "lexical.bleve") }
func (l Layout) BleveIDs() string    { return filepath.Join(l.Dir, "lexical_ids.json") }
func (l Layout) DenseDir() string    { return filepath.Join(l.Dir, "dense") }
func (l Layout) DenseGraph() string  { return filepath.Join(l.DenseDir(), "index.hnsw") }
func (l Layout) DenseIDs() string    { return filepath.Join(l.DenseDir(), "doc_ids.json") }
func (l Layout) DenseMeta() string   { return filepath.Join(l.DenseDir(), "index.meta") }
func (l Layout) BuildMeta() string   { return filepath.Join(l.Dir, "meta.json") }
func (l Layout) DocsMeta() string    { return filepath.Join(l.Dir, "docs_meta.json") }
func (l Layout) LastResults() string { return filepath.Join(l.Dir, "last_results.json") }
func (l Layout) StateJSON() string   { return filepath.Join(l.Dir, "saved_store.json") }
func (l Layout) StateDB() string     { return filepath.Join(l.Dir, "saved_store.db") }
func (l Layout) StateBadger() string { return filepath.Join(l.Dir, "saved_store.badger") }

// BuildLock guards artifact writes by the build job.
func (l Layout) BuildLock() string { return filepath.Join(l.Dir, ".build.lock") }
