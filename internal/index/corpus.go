// Package index is the offline build job. It reads a BEIR-style corpus,
// builds and persists the lexical and dense indexes, optionally scores the
// fresh index against relevance judgments, and writes meta.json last so a
// serving process only ever sees complete builds.
package index

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// File names inside the corpus directory.
const (
	CorpusFile  = "corpus.jsonl"
	QueriesFile = "queries.jsonl"
	QrelsDir    = "qrels"
)

const maxLineBytes = 16 << 20

// Corpus is the parsed corpus.jsonl in file order.
type Corpus struct {
	Docs []store.Document

	// Meta holds per-document metadata for lines that carried any filterable
	// field. Nil when no line did.
	Meta map[string]store.DocMeta

	// Skipped counts lines without a usable id.
	Skipped int
}

// Query is one entry of queries.jsonl.
type Query struct {
	ID   string
	Text string
}

// Qrels maps query id to document id to graded relevance.
type Qrels map[string]map[string]int

// filterKeys are the top-level fields that mark a line as carrying metadata.
var filterKeys = []string{"type", "business_unit", "BU", "jurisdiction", "counterparty", "date"}

// LoadCorpus parses dir/corpus.jsonl. A missing file yields an empty corpus.
// A repeated id keeps its first position and takes the later text.
func LoadCorpus(dir string) (*Corpus, error) {
	path := filepath.Join(dir, CorpusFile)
	c := &Corpus{}
	pos := make(map[string]int)

	err := scanJSONL(path, func(lineNo int, raw map[string]json.RawMessage, line []byte) error {
		id := firstID(raw, "_id", "id")
		if id == "" {
			c.Skipped++
			return nil
		}
		text := strings.TrimSpace(stringField(raw, "title") + " " + stringField(raw, "text"))
		if i, ok := pos[id]; ok {
			c.Docs[i].Text = text
		} else {
			pos[id] = len(c.Docs)
			c.Docs = append(c.Docs, store.Document{ID: id, Text: text})
		}

		meta, ok, err := lineMetadata(raw, line)
		if err != nil {
			return corpusInvalid(path, lineNo, err)
		}
		if ok {
			if c.Meta == nil {
				c.Meta = make(map[string]store.DocMeta)
			}
			c.Meta[id] = meta
		}
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return &Corpus{}, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// lineMetadata reads top-level metadata fields and overlays a nested
// "metadata" object. A line contributes metadata only if one of them holds
// a filterable field.
func lineMetadata(raw map[string]json.RawMessage, line []byte) (store.DocMeta, bool, error) {
	nested, hasNested := raw["metadata"]
	hasTop := false
	for _, k := range filterKeys {
		if _, ok := raw[k]; ok {
			hasTop = true
			break
		}
	}
	if !hasTop && (!hasNested || isNull(nested)) {
		return store.DocMeta{}, false, nil
	}

	var meta store.DocMeta
	if hasTop {
		if err := json.Unmarshal(line, &meta); err != nil {
			return meta, false, err
		}
	}
	if hasNested && !isNull(nested) {
		var inner store.DocMeta
		if err := json.Unmarshal(nested, &inner); err != nil {
			return meta, false, fmt.Errorf("metadata: %w", err)
		}
		meta = overlay(meta, inner)
		if meta.Title == "" {
			meta.Title = stringField(raw, "title")
		}
	}
	return meta, !meta.IsZero(), nil
}

func overlay(base, top store.DocMeta) store.DocMeta {
	pick := func(a, b string) string {
		if b != "" {
			return b
		}
		return a
	}
	return store.DocMeta{
		Title:        pick(base.Title, top.Title),
		Snippet:      pick(base.Snippet, top.Snippet),
		Path:         pick(base.Path, top.Path),
		Source:       pick(base.Source, top.Source),
		Type:         pick(base.Type, top.Type),
		BusinessUnit: pick(base.BusinessUnit, top.BusinessUnit),
		Jurisdiction: pick(base.Jurisdiction, top.Jurisdiction),
		Counterparty: pick(base.Counterparty, top.Counterparty),
		Date:         pick(base.Date, top.Date),
	}
}

// LoadQueries parses dir/queries.jsonl in file order. A missing file yields
// no queries.
func LoadQueries(dir string) ([]Query, error) {
	path := filepath.Join(dir, QueriesFile)
	var out []Query
	err := scanJSONL(path, func(_ int, raw map[string]json.RawMessage, _ []byte) error {
		id := firstID(raw, "_id", "id")
		if id == "" {
			return nil
		}
		out = append(out, Query{ID: id, Text: stringField(raw, "text")})
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return out, err
}

// LoadQrels merges every dir/qrels/*.tsv in name order. Rows are either
// BEIR (query-id, corpus-id, score, with an optional header) or TREC
// (qid, Q0, docid, rel). A relevance that does not parse counts as 1.
// A missing qrels directory yields empty judgments.
func LoadQrels(dir string) (Qrels, error) {
	files, err := filepath.Glob(filepath.Join(dir, QrelsDir, "*.tsv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	qrels := make(Qrels)
	for _, f := range files {
		if err := readQrelsFile(f, qrels); err != nil {
			return nil, err
		}
	}
	return qrels, nil
}

func readQrelsFile(path string, qrels Qrels) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) == 1 {
			cols = strings.Fields(line)
		}
		if lineNo == 1 && isQrelsHeader(cols) {
			continue
		}

		var qid, docID, rel string
		switch {
		case len(cols) >= 4:
			qid, docID, rel = cols[0], cols[2], cols[3]
		case len(cols) == 3:
			qid, docID, rel = cols[0], cols[1], cols[2]
		default:
			return corpusInvalid(path, lineNo, fmt.Errorf("expected 3 or 4 columns, got %d", len(cols)))
		}

		qid, docID = strings.TrimSpace(qid), strings.TrimSpace(docID)
		if qrels[qid] == nil {
			qrels[qid] = make(map[string]int)
		}
		qrels[qid][docID] = parseRelevance(rel)
	}
	return sc.Err()
}

func isQrelsHeader(cols []string) bool {
	if len(cols) < 3 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(cols[0]), "query-id") &&
		strings.EqualFold(strings.TrimSpace(cols[1]), "corpus-id")
}

func parseRelevance(s string) int {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 1
	}
	return int(v)
}

// scanJSONL calls fn for every non-blank line of path decoded as a JSON
// object.
func scanJSONL(path string, fn func(lineNo int, raw map[string]json.RawMessage, line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 64*1024)
	lineNo := 0
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			if len(line) > maxLineBytes {
				return corpusInvalid(path, lineNo, errors.New("line too long"))
			}
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 {
				var raw map[string]json.RawMessage
				if jerr := json.Unmarshal(trimmed, &raw); jerr != nil {
					return corpusInvalid(path, lineNo, jerr)
				}
				if ferr := fn(lineNo, raw, trimmed); ferr != nil {
					return ferr
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// firstID returns the first non-empty id among keys. Numeric ids keep
// their literal form.
func firstID(raw map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		if id := scalar(v); id != "" {
			return id
		}
	}
	return ""
}

func stringField(raw map[string]json.RawMessage, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	return scalar(v)
}

func scalar(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}

func corpusInvalid(path string, line int, cause error) error {
	return amerrors.New(amerrors.ErrCodeCorpusInvalid, "malformed input line", cause).
		WithDetail("path", path).
		WithDetail("line", strconv.Itoa(line))
}
