package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// DocMeta holds display and filter attributes for one document. Every
// value is kept as a string; filters compare string forms.
type DocMeta struct {
	Title        string `json:"title,omitempty"`
	Snippet      string `json:"snippet,omitempty"`
	Path         string `json:"path,omitempty"`
	Source       string `json:"source,omitempty"`
	Type         string `json:"type,omitempty"`
	BusinessUnit string `json:"business_unit,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	Counterparty string `json:"counterparty,omitempty"`
	Date         string `json:"date,omitempty"`
}

// UnmarshalJSON accepts non-string scalars and the legacy "BU" key.
func (m *DocMeta) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	get := func(key string) string { return scalarString(raw[key]) }

	*m = DocMeta{
		Title:        get("title"),
		Snippet:      get("snippet"),
		Path:         get("path"),
		Source:       get("source"),
		Type:         get("type"),
		BusinessUnit: get("business_unit"),
		Jurisdiction: get("jurisdiction"),
		Counterparty: get("counterparty"),
		Date:         get("date"),
	}
	if m.BusinessUnit == "" {
		m.BusinessUnit = get("BU")
	}
	return nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// IsZero reports whether no attribute is set.
func (m DocMeta) IsZero() bool {
	return m == DocMeta{}
}

// Filters restrict search results. Empty fields are ignored.
type Filters struct {
	Type         string `json:"type,omitempty"`
	BusinessUnit string `json:"business_unit,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	Counterparty string `json:"counterparty,omitempty"`
	DateFrom     string `json:"date_from,omitempty"`
	DateTo       string `json:"date_to,omitempty"`
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f == Filters{}
}

// MetadataStore maps document ids to metadata. Read-only after load.
type MetadataStore struct {
	docs map[string]DocMeta
}

// NewMetadataStore wraps an existing mapping.
func NewMetadataStore(docs map[string]DocMeta) *MetadataStore {
	if docs == nil {
		docs = map[string]DocMeta{}
	}
	return &MetadataStore{docs: docs}
}

// LoadMetadata reads docs_meta.json. A missing file yields an empty store
// and no error. An unreadable file yields an empty store and a
// metadata-corrupt error for the caller to log.
func LoadMetadata(path string) (*MetadataStore, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewMetadataStore(nil), nil
	}
	if err != nil {
		return NewMetadataStore(nil), metadataCorrupt(path, err)
	}

	var docs map[string]DocMeta
	if err := json.Unmarshal(data, &docs); err != nil {
		return NewMetadataStore(nil), metadataCorrupt(path, err)
	}
	return NewMetadataStore(docs), nil
}

func metadataCorrupt(path string, cause error) error {
	return amerrors.New(amerrors.ErrCodeMetadataCorrupt, "document metadata is unreadable", cause).
		WithDetail("path", path)
}

// SaveMetadata writes docs_meta.json atomically.
func SaveMetadata(path string, docs map[string]DocMeta) error {
	if docs == nil {
		docs = map[string]DocMeta{}
	}
	return WriteJSONAtomic(path, docs)
}

// Get returns the metadata for docID.
func (s *MetadataStore) Get(docID string) (DocMeta, bool) {
	m, ok := s.docs[docID]
	return m, ok
}

// Len returns the number of documents with metadata.
func (s *MetadataStore) Len() int {
	return len(s.docs)
}

// PassesFilter reports whether docID satisfies f. Documents without
// metadata always pass, as do checks whose dates cannot be parsed.
func (s *MetadataStore) PassesFilter(docID string, f Filters) bool {
	meta, ok := s.docs[docID]
	if !ok || meta.IsZero() {
		return true
	}

	exact := []struct{ want, have string }{
		{f.Type, meta.Type},
		{f.BusinessUnit, meta.BusinessUnit},
		{f.Jurisdiction, meta.Jurisdiction},
		{f.Counterparty, meta.Counterparty},
	}
	for _, e := range exact {
		if e.want != "" && e.want != e.have {
			return false
		}
	}

	if f.DateFrom == "" && f.DateTo == "" {
		return true
	}
	date, ok := parseDay(meta.Date)
	if !ok {
		return true
	}
	if from, ok := parseDay(f.DateFrom); ok && date.Before(from) {
		return false
	}
	if to, ok := parseDay(f.DateTo); ok && date.After(to) {
		return false
	}
	return true
}

// parseDay parses the YYYY-MM-DD prefix of an ISO-8601 value.
func parseDay(s string) (time.Time, bool) {
	if len(s) < 10 {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, s[:10])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// String renders filters for logs.
func (f Filters) String() string {
	b, _ := json.Marshal(f)
	return string(b)
}
