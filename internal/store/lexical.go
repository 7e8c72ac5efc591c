package store

import "fmt"

// Lexical backend names.
const (
	BackendOkapi = "okapi"
	BackendBleve = "bleve"
)

// NewLexicalIndex returns an empty index for the named backend.
func NewLexicalIndex(backend string) (LexicalIndex, error) {
	switch backend {
	case BackendOkapi, "":
		return NewOkapiIndex(), nil
	case BackendBleve:
		return NewBleveLexicalIndex(), nil
	default:
		return nil, fmt.Errorf("unknown lexical backend %q", backend)
	}
}
