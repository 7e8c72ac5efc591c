// Package state persists named saved queries and watchlists.
//
// Three backends satisfy the same Store contract: a JSON file guarded by a
// process mutex and a cross-process file lock, a SQLite database, and a
// Badger key-value store. Mutations are durable once they return.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// MaxNameLength caps saved query and watchlist names.
const MaxNameLength = 128

// Payload is the opaque body of a saved query (text, k, weights, filters).
type Payload = map[string]any

// Store is the saved query and watchlist contract.
//
// Save overwrites an existing entry. Delete of a missing name is a no-op.
// List returns a copy that callers may mutate.
type Store interface {
	ListQueries(ctx context.Context) (map[string]Payload, error)
	SaveQuery(ctx context.Context, name string, payload Payload) error
	DeleteQuery(ctx context.Context, name string) error

	ListWatchlists(ctx context.Context) (map[string][]string, error)
	SaveWatchlist(ctx context.Context, name string, docIDs []string) error
	DeleteWatchlist(ctx context.Context, name string) error

	Close() error
}

// Open returns the backend named by backend, rooted in the index layout.
func Open(backend string, layout store.Layout, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch backend {
	case "", BackendJSON:
		return NewFileStore(layout.StateJSON(), logger)
	case BackendSQLite:
		return NewSQLiteStore(layout.StateDB(), logger)
	case BackendBadger:
		return NewBadgerStore(layout.StateBadger(), false, logger)
	default:
		return nil, amerrors.ConfigError(fmt.Sprintf("unknown state backend %q", backend), nil).
			WithSuggestion("Use one of: json, sqlite, badger")
	}
}

// ValidateName rejects names that are blank, too long, or contain control
// characters.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return amerrors.New(amerrors.ErrCodeInvalidName, "name cannot be empty", nil)
	}
	if len(name) > MaxNameLength {
		return amerrors.New(amerrors.ErrCodeInvalidName,
			fmt.Sprintf("name too long (max %d characters)", MaxNameLength), nil)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return amerrors.New(amerrors.ErrCodeInvalidName,
				"name cannot contain control characters", nil)
		}
	}
	return nil
}

// DedupeIDs collapses duplicates keeping the first occurrence of each id.
func DedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// writeFailed wraps a persistence error. It is the only error a mutation
// surfaces to callers.
func writeFailed(op string, err error) error {
	return amerrors.New(amerrors.ErrCodeStateWriteFailed,
		fmt.Sprintf("failed to %s", op), err)
}

func copyPayload(p Payload) Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
