package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// fileDocument is the on-disk shape of saved_store.json.
type fileDocument struct {
	SavedQueries map[string]Payload  `json:"saved_queries"`
	Watchlists   map[string][]string `json:"watchlists"`
}

func emptyDocument() *fileDocument {
	return &fileDocument{
		SavedQueries: make(map[string]Payload),
		Watchlists:   make(map[string][]string),
	}
}

// FileStore keeps all state in one JSON file. Every mutation is a
// read-modify-write under the process mutex and the cross-process lock,
// finished by an atomic rename.
type FileStore struct {
	path   string
	mu     sync.Mutex
	lock   *store.FileLock
	logger *slog.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens the JSON store at path, creating an empty one if absent.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{
		path:   path,
		lock:   store.NewFileLock(path + ".lock"),
		logger: logger,
	}

	err := s.withLock(context.Background(), func() error {
		if _, err := os.Stat(path); err == nil {
			return nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return store.WriteJSONAtomic(path, emptyDocument())
	})
	if err != nil {
		return nil, writeFailed("initialize state store", err)
	}
	return s, nil
}

func (s *FileStore) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(ctx); err != nil {
		return err
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("state_unlock_failed", slog.String("error", err.Error()))
		}
	}()
	return fn()
}

// read loads the document. A missing file is empty state; an unreadable one
// is logged and replaced by empty state on the next write.
func (s *FileStore) read() *fileDocument {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logCorrupt(err)
		}
		return emptyDocument()
	}

	doc := emptyDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		s.logCorrupt(err)
		return emptyDocument()
	}
	if doc.SavedQueries == nil {
		doc.SavedQueries = make(map[string]Payload)
	}
	if doc.Watchlists == nil {
		doc.Watchlists = make(map[string][]string)
	}
	return doc
}

func (s *FileStore) logCorrupt(cause error) {
	err := amerrors.CorruptStateError(s.path, cause)
	s.logger.LogAttrs(context.Background(), slog.LevelWarn, "state_corrupt_reset", amerrors.LogAttrs(err)...)
}

// mutate applies fn to the current document and writes the result.
func (s *FileStore) mutate(ctx context.Context, op string, fn func(doc *fileDocument)) error {
	err := s.withLock(ctx, func() error {
		doc := s.read()
		fn(doc)
		return store.WriteJSONAtomic(s.path, doc)
	})
	if err != nil {
		return writeFailed(op, err)
	}
	return nil
}

func (s *FileStore) snapshot(ctx context.Context) (*fileDocument, error) {
	var doc *fileDocument
	err := s.withLock(ctx, func() error {
		doc = s.read()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	return doc, nil
}

// ListQueries returns every saved query.
func (s *FileStore) ListQueries(ctx context.Context) (map[string]Payload, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return doc.SavedQueries, nil
}

// SaveQuery creates or overwrites a saved query.
func (s *FileStore) SaveQuery(ctx context.Context, name string, payload Payload) error {
	return s.mutate(ctx, "save query", func(doc *fileDocument) {
		doc.SavedQueries[name] = copyPayload(payload)
	})
}

// DeleteQuery removes a saved query.
func (s *FileStore) DeleteQuery(ctx context.Context, name string) error {
	return s.mutate(ctx, "delete query", func(doc *fileDocument) {
		delete(doc.SavedQueries, name)
	})
}

// ListWatchlists returns every watchlist.
func (s *FileStore) ListWatchlists(ctx context.Context) (map[string][]string, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Watchlists, nil
}

// SaveWatchlist creates or overwrites a watchlist with duplicates collapsed.
func (s *FileStore) SaveWatchlist(ctx context.Context, name string, docIDs []string) error {
	ids := DedupeIDs(docIDs)
	return s.mutate(ctx, "save watchlist", func(doc *fileDocument) {
		doc.Watchlists[name] = ids
	})
}

// DeleteWatchlist removes a watchlist.
func (s *FileStore) DeleteWatchlist(ctx context.Context, name string) error {
	return s.mutate(ctx, "delete watchlist", func(doc *fileDocument) {
		delete(doc.Watchlists, name)
	})
}

// Close is a no-op; the file is not held open between calls.
func (s *FileStore) Close() error {
	return nil
}
