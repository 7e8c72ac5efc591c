package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Key prefixes inside the Badger keyspace.
const (
	queryPrefix     = "q/"
	watchlistPrefix = "w/"
)

// BadgerStore keeps state in an embedded Badger database. Each mutation is
// one read-write transaction.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ Store = (*BadgerStore)(nil)

// badgerLogger routes badger's internal logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, args ...any) {
	l.logger.Error(fmt.Sprintf(msg, args...))
}

func (l *badgerLogger) Warningf(msg string, args ...any) {
	l.logger.Warn(fmt.Sprintf(msg, args...))
}

// Infof is demoted to debug; badger is chatty at info.
func (l *badgerLogger) Infof(msg string, args ...any) {
	l.logger.Debug(fmt.Sprintf(msg, args...))
}

func (l *badgerLogger) Debugf(msg string, args ...any) {
	l.logger.Debug(fmt.Sprintf(msg, args...))
}

// NewBadgerStore opens or creates a Badger database in dir.
// inMemory ignores dir and keeps nothing on disk.
func NewBadgerStore(dir string, inMemory bool, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, writeFailed("create state directory", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{logger: logger.With(slog.String("component", "badger"))}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, writeFailed("open state database", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

// scan passes every value under prefix to decode. Undecodable values are
// skipped and logged.
func (s *BadgerStore) scan(prefix string, decode func(name string, val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			name := string(item.Key()[len(prefix):])
			err := item.Value(func(val []byte) error {
				return decode(name, val)
			})
			if err != nil {
				s.logger.Warn("state_row_corrupt",
					slog.String("key", string(item.Key())),
					slog.String("error", err.Error()))
			}
		}
		return nil
	})
}

func (s *BadgerStore) put(key string, v any, op string) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return writeFailed(op, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
	if err != nil {
		return writeFailed(op, err)
	}
	return nil
}

func (s *BadgerStore) remove(key, op string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return writeFailed(op, err)
	}
	return nil
}

// ListQueries returns every saved query.
func (s *BadgerStore) ListQueries(ctx context.Context) (map[string]Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]Payload)
	err := s.scan(queryPrefix, func(name string, val []byte) error {
		var p Payload
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		if p == nil {
			p = Payload{}
		}
		out[name] = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list saved queries: %w", err)
	}
	return out, nil
}

// SaveQuery creates or overwrites a saved query.
func (s *BadgerStore) SaveQuery(ctx context.Context, name string, payload Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.put(queryPrefix+name, copyPayload(payload), "save query")
}

// DeleteQuery removes a saved query.
func (s *BadgerStore) DeleteQuery(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.remove(queryPrefix+name, "delete query")
}

// ListWatchlists returns every watchlist.
func (s *BadgerStore) ListWatchlists(ctx context.Context) (map[string][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	err := s.scan(watchlistPrefix, func(name string, val []byte) error {
		ids := []string{}
		if err := json.Unmarshal(val, &ids); err != nil {
			return err
		}
		out[name] = ids
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlists: %w", err)
	}
	return out, nil
}

// SaveWatchlist creates or overwrites a watchlist with duplicates collapsed.
func (s *BadgerStore) SaveWatchlist(ctx context.Context, name string, docIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.put(watchlistPrefix+name, DedupeIDs(docIDs), "save watchlist")
}

// DeleteWatchlist removes a watchlist.
func (s *BadgerStore) DeleteWatchlist(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.remove(watchlistPrefix+name, "delete watchlist")
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
