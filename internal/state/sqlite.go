package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure Go driver, registers "sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS saved_queries (
	name    TEXT PRIMARY KEY,
	payload TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS watchlists (
	name   TEXT PRIMARY KEY,
	doc_ids TEXT NOT NULL
);`

// SQLiteStore keeps state in a SQLite database. Saves are single upsert
// statements, so concurrent writers never lose updates.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at path.
// An empty path opens a private in-memory database.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, writeFailed("create state directory", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, writeFailed("open state database", err)
	}

	// One connection: writes serialize here and :memory: stays one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, writeFailed("configure state database", err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, writeFailed("create state tables", err)
	}

	logger.Debug("state_sqlite_opened", slog.String("path", dsn))
	return &SQLiteStore{db: db, path: path, logger: logger}, nil
}

// ListQueries returns every saved query. Rows with undecodable payloads are
// skipped and logged.
func (s *SQLiteStore) ListQueries(ctx context.Context) (map[string]Payload, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, payload FROM saved_queries`)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved queries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]Payload)
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan saved query: %w", err)
		}
		var p Payload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			s.logger.Warn("state_row_corrupt",
				slog.String("table", "saved_queries"),
				slog.String("name", name),
				slog.String("error", err.Error()))
			continue
		}
		if p == nil {
			p = Payload{}
		}
		out[name] = p
	}
	return out, rows.Err()
}

// SaveQuery upserts a saved query.
func (s *SQLiteStore) SaveQuery(ctx context.Context, name string, payload Payload) error {
	raw, err := json.Marshal(copyPayload(payload))
	if err != nil {
		return writeFailed("encode saved query", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO saved_queries (name, payload) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET payload = excluded.payload`,
		name, string(raw))
	if err != nil {
		return writeFailed("save query", err)
	}
	return nil
}

// DeleteQuery removes a saved query.
func (s *SQLiteStore) DeleteQuery(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM saved_queries WHERE name = ?`, name); err != nil {
		return writeFailed("delete query", err)
	}
	return nil
}

// ListWatchlists returns every watchlist.
func (s *SQLiteStore) ListWatchlists(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, doc_ids FROM watchlists`)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlists: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]string)
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist: %w", err)
		}
		ids := []string{}
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			s.logger.Warn("state_row_corrupt",
				slog.String("table", "watchlists"),
				slog.String("name", name),
				slog.String("error", err.Error()))
			continue
		}
		out[name] = ids
	}
	return out, rows.Err()
}

// SaveWatchlist upserts a watchlist with duplicates collapsed.
func (s *SQLiteStore) SaveWatchlist(ctx context.Context, name string, docIDs []string) error {
	raw, err := json.Marshal(DedupeIDs(docIDs))
	if err != nil {
		return writeFailed("encode watchlist", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO watchlists (name, doc_ids) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET doc_ids = excluded.doc_ids`,
		name, string(raw))
	if err != nil {
		return writeFailed("save watchlist", err)
	}
	return nil
}

// DeleteWatchlist removes a watchlist.
func (s *SQLiteStore) DeleteWatchlist(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM watchlists WHERE name = ?`, name); err != nil {
		return writeFailed("delete watchlist", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
