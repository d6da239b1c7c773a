package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"docchat/internal/domain"
	"docchat/internal/domain/ports/repository"
)

var _ repository.KeyValueStore = (*KVStore)(nil)

const schema = `CREATE TABLE IF NOT EXISTS kv_store (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_at_ns INTEGER NOT NULL
);`

// KVStore is an embedded SQLite key/value table.
type KVStore struct {
	db      *sql.DB
	journal string
}

// Open creates the database file (and its directory) when missing.
func Open(ctx context.Context, path string) (*KVStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: busy_timeout: %w", err)
	}
	// the pragma answers with the mode in effect; ":memory:" stays "memory"
	var journal string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode = WAL;").Scan(&journal); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: journal_mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: schema: %w", err)
	}
	return &KVStore{db: db, journal: strings.ToLower(journal)}, nil
}

// JournalMode reports the journal mode SQLite settled on.
func (s *KVStore) JournalMode() string { return s.journal }

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get: %w", err)
	}
	return v, nil
}

func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_store (key, value, updated_at_ns) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at_ns = excluded.updated_at_ns`,
		key, value, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite store: put: %w", err)
	}
	return nil
}

func (s *KVStore) Close() error { return s.db.Close() }
