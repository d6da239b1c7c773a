// File: internal/infra/db/postgres/postgres_kv_store.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"docchat/internal/domain"
	"docchat/internal/domain/ports/repository"
)

var _ repository.KeyValueStore = (*KVStore)(nil)

// executor is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type executor interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// KVStore keeps values in the kv_store table. Values must be valid JSON
// since the column is JSONB.
type KVStore struct {
	pool *pgxpool.Pool
	db   executor
}

func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool, db: pool}
}

// WithExecutor returns a store bound to a transaction or connection.
func (s *KVStore) WithExecutor(qx executor) *KVStore {
	return &KVStore{db: qx}
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	const q = `SELECT value::text FROM kv_store WHERE key = $1`
	var v string
	err := s.db.QueryRow(ctx, q, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv get: %w", err)
	}
	return []byte(v), nil
}

func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	const q = `
INSERT INTO kv_store (key, value, updated_at)
VALUES ($1, $2::jsonb, NOW())
ON CONFLICT (key) DO UPDATE SET
  value = EXCLUDED.value,
  updated_at = EXCLUDED.updated_at;`
	tag, err := s.db.Exec(ctx, q, key, string(value))
	if err != nil {
		return fmt.Errorf("kv put: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("kv put: %d rows affected", tag.RowsAffected())
	}
	return nil
}

// Close releases the pool when the store owns one.
func (s *KVStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
