// Package storage selects the key/value medium behind the session repository.
package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"docchat/internal/config"
	"docchat/internal/domain/ports/repository"
	pg "docchat/internal/infra/db/postgres"
	red "docchat/internal/infra/redis"
	"docchat/internal/infra/security"
	"docchat/internal/infra/storage/file"
	"docchat/internal/infra/storage/memory"
	"docchat/internal/infra/storage/sqlite"
)

// Open connects the medium named by cfg.Store.Backend, sealed when an
// encryption key is configured. The caller owns the returned store and must
// Close it.
func Open(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (repository.KeyValueStore, error) {
	kv, err := openMedium(ctx, cfg, logger)
	if err != nil || cfg.Store.EncryptionKey == "" {
		return kv, err
	}
	c, err := security.NewCipher(cfg.Store.EncryptionKey)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	return security.NewSealedStore(kv, c), nil
}

func openMedium(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (repository.KeyValueStore, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		logger.Warn().Msg("store.backend=memory: sessions are lost on restart")
		return memory.NewKVStore(), nil

	case config.StoreFile:
		return file.NewKVStore(cfg.Store.FileDir)

	case config.StoreSQLite:
		kv, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		if mode := kv.JournalMode(); mode != "wal" && cfg.Store.SQLitePath != ":memory:" {
			logger.Warn().Str("journal_mode", mode).Str("path", cfg.Store.SQLitePath).
				Msg("sqlite WAL unavailable; concurrent readers will block on writes")
		}
		return kv, nil

	case config.StoreRedis:
		cli, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		return red.NewSessionStore(cli, cfg.Redis.TTL), nil

	case config.StorePostgres:
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return pg.NewKVStore(pool), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
