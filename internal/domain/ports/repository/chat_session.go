package repository

import (
	"context"

	"docchat/internal/domain/model"
)

// -----------------------------
// Chat Sessions
// -----------------------------

// ChatSessionRepository persists the whole session collection as one unit.
//
// Load always returns a usable slice. A non-nil error reports why the stored
// collection was ignored (absent medium, corrupt payload) and is for logging
// only; callers treat the result as the loaded collection either way.
// Save overwrites the full collection.
type ChatSessionRepository interface {
	Load(ctx context.Context) ([]*model.ChatSession, error)
	Save(ctx context.Context, sessions []*model.ChatSession) error
}

// -----------------------------
// Key/value backing medium
// -----------------------------

// KeyValueStore is the durable medium behind ChatSessionRepository.
// Get returns domain.ErrNotFound when the key is absent.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}
