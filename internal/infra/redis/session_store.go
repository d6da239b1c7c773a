package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"docchat/internal/domain"
	"docchat/internal/domain/ports/repository"
)

var _ repository.KeyValueStore = (*SessionStore)(nil)

const keyPrefix = "docchat:"

// SessionStore keeps the session collection under a single Redis key.
// A zero ttl never expires the key.
type SessionStore struct {
	client RedisClient
	ttl    time.Duration
}

func NewSessionStore(client RedisClient, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.GetBytes(ctx, keyPrefix+key)
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis store: get: %w", err)
	}
	return b, nil
}

func (s *SessionStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.SetBytes(ctx, keyPrefix+key, value, s.ttl); err != nil {
		return fmt.Errorf("redis store: set: %w", err)
	}
	return nil
}

func (s *SessionStore) Close() error { return s.client.Close() }
