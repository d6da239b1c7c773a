package persistence

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"docchat/internal/domain"
	"docchat/internal/domain/model"
	"docchat/internal/domain/ports/repository"
	derror "docchat/internal/error"
	"docchat/internal/infra/metrics"
)

// DefaultKey is the key the collection is stored under.
const DefaultKey = "chatSessions"

var _ repository.ChatSessionRepository = (*SessionRepo)(nil)

// SessionRepo stores the whole session collection under one key of a
// KeyValueStore, as a JSON array.
type SessionRepo struct {
	kv     repository.KeyValueStore
	key    string
	logger *zerolog.Logger
}

func NewSessionRepo(kv repository.KeyValueStore, key string, logger *zerolog.Logger) *SessionRepo {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "session_repo").Str("key", key).Logger()
	return &SessionRepo{kv: kv, key: key, logger: &l}
}

// Load never fails in a way that leaves the caller without a collection:
// absent, corrupt or unreachable storage all return an empty slice. The
// error, if any, explains why the stored data was ignored.
func (r *SessionRepo) Load(ctx context.Context) ([]*model.ChatSession, error) {
	raw, err := r.kv.Get(ctx, r.key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		metrics.IncPersistRead("absent")
		return []*model.ChatSession{}, nil
	case err != nil:
		metrics.IncPersistRead("unavailable")
		return []*model.ChatSession{}, derror.New(derror.PersistenceRead, "load", err)
	}

	sessions, err := Decode(raw)
	if err != nil {
		metrics.IncPersistRead("corrupt")
		return []*model.ChatSession{}, derror.New(derror.PersistenceRead, "decode", err)
	}
	metrics.IncPersistRead("ok")
	r.logger.Debug().Int("sessions", len(sessions)).Msg("collection loaded")
	return sessions, nil
}

// Save overwrites the stored collection.
func (r *SessionRepo) Save(ctx context.Context, sessions []*model.ChatSession) error {
	raw, err := Encode(sessions)
	if err != nil {
		metrics.IncPersistWrite("error")
		return derror.New(derror.PersistenceWrite, "encode", err)
	}
	if err := r.kv.Put(ctx, r.key, raw); err != nil {
		metrics.IncPersistWrite("error")
		return derror.New(derror.PersistenceWrite, "put", err)
	}
	metrics.IncPersistWrite("ok")
	return nil
}
