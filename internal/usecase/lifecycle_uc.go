// File: internal/usecase/lifecycle_uc.go
package usecase

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"docchat/internal/domain"
	"docchat/internal/domain/model"
	"docchat/internal/infra/logging"
)

// Compile-time check
var _ LifecycleUseCase = (*lifecycleUC)(nil)

type Phase string

const (
	PhaseUnhydrated  Phase = "unhydrated"
	PhaseEmpty       Phase = "empty"
	PhaseHasSessions Phase = "has_sessions"
)

// LifecycleUseCase sequences startup and keeps the collection non-empty.
type LifecycleUseCase interface {
	Start(ctx context.Context) (*model.ChatSession, error)
	EnsureNonEmpty(ctx context.Context) error
	Phase() Phase
}

type lifecycleUC struct {
	store  SessionUseCase
	logger *zerolog.Logger
	mu     sync.Mutex
}

// NewLifecycleUseCase registers the auto-create hook on the store.
func NewLifecycleUseCase(store SessionUseCase, logger *zerolog.Logger) *lifecycleUC {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "lifecycle").Logger()
	lc := &lifecycleUC{store: store, logger: &l}
	store.OnEmpty(lc.autoCreate)
	return lc
}

// Start hydrates first and only then checks for emptiness, so a collection
// that is merely not loaded yet never triggers a throwaway session.
func (l *lifecycleUC) Start(ctx context.Context) (*model.ChatSession, error) {
	l.store.Hydrate(ctx)
	if err := l.EnsureNonEmpty(ctx); err != nil {
		return nil, err
	}
	cur, ok := l.store.Current()
	if !ok {
		return nil, domain.ErrNotFound
	}
	logging.With(ctx, l.logger).Info().Str("current", cur.ID).Int("sessions", l.store.Len()).Msg("lifecycle started")
	return cur, nil
}

func (l *lifecycleUC) EnsureNonEmpty(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.store.Hydrated() {
		return domain.ErrNotReady
	}
	if l.store.Len() > 0 {
		return nil
	}
	s, err := l.store.Create(ctx)
	if err != nil {
		return err
	}
	logging.With(ctx, l.logger).Info().Str("id", s.ID).Msg("auto-created first session")
	return nil
}

func (l *lifecycleUC) Phase() Phase {
	switch {
	case !l.store.Hydrated():
		return PhaseUnhydrated
	case l.store.Len() == 0:
		return PhaseEmpty
	default:
		return PhaseHasSessions
	}
}

func (l *lifecycleUC) autoCreate(ctx context.Context) {
	if err := l.EnsureNonEmpty(ctx); err != nil {
		logging.With(ctx, l.logger).Error().Err(err).Msg("auto-create after delete failed")
	}
}
