// File: internal/usecase/session_uc.go
package usecase

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"docchat/internal/domain"
	"docchat/internal/domain/model"
	"docchat/internal/domain/ports/repository"
	"docchat/internal/infra/logging"
	"docchat/internal/infra/metrics"
)

// Compile-time check
var _ SessionUseCase = (*sessionUC)(nil)

type EventKind string

const (
	EventHydrated EventKind = "hydrated"
	EventCreated  EventKind = "created"
	EventSelected EventKind = "selected"
	EventUpdated  EventKind = "updated"
	EventDeleted  EventKind = "deleted"
)

// Event reports a state change. Messages is a private snapshot of the
// session's log for Created and Updated events.
type Event struct {
	Kind      EventKind
	SessionID string
	Messages  []model.ChatMessage
}

// SessionUseCase owns the session collection and the current-session pointer.
// All reads return copies.
type SessionUseCase interface {
	Hydrate(ctx context.Context)
	Hydrated() bool

	Create(ctx context.Context) (*model.ChatSession, error)
	Select(ctx context.Context, id string) bool
	UpdateMessages(ctx context.Context, id string, msgs []model.ChatMessage) (changed bool, err error)
	AppendMessage(ctx context.Context, id string, msg model.ChatMessage) error
	Delete(ctx context.Context, id string) error

	Current() (*model.ChatSession, bool)
	CurrentID() string
	Get(id string) (*model.ChatSession, error)
	List() []*model.ChatSession
	Len() int

	Subscribe(fn func(Event)) (cancel func())
	OnEmpty(fn func(ctx context.Context))
}

type SessionOption func(*sessionUC)

func WithIDGenerator(fn func() string) SessionOption {
	return func(s *sessionUC) { s.newID = fn }
}

func WithClock(fn func() time.Time) SessionOption {
	return func(s *sessionUC) { s.now = fn }
}

// WithSaveTimeout bounds each persistence write.
func WithSaveTimeout(d time.Duration) SessionOption {
	return func(s *sessionUC) { s.saveTimeout = d }
}

type listener struct {
	id int
	fn func(Event)
}

type sessionUC struct {
	repo        repository.ChatSessionRepository
	logger      *zerolog.Logger
	newID       func() string
	now         func() time.Time
	saveTimeout time.Duration

	// mu guards the collection and is held across the persistence write,
	// so snapshots reach the repository in mutation order.
	mu        sync.Mutex
	sessions  []*model.ChatSession // most recent first
	currentID string
	hydrated  bool

	lmu       sync.Mutex
	listeners []listener
	nextID    int
	onEmpty   func(ctx context.Context)
}

func NewSessionUseCase(repo repository.ChatSessionRepository, logger *zerolog.Logger, opts ...SessionOption) *sessionUC {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "session_store").Logger()
	s := &sessionUC{
		repo:        repo,
		logger:      &l,
		newID:       uuid.NewString,
		now:         time.Now,
		saveTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Hydrate loads the persisted collection once. Load problems leave the
// store empty; they are logged and never returned.
func (s *sessionUC) Hydrate(ctx context.Context) {
	s.mu.Lock()
	if s.hydrated {
		s.mu.Unlock()
		return
	}
	loaded, err := s.repo.Load(ctx)
	if err != nil {
		logging.With(ctx, s.logger).Warn().Err(err).Msg("stored sessions ignored; starting empty")
	}
	if loaded == nil {
		loaded = []*model.ChatSession{}
	}
	s.sessions = loaded
	s.currentID = ""
	if len(loaded) > 0 {
		s.currentID = loaded[0].ID
	}
	s.hydrated = true
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.IncStoreOp("hydrate")
	metrics.SetSessions(n)
	logging.With(ctx, s.logger).Info().Int("sessions", n).Msg("session store hydrated")
	s.emit(Event{Kind: EventHydrated})
}

func (s *sessionUC) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

func (s *sessionUC) Create(ctx context.Context) (*model.ChatSession, error) {
	s.mu.Lock()
	if !s.hydrated {
		s.mu.Unlock()
		return nil, domain.ErrNotReady
	}
	id := s.newID()
	for s.indexLocked(id) >= 0 {
		id = s.newID()
	}
	sess := model.NewChatSession(id, s.now())
	s.sessions = slices.Insert(s.sessions, 0, sess)
	s.currentID = id
	s.persistLocked(ctx, "create")
	out := sess.Clone()
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.IncStoreOp("create")
	metrics.SetSessions(n)
	s.emit(Event{Kind: EventCreated, SessionID: id, Messages: model.CloneMessages(out.Messages)})
	return out, nil
}

// Select makes id current. Unknown ids are ignored. The pointer is not persisted.
func (s *sessionUC) Select(ctx context.Context, id string) bool {
	s.mu.Lock()
	if !s.hydrated || s.indexLocked(id) < 0 {
		s.mu.Unlock()
		logging.With(ctx, s.logger).Debug().Str("id", id).Msg("select ignored: unknown session")
		return false
	}
	if s.currentID == id {
		s.mu.Unlock()
		return true
	}
	s.currentID = id
	s.mu.Unlock()

	metrics.IncStoreOp("select")
	s.emit(Event{Kind: EventSelected, SessionID: id})
	return true
}

// UpdateMessages replaces the log of id. A structurally equal log is a
// no-op: no title recomputation, no write, no event.
func (s *sessionUC) UpdateMessages(ctx context.Context, id string, msgs []model.ChatMessage) (bool, error) {
	s.mu.Lock()
	if !s.hydrated {
		s.mu.Unlock()
		return false, domain.ErrNotReady
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false, domain.ErrNotFound
	}
	sess := s.sessions[i]
	if model.MessagesEqual(sess.Messages, msgs) {
		s.mu.Unlock()
		metrics.IncBridgeSuppressed("to_store")
		return false, nil
	}
	sess.SetMessages(msgs)
	s.persistLocked(ctx, "update")
	snap := model.CloneMessages(sess.Messages)
	s.mu.Unlock()

	metrics.IncStoreOp("update")
	s.emit(Event{Kind: EventUpdated, SessionID: id, Messages: snap})
	return true, nil
}

// AppendMessage adds msg to the canonical log of id.
func (s *sessionUC) AppendMessage(ctx context.Context, id string, msg model.ChatMessage) error {
	s.mu.Lock()
	if !s.hydrated {
		s.mu.Unlock()
		return domain.ErrNotReady
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	sess := s.sessions[i]
	sess.AddMessage(msg)
	s.persistLocked(ctx, "append")
	snap := model.CloneMessages(sess.Messages)
	s.mu.Unlock()

	metrics.IncStoreOp("append")
	s.emit(Event{Kind: EventUpdated, SessionID: id, Messages: snap})
	return nil
}

// Delete removes id. When it was current, the first remaining session
// becomes current. Emptying the collection runs the OnEmpty hook.
func (s *sessionUC) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if !s.hydrated {
		s.mu.Unlock()
		return domain.ErrNotReady
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	s.sessions = slices.Delete(s.sessions, i, i+1)
	wasCurrent := s.currentID == id
	if wasCurrent {
		s.currentID = ""
		if len(s.sessions) > 0 {
			s.currentID = s.sessions[0].ID
		}
	}
	s.persistLocked(ctx, "delete")
	newCurrent := s.currentID
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.IncStoreOp("delete")
	metrics.SetSessions(n)
	s.emit(Event{Kind: EventDeleted, SessionID: id})
	if wasCurrent && newCurrent != "" {
		s.emit(Event{Kind: EventSelected, SessionID: newCurrent})
	}
	if n == 0 {
		s.lmu.Lock()
		hook := s.onEmpty
		s.lmu.Unlock()
		if hook != nil {
			hook(ctx)
		}
	}
	return nil
}

func (s *sessionUC) Current() (*model.ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(s.currentID)
	if i < 0 {
		return nil, false
	}
	return s.sessions[i].Clone(), true
}

func (s *sessionUC) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

func (s *sessionUC) Get(id string) (*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	return s.sessions[i].Clone(), nil
}

func (s *sessionUC) List() []*model.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneSessions(s.sessions)
}

func (s *sessionUC) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Subscribe registers fn for every event. Listeners run synchronously on
// the mutating goroutine after the store lock is released.
func (s *sessionUC) Subscribe(fn func(Event)) func() {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		s.listeners = slices.DeleteFunc(s.listeners, func(l listener) bool { return l.id == id })
	}
}

// OnEmpty sets the hook run after a delete leaves the collection empty.
func (s *sessionUC) OnEmpty(fn func(ctx context.Context)) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.onEmpty = fn
}

func (s *sessionUC) emit(ev Event) {
	s.lmu.Lock()
	ls := slices.Clone(s.listeners)
	s.lmu.Unlock()
	for _, l := range ls {
		l.fn(ev)
	}
}

func (s *sessionUC) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.sessions, func(x *model.ChatSession) bool { return x.ID == id })
}

// persistLocked writes the full collection. Failures are logged and
// swallowed; memory stays authoritative for the rest of the run.
func (s *sessionUC) persistLocked(ctx context.Context, op string) {
	defer logging.TraceDuration(s.logger, "SessionStore.persist."+op)()
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.saveTimeout)
	defer cancel()
	if err := s.repo.Save(wctx, s.sessions); err != nil {
		logging.With(ctx, s.logger).Warn().Err(err).Str("op", op).Msg("persist sessions failed; keeping in-memory state")
	}
}
