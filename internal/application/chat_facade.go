package application

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"docchat/internal/domain"
	"docchat/internal/domain/model"
	"docchat/internal/infra/logging"
)

// ChatFacade composes the session store, lifecycle and conversation flows
// into the operations the HTTP layer and the binaries call.
type ChatFacade struct {
	Sessions  SessionStoreIface
	Lifecycle LifecycleIface
	Conv      ConversationIface
	logger    *zerolog.Logger
}

func NewChatFacade(sessions SessionStoreIface, lifecycle LifecycleIface, conv ConversationIface, logger *zerolog.Logger) *ChatFacade {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "chat_facade").Logger()
	return &ChatFacade{Sessions: sessions, Lifecycle: lifecycle, Conv: conv, logger: &l}
}

// SessionSummary is one row of the session list.
type SessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"createdAt"`
	MessageCount int       `json:"messageCount"`
	Current      bool      `json:"current"`
}

// SessionView is a session together with its conversation state.
type SessionView struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	CreatedAt time.Time           `json:"createdAt"`
	Messages  []model.ChatMessage `json:"messages"`
	Mode      model.Mode          `json:"mode"`
	Loading   bool                `json:"loading"`
	Current   bool                `json:"current"`
}

func (f *ChatFacade) view(s *model.ChatSession) *SessionView {
	msgs := s.Messages
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	return &SessionView{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		Messages:  msgs,
		Mode:      f.Conv.Mode(s.ID),
		Loading:   f.Conv.Loading(s.ID),
		Current:   s.ID == f.Sessions.CurrentID(),
	}
}

func (f *ChatFacade) viewOf(id string) (*SessionView, error) {
	s, err := f.Sessions.Get(id)
	if err != nil {
		return nil, err
	}
	return f.view(s), nil
}

// Start hydrates and makes sure there is a current session.
func (f *ChatFacade) Start(ctx context.Context) (*SessionView, error) {
	s, err := f.Lifecycle.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	return f.view(s), nil
}

// ListSessions returns summaries, most recent first, and the current id.
func (f *ChatFacade) ListSessions(ctx context.Context) ([]SessionSummary, string) {
	cur := f.Sessions.CurrentID()
	list := f.Sessions.List()
	out := make([]SessionSummary, 0, len(list))
	for _, s := range list {
		out = append(out, SessionSummary{
			ID:           s.ID,
			Title:        s.Title,
			CreatedAt:    s.CreatedAt,
			MessageCount: len(s.Messages),
			Current:      s.ID == cur,
		})
	}
	return out, cur
}

func (f *ChatFacade) NewSession(ctx context.Context) (*SessionView, error) {
	s, err := f.Sessions.Create(ctx)
	if err != nil {
		return nil, err
	}
	logging.With(ctx, f.logger).Info().Str("id", s.ID).Msg("session created")
	return f.view(s), nil
}

func (f *ChatFacade) CurrentSession(ctx context.Context) (*SessionView, error) {
	s, ok := f.Sessions.Current()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return f.view(s), nil
}

func (f *ChatFacade) SelectSession(ctx context.Context, id string) (*SessionView, error) {
	if !f.Sessions.Select(ctx, id) {
		return nil, fmt.Errorf("%w: session %q", domain.ErrNotFound, id)
	}
	return f.viewOf(id)
}

func (f *ChatFacade) GetSession(ctx context.Context, id string) (*SessionView, error) {
	return f.viewOf(id)
}

// DeleteSession removes id and returns the session that is current afterwards.
func (f *ChatFacade) DeleteSession(ctx context.Context, id string) (*SessionView, error) {
	if err := f.Sessions.Delete(ctx, id); err != nil {
		return nil, err
	}
	logging.With(ctx, f.logger).Info().Str("id", id).Msg("session deleted")
	return f.CurrentSession(ctx)
}

// PublishMessages replaces the log from an editor and reports whether it
// changed anything.
func (f *ChatFacade) PublishMessages(ctx context.Context, id string, msgs []model.ChatMessage) (bool, *SessionView, error) {
	changed, err := f.Conv.Publish(ctx, id, msgs)
	if err != nil {
		return false, nil, err
	}
	v, err := f.viewOf(id)
	return changed, v, err
}

// Send asks the backend and returns the updated session. Backend failures
// still return the session, which now carries the error reply.
func (f *ChatFacade) Send(ctx context.Context, id, prompt string) (*SessionView, model.ChatMessage, error) {
	reply, err := f.Conv.Send(ctx, id, prompt)
	return f.afterReply(id, reply, err)
}

// SendAsync records the prompt and returns before the backend answers.
func (f *ChatFacade) SendAsync(ctx context.Context, id, prompt string) (*SessionView, error) {
	err := f.Conv.SendAsync(ctx, id, prompt)
	v, _, err := f.afterReply(id, model.ChatMessage{}, err)
	return v, err
}

func (f *ChatFacade) Upload(ctx context.Context, id, filename string, r io.Reader) (*SessionView, model.ChatMessage, error) {
	reply, err := f.Conv.Upload(ctx, id, filename, r)
	return f.afterReply(id, reply, err)
}

func (f *ChatFacade) Mode(id string) (model.Mode, error) {
	if _, err := f.Sessions.Get(id); err != nil {
		return "", err
	}
	return f.Conv.Mode(id), nil
}

func (f *ChatFacade) afterReply(id string, reply model.ChatMessage, err error) (*SessionView, model.ChatMessage, error) {
	v, verr := f.viewOf(id)
	if err != nil {
		// v is nil when the session went away during the request
		return v, reply, err
	}
	return v, reply, verr
}
