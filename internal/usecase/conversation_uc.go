// File: internal/usecase/conversation_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"docchat/internal/domain"
	"docchat/internal/domain/model"
	"docchat/internal/domain/ports/adapter"
	derror "docchat/internal/error"
	"docchat/internal/infra/logging"
)

// Compile-time check
var _ ConversationUseCase = (*conversationUC)(nil)

const (
	BackendErrorReply   = "Sorry, there was an error processing your request."
	uploadErrorReplyFmt = "Sorry, I couldn't process %s. Please try again."
	uploadOKReplyFmt    = "I've processed %s. What would you like to know about it?"
)

// TaskSubmitter runs work in the background (see worker.Pool).
type TaskSubmitter interface {
	Submit(task func(ctx context.Context) error) error
}

// ConversationUseCase drives sends and uploads for a session. Replies always
// land in the session the request was issued for.
type ConversationUseCase interface {
	Open(ctx context.Context, sessionID string) (*Editor, error)
	Close(sessionID string)
	Publish(ctx context.Context, sessionID string, msgs []model.ChatMessage) (bool, error)
	Send(ctx context.Context, sessionID, prompt string) (model.ChatMessage, error)
	SendAsync(ctx context.Context, sessionID, prompt string) error
	Upload(ctx context.Context, sessionID, filename string, r io.Reader) (model.ChatMessage, error)
	Mode(sessionID string) model.Mode
	Loading(sessionID string) bool
	Shutdown()
}

type conversationUC struct {
	store   SessionUseCase
	backend adapter.InferenceBackend
	tasks   TaskSubmitter
	logger  *zerolog.Logger
	timeout time.Duration
	dev     bool

	mu          sync.Mutex
	editors     map[string]*Editor
	states      map[string]*convState
	unsubscribe func()
}

// NewConversationUseCase subscribes to store events so open editors follow
// store-side changes. tasks may be nil; SendAsync then runs inline in a goroutine.
func NewConversationUseCase(store SessionUseCase, backend adapter.InferenceBackend, tasks TaskSubmitter, logger *zerolog.Logger, timeout time.Duration) *conversationUC {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	l := logger.With().Str("component", "conversation").Logger()
	c := &conversationUC{
		store:   store,
		backend: backend,
		tasks:   tasks,
		logger:  &l,
		timeout: timeout,
		editors: make(map[string]*Editor),
		states:  make(map[string]*convState),
	}
	c.unsubscribe = store.Subscribe(c.onStoreEvent)
	return c
}

// WithDev logs prompts in full instead of redacted.
func (c *conversationUC) WithDev(dev bool) *conversationUC {
	c.dev = dev
	return c
}

// Open returns the editor for sessionID, creating it from the store's log.
func (c *conversationUC) Open(ctx context.Context, sessionID string) (*Editor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ed, ok := c.editors[sessionID]; ok && !ed.isClosed() {
		return ed, nil
	}
	s, err := c.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	ed := newEditor(c.store, sessionID, s.Messages, c.stateLocked(sessionID))
	c.editors[sessionID] = ed
	return ed, nil
}

func (c *conversationUC) stateLocked(sessionID string) *convState {
	st, ok := c.states[sessionID]
	if !ok {
		st = newConvState()
		c.states[sessionID] = st
	}
	return st
}

func (c *conversationUC) state(sessionID string) *convState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[sessionID]
}

// Close disposes the editor; in-flight requests still deliver their replies.
// The session's mode and backend session are kept.
func (c *conversationUC) Close(sessionID string) {
	c.mu.Lock()
	ed := c.editors[sessionID]
	delete(c.editors, sessionID)
	c.mu.Unlock()
	if ed != nil {
		ed.close()
	}
}

// forget drops everything held for a session that no longer exists.
func (c *conversationUC) forget(sessionID string) {
	c.Close(sessionID)
	c.mu.Lock()
	delete(c.states, sessionID)
	c.mu.Unlock()
}

// closeExcept disposes every editor other than keep's. Only the current
// session's log stays in memory here; the store holds the rest.
func (c *conversationUC) closeExcept(keep string) {
	c.mu.Lock()
	var stale []*Editor
	for id, ed := range c.editors {
		if id != keep && !ed.Loading() {
			stale = append(stale, ed)
			delete(c.editors, id)
		}
	}
	c.mu.Unlock()
	for _, ed := range stale {
		ed.close()
	}
}

// release ends the request on ed and disposes it when the user has moved on.
func (c *conversationUC) release(ed *Editor) {
	ed.end()
	if c.store.CurrentID() != ed.SessionID() {
		c.mu.Lock()
		if c.editors[ed.SessionID()] == ed {
			delete(c.editors, ed.SessionID())
		} else {
			ed = nil
		}
		c.mu.Unlock()
		if ed != nil {
			ed.close()
		}
	}
}

func (c *conversationUC) lookup(sessionID string) *Editor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editors[sessionID]
}

// Publish pushes an editor-side full log for sessionID.
func (c *conversationUC) Publish(ctx context.Context, sessionID string, msgs []model.ChatMessage) (bool, error) {
	for i, m := range msgs {
		if !m.Role.Valid() {
			return false, fmt.Errorf("%w: message %d has role %q", domain.ErrInvalidArgument, i, m.Role)
		}
	}
	ed, err := c.Open(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return ed.Publish(ctx, msgs)
}

func (c *conversationUC) Send(ctx context.Context, sessionID, prompt string) (model.ChatMessage, error) {
	ed, prompt, err := c.beginSend(ctx, sessionID, prompt)
	if err != nil {
		return model.ChatMessage{}, err
	}
	return c.completeSend(ctx, ed, prompt)
}

// SendAsync appends the user message now and leaves the backend round trip
// to the task pool.
func (c *conversationUC) SendAsync(ctx context.Context, sessionID, prompt string) error {
	ed, prompt, err := c.beginSend(ctx, sessionID, prompt)
	if err != nil {
		return err
	}
	traceCtx := logging.WithTraceID(context.Background(), logging.TraceIDFrom(ctx))
	task := func(taskCtx context.Context) error {
		if taskCtx.Err() != nil {
			// the pool stopped before the request went out
			return c.abandonSend(traceCtx, ed, taskCtx.Err())
		}
		_, err := c.completeSend(traceCtx, ed, prompt)
		return err
	}
	if c.tasks == nil {
		go func() { _ = task(context.Background()) }()
		return nil
	}
	if err := c.tasks.Submit(task); err != nil {
		_ = c.abandonSend(ctx, ed, err)
		return derror.New(derror.BackendRequest, "submit", err)
	}
	return nil
}

// abandonSend answers a send that never reached the backend with the error
// reply, so the user message is not left without one.
func (c *conversationUC) abandonSend(ctx context.Context, ed *Editor, cause error) error {
	defer c.release(ed)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	logging.With(logging.WithSessID(ctx, ed.SessionID()), c.logger).Warn().Err(cause).Msg("send abandoned before reaching the backend")
	reply := model.AssistantMessage(BackendErrorReply)
	if err := c.deliver(ctx, ed.SessionID(), reply); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (c *conversationUC) beginSend(ctx context.Context, sessionID, prompt string) (*Editor, string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, "", domain.ErrInvalidArgument
	}
	ed, err := c.Open(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	if !ed.tryBegin() {
		return nil, "", domain.ErrBusy
	}
	// user message is in the log before the request is issued
	if err := ed.Append(ctx, model.UserMessage(prompt)); err != nil {
		ed.end()
		return nil, "", err
	}
	return ed, prompt, nil
}

func (c *conversationUC) completeSend(ctx context.Context, ed *Editor, prompt string) (model.ChatMessage, error) {
	defer c.release(ed)
	// the request outlives the caller: switching sessions or a dropped
	// client must not lose the reply
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	log := logging.With(logging.WithSessID(ctx, ed.SessionID()), c.logger)

	c.ensureBackendSession(ctx, ed)
	mode, remote := ed.route()

	resp, err := c.backend.SendMessage(ctx, adapter.SendRequest{Prompt: prompt, SessionID: remote, Mode: mode})
	if err != nil {
		log.Error().Err(err).Str("mode", string(mode)).
			Str("prompt", logging.Redact(prompt, c.dev)).Msg("backend request failed")
		reply := model.AssistantMessage(BackendErrorReply)
		if derr := c.deliver(ctx, ed.SessionID(), reply); derr != nil {
			return reply, errors.Join(derror.New(derror.BackendRequest, "send_message", err), derr)
		}
		return reply, derror.New(derror.BackendRequest, "send_message", err)
	}

	reply := model.AssistantMessage(resp)
	if err := c.deliver(ctx, ed.SessionID(), reply); err != nil {
		return reply, err
	}
	return reply, nil
}

func (c *conversationUC) ensureBackendSession(ctx context.Context, ed *Editor) {
	if !ed.needsBackendSession() {
		return
	}
	id, err := c.backend.CreateSession(ctx)
	if err != nil {
		logging.With(ctx, c.logger).Warn().Err(err).Msg("backend session not created; continuing without one")
		return
	}
	ed.setBackendSession(id)
}

// deliver appends msg to sessionID, through its editor when one is open.
func (c *conversationUC) deliver(ctx context.Context, sessionID string, msg model.ChatMessage) error {
	var err error
	if ed := c.lookup(sessionID); ed != nil && !ed.isClosed() {
		err = ed.Append(ctx, msg)
	} else {
		err = c.store.AppendMessage(ctx, sessionID, msg)
	}
	if errors.Is(err, domain.ErrNotFound) {
		logging.With(logging.WithSessID(ctx, sessionID), c.logger).Warn().
			Str("role", string(msg.Role)).Msg("reply dropped: session was deleted")
	}
	return err
}

func (c *conversationUC) Upload(ctx context.Context, sessionID, filename string, r io.Reader) (model.ChatMessage, error) {
	ed, err := c.Open(ctx, sessionID)
	if err != nil {
		return model.ChatMessage{}, err
	}
	if !ed.tryBegin() {
		return model.ChatMessage{}, domain.ErrBusy
	}
	defer c.release(ed)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	name := filepath.Base(filename)
	log := logging.With(logging.WithSessID(ctx, sessionID), c.logger)

	var res adapter.UploadResult
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		err = domain.ErrUnsupportedFile
	} else {
		ed.setMode(model.ModePDF)
		res, err = c.backend.UploadDocument(ctx, name, r)
	}
	if err != nil {
		ed.setMode(model.ModeChat)
		log.Error().Err(err).Str("file", name).Msg("document upload failed")
		reply := model.AssistantMessage(fmt.Sprintf(uploadErrorReplyFmt, name))
		if derr := c.deliver(ctx, sessionID, reply); derr != nil {
			return reply, errors.Join(derror.New(derror.Upload, "upload_document", err), derr)
		}
		return reply, derror.New(derror.Upload, "upload_document", err)
	}

	ed.setMode(model.ModePDF)
	ed.setBackendSession(res.SessionID)
	log.Info().Str("file", name).Str("backend_session", res.SessionID).Msg("document processed")

	reply := model.AssistantMessage(fmt.Sprintf(uploadOKReplyFmt, name))
	if err := c.deliver(ctx, sessionID, reply); err != nil {
		return reply, err
	}
	return reply, nil
}

func (c *conversationUC) Mode(sessionID string) model.Mode {
	if st := c.state(sessionID); st != nil {
		return st.Mode()
	}
	return model.ModeChat
}

func (c *conversationUC) Loading(sessionID string) bool {
	if st := c.state(sessionID); st != nil {
		return st.Loading()
	}
	return false
}

func (c *conversationUC) Shutdown() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

func (c *conversationUC) onStoreEvent(ev Event) {
	switch ev.Kind {
	case EventUpdated:
		if ed := c.lookup(ev.SessionID); ed != nil {
			ed.Observe(ev.Messages)
		}
	case EventCreated, EventSelected:
		c.closeExcept(ev.SessionID)
	case EventDeleted:
		c.forget(ev.SessionID)
	case EventHydrated:
		c.mu.Lock()
		ids := make([]string, 0, len(c.states))
		for id := range c.states {
			ids = append(ids, id)
		}
		c.mu.Unlock()
		for _, id := range ids {
			s, err := c.store.Get(id)
			if err != nil {
				c.forget(id)
				continue
			}
			if ed := c.lookup(id); ed != nil {
				ed.Observe(s.Messages)
			}
		}
	}
}
