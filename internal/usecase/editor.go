// File: internal/usecase/editor.go
package usecase

import (
	"context"
	"sync"

	"docchat/internal/domain/model"
	"docchat/internal/infra/metrics"
)

// convState is the per-session conversation state that outlives editors:
// the routing mode, the backend session and the in-flight flag.
type convState struct {
	mu             sync.Mutex
	mode           model.Mode
	backendSession string
	triedBackend   bool
	loading        bool
}

func newConvState() *convState { return &convState{mode: model.ModeChat} }

// Editor is a disposable view over one session's message log. It holds a
// local copy plus the baseline: the last log it produced or observed.
// A log only crosses to the other side when it differs from the baseline,
// so neither side ever sees its own change echoed back.
type Editor struct {
	sessionID string
	store     SessionUseCase
	state     *convState

	// pub serializes publishers across the store call; mu guards the log
	// copies and is never held while calling into the store.
	pub sync.Mutex
	mu  sync.Mutex

	local    []model.ChatMessage
	baseline []model.ChatMessage
	closed   bool
}

func NewEditor(store SessionUseCase, sessionID string, initial []model.ChatMessage) *Editor {
	return newEditor(store, sessionID, initial, newConvState())
}

func newEditor(store SessionUseCase, sessionID string, initial []model.ChatMessage, state *convState) *Editor {
	return &Editor{
		sessionID: sessionID,
		store:     store,
		state:     state,
		local:     model.CloneMessages(initial),
		baseline:  model.CloneMessages(initial),
	}
}

func (e *Editor) SessionID() string { return e.sessionID }

func (e *Editor) Messages() []model.ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return model.CloneMessages(e.local)
}

// Publish replaces the local log with msgs and hands it to the store when it
// differs from the baseline.
func (e *Editor) Publish(ctx context.Context, msgs []model.ChatMessage) (bool, error) {
	e.pub.Lock()
	defer e.pub.Unlock()

	e.mu.Lock()
	e.local = model.CloneMessages(msgs)
	if model.MessagesEqual(msgs, e.baseline) {
		e.mu.Unlock()
		metrics.IncBridgeSuppressed("to_store")
		return false, nil
	}
	e.baseline = model.CloneMessages(msgs)
	next := model.CloneMessages(msgs)
	e.mu.Unlock()

	return e.store.UpdateMessages(ctx, e.sessionID, next)
}

// Append adds m to the local log and publishes the result.
func (e *Editor) Append(ctx context.Context, m model.ChatMessage) error {
	e.pub.Lock()
	defer e.pub.Unlock()

	e.mu.Lock()
	next := append(model.CloneMessages(e.local), m)
	e.local = next
	e.baseline = model.CloneMessages(next)
	e.mu.Unlock()

	_, err := e.store.UpdateMessages(ctx, e.sessionID, model.CloneMessages(next))
	return err
}

// Observe absorbs a log coming from the store. The whole local copy is
// replaced only on a real difference; the baseline always moves.
func (e *Editor) Observe(msgs []model.ChatMessage) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	if model.MessagesEqual(msgs, e.baseline) {
		e.baseline = model.CloneMessages(msgs)
		metrics.IncBridgeSuppressed("to_editor")
		return false
	}
	e.local = model.CloneMessages(msgs)
	e.baseline = model.CloneMessages(msgs)
	return true
}

func (e *Editor) Mode() model.Mode { return e.state.Mode() }

func (e *Editor) setMode(m model.Mode) {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	e.state.mode = m
}

func (e *Editor) BackendSession() string {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	return e.state.backendSession
}

func (e *Editor) setBackendSession(id string) {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	e.state.backendSession = id
	e.state.triedBackend = true
}

// needsBackendSession reports true once, until a backend session is known.
func (e *Editor) needsBackendSession() bool {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	if e.state.backendSession != "" || e.state.triedBackend {
		return false
	}
	e.state.triedBackend = true
	return true
}

func (e *Editor) route() (model.Mode, string) {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	return e.state.mode, e.state.backendSession
}

func (e *Editor) Loading() bool { return e.state.Loading() }

// tryBegin claims the session for one request. The claim lives in the shared
// state, so a disposed editor and its replacement exclude each other.
func (e *Editor) tryBegin() bool {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	if e.state.loading {
		return false
	}
	e.state.loading = true
	return true
}

func (e *Editor) end() {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	e.state.loading = false
}

func (e *Editor) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.local, e.baseline = nil, nil
}

func (e *Editor) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (s *convState) Mode() model.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *convState) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}
