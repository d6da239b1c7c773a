// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"docchat/internal/domain/model"
	"docchat/internal/domain/ports/adapter"
	"docchat/internal/domain/ports/repository"
)

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

// memSessionRepo is an in-memory persistence port that counts writes.
type memSessionRepo struct {
	mu       sync.Mutex
	stored   []*model.ChatSession
	saves    int
	loadErr  error
	saveErr  error
	onSave   func([]*model.ChatSession)
	snapshot [][]*model.ChatSession
}

var _ repository.ChatSessionRepository = (*memSessionRepo)(nil)

func newMemSessionRepo(seed ...*model.ChatSession) *memSessionRepo {
	return &memSessionRepo{stored: model.CloneSessions(seed)}
}

func (m *memSessionRepo) Load(ctx context.Context) ([]*model.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return []*model.ChatSession{}, m.loadErr
	}
	return model.CloneSessions(m.stored), nil
}

func (m *memSessionRepo) Save(ctx context.Context, sessions []*model.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.onSave != nil {
		m.onSave(sessions)
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	m.stored = model.CloneSessions(sessions)
	m.snapshot = append(m.snapshot, model.CloneSessions(sessions))
	return nil
}

func (m *memSessionRepo) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *memSessionRepo) storedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.stored))
	for _, s := range m.stored {
		ids = append(ids, s.ID)
	}
	return ids
}

// seqIDs returns deterministic ids s1, s2, ...
func seqIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("s%d", n)
	}
}

func fixedClock() func() time.Time {
	t := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestStore(repo *memSessionRepo) *sessionUC {
	return NewSessionUseCase(repo, newLogger(), WithIDGenerator(seqIDs()), WithClock(fixedClock()))
}

// fakeBackend is a scriptable inference backend. When gate is non-nil,
// SendMessage blocks until a value is sent on it.
type fakeBackend struct {
	mu          sync.Mutex
	sendErr     error
	uploadErr   error
	createErr   error
	gate        chan struct{}
	started     chan adapter.SendRequest
	requests    []adapter.SendRequest
	uploads     []string
	createCalls int
}

var _ adapter.InferenceBackend = (*fakeBackend)(nil)

func (f *fakeBackend) CreateSession(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	return fmt.Sprintf("backend-%d", f.createCalls), nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, req adapter.SendRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate, started, err := f.gate, f.started, f.sendErr
	f.mu.Unlock()

	if started != nil {
		started <- req
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return "echo: " + req.Prompt, nil
}

func (f *fakeBackend) UploadDocument(ctx context.Context, filename string, r io.Reader) (adapter.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := io.Copy(io.Discard, r); err != nil {
		return adapter.UploadResult{}, err
	}
	f.uploads = append(f.uploads, filename)
	if f.uploadErr != nil {
		return adapter.UploadResult{}, f.uploadErr
	}
	return adapter.UploadResult{SessionID: "doc-1", Filename: filename, Message: "PDF processed"}, nil
}

func (f *fakeBackend) lastRequest() adapter.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return adapter.SendRequest{}
	}
	return f.requests[len(f.requests)-1]
}

var errBackendDown = errors.New("backend down")

// rejectingSubmitter always reports a full queue.
type rejectingSubmitter struct{}

func (rejectingSubmitter) Submit(func(ctx context.Context) error) error {
	return errors.New("worker queue full")
}
