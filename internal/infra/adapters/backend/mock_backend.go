// File: internal/infra/adapters/backend/mock_backend.go
package backend

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"docchat/internal/domain/ports/adapter"
)

var _ adapter.InferenceBackend = (*MockBackend)(nil)

// MockBackend returns placeholder answers for development without a
// running backend.
type MockBackend struct {
	delay time.Duration
	now   func() time.Time
}

func NewMockBackend(delay time.Duration) *MockBackend {
	return &MockBackend{delay: delay, now: time.Now}
}

func (m *MockBackend) wait(ctx context.Context) error {
	if m.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(m.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockBackend) CreateSession(ctx context.Context) (string, error) {
	if err := m.wait(ctx); err != nil {
		return "", err
	}
	return "mock-session-" + uuid.NewString()[:8], nil
}

func (m *MockBackend) SendMessage(ctx context.Context, req adapter.SendRequest) (string, error) {
	if err := m.wait(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("This is a mock response to: \"%s\". The backend server is not running, so I'm providing placeholder responses for development.", req.Prompt), nil
}

func (m *MockBackend) UploadDocument(ctx context.Context, filename string, r io.Reader) (adapter.UploadResult, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return adapter.UploadResult{}, err
	}
	if err := m.wait(ctx); err != nil {
		return adapter.UploadResult{}, err
	}
	return adapter.UploadResult{
		SessionID: "mock-session-" + strconv.FormatInt(m.now().UnixMilli(), 10),
		Message:   "Mock processed file: " + filename,
		Filename:  filename,
	}, nil
}
