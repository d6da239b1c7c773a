// File: internal/infra/adapters/backend/wrappers.go
package backend

import (
	"context"
	"io"
	"time"

	"golang.org/x/sync/semaphore"

	"docchat/internal/domain/ports/adapter"
	"docchat/internal/infra/metrics"
)

// Compile-time check
var (
	_ adapter.InferenceBackend = (*limitedBackend)(nil)
	_ adapter.InferenceBackend = (*instrumented)(nil)
)

type limitedBackend struct {
	inner adapter.InferenceBackend
	sem   *semaphore.Weighted
}

// NewLimited caps concurrent backend calls. Waiting callers give up when
// their context ends.
func NewLimited(inner adapter.InferenceBackend, maxConcurrent int) adapter.InferenceBackend {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedBackend{inner: inner, sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

func (l *limitedBackend) CreateSession(ctx context.Context) (string, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer l.sem.Release(1)
	return l.inner.CreateSession(ctx)
}

func (l *limitedBackend) SendMessage(ctx context.Context, req adapter.SendRequest) (string, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer l.sem.Release(1)
	return l.inner.SendMessage(ctx, req)
}

func (l *limitedBackend) UploadDocument(ctx context.Context, filename string, r io.Reader) (adapter.UploadResult, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return adapter.UploadResult{}, err
	}
	defer l.sem.Release(1)
	return l.inner.UploadDocument(ctx, filename, r)
}

type instrumented struct {
	inner adapter.InferenceBackend
}

// NewInstrumented records call counts and latency per backend call.
func NewInstrumented(inner adapter.InferenceBackend) adapter.InferenceBackend {
	return &instrumented{inner: inner}
}

func (i *instrumented) CreateSession(ctx context.Context) (id string, err error) {
	defer func(start time.Time) { metrics.ObserveBackend("create_session", start, err) }(time.Now())
	return i.inner.CreateSession(ctx)
}

func (i *instrumented) SendMessage(ctx context.Context, req adapter.SendRequest) (reply string, err error) {
	defer func(start time.Time) { metrics.ObserveBackend("chat", start, err) }(time.Now())
	return i.inner.SendMessage(ctx, req)
}

func (i *instrumented) UploadDocument(ctx context.Context, filename string, r io.Reader) (res adapter.UploadResult, err error) {
	defer func(start time.Time) { metrics.ObserveBackend("upload", start, err) }(time.Now())
	return i.inner.UploadDocument(ctx, filename, r)
}
