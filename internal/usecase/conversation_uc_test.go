// File: internal/usecase/conversation_uc_test.go
package usecase

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"docchat/internal/domain"
	"docchat/internal/domain/model"
	"docchat/internal/domain/ports/adapter"
	derror "docchat/internal/error"
	"docchat/internal/infra/worker"
)

type convFixture struct {
	store   *sessionUC
	repo    *memSessionRepo
	backend *fakeBackend
	conv    *conversationUC
	first   string
}

func newConvFixture(t *testing.T, backend *fakeBackend, tasks TaskSubmitter) *convFixture {
	t.Helper()
	repo := newMemSessionRepo()
	s := newTestStore(repo)
	cur, err := NewLifecycleUseCase(s, newLogger()).Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	conv := NewConversationUseCase(s, backend, tasks, newLogger(), 5*time.Second)
	t.Cleanup(conv.Shutdown)
	return &convFixture{store: s, repo: repo, backend: backend, conv: conv, first: cur.ID}
}

func (f *convFixture) messages(t *testing.T, id string) []model.ChatMessage {
	t.Helper()
	s, err := f.store.Get(id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return s.Messages
}

func TestConversation_SendAppendsUserThenReply(t *testing.T) {
	f := newConvFixture(t, &fakeBackend{}, nil)

	reply, err := f.conv.Send(context.Background(), f.first, "  What is a goroutine?  ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	want := []model.ChatMessage{
		model.UserMessage("What is a goroutine?"),
		model.AssistantMessage("echo: What is a goroutine?"),
	}
	if diff := cmp.Diff(want, f.messages(t, f.first)); diff != "" {
		t.Fatalf("log mismatch (-want +got):\n%s", diff)
	}
	if reply != want[1] {
		t.Fatalf("reply = %+v", reply)
	}
	got := f.backend.lastRequest()
	if got.Mode != model.ModeChat || got.SessionID != "backend-1" {
		t.Fatalf("request routed as %+v", got)
	}
	if title := f.store.List()[0].Title; title != "What is a goroutine?" {
		t.Fatalf("title = %q", title)
	}
}

func TestConversation_EmptyPromptIsRejected(t *testing.T) {
	f := newConvFixture(t, &fakeBackend{}, nil)
	if _, err := f.conv.Send(context.Background(), f.first, "   "); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
	if len(f.messages(t, f.first)) != 0 {
		t.Fatalf("nothing should be appended")
	}
}

func TestConversation_BackendFailureAppendsErrorReply(t *testing.T) {
	f := newConvFixture(t, &fakeBackend{sendErr: errBackendDown}, nil)

	reply, err := f.conv.Send(context.Background(), f.first, "hello")
	if !derror.IsKind(err, derror.BackendRequest) || !errors.Is(err, errBackendDown) {
		t.Fatalf("want backend failure, got %v", err)
	}
	if reply.Content != BackendErrorReply {
		t.Fatalf("reply = %q", reply.Content)
	}
	msgs := f.messages(t, f.first)
	if len(msgs) != 2 || msgs[1].Role != model.RoleAssistant || msgs[1].Content != BackendErrorReply {
		t.Fatalf("log = %+v", msgs)
	}
	if f.conv.Loading(f.first) {
		t.Fatalf("loading flag must clear after failure")
	}
}

func TestConversation_LateReplyLandsInOriginatingSession(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{gate: make(chan struct{}), started: make(chan adapter.SendRequest, 1)}
	f := newConvFixture(t, backend, nil)
	a := f.first

	done := make(chan error, 1)
	go func() {
		_, err := f.conv.Send(ctx, a, "summarize chapter 2")
		done <- err
	}()
	<-backend.started

	// user switches away and starts a new conversation
	f.conv.Close(a)
	b, err := f.store.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	edB, err := f.conv.Open(ctx, b.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	close(backend.gate)
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}

	want := []model.ChatMessage{
		model.UserMessage("summarize chapter 2"),
		model.AssistantMessage("echo: summarize chapter 2"),
	}
	if diff := cmp.Diff(want, f.messages(t, a)); diff != "" {
		t.Fatalf("reply did not land in A (-want +got):\n%s", diff)
	}
	if len(f.messages(t, b.ID)) != 0 || len(edB.Messages()) != 0 {
		t.Fatalf("B must be unaffected")
	}
	if f.store.CurrentID() != b.ID {
		t.Fatalf("current pointer moved to %s", f.store.CurrentID())
	}
}

func TestConversation_ReplyForDeletedSessionIsDropped(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{gate: make(chan struct{}), started: make(chan adapter.SendRequest, 1)}
	f := newConvFixture(t, backend, nil)
	a := f.first
	b, _ := f.store.Create(ctx)

	done := make(chan error, 1)
	go func() {
		_, err := f.conv.Send(ctx, a, "hello")
		done <- err
	}()
	<-backend.started
	if err := f.store.Delete(ctx, a); err != nil {
		t.Fatalf("delete: %v", err)
	}
	close(backend.gate)

	if err := <-done; !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if len(f.messages(t, b.ID)) != 0 {
		t.Fatalf("reply leaked into another session")
	}
	if f.store.Len() != 1 {
		t.Fatalf("deleted session came back")
	}
}

func TestConversation_SecondSendWhileLoadingIsBusy(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{gate: make(chan struct{}), started: make(chan adapter.SendRequest, 1)}
	f := newConvFixture(t, backend, nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.conv.Send(ctx, f.first, "one")
		done <- err
	}()
	<-backend.started

	if !f.conv.Loading(f.first) {
		t.Fatalf("loading flag should be set")
	}
	if _, err := f.conv.Send(ctx, f.first, "two"); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("want ErrBusy, got %v", err)
	}
	close(backend.gate)
	require.NoError(t, <-done)
	require.False(t, f.conv.Loading(f.first))
}

func TestConversation_UploadSwitchesToDocumentMode(t *testing.T) {
	ctx := context.Background()
	f := newConvFixture(t, &fakeBackend{}, nil)

	reply, err := f.conv.Upload(ctx, f.first, "/tmp/report.pdf", bytes.NewReader([]byte("%PDF-1.4")))
	require.NoError(t, err)
	require.Equal(t, "I've processed report.pdf. What would you like to know about it?", reply.Content)
	require.Equal(t, model.ModePDF, f.conv.Mode(f.first))

	_, err = f.conv.Send(ctx, f.first, "what is on page 1?")
	require.NoError(t, err)
	req := f.backend.lastRequest()
	require.Equal(t, model.ModePDF, req.Mode)
	require.Equal(t, "doc-1", req.SessionID)
	require.Zero(t, f.backend.createCalls, "upload provides the backend session")
}

func TestConversation_UploadFailureRevertsMode(t *testing.T) {
	ctx := context.Background()
	f := newConvFixture(t, &fakeBackend{uploadErr: errBackendDown}, nil)

	reply, err := f.conv.Upload(ctx, f.first, "report.pdf", bytes.NewReader(nil))
	require.True(t, derror.IsKind(err, derror.Upload), "got %v", err)
	require.Equal(t, "Sorry, I couldn't process report.pdf. Please try again.", reply.Content)
	require.Equal(t, model.ModeChat, f.conv.Mode(f.first))

	msgs := f.messages(t, f.first)
	require.Len(t, msgs, 1)
	require.Equal(t, reply, msgs[0])
}

func TestConversation_UploadRejectsNonPDF(t *testing.T) {
	ctx := context.Background()
	f := newConvFixture(t, &fakeBackend{}, nil)

	_, err := f.conv.Upload(ctx, f.first, "notes.txt", bytes.NewReader([]byte("plain")))
	require.ErrorIs(t, err, domain.ErrUnsupportedFile)
	require.Empty(t, f.backend.uploads)
	require.Equal(t, model.ModeChat, f.conv.Mode(f.first))
}

func TestConversation_PublishRejectsUnknownRole(t *testing.T) {
	f := newConvFixture(t, &fakeBackend{}, nil)
	_, err := f.conv.Publish(context.Background(), f.first, []model.ChatMessage{{Role: "system", Content: "x"}})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestConversation_SendAsyncThroughPool(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := worker.NewPool(1, 2, newLogger())
	pool.Start(ctx)
	defer pool.Stop()

	f := newConvFixture(t, &fakeBackend{}, pool)
	require.NoError(t, f.conv.SendAsync(ctx, f.first, "async hello"))

	require.Eventually(t, func() bool {
		s, err := f.store.Get(f.first)
		return err == nil && len(s.Messages) == 2 && !f.conv.Loading(f.first)
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "echo: async hello", f.messages(t, f.first)[1].Content)
}

func TestConversation_SendAsyncQueueFull(t *testing.T) {
	f := newConvFixture(t, &fakeBackend{}, rejectingSubmitter{})

	err := f.conv.SendAsync(context.Background(), f.first, "hello")
	require.True(t, derror.IsKind(err, derror.BackendRequest))

	msgs := f.messages(t, f.first)
	require.Len(t, msgs, 2)
	require.Equal(t, BackendErrorReply, msgs[1].Content)
	require.False(t, f.conv.Loading(f.first))
}

func TestConversation_SwitchDisposesEditorButKeepsRoute(t *testing.T) {
	ctx := context.Background()
	f := newConvFixture(t, &fakeBackend{}, nil)
	a := f.first

	_, err := f.conv.Upload(ctx, a, "report.pdf", bytes.NewReader([]byte("%PDF-1.4")))
	require.NoError(t, err)
	require.NotNil(t, f.conv.lookup(a))

	b, err := f.store.Create(ctx)
	require.NoError(t, err)
	require.Nil(t, f.conv.lookup(a), "editor for a session no longer current should be disposed")
	require.Equal(t, model.ModePDF, f.conv.Mode(a))

	// a send to the background session reopens it and keeps the document route
	_, err = f.conv.Send(ctx, a, "what is on page 1?")
	require.NoError(t, err)
	req := f.backend.lastRequest()
	require.Equal(t, model.ModePDF, req.Mode)
	require.Equal(t, "doc-1", req.SessionID)
	require.Zero(t, f.backend.createCalls)
	require.Nil(t, f.conv.lookup(a), "background editor should be released after the reply")
	require.Len(t, f.messages(t, a), 3)

	require.NoError(t, f.store.Delete(ctx, a))
	require.Equal(t, model.ModeChat, f.conv.Mode(a), "deleted session state should be forgotten")
	require.Equal(t, b.ID, f.store.CurrentID())
}

func TestConversation_SendAsyncCancelledOnPoolStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	pool := worker.NewPool(1, 2, newLogger()) // never started: the task stays queued
	f := newConvFixture(t, &fakeBackend{}, pool)
	require.NoError(t, f.conv.SendAsync(context.Background(), f.first, "hello"))
	require.True(t, f.conv.Loading(f.first))

	pool.Stop()

	msgs := f.messages(t, f.first)
	require.Len(t, msgs, 2)
	require.Equal(t, model.UserMessage("hello"), msgs[0])
	require.Equal(t, BackendErrorReply, msgs[1].Content)
	require.False(t, f.conv.Loading(f.first))
	require.Equal(t, adapter.SendRequest{}, f.backend.lastRequest(), "a cancelled task must not reach the backend")
}
