// File: internal/usecase/editor_test.go
package usecase

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"docchat/internal/domain/model"
)

func openEditor(t *testing.T) (*sessionUC, *memSessionRepo, *conversationUC, *Editor) {
	t.Helper()
	ctx := context.Background()
	repo := newMemSessionRepo()
	s := newTestStore(repo)
	if _, err := NewLifecycleUseCase(s, newLogger()).Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	conv := NewConversationUseCase(s, &fakeBackend{}, nil, newLogger(), 0)
	t.Cleanup(conv.Shutdown)
	ed, err := conv.Open(ctx, s.CurrentID())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s, repo, conv, ed
}

func TestEditor_AppendWritesOnceWithoutEcho(t *testing.T) {
	ctx := context.Background()
	s, repo, _, ed := openEditor(t)
	base := repo.saveCount()

	if err := ed.Append(ctx, model.UserMessage("What is Go?")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := repo.saveCount() - base; got != 1 {
		t.Fatalf("one append must produce exactly one write, got %d", got)
	}
	cur, _ := s.Current()
	if diff := cmp.Diff(ed.Messages(), cur.Messages); diff != "" {
		t.Fatalf("editor and store disagree (-editor +store):\n%s", diff)
	}
}

func TestEditor_PublishSameLogIsSuppressed(t *testing.T) {
	ctx := context.Background()
	_, repo, _, ed := openEditor(t)

	log := []model.ChatMessage{model.UserMessage("a"), model.AssistantMessage("b")}
	changed, err := ed.Publish(ctx, log)
	if err != nil || !changed {
		t.Fatalf("first publish: changed=%v err=%v", changed, err)
	}
	base := repo.saveCount()
	changed, err = ed.Publish(ctx, model.CloneMessages(log))
	if err != nil || changed {
		t.Fatalf("repeat publish should be suppressed: changed=%v err=%v", changed, err)
	}
	if repo.saveCount() != base {
		t.Fatalf("suppressed publish must not write")
	}
}

func TestEditor_ObservesStoreSideChanges(t *testing.T) {
	ctx := context.Background()
	s, repo, _, ed := openEditor(t)
	base := repo.saveCount()

	// a write that bypasses the editor, e.g. a late reply
	if err := s.AppendMessage(ctx, ed.SessionID(), model.AssistantMessage("late")); err != nil {
		t.Fatalf("append: %v", err)
	}
	want := []model.ChatMessage{model.AssistantMessage("late")}
	if diff := cmp.Diff(want, ed.Messages()); diff != "" {
		t.Fatalf("editor did not follow the store (-want +got):\n%s", diff)
	}
	if got := repo.saveCount() - base; got != 1 {
		t.Fatalf("observing must not write back, got %d writes", got)
	}
}

func TestEditor_ObserveEqualLogKeepsLocalCopy(t *testing.T) {
	ed := NewEditor(nil, "x", []model.ChatMessage{model.UserMessage("hi")})
	before := ed.Messages()
	if ed.Observe([]model.ChatMessage{{Role: model.RoleUser, Content: "hi"}}) {
		t.Fatalf("equal log must not be applied")
	}
	if diff := cmp.Diff(before, ed.Messages()); diff != "" {
		t.Fatalf("local copy changed:\n%s", diff)
	}
	if !ed.Observe([]model.ChatMessage{model.UserMessage("hi"), model.AssistantMessage("there")}) {
		t.Fatalf("different log must be applied")
	}
}

func TestEditor_ClosedEditorIgnoresObserve(t *testing.T) {
	ed := NewEditor(nil, "x", nil)
	ed.close()
	if ed.Observe([]model.ChatMessage{model.UserMessage("hi")}) {
		t.Fatalf("closed editor must ignore observations")
	}
	if len(ed.Messages()) != 0 {
		t.Fatalf("closed editor should release its copy")
	}
}

func TestEditor_ReplacementSharesRequestState(t *testing.T) {
	st := newConvState()
	old := newEditor(nil, "x", nil, st)
	if !old.tryBegin() {
		t.Fatalf("first claim should succeed")
	}
	old.setMode(model.ModePDF)
	old.close()

	fresh := newEditor(nil, "x", nil, st)
	if fresh.tryBegin() {
		t.Fatalf("replacement editor must see the request still in flight")
	}
	if fresh.Mode() != model.ModePDF {
		t.Fatalf("mode lost across editors: %s", fresh.Mode())
	}
	old.end()
	if !fresh.tryBegin() {
		t.Fatalf("claim should succeed once the first request ended")
	}
}

func TestEditor_BackendSessionRequestedOnce(t *testing.T) {
	ed := NewEditor(nil, "x", nil)
	if !ed.needsBackendSession() {
		t.Fatalf("first call should ask for a backend session")
	}
	if ed.needsBackendSession() {
		t.Fatalf("second call must not ask again")
	}
	ed.setBackendSession("remote-1")
	if mode, id := ed.route(); mode != model.ModeChat || id != "remote-1" {
		t.Fatalf("route = %s %s", mode, id)
	}
}
