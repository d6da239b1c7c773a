// File: internal/usecase/session_uc_test.go
package usecase

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"docchat/internal/domain"
	"docchat/internal/domain/model"
)

func TestSessionUC_MutationsBeforeHydrateAreRejected(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	s := newTestStore(repo)

	if _, err := s.Create(ctx); !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("create before hydrate: want ErrNotReady, got %v", err)
	}
	if _, err := s.UpdateMessages(ctx, "x", nil); !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("update before hydrate: want ErrNotReady, got %v", err)
	}
	if err := s.Delete(ctx, "x"); !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("delete before hydrate: want ErrNotReady, got %v", err)
	}
	if repo.saveCount() != 0 {
		t.Fatalf("nothing should be written before hydration, got %d saves", repo.saveCount())
	}
}

func TestSessionUC_Create(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	s := newTestStore(repo)
	s.Hydrate(ctx)

	first, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if first.Title != model.PlaceholderTitle || len(first.Messages) != 0 {
		t.Fatalf("new session should be empty with placeholder title: %+v", first)
	}
	if first.ID == second.ID {
		t.Fatalf("ids must be unique")
	}
	if s.CurrentID() != second.ID {
		t.Fatalf("newest session should be current, got %s", s.CurrentID())
	}
	if diff := cmp.Diff([]string{second.ID, first.ID}, repo.storedIDs()); diff != "" {
		t.Fatalf("collection should be most-recent-first (-want +got):\n%s", diff)
	}
	if repo.saveCount() != 2 {
		t.Fatalf("each create persists once, got %d", repo.saveCount())
	}
}

func TestSessionUC_SelectIsSilentAndNotPersisted(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	s := newTestStore(repo)
	s.Hydrate(ctx)
	a, _ := s.Create(ctx)
	b, _ := s.Create(ctx)
	saves := repo.saveCount()

	if s.Select(ctx, "does-not-exist") {
		t.Fatalf("unknown id should not select")
	}
	if s.CurrentID() != b.ID {
		t.Fatalf("unknown id must not move the pointer")
	}
	if !s.Select(ctx, a.ID) || s.CurrentID() != a.ID {
		t.Fatalf("select should move pointer to %s", a.ID)
	}
	if repo.saveCount() != saves {
		t.Fatalf("select must not persist")
	}
}

func TestSessionUC_UpdateMessagesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	s := newTestStore(repo)
	s.Hydrate(ctx)
	sess, _ := s.Create(ctx)
	base := repo.saveCount()

	var events int
	cancel := s.Subscribe(func(ev Event) {
		if ev.Kind == EventUpdated {
			events++
		}
	})
	defer cancel()

	log := []model.ChatMessage{model.UserMessage("Explain quicksort in detail please")}
	changed, err := s.UpdateMessages(ctx, sess.ID, log)
	if err != nil || !changed {
		t.Fatalf("first update: changed=%v err=%v", changed, err)
	}
	// a structurally equal copy, not the same slice
	again := []model.ChatMessage{{Role: model.RoleUser, Content: "Explain quicksort in detail please"}}
	changed, err = s.UpdateMessages(ctx, sess.ID, again)
	if err != nil || changed {
		t.Fatalf("second update should be a no-op: changed=%v err=%v", changed, err)
	}

	if got := repo.saveCount() - base; got != 1 {
		t.Fatalf("want exactly one write, got %d", got)
	}
	if events != 1 {
		t.Fatalf("want exactly one update event, got %d", events)
	}
	got, _ := s.Get(sess.ID)
	if got.Title != "Explain quicksort in detail pl" {
		t.Fatalf("title should be derived from first user message, got %q", got.Title)
	}
}

func TestSessionUC_UpdateUnknownSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newMemSessionRepo())
	s.Hydrate(ctx)
	if _, err := s.UpdateMessages(ctx, "nope", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSessionUC_SnapshotsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newMemSessionRepo())
	s.Hydrate(ctx)
	sess, _ := s.Create(ctx)
	_ = s.AppendMessage(ctx, sess.ID, model.UserMessage("hi"))

	got, _ := s.Get(sess.ID)
	got.Messages[0].Content = "mutated"
	got.Messages = append(got.Messages, model.AssistantMessage("injected"))

	again, _ := s.Get(sess.ID)
	if len(again.Messages) != 1 || again.Messages[0].Content != "hi" {
		t.Fatalf("external mutation leaked into the store: %+v", again.Messages)
	}
}

func TestSessionUC_DeleteReselectsFirstRemaining(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	s := newTestStore(repo)
	s.Hydrate(ctx)
	a, _ := s.Create(ctx) // order after creates: c, b, a
	b, _ := s.Create(ctx)
	c, _ := s.Create(ctx)

	// make the middle one current, then delete it
	s.Select(ctx, b.ID)
	if err := s.Delete(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if s.CurrentID() != c.ID {
		t.Fatalf("want first remaining %s to be current, got %s", c.ID, s.CurrentID())
	}
	if diff := cmp.Diff([]string{c.ID, a.ID}, repo.storedIDs()); diff != "" {
		t.Fatalf("reduced collection should be persisted (-want +got):\n%s", diff)
	}

	// deleting a non-current session keeps the pointer
	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if s.CurrentID() != c.ID {
		t.Fatalf("pointer should not move, got %s", s.CurrentID())
	}
	if err := s.Delete(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSessionUC_HydrateSelectsMostRecent(t *testing.T) {
	ctx := context.Background()
	now := fixedClock()
	newer := model.NewChatSession("newer", now())
	older := model.NewChatSession("older", now())
	repo := newMemSessionRepo(newer, older)
	s := newTestStore(repo)

	var hydrated bool
	s.Subscribe(func(ev Event) { hydrated = hydrated || ev.Kind == EventHydrated })
	s.Hydrate(ctx)
	s.Hydrate(ctx) // second call is a no-op

	if !hydrated || s.CurrentID() != "newer" || s.Len() != 2 {
		t.Fatalf("unexpected state after hydrate: current=%s len=%d", s.CurrentID(), s.Len())
	}
	if repo.saveCount() != 0 {
		t.Fatalf("hydrate must not write")
	}
}

func TestSessionUC_HydrateSurvivesLoadFailure(t *testing.T) {
	repo := newMemSessionRepo()
	repo.loadErr = errors.New("corrupt")
	s := newTestStore(repo)
	s.Hydrate(context.Background())
	if !s.Hydrated() || s.Len() != 0 {
		t.Fatalf("load failure should hydrate empty")
	}
}

func TestSessionUC_SaveFailureKeepsMemoryAuthoritative(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	repo.saveErr = errors.New("quota exceeded")
	s := newTestStore(repo)
	s.Hydrate(ctx)

	sess, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("save failures must not surface: %v", err)
	}
	if err := s.AppendMessage(ctx, sess.ID, model.UserMessage("still here")); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, _ := s.Get(sess.ID)
	if len(got.Messages) != 1 {
		t.Fatalf("in-memory state lost: %+v", got)
	}
}

func TestSessionUC_WritesArriveInOrder(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	s := newTestStore(repo)
	s.Hydrate(ctx)
	sess, _ := s.Create(ctx)

	for i := 0; i < 5; i++ {
		_ = s.AppendMessage(ctx, sess.ID, model.UserMessage("m"))
	}
	for i, snap := range repo.snapshot[1:] {
		if got := len(snap[0].Messages); got != i+1 {
			t.Fatalf("write %d carried %d messages", i, got)
		}
	}
}

// Any sequence of creates and deletes keeps the pointer valid and, with the
// lifecycle controller attached, never leaves the collection empty.
func TestSessionUC_RandomCreateDeleteKeepsInvariants(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	s := newTestStore(repo)
	lc := NewLifecycleUseCase(s, newLogger())
	if _, err := lc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	for step := 0; step < 500; step++ {
		if rng.Intn(3) == 0 {
			if _, err := s.Create(ctx); err != nil {
				t.Fatalf("step %d create: %v", step, err)
			}
		} else {
			list := s.List()
			victim := list[rng.Intn(len(list))]
			if err := s.Delete(ctx, victim.ID); err != nil {
				t.Fatalf("step %d delete: %v", step, err)
			}
		}

		if s.Len() == 0 {
			t.Fatalf("step %d: collection left empty", step)
		}
		if _, ok := s.Current(); !ok {
			t.Fatalf("step %d: current %q does not reference a session", step, s.CurrentID())
		}
		if lc.Phase() != PhaseHasSessions {
			t.Fatalf("step %d: phase %s", step, lc.Phase())
		}
	}
}
