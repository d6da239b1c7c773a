// File: internal/usecase/lifecycle_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"

	"docchat/internal/domain"
	"docchat/internal/domain/model"
)

func TestLifecycle_StartOnEmptyMediumCreatesOneSession(t *testing.T) {
	ctx := context.Background()
	repo := newMemSessionRepo()
	s := newTestStore(repo)
	lc := NewLifecycleUseCase(s, newLogger())

	if lc.Phase() != PhaseUnhydrated {
		t.Fatalf("want unhydrated before start, got %s", lc.Phase())
	}
	cur, err := lc.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Len() != 1 || cur.ID != s.CurrentID() || cur.Title != model.PlaceholderTitle {
		t.Fatalf("want exactly one fresh current session, got len=%d cur=%+v", s.Len(), cur)
	}
	if repo.saveCount() != 1 {
		t.Fatalf("want one write, got %d", repo.saveCount())
	}
	if lc.Phase() != PhaseHasSessions {
		t.Fatalf("phase %s", lc.Phase())
	}
}

func TestLifecycle_StartWithStoredSessionsDoesNotCreate(t *testing.T) {
	ctx := context.Background()
	now := fixedClock()
	a := model.NewChatSession("a", now())
	a.SetMessages([]model.ChatMessage{model.UserMessage("hello")})
	b := model.NewChatSession("b", now())
	repo := newMemSessionRepo(a, b)
	s := newTestStore(repo)
	lc := NewLifecycleUseCase(s, newLogger())

	cur, err := lc.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if cur.ID != "a" || s.Len() != 2 {
		t.Fatalf("want stored sessions untouched with first current, got cur=%s len=%d", cur.ID, s.Len())
	}
	if repo.saveCount() != 0 {
		t.Fatalf("start must not write when sessions exist")
	}
}

func TestLifecycle_EnsureNonEmptyBeforeHydrate(t *testing.T) {
	s := newTestStore(newMemSessionRepo())
	lc := NewLifecycleUseCase(s, newLogger())
	if err := lc.EnsureNonEmpty(context.Background()); !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("want ErrNotReady, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("nothing may be created before hydration")
	}
}

func TestLifecycle_DeletingLastSessionAutoCreates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newMemSessionRepo())
	lc := NewLifecycleUseCase(s, newLogger())
	first, _ := lc.Start(ctx)

	var kinds []EventKind
	s.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })

	if err := s.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	cur, ok := s.Current()
	if !ok || cur.ID == first.ID || s.Len() != 1 {
		t.Fatalf("want a replacement session, got ok=%v len=%d", ok, s.Len())
	}
	if len(kinds) != 2 || kinds[0] != EventDeleted || kinds[1] != EventCreated {
		t.Fatalf("unexpected event order: %v", kinds)
	}
}

func TestLifecycle_CorruptStoreStartsWithFreshSession(t *testing.T) {
	repo := newMemSessionRepo()
	repo.loadErr = errors.New("decode: not an array")
	s := newTestStore(repo)
	lc := NewLifecycleUseCase(s, newLogger())

	cur, err := lc.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if cur == nil || s.Len() != 1 {
		t.Fatalf("want one fresh session after corrupt load")
	}
}
