//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"docchat/internal/domain"
	"docchat/internal/domain/model"
	"docchat/internal/infra/persistence"
)

func TestKVStore_GetPut(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	kv := NewKVStore(testPool).WithExecutor(testPool)

	if _, err := kv.Get(ctx, "chatSessions"); err != domain.ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := kv.Put(ctx, "chatSessions", []byte(`[]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := kv.Put(ctx, "chatSessions", []byte(`[{"a": 1}]`)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := kv.Get(ctx, "chatSessions")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `[{"a": 1}]` {
		t.Fatalf("unexpected value %s", got)
	}
}

func TestKVStore_SessionRoundTrip(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	nop := zerolog.Nop()
	repo := persistence.NewSessionRepo(NewKVStore(testPool).WithExecutor(testPool), "", &nop)

	s := model.NewChatSession("s1", time.Date(2025, 4, 4, 4, 4, 4, 0, time.UTC))
	s.SetMessages([]model.ChatMessage{model.UserMessage("q"), model.AssistantMessage("a")})
	if err := repo.Save(ctx, []*model.ChatSession{s}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s1" || !got[0].CreatedAt.Equal(s.CreatedAt) || !model.MessagesEqual(got[0].Messages, s.Messages) {
		t.Fatalf("round trip mismatch: %+v", got[0])
	}
}

func TestKVStore_InsideTransaction(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	tx, err := testPool.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewKVStore(testPool).WithExecutor(tx).Put(ctx, "k", []byte(`[]`)); err != nil {
		t.Fatal(err)
	}
	_ = tx.Rollback(ctx)

	if _, err := NewKVStore(testPool).WithExecutor(testPool).Get(ctx, "k"); err != domain.ErrNotFound {
		t.Fatalf("rolled back write should not be visible, got %v", err)
	}
}
