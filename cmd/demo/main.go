package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"docchat/internal/config"
	"docchat/internal/infra/adapters/backend"
	"docchat/internal/infra/logging"
	"docchat/internal/infra/persistence"
	"docchat/internal/infra/storage/memory"
	"docchat/internal/infra/worker"
	"docchat/internal/usecase"
)

// Walks through the session flows against an in-memory store and the mock
// backend: a reply that arrives after the user switched sessions still lands
// in the session it was asked from.
func main() {
	cfg := config.Default()
	cfg.Log.Format = "console"
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	kv := memory.NewKVStore()
	store := usecase.NewSessionUseCase(persistence.NewSessionRepo(kv, cfg.Store.Key, logger), logger)
	lifecycle := usecase.NewLifecycleUseCase(store, logger)

	pool := worker.NewPool(2, 8, logger)
	pool.Start(ctx)
	defer pool.Stop()

	conv := usecase.NewConversationUseCase(store, backend.NewMockBackend(300*time.Millisecond), pool, logger, 5*time.Second)
	defer conv.Shutdown()

	a, err := lifecycle.Start(ctx)
	if err != nil {
		log.Fatalf("start: %v", err)
	}
	step("started with session %s", a.ID)

	if err := conv.SendAsync(ctx, a.ID, "What is in chapter two?"); err != nil {
		log.Fatalf("send: %v", err)
	}
	step("asked in %s, reply pending (loading=%v)", a.ID, conv.Loading(a.ID))

	b, err := store.Create(ctx)
	if err != nil {
		log.Fatalf("create: %v", err)
	}
	step("switched to new session %s while waiting", b.ID)

	for conv.Loading(a.ID) {
		select {
		case <-ctx.Done():
			log.Fatalf("reply never arrived: %v", ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
	dump(store, a.ID)
	dump(store, b.ID)

	reply, err := conv.Upload(ctx, b.ID, "handbook.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		log.Fatalf("upload: %v", err)
	}
	step("uploaded into %s: %q (mode=%s)", b.ID, reply.Content, conv.Mode(b.ID))

	if err := store.Delete(ctx, a.ID); err != nil {
		log.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, b.ID); err != nil {
		log.Fatalf("delete: %v", err)
	}
	cur, _ := store.Current()
	step("deleted both; lifecycle created %s (%d sessions)", cur.ID, store.Len())

	raw, err := kv.Get(ctx, cfg.Store.Key)
	if err != nil {
		log.Fatalf("read back: %v", err)
	}
	step("persisted payload: %s", raw)
}

func step(format string, args ...any) {
	fmt.Printf("==> "+format+"\n", args...)
}

func dump(store usecase.SessionUseCase, id string) {
	s, err := store.Get(id)
	if err != nil {
		fmt.Printf("    %s: %v\n", id, err)
		return
	}
	fmt.Printf("    %s %q\n", s.ID, s.Title)
	for _, m := range s.Messages {
		fmt.Printf("      %-9s %s\n", m.Role+":", m.Content)
	}
}
