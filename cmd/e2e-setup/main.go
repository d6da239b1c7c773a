package main

import (
	"context"
	"log"
	"time"

	"docchat/internal/config"
	"docchat/internal/domain/model"
	"docchat/internal/infra/logging"
	"docchat/internal/infra/persistence"
	"docchat/internal/infra/storage"
)

// This script overwrites the stored session collection with a fixed,
// predictable set for manual end-to-end testing.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer kv.Close()

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	older := model.NewChatSession("e2e-older", base)
	older.SetMessages([]model.ChatMessage{
		model.UserMessage("Hello from the older session"),
		model.AssistantMessage("Hi! Ask me anything."),
	})
	newer := model.NewChatSession("e2e-newer", base.Add(time.Hour))

	// most recent first, as the store keeps them
	fixture := []*model.ChatSession{newer, older}
	repo := persistence.NewSessionRepo(kv, cfg.Store.Key, logger)
	if err := repo.Save(ctx, fixture); err != nil {
		log.Fatalf("save fixture: %v", err)
	}
	log.Printf("E2E setup complete: %d sessions under key %q (%s store)", len(fixture), cfg.Store.Key, cfg.Store.Backend)
}
