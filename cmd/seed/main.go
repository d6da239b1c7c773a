package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"docchat/internal/config"
	"docchat/internal/domain/model"
	"docchat/internal/infra/logging"
	"docchat/internal/infra/persistence"
	"docchat/internal/infra/storage"
	"docchat/internal/usecase"
)

func main() {
	// ---- Config ----
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer kv.Close()

	store := usecase.NewSessionUseCase(persistence.NewSessionRepo(kv, cfg.Store.Key, logger), logger)
	store.Hydrate(ctx)

	// If sessions already exist, do nothing
	if existing := store.List(); len(existing) > 0 {
		fmt.Printf("%d sessions already present. No changes.\n", len(existing))
		for _, s := range existing {
			fmt.Printf("  - %s %q (%d messages)\n", s.ID, s.Title, len(s.Messages))
		}
		return
	}

	// A few sample conversations for trying the UI and the API
	seed := [][]model.ChatMessage{
		{
			model.UserMessage("What does this service do?"),
			model.AssistantMessage("It keeps several chat sessions, and each one can talk about an uploaded PDF."),
		},
		{
			model.UserMessage("Summarise the quarterly report in three bullet points"),
			model.AssistantMessage("Upload the report as a PDF first, then ask again."),
		},
		{},
	}

	for _, msgs := range seed {
		s, err := store.Create(ctx)
		if err != nil {
			log.Fatalf("create session: %v", err)
		}
		if len(msgs) > 0 {
			if _, err := store.UpdateMessages(ctx, s.ID, msgs); err != nil {
				log.Fatalf("seed messages: %v", err)
			}
		}
		got, _ := store.Get(s.ID)
		fmt.Printf("Created session %s %q\n", got.ID, got.Title)
	}
	fmt.Println("Seeding complete.")
}
