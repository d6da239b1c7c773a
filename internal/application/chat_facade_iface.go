package application

import (
	"context"
	"io"

	"docchat/internal/domain/model"
	"docchat/internal/usecase"
)

// ---- small interfaces to decouple the facade from concrete usecase structs ----
// These describe the minimal surface that the facade needs.

type SessionStoreIface interface {
	Create(ctx context.Context) (*model.ChatSession, error)
	Select(ctx context.Context, id string) bool
	Delete(ctx context.Context, id string) error
	Current() (*model.ChatSession, bool)
	CurrentID() string
	Get(id string) (*model.ChatSession, error)
	List() []*model.ChatSession
}

type LifecycleIface interface {
	Start(ctx context.Context) (*model.ChatSession, error)
	Phase() usecase.Phase
}

type ConversationIface interface {
	Publish(ctx context.Context, sessionID string, msgs []model.ChatMessage) (bool, error)
	Send(ctx context.Context, sessionID, prompt string) (model.ChatMessage, error)
	SendAsync(ctx context.Context, sessionID, prompt string) error
	Upload(ctx context.Context, sessionID, filename string, r io.Reader) (model.ChatMessage, error)
	Mode(sessionID string) model.Mode
	Loading(sessionID string) bool
}
