package adapter

import (
	"context"
	"io"

	"docchat/internal/domain/model"
)

// SendRequest is one prompt routed to the inference backend.
type SendRequest struct {
	Prompt    string     `json:"prompt"`
	SessionID string     `json:"session_id"`
	Mode      model.Mode `json:"mode"`
}

// UploadResult is returned after a document was ingested.
type UploadResult struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Filename  string `json:"filename"`
}

// InferenceBackend is the remote collaborator answering prompts and
// ingesting documents. Backend session ids are unrelated to chat session ids.
type InferenceBackend interface {
	CreateSession(ctx context.Context) (string, error)
	SendMessage(ctx context.Context, req SendRequest) (string, error)
	UploadDocument(ctx context.Context, filename string, r io.Reader) (UploadResult, error)
}
