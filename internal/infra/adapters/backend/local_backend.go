// File: internal/infra/adapters/backend/local_backend.go
package backend

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"docchat/internal/domain"
	"docchat/internal/domain/model"
	"docchat/internal/domain/ports/adapter"
	"docchat/internal/infra/documents"
)

var _ adapter.InferenceBackend = (*LocalBackend)(nil)

const (
	DocumentSystemPrompt = "You are an AI assistant that answers questions about PDF documents. Base answers only on the provided excerpts."
	ChatSystemPrompt     = "You are a helpful assistant."
	contextPromptFmt     = "Here are relevant excerpts from the document:\n\n%s\n\nPlease answer the following question based only on these excerpts."

	maxUploadBytes = 32 << 20
	maxRefits      = 3
)

type LocalOptions struct {
	Model            string
	ChunkSize        int
	MaxChunks        int
	MaxContextTokens int
	Encoding         string
}

// LocalBackend answers in-process: uploaded PDFs are chunked into an
// in-memory index and questions are sent to an LLM with the best chunks.
type LocalBackend struct {
	ai      adapter.AIServiceAdapter
	index   *documents.Index
	counter documents.Counter
	opts    LocalOptions
	logger  *zerolog.Logger
}

func NewLocalBackend(ai adapter.AIServiceAdapter, index *documents.Index, opts LocalOptions, logger *zerolog.Logger) *LocalBackend {
	if index == nil {
		index = documents.NewIndex()
	}
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = 1
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "local_backend").Logger()
	counter, exact := documents.NewCounter(opts.Encoding)
	if !exact {
		l.Warn().Str("encoding", opts.Encoding).Msg("tokenizer unavailable; using length estimate")
	}
	return &LocalBackend{ai: ai, index: index, counter: counter, opts: opts, logger: &l}
}

func (b *LocalBackend) CreateSession(ctx context.Context) (string, error) {
	return "chat-" + strings.ToLower(ulid.Make().String()), nil
}

func (b *LocalBackend) SendMessage(ctx context.Context, req adapter.SendRequest) (string, error) {
	var msgs []adapter.Message
	switch req.Mode {
	case model.ModePDF:
		doc, ok := b.index.Get(req.SessionID)
		if !ok {
			return "", fmt.Errorf("%w: no document for session %q", domain.ErrNotFound, req.SessionID)
		}
		relevant := documents.MostRelevant(req.Prompt, doc.Chunks, b.opts.MaxChunks)
		relevant = b.fitExcerpts(ctx, relevant)
		excerpts := strings.Join(relevant, "\n\n")
		b.logger.Debug().Str("document", doc.ID).Int("chunks", len(relevant)).
			Int("excerpt_len", len(excerpts)).Msg("document context selected")
		msgs = []adapter.Message{
			{Role: "system", Content: DocumentSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(contextPromptFmt, excerpts)},
			{Role: "user", Content: req.Prompt},
		}
	default:
		msgs = []adapter.Message{
			{Role: "system", Content: ChatSystemPrompt},
			{Role: "user", Content: req.Prompt},
		}
	}
	return b.ai.Chat(ctx, b.opts.Model, msgs)
}

// fitExcerpts sizes the chunks with the local tokenizer, then re-measures the
// excerpt with the provider's own count. When the provider counts more than
// the budget, the local budget shrinks in proportion and the chunks are refit.
func (b *LocalBackend) fitExcerpts(ctx context.Context, chunks []string) []string {
	limit := b.opts.MaxContextTokens
	fitted := documents.FitBudget(chunks, b.counter, limit)
	if limit <= 0 {
		return fitted
	}
	for attempt := 0; attempt < maxRefits; attempt++ {
		n, err := b.ai.CountTokens(ctx, b.opts.Model, []adapter.Message{
			{Role: "user", Content: strings.Join(fitted, "\n\n")},
		})
		if err != nil {
			b.logger.Debug().Err(err).Msg("provider token count unavailable; keeping local estimate")
			return fitted
		}
		if n <= b.opts.MaxContextTokens {
			return fitted
		}
		limit = limit * b.opts.MaxContextTokens / n
		if limit <= 0 {
			return nil
		}
		b.logger.Debug().Int("provider_tokens", n).Int("local_budget", limit).Msg("excerpt over budget; refitting")
		fitted = documents.FitBudget(chunks, b.counter, limit)
	}
	return fitted
}

// UploadDocument indexes a PDF under its base name without extension.
func (b *LocalBackend) UploadDocument(ctx context.Context, filename string, r io.Reader) (adapter.UploadResult, error) {
	name := filepath.Base(filename)
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return adapter.UploadResult{}, domain.ErrUnsupportedFile
	}
	data, err := io.ReadAll(io.LimitReader(r, maxUploadBytes+1))
	if err != nil {
		return adapter.UploadResult{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > maxUploadBytes {
		return adapter.UploadResult{}, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidArgument, maxUploadBytes)
	}

	text, err := documents.ExtractText(data)
	if err != nil {
		return adapter.UploadResult{}, err
	}
	id := strings.TrimSuffix(name, filepath.Ext(name))
	chunks := b.IndexText(id, name, text)
	b.logger.Info().Str("document", id).Int("chunks", chunks).Msg("document indexed")

	return adapter.UploadResult{SessionID: id, Filename: name, Message: "PDF processed successfully"}, nil
}

// IndexText chunks already-extracted text and stores it under id, replacing
// any earlier document with that id. It returns the chunk count.
func (b *LocalBackend) IndexText(id, filename, text string) int {
	chunks := documents.SplitIntoChunks(text, b.opts.ChunkSize)
	b.index.Put(documents.Document{ID: id, Filename: filename, Chunks: chunks, UploadedAt: time.Now()})
	return len(chunks)
}
