// File: internal/infra/adapters/ai/noop_ai.go
package ai

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"docchat/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter answers locally for dev runs without a provider key.
// The reply echoes the last user turn.
type NoopAIAdapter struct {
	delay  time.Duration
	logger *zerolog.Logger
}

func NewNoopAIAdapter(delay time.Duration, logger *zerolog.Logger) *NoopAIAdapter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "noop_ai").Logger()
	return &NoopAIAdapter{delay: delay, logger: &l}
}

func (a *NoopAIAdapter) Name() string { return "noop" }

func (a *NoopAIAdapter) wait(ctx context.Context) error {
	if a.delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(a.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *NoopAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reply, _, err := a.ChatWithUsage(ctx, model, messages)
	return reply, err
}

func (a *NoopAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if err := a.wait(ctx); err != nil {
		return "", adapter.Usage{}, err
	}
	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.EqualFold(messages[i].Role, "user") {
			last = messages[i].Content
			break
		}
	}
	a.logger.Debug().Int("turns", len(messages)).Msg("noop chat")
	n, _ := a.CountTokens(ctx, model, messages)
	return "You said: " + last, adapter.Usage{PromptTokens: n, TotalTokens: n}, nil
}

func (a *NoopAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(strings.Fields(m.Content))
	}
	return n, nil
}

// ListModels lists nothing: the echo answers under any model name.
func (a *NoopAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return nil, nil
}
