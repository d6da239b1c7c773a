package ai

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"docchat/internal/domain/ports/adapter"
)

var ErrUnknownModel = errors.New("ai: model not served by provider")

// CheckModel asks the provider whether it serves model. A provider that lists
// nothing cannot be checked and passes.
func CheckModel(ctx context.Context, a adapter.AIServiceAdapter, model string) error {
	models, err := a.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	if len(models) == 0 || slices.Contains(models, model) {
		return nil
	}
	return fmt.Errorf("%w: %q (%s offers %d models)", ErrUnknownModel, model, a.Name(), len(models))
}
