package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

// FallbackModel tries a primary model first and falls back on error.
// Cancellation and deadline errors are returned as-is.
type FallbackModel struct {
	primary  Model
	fallback Model
	logger   *zap.Logger
}

func NewFallbackModel(primary, fallback Model, logger *zap.Logger) *FallbackModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackModel{primary: primary, fallback: fallback, logger: logger}
}

func (f *FallbackModel) Name() string {
	if f.primary == nil {
		if f.fallback == nil {
			return "none"
		}
		return f.fallback.Name()
	}
	return f.primary.Name()
}

func (f *FallbackModel) Primary() Model   { return f.primary }
func (f *FallbackModel) Secondary() Model { return f.fallback }

func (f *FallbackModel) Generate(ctx context.Context, messages []llms.ChatMessage) (string, error) {
	if f.primary == nil {
		if f.fallback != nil {
			return f.fallback.Generate(ctx, messages)
		}
		return "", errors.New("fallback model misconfigured")
	}
	text, err := f.primary.Generate(ctx, messages)
	if err == nil {
		return text, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	if f.fallback == nil {
		return "", err
	}
	f.logger.Warn("primary model failed; using fallback",
		zap.String("primary", f.primary.Name()),
		zap.String("fallback", f.fallback.Name()),
		zap.Error(err),
	)
	text, fbErr := f.fallback.Generate(ctx, messages)
	if fbErr != nil {
		return "", fmt.Errorf("primary model error: %w; fallback model error: %v", err, fbErr)
	}
	return text, nil
}
