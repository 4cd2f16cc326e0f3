// Package llm is the language-model collaborator. Every provider is reduced
// to one plain-text reply per call so callers never branch on provider types.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

var ErrEmptyResponse = errors.New("language model returned an empty response")

// Model generates one reply for a role-tagged conversation.
type Model interface {
	Generate(ctx context.Context, messages []llms.ChatMessage) (string, error)
	Name() string
}

// Config controls model construction.
type Config struct {
	Provider    string
	Temperature float64

	GeminiAPIKey string
	GeminiModel  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
}

// NewModel builds the configured provider. In auto mode Gemini wins when its
// key is set, then any OpenAI-compatible endpoint, then the offline mock.
// With both keys set in auto mode, OpenAI backs up Gemini.
func NewModel(ctx context.Context, cfg Config, logger *zap.Logger) (Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "auto"
	}

	var (
		primary Model
		err     error
	)
	switch provider {
	case "auto":
		hasGemini := strings.TrimSpace(cfg.GeminiAPIKey) != ""
		hasOpenAI := strings.TrimSpace(cfg.OpenAIAPIKey) != ""
		switch {
		case hasGemini && hasOpenAI:
			return newChain(ctx, cfg, logger)
		case hasGemini:
			primary, err = newGemini(ctx, cfg)
		case hasOpenAI:
			primary, err = newOpenAI(cfg)
		default:
			logger.Warn("no language model credentials configured; using offline mock")
			return NewMockModel(), nil
		}
	case "gemini":
		primary, err = newGemini(ctx, cfg)
	case "openai":
		primary, err = newOpenAI(cfg)
	case "mock":
		return NewMockModel(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return primary, nil
}

func newChain(ctx context.Context, cfg Config, logger *zap.Logger) (Model, error) {
	primary, err := newGemini(ctx, cfg)
	if err != nil {
		return nil, err
	}
	secondary, err := newOpenAI(cfg)
	if err != nil {
		return nil, err
	}
	return NewFallbackModel(primary, secondary, logger), nil
}

func newGemini(ctx context.Context, cfg Config) (Model, error) {
	return NewGeminiModel(ctx, GeminiOptions{
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.GeminiModel,
		Temperature: cfg.Temperature,
		JSONMode:    true,
	})
}

func newOpenAI(cfg Config) (Model, error) {
	return NewOpenAIModel(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.Temperature)
}
