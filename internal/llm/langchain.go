package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	DefaultOpenAIBaseURL = "https://openrouter.ai/api/v1"
	DefaultOpenAIModel   = "openai/gpt-4o-mini"
)

// LangChainModel drives any langchaingo llms.Model.
type LangChainModel struct {
	model       llms.Model
	name        string
	temperature float64
}

func NewLangChainModel(model llms.Model, name string, temperature float64) *LangChainModel {
	return &LangChainModel{model: model, name: name, temperature: temperature}
}

// NewOpenAIModel targets an OpenAI-compatible chat completions endpoint.
func NewOpenAIModel(apiKey, baseURL, model string, temperature float64) (*LangChainModel, error) {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	m, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return NewLangChainModel(m, "openai", temperature), nil
}

func (l *LangChainModel) Name() string { return l.name }

func (l *LangChainModel) Generate(ctx context.Context, messages []llms.ChatMessage) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := m.GetType()
		switch role {
		case llms.ChatMessageTypeSystem, llms.ChatMessageTypeAI, llms.ChatMessageTypeHuman:
		default:
			role = llms.ChatMessageTypeHuman
		}
		content = append(content, llms.TextParts(role, m.GetContent()))
	}
	resp, err := l.model.GenerateContent(ctx, content, llms.WithTemperature(l.temperature))
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", l.name, err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
