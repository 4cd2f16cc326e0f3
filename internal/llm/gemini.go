package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

type GeminiOptions struct {
	APIKey      string
	Model       string
	Temperature float64
	// JSONMode asks the API for an application/json response body.
	JSONMode bool
	// BaseURL overrides the API endpoint.
	BaseURL string
}

// GeminiModel calls the Gemini API through the genai SDK.
type GeminiModel struct {
	client *genai.Client
	model  string
	config genai.GenerateContentConfig
}

func NewGeminiModel(ctx context.Context, opts GeminiOptions) (*GeminiModel, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}
	cc := &genai.ClientConfig{APIKey: opts.APIKey, Backend: genai.BackendGeminiAPI}
	if opts.BaseURL != "" {
		cc.HTTPOptions.BaseURL = opts.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	cfg := genai.GenerateContentConfig{Temperature: genai.Ptr(float32(opts.Temperature))}
	if opts.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}
	return &GeminiModel{client: client, model: opts.Model, config: cfg}, nil
}

func (g *GeminiModel) Name() string { return "gemini" }

func (g *GeminiModel) Generate(ctx context.Context, messages []llms.ChatMessage) (string, error) {
	cfg := g.config
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		text := m.GetContent()
		if strings.TrimSpace(text) == "" {
			continue
		}
		switch m.GetType() {
		case llms.ChatMessageTypeSystem:
			system = append(system, text)
		case llms.ChatMessageTypeAI:
			contents = append(contents, genai.NewContentFromText(text, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return "", errors.New("gemini: no message content")
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
