package llm

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms"
)

// ErrOffline reports that no language model is configured. Callers treat it
// like any other failed call and serve their offline fallbacks.
var ErrOffline = errors.New("no language model configured")

// MockModel stands in when no provider credentials exist. It never produces
// text, so nothing it returns can be mistaken for a model answer.
type MockModel struct{}

func NewMockModel() *MockModel { return &MockModel{} }

func (m *MockModel) Name() string { return "mock" }

func (m *MockModel) Generate(ctx context.Context, _ []llms.ChatMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", ErrOffline
}
