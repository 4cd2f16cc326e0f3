package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/prompts"
	"go.uber.org/zap"

	"github.com/ent0n29/studybuddy/internal/observability"
)

const DefaultTimeout = 60 * time.Second

// Client renders prompt templates and invokes a Model exactly once per call.
type Client struct {
	model   Model
	timeout time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewClient(model Model, timeout time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{model: model, timeout: timeout, logger: logger, metrics: metrics}
}

func (c *Client) Name() string {
	if c == nil || c.model == nil {
		return "none"
	}
	return c.model.Name()
}

// Invoke formats tmpl with vars and returns the model's plain-text reply.
func (c *Client) Invoke(ctx context.Context, tmpl prompts.MessageFormatter, vars map[string]any) (string, error) {
	if c == nil || c.model == nil {
		return "", errors.New("llm client not configured")
	}
	messages, err := tmpl.FormatMessages(vars)
	if err != nil {
		return "", fmt.Errorf("format prompt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.model.Generate(ctx, messages)
	elapsed := time.Since(start)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyResponse
	}
	if errors.Is(err, ErrOffline) {
		c.metrics.ObserveLLM(c.model.Name(), outcome(err), elapsed)
		return "", err
	}
	if err != nil {
		c.metrics.ObserveLLM(c.model.Name(), outcome(err), elapsed)
		c.logger.Warn("llm call failed",
			zap.String("provider", c.model.Name()),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return "", err
	}
	c.metrics.ObserveLLM(c.model.Name(), "ok", elapsed)
	return text, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	case errors.Is(err, ErrOffline):
		return "offline"
	default:
		return "error"
	}
}
