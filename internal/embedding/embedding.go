// Package embedding turns text into fixed-dimension vectors for the memory store.
//
// Providers return errors; Client converts every failure into an empty vector
// so callers never branch on provider faults.
package embedding

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/studybuddy/internal/extract"
	"github.com/ent0n29/studybuddy/internal/observability"
)

// MaxInputChars bounds the text sent to a provider.
const MaxInputChars = 10000

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 45 * time.Second

var ErrNoVectors = errors.New("embedding provider returned no vectors")

// Engine is a remote embedding provider.
type Engine interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// Client wraps an Engine with truncation, dimension normalization and a timeout.
type Client struct {
	engine  Engine
	dims    int
	timeout time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewClient returns a Client producing vectors of length dims.
// A nil engine yields a client that always returns empty vectors.
func NewClient(engine Engine, dims int, timeout time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		engine:  engine,
		dims:    dims,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

func (c *Client) Dimensions() int { return c.dims }

// Enabled reports whether a provider is wired.
func (c *Client) Enabled() bool { return c != nil && c.engine != nil && c.dims > 0 }

func (c *Client) Name() string {
	if c == nil || c.engine == nil {
		return "none"
	}
	return c.engine.Name()
}

// Embed returns a vector of length Dimensions, or nil on any failure.
func (c *Client) Embed(ctx context.Context, text string) []float32 {
	if !c.Enabled() || strings.TrimSpace(text) == "" {
		return nil
	}
	vectors := c.call(ctx, []string{text})
	if len(vectors) != 1 {
		return nil
	}
	return vectors[0]
}

// EmbedMany embeds texts in order. Any failure yields an empty result for
// the whole batch; callers never see partial results.
func (c *Client) EmbedMany(ctx context.Context, texts []string) [][]float32 {
	if !c.Enabled() || len(texts) == 0 {
		return nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			c.logger.Warn("embedding batch rejected: empty item", zap.Int("batch_size", len(texts)))
			c.metrics.ObserveEmbedding(c.engine.Name(), "rejected")
			return nil
		}
	}
	vectors := c.call(ctx, texts)
	if len(vectors) != len(texts) {
		return nil
	}
	return vectors
}

func (c *Client) call(ctx context.Context, texts []string) [][]float32 {
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = extract.Truncate(t, MaxInputChars)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	provider := c.engine.Name()
	raw, err := c.engine.EmbedBatch(callCtx, inputs)
	if err != nil {
		c.logger.Warn("embedding request failed",
			zap.String("provider", provider),
			zap.Int("batch_size", len(inputs)),
			zap.Error(err),
		)
		c.metrics.ObserveEmbedding(provider, "error")
		return nil
	}
	if len(raw) != len(inputs) {
		c.logger.Warn("embedding count mismatch",
			zap.String("provider", provider),
			zap.Int("want", len(inputs)),
			zap.Int("got", len(raw)),
		)
		c.metrics.ObserveEmbedding(provider, "mismatch")
		return nil
	}

	out := make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) == 0 {
			c.metrics.ObserveEmbedding(provider, "empty")
			return nil
		}
		out[i] = Normalize(v, c.dims)
	}
	c.metrics.ObserveEmbedding(provider, "ok")
	return out
}

// Normalize zero-pads or truncates v to exactly dims entries.
func Normalize(v []float32, dims int) []float32 {
	if len(v) == 0 || dims <= 0 {
		return nil
	}
	out := make([]float32, dims)
	copy(out, v)
	return out
}
