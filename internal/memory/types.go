package memory

import (
	"context"
	"errors"
	"time"
)

var ErrUnavailable = errors.New("memory store unavailable")

// ChatTurn is one user/assistant exchange. Turns are never mutated after storage.
type ChatTurn struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	SessionID   string            `json:"session_id,omitempty"`
	Topic       string            `json:"topic"`
	UserMessage string            `json:"user_message"`
	AIResponse  string            `json:"ai_response"`
	Embedding   []float32         `json:"-"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Query is an ephemeral similarity request against one user's namespace.
type Query struct {
	UserID string
	Text   string
	// Topic restricts the first search pass. Empty searches all topics.
	Topic string
	// Limit defaults to DefaultLimit when zero.
	Limit int
	// Threshold is the cosine similarity floor; zero selects DefaultThreshold.
	Threshold float64
	// Exact disables the fallback ladder.
	Exact bool
}

// Confidence separates real similarity hits from ladder fallbacks.
type Confidence string

const (
	ConfidenceExact    Confidence = "exact"
	ConfidenceFallback Confidence = "fallback"
)

// Match is a retrieved turn with its score.
type Match struct {
	Turn       ChatTurn   `json:"turn"`
	Score      float64    `json:"score"`
	Confidence Confidence `json:"confidence"`
}

// Stats summarizes a user's stored turns.
type Stats struct {
	UserID     string         `json:"user_id"`
	TotalTurns int            `json:"total_turns"`
	Topics     map[string]int `json:"topics"`
	Oldest     *time.Time     `json:"oldest,omitempty"`
	Newest     *time.Time     `json:"newest,omitempty"`
}

// Status reports the store's lifecycle state.
type Status struct {
	State      State  `json:"state"`
	Available  bool   `json:"available"`
	Backend    string `json:"backend"`
	Embedder   string `json:"embedder"`
	Dimensions int    `json:"dimensions"`
	Reason     string `json:"reason,omitempty"`
}

// Embedder produces vectors for stored and queried text.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
	Dimensions() int
	Enabled() bool
	Name() string
}
