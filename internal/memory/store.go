// Package memory is the per-user conversational memory: chat turns embedded
// into a vector index, searched by similarity with a fallback ladder.
//
// The store never fails a caller. When it is not READY every read returns an
// empty result and every write reports failure without touching the embedder.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/studybuddy/internal/extract"
	"github.com/ent0n29/studybuddy/internal/observability"
	"github.com/ent0n29/studybuddy/internal/policy"
	"github.com/ent0n29/studybuddy/internal/vectorindex"
)

// State is the store's lifecycle state. DISABLED is terminal.
type State string

const (
	StateUnconfigured State = "unconfigured"
	StateConnecting   State = "connecting"
	StateCreateIndex  State = "create_index"
	StateReady        State = "ready"
	StateDisabled     State = "disabled"
)

const (
	DefaultLimit     = 5
	DefaultThreshold = 0.75
	// MinThreshold floors the relaxed second search pass.
	MinThreshold = 0.2
	// HistoryScore is assigned to turns returned by the history fallback.
	HistoryScore   = 0.5
	DefaultTimeout = 8 * time.Second

	maxUserMessage = 500
	maxAIResponse  = 1000
	maxTopic       = 100
)

// Metadata keys written with every turn.
const (
	keyUserID         = "user_id"
	keySessionID      = "session_id"
	keyTopic          = "topic"
	keyUserMessage    = "user_message"
	keyAIResponse     = "ai_response"
	keyType           = "type"
	keyTimestamp      = "timestamp"
	keyTextLength     = "text_length"
	keyHasCode        = "has_code"
	keyResponseLength = "response_length"

	turnType = "chat_pair"
)

type Options struct {
	// Timeout bounds each index round trip.
	Timeout time.Duration
	// RedactPII scrubs emails, phone numbers and credentials before storage.
	RedactPII bool
}

// Store is the memory store. Construct with New and call Init once; methods
// called before Init trigger it lazily.
type Store struct {
	index    vectorindex.Index
	embedder Embedder
	opts     Options
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time

	initOnce sync.Once
	mu       sync.RWMutex
	state    State
	reason   string
}

// New wires a store. A nil index or a disabled embedder leaves the store
// permanently DISABLED after Init.
func New(index vectorindex.Index, embedder Embedder, opts Options, logger *zap.Logger, metrics *observability.Metrics) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Store{
		index:    index,
		embedder: embedder,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		state:    StateUnconfigured,
	}
}

// Init runs the connection state machine once per Store.
func (s *Store) Init(ctx context.Context) State {
	s.initOnce.Do(func() { s.connect(ctx) })
	return s.State()
}

func (s *Store) connect(ctx context.Context) {
	if s.index == nil {
		s.disable("no vector index configured")
		return
	}
	if s.embedder == nil || !s.embedder.Enabled() {
		s.disable("no embedding provider configured")
		return
	}
	if got, want := s.embedder.Dimensions(), s.index.Dimensions(); got != want {
		s.disable(fmt.Sprintf("embedding dimension %d does not match index dimension %d", got, want))
		return
	}

	s.setState(StateConnecting)
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	exists, err := s.index.Exists(ctx)
	if err != nil {
		s.disable("connect: " + err.Error())
		return
	}
	if !exists {
		s.setState(StateCreateIndex)
		if err := s.index.Create(ctx); err != nil {
			s.disable("create index: " + err.Error())
			return
		}
	}
	s.setState(StateReady)
	s.logger.Info("memory store ready",
		zap.String("backend", s.index.Name()),
		zap.String("embedder", s.embedder.Name()),
		zap.Int("dimensions", s.index.Dimensions()),
		zap.Bool("created", !exists),
	)
}

func (s *Store) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Store) disable(reason string) {
	s.mu.Lock()
	s.state = StateDisabled
	s.reason = reason
	s.mu.Unlock()
	s.logger.Error("memory store disabled", zap.String("reason", reason))
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Available reports whether the store reached READY.
func (s *Store) Available() bool {
	return s.Init(context.Background()) == StateReady
}

func (s *Store) Status() Status {
	s.mu.RLock()
	st := Status{State: s.state, Available: s.state == StateReady, Reason: s.reason}
	s.mu.RUnlock()
	st.Backend = "none"
	if s.index != nil {
		st.Backend = s.index.Name()
		st.Dimensions = s.index.Dimensions()
	}
	st.Embedder = "none"
	if s.embedder != nil && s.embedder.Enabled() {
		st.Embedder = s.embedder.Name()
	}
	return st
}

// Save embeds and stores a turn under its user's namespace. It reports false
// when the store is unavailable, the embedding fails, or its dimension is wrong.
func (s *Store) Save(ctx context.Context, turn ChatTurn) (string, bool) {
	if !s.Available() || strings.TrimSpace(turn.UserID) == "" {
		return "", false
	}
	if s.opts.RedactPII {
		turn.UserMessage = policy.Redact(turn.UserMessage)
		turn.AIResponse = policy.Redact(turn.AIResponse)
	}
	text := turnText(turn.UserMessage, turn.AIResponse)

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	vec := turn.Embedding
	if len(vec) == 0 {
		vec = s.embedder.Embed(ctx, text)
	}
	if len(vec) == 0 {
		s.logger.Warn("memory store skipped turn without embedding", zap.String("user_id", turn.UserID))
		s.metrics.ObserveMemory("store", "no_embedding")
		return "", false
	}
	if want := s.index.Dimensions(); len(vec) != want {
		s.logger.Warn("memory store rejected turn",
			zap.String("user_id", turn.UserID),
			zap.Int("dimension", len(vec)),
			zap.Int("expected", want),
		)
		s.metrics.ObserveMemory("store", "dimension_mismatch")
		return "", false
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.now().UTC()
	}
	if turn.ID == "" {
		turn.ID = newTurnID(turn.UserID, turn.Timestamp)
	}

	meta := make(map[string]string, len(turn.Metadata)+10)
	for k, v := range turn.Metadata {
		meta[k] = v
	}
	meta[keyUserID] = turn.UserID
	meta[keySessionID] = turn.SessionID
	meta[keyTopic] = extract.Truncate(turn.Topic, maxTopic)
	meta[keyUserMessage] = extract.Truncate(turn.UserMessage, maxUserMessage)
	meta[keyAIResponse] = extract.Truncate(turn.AIResponse, maxAIResponse)
	meta[keyType] = turnType
	meta[keyTimestamp] = turn.Timestamp.Format(time.RFC3339)
	meta[keyTextLength] = strconv.Itoa(len(text))
	meta[keyHasCode] = strconv.FormatBool(extract.HasCodeFence(turn.AIResponse))
	meta[keyResponseLength] = strconv.Itoa(len(turn.AIResponse))

	err := s.index.Upsert(ctx, turn.UserID, vectorindex.Record{
		ID:        turn.ID,
		Vector:    vec,
		Content:   text,
		Metadata:  meta,
		CreatedAt: turn.Timestamp,
	})
	if err != nil {
		s.logger.Warn("memory store upsert failed", zap.String("user_id", turn.UserID), zap.Error(err))
		s.metrics.ObserveMemory("store", "error")
		return "", false
	}
	s.metrics.ObserveMemory("store", "ok")
	return turn.ID, true
}

// Search returns the user's most similar turns, best first. Unless q.Exact is
// set it walks the fallback ladder: a topic-free pass at a relaxed threshold,
// then recent history scored HistoryScore. Only first-pass hits are
// ConfidenceExact.
func (s *Store) Search(ctx context.Context, q Query) []Match {
	if !s.Available() || strings.TrimSpace(q.UserID) == "" {
		return nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	threshold := q.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	var matches []Match
	vec := s.embedQuery(ctx, q.Text)
	if len(vec) > 0 {
		var filter map[string]string
		if q.Topic != "" {
			filter = map[string]string{keyTopic: extract.Truncate(q.Topic, maxTopic)}
		}
		matches = s.query(ctx, q.UserID, vec, limit, threshold, filter, ConfidenceExact)
		if len(matches) > 0 {
			s.metrics.ObserveMemory("search", "exact")
			return matches
		}
		if !q.Exact {
			matches = s.query(ctx, q.UserID, vec, limit, math.Max(MinThreshold, threshold-0.2), nil, ConfidenceFallback)
		}
	}
	if len(matches) > 0 {
		s.metrics.ObserveMemory("search", "relaxed")
		return matches
	}
	if q.Exact {
		s.metrics.ObserveMemory("search", "empty")
		return nil
	}

	for _, turn := range s.History(ctx, q.UserID, limit, "") {
		matches = append(matches, Match{Turn: turn, Score: HistoryScore, Confidence: ConfidenceFallback})
	}
	if len(matches) == 0 {
		s.metrics.ObserveMemory("search", "empty")
		return nil
	}
	s.metrics.ObserveMemory("search", "fallback")
	return matches
}

func (s *Store) embedQuery(ctx context.Context, text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	vec := s.embedder.Embed(ctx, text)
	if len(vec) != s.index.Dimensions() {
		return nil
	}
	return vec
}

func (s *Store) query(ctx context.Context, userID string, vec []float32, limit int, threshold float64, filter map[string]string, confidence Confidence) []Match {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	raw, err := s.index.Query(ctx, userID, vec, limit, filter)
	if err != nil {
		s.logger.Warn("memory query failed", zap.String("user_id", userID), zap.Error(err))
		s.metrics.ObserveMemory("query", "error")
		return nil
	}
	out := make([]Match, 0, len(raw))
	for _, m := range raw {
		score := float64(m.Score)
		if score < threshold {
			continue
		}
		out = append(out, Match{Turn: toTurn(userID, m), Score: score, Confidence: confidence})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// History returns the user's turns newest first, optionally for one topic.
// limit <= 0 returns every turn.
func (s *Store) History(ctx context.Context, userID string, limit int, topic string) []ChatTurn {
	if !s.Available() || strings.TrimSpace(userID) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	filter := map[string]string{keyType: turnType}
	if topic != "" {
		filter[keyTopic] = extract.Truncate(topic, maxTopic)
	}
	raw, err := s.index.List(ctx, userID, filter, limit)
	if err != nil {
		s.logger.Warn("memory history failed", zap.String("user_id", userID), zap.Error(err))
		s.metrics.ObserveMemory("history", "error")
		return nil
	}
	turns := make([]ChatTurn, 0, len(raw))
	for _, m := range raw {
		turns = append(turns, toTurn(userID, m))
	}
	s.metrics.ObserveMemory("history", "ok")
	return turns
}

// Delete removes the listed turns, or every turn for the user when ids is
// empty. Deleting absent ids is not an error.
func (s *Store) Delete(ctx context.Context, userID string, ids []string) error {
	if !s.Available() {
		return ErrUnavailable
	}
	if strings.TrimSpace(userID) == "" {
		return errors.New("memory delete: user id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if err := s.index.Delete(ctx, userID, ids); err != nil {
		s.metrics.ObserveMemory("delete", "error")
		return fmt.Errorf("memory delete for %s: %w", userID, err)
	}
	s.metrics.ObserveMemory("delete", "ok")
	s.logger.Info("memory deleted", zap.String("user_id", userID), zap.Int("ids", len(ids)))
	return nil
}

// Stats counts a user's turns per topic.
func (s *Store) Stats(ctx context.Context, userID string) (Stats, error) {
	if !s.Available() {
		return Stats{}, ErrUnavailable
	}
	turns := s.History(ctx, userID, 0, "")
	out := Stats{UserID: userID, TotalTurns: len(turns), Topics: make(map[string]int)}
	for i := range turns {
		t := turns[i].Timestamp
		topic := turns[i].Topic
		if topic == "" {
			topic = "general"
		}
		out.Topics[topic]++
		if out.Oldest == nil || t.Before(*out.Oldest) {
			out.Oldest = &t
		}
		if out.Newest == nil || t.After(*out.Newest) {
			out.Newest = &t
		}
	}
	return out, nil
}

func turnText(userMessage, aiResponse string) string {
	return "User: " + userMessage + "\nAI: " + aiResponse
}

func newTurnID(userID string, ts time.Time) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s_%s_%d", userID, hex[:8], ts.Unix())
}

func toTurn(userID string, m vectorindex.Match) ChatTurn {
	meta := m.Metadata
	turn := ChatTurn{
		ID:          m.ID,
		UserID:      userID,
		SessionID:   meta[keySessionID],
		Topic:       meta[keyTopic],
		UserMessage: meta[keyUserMessage],
		AIResponse:  meta[keyAIResponse],
		Timestamp:   m.CreatedAt,
		Metadata:    meta,
	}
	if turn.Timestamp.IsZero() {
		if ts, err := time.Parse(time.RFC3339, meta[keyTimestamp]); err == nil {
			turn.Timestamp = ts
		}
	}
	return turn
}
