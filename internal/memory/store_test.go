package memory

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/studybuddy/internal/vectorindex"
)

type fakeEmbedder struct {
	dims    int
	vectors map[string][]float32
	calls   atomic.Int32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) []float32 {
	f.calls.Add(1)
	if v, ok := f.vectors[text]; ok {
		return v
	}
	v := make([]float32, f.dims)
	v[f.dims-1] = 1
	return v
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }
func (f *fakeEmbedder) Enabled() bool   { return f.dims > 0 }
func (f *fakeEmbedder) Name() string    { return "fake" }

type failingIndex struct {
	vectorindex.Index
	exists atomic.Int32
}

func (f *failingIndex) Name() string    { return "failing" }
func (f *failingIndex) Dimensions() int { return 4 }
func (f *failingIndex) Exists(context.Context) (bool, error) {
	f.exists.Add(1)
	return false, errors.New("connection refused")
}

func newTestStore(t *testing.T, vectors map[string][]float32) (*Store, *fakeEmbedder) {
	t.Helper()
	idx, err := vectorindex.NewChromem("", false, "memory-test", 4)
	require.NoError(t, err)
	emb := &fakeEmbedder{dims: 4, vectors: vectors}
	store := New(idx, emb, Options{}, nil, nil)
	require.Equal(t, StateReady, store.Init(context.Background()))
	return store, emb
}

func closureTurn() ChatTurn {
	return ChatTurn{
		UserID:      "alice",
		SessionID:   "s1",
		Topic:       "python",
		UserMessage: "what is a closure",
		AIResponse:  "a function that captures variables from its enclosing scope",
		Timestamp:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestSaveThenSearchFindsSameTurn(t *testing.T) {
	turn := closureTurn()
	text := turnText(turn.UserMessage, turn.AIResponse)
	store, _ := newTestStore(t, map[string][]float32{text: {1, 0, 0, 0}})
	ctx := context.Background()

	id, ok := store.Save(ctx, turn)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(id, "alice_"))

	got := store.Search(ctx, Query{UserID: "alice", Text: text, Topic: "python", Threshold: 0.99})
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].Turn.ID)
	assert.Equal(t, ConfidenceExact, got[0].Confidence)
	assert.GreaterOrEqual(t, got[0].Score, 0.99)
	assert.Equal(t, "what is a closure", got[0].Turn.UserMessage)
	assert.Equal(t, "python", got[0].Turn.Topic)
	assert.Equal(t, "chat_pair", got[0].Turn.Metadata["type"])
	assert.Equal(t, "false", got[0].Turn.Metadata["has_code"])
}

func TestSearchRelaxesTopicFilter(t *testing.T) {
	turn := closureTurn()
	store, _ := newTestStore(t, map[string][]float32{
		turnText(turn.UserMessage, turn.AIResponse): {1, 0, 0, 0},
		"closures in rust":                          {0.9, 0.1, 0, 0},
	})
	ctx := context.Background()
	_, ok := store.Save(ctx, turn)
	require.True(t, ok)

	got := store.Search(ctx, Query{UserID: "alice", Text: "closures in rust", Topic: "rust", Threshold: 0.8})
	require.Len(t, got, 1)
	assert.Equal(t, ConfidenceFallback, got[0].Confidence)
	assert.Greater(t, got[0].Score, 0.9)
	assert.Equal(t, "python", got[0].Turn.Topic)

	exact := store.Search(ctx, Query{UserID: "alice", Text: "closures in rust", Topic: "rust", Threshold: 0.8, Exact: true})
	assert.Empty(t, exact)
}

func TestSearchFallsBackToHistory(t *testing.T) {
	turn := closureTurn()
	store, _ := newTestStore(t, map[string][]float32{
		turnText(turn.UserMessage, turn.AIResponse): {1, 0, 0, 0},
		"tell me about the weather":                 {0, 1, 0, 0},
	})
	ctx := context.Background()
	_, ok := store.Save(ctx, turn)
	require.True(t, ok)

	got := store.Search(ctx, Query{UserID: "alice", Text: "tell me about the weather", Topic: "python", Threshold: 0.8})
	require.Len(t, got, 1)
	assert.Equal(t, ConfidenceFallback, got[0].Confidence)
	assert.Equal(t, HistoryScore, got[0].Score)

	assert.Empty(t, store.Search(ctx, Query{UserID: "bob", Text: "tell me about the weather"}))
}

func TestUnavailableStoreSkipsEmbedder(t *testing.T) {
	emb := &fakeEmbedder{dims: 4}
	store := New(nil, emb, Options{}, nil, nil)
	ctx := context.Background()

	assert.Equal(t, StateDisabled, store.Init(ctx))
	assert.False(t, store.Available())
	assert.Empty(t, store.Search(ctx, Query{UserID: "alice", Text: "anything"}))
	assert.Empty(t, store.History(ctx, "alice", 5, ""))
	_, ok := store.Save(ctx, closureTurn())
	assert.False(t, ok)
	assert.ErrorIs(t, store.Delete(ctx, "alice", nil), ErrUnavailable)
	_, err := store.Stats(ctx, "alice")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, emb.calls.Load())

	status := store.Status()
	assert.Equal(t, "none", status.Backend)
	assert.NotEmpty(t, status.Reason)
}

func TestInitDisablesOnDimensionMismatch(t *testing.T) {
	idx, err := vectorindex.NewChromem("", false, "memory-test", 4)
	require.NoError(t, err)
	store := New(idx, &fakeEmbedder{dims: 8}, Options{}, nil, nil)

	assert.Equal(t, StateDisabled, store.Init(context.Background()))
	assert.Contains(t, store.Status().Reason, "dimension")
}

func TestInitFailureIsTerminal(t *testing.T) {
	idx := &failingIndex{}
	store := New(idx, &fakeEmbedder{dims: 4}, Options{}, nil, nil)
	ctx := context.Background()

	assert.Equal(t, StateDisabled, store.Init(ctx))
	assert.Equal(t, StateDisabled, store.Init(ctx))
	assert.Empty(t, store.History(ctx, "alice", 5, ""))
	assert.Equal(t, int32(1), idx.exists.Load())
}

func TestInitCreatesMissingIndex(t *testing.T) {
	idx, err := vectorindex.NewChromem("", false, "memory-test", 4)
	require.NoError(t, err)
	store := New(idx, &fakeEmbedder{dims: 4}, Options{}, nil, nil)
	assert.Equal(t, StateUnconfigured, store.State())

	require.Equal(t, StateReady, store.Init(context.Background()))
	exists, err := idx.Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSaveRejectsWrongDimension(t *testing.T) {
	store, _ := newTestStore(t, nil)
	turn := closureTurn()
	turn.Embedding = []float32{1, 0, 0}

	_, ok := store.Save(context.Background(), turn)
	assert.False(t, ok)
	assert.Empty(t, store.History(context.Background(), "alice", 0, ""))
}

func TestHistoryNewestFirstAndTopicFilter(t *testing.T) {
	store, _ := newTestStore(t, nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, topic := range []string{"python", "rust", "python"} {
		turn := closureTurn()
		turn.Topic = topic
		turn.UserMessage = "question " + topic
		turn.Timestamp = base.Add(time.Duration(i) * time.Hour)
		_, ok := store.Save(ctx, turn)
		require.True(t, ok)
	}

	all := store.History(ctx, "alice", 0, "")
	require.Len(t, all, 3)
	assert.True(t, all[0].Timestamp.After(all[1].Timestamp))
	assert.True(t, all[1].Timestamp.After(all[2].Timestamp))

	python := store.History(ctx, "alice", 1, "python")
	require.Len(t, python, 1)
	assert.Equal(t, base.Add(2*time.Hour), python[0].Timestamp.UTC())

	stats, err := store.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalTurns)
	assert.Equal(t, map[string]int{"python": 2, "rust": 1}, stats.Topics)
	require.NotNil(t, stats.Oldest)
	assert.Equal(t, base, stats.Oldest.UTC())
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t, nil)
	ctx := context.Background()

	first, ok := store.Save(ctx, closureTurn())
	require.True(t, ok)
	second := closureTurn()
	second.Timestamp = second.Timestamp.Add(time.Minute)
	_, ok = store.Save(ctx, second)
	require.True(t, ok)

	require.NoError(t, store.Delete(ctx, "alice", []string{first}))
	require.NoError(t, store.Delete(ctx, "alice", []string{first}))
	assert.Len(t, store.History(ctx, "alice", 0, ""), 1)

	require.NoError(t, store.Delete(ctx, "alice", nil))
	require.NoError(t, store.Delete(ctx, "alice", nil))
	assert.Empty(t, store.History(ctx, "alice", 0, ""))
}

func TestSaveRedactsAndTruncates(t *testing.T) {
	idx, err := vectorindex.NewChromem("", false, "memory-test", 4)
	require.NoError(t, err)
	store := New(idx, &fakeEmbedder{dims: 4}, Options{RedactPII: true}, nil, nil)
	ctx := context.Background()

	turn := closureTurn()
	turn.UserMessage = "mail me at jane@example.com " + strings.Repeat("a", 600)
	_, ok := store.Save(ctx, turn)
	require.True(t, ok)

	got := store.History(ctx, "alice", 1, "")
	require.Len(t, got, 1)
	assert.NotContains(t, got[0].UserMessage, "jane@example.com")
	assert.Equal(t, maxUserMessage, len([]rune(got[0].UserMessage)))
}
