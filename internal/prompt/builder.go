// Package prompt assembles the variables for a generation call: chat history,
// learner understanding, retrieved memories and optional web search results.
package prompt

import (
	"context"
	"errors"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/studybuddy/internal/extract"
	"github.com/ent0n29/studybuddy/internal/memory"
	"github.com/ent0n29/studybuddy/internal/observability"
	"github.com/ent0n29/studybuddy/internal/policy"
	"github.com/ent0n29/studybuddy/internal/search"
	"github.com/ent0n29/studybuddy/internal/understanding"
)

const (
	DefaultMemoryTimeout = 8 * time.Second
	DefaultSearchTimeout = 12 * time.Second
	// MaxSearchChars caps the search results pasted into a prompt.
	MaxSearchChars = 2000

	NoSearchResults     = "No web search results available."
	DefaultTasksContext = "No specific tasks provided"
)

// MemorySearcher is the read side of the memory store.
type MemorySearcher interface {
	Search(ctx context.Context, q memory.Query) []memory.Match
}

type Options struct {
	MemoryTimeout time.Duration
	SearchTimeout time.Duration
}

// Request is one learner message plus its surrounding state.
type Request struct {
	UserID        string
	Topic         string
	Message       string
	TasksContext  string
	History       []Message
	Understanding understanding.Map
	// NoSearch suppresses web search even when the message asks for it.
	NoSearch bool
}

// Payload is the fully assembled context for a prompt.
type Payload struct {
	Topic         string
	Message       string
	Language      string
	TasksContext  string
	SearchQuery   string
	SearchResults string
	UsedSearch    bool
	MemoryContext string
	Memories      []memory.Match
	History       []llms.ChatMessage
	Understanding string
}

// Vars returns template variables. Every key used by the chat templates is
// present, with placeholder text where a source came back empty.
func (p Payload) Vars() map[string]any {
	history := p.History
	if history == nil {
		history = []llms.ChatMessage{}
	}
	return map[string]any{
		"topic":          p.Topic,
		"message":        p.Message,
		"question":       p.Message,
		"language":       p.Language,
		"tasks_context":  orDefault(p.TasksContext, DefaultTasksContext),
		"search_results": orDefault(p.SearchResults, NoSearchResults),
		"memory_context": orDefault(p.MemoryContext, NoMemoryContext),
		"understanding":  p.Understanding,
		HistoryKey:       history,
	}
}

// Builder gathers memory and search context concurrently.
type Builder struct {
	memory  MemorySearcher
	search  search.Searcher
	opts    Options
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewBuilder wires a builder. Either source may be nil.
func NewBuilder(mem MemorySearcher, searcher search.Searcher, opts Options, logger *zap.Logger, metrics *observability.Metrics) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MemoryTimeout <= 0 {
		opts.MemoryTimeout = DefaultMemoryTimeout
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultSearchTimeout
	}
	return &Builder{memory: mem, search: searcher, opts: opts, logger: logger, metrics: metrics}
}

// Build never fails: a source that errors or times out contributes nothing.
func (b *Builder) Build(ctx context.Context, req Request) Payload {
	p := Payload{
		Topic:         req.Topic,
		Message:       req.Message,
		Language:      policy.DetectLanguage(req.Topic),
		TasksContext:  orDefault(req.TasksContext, DefaultTasksContext),
		History:       ChatHistory(req.History),
		Understanding: understanding.Describe(req.Understanding, req.Topic),
	}

	var (
		g        errgroup.Group
		results  string
		memories []memory.Match
	)
	if b.search != nil && !req.NoSearch && policy.ShouldSearch(req.Message) {
		p.SearchQuery = policy.SearchQuery(req.Topic, req.Message)
		g.Go(func() error {
			results = b.runSearch(ctx, p.SearchQuery)
			return nil
		})
	}
	if b.memory != nil && req.UserID != "" {
		g.Go(func() error {
			memories = b.lookupMemory(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	p.SearchResults = results
	p.UsedSearch = results != ""
	p.Memories = memories
	p.MemoryContext = FormatMemories(memories)
	return p
}

func (b *Builder) runSearch(ctx context.Context, query string) string {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, b.opts.SearchTimeout)
	defer cancel()

	out, err := b.search.Run(ctx, query)
	b.metrics.ObserveStage(observability.StageWebSearch, time.Since(start))
	if err != nil {
		if !errors.Is(err, search.ErrDisabled) {
			b.logger.Warn("web search failed", zap.String("query", query), zap.Error(err))
		}
		return ""
	}
	return extract.Truncate(out, MaxSearchChars)
}

func (b *Builder) lookupMemory(ctx context.Context, req Request) []memory.Match {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, b.opts.MemoryTimeout)
	defer cancel()

	params := policy.ClassifyMemoryQuery(req.Message)
	q := memory.Query{
		UserID:    req.UserID,
		Text:      req.Message,
		Limit:     params.Limit,
		Threshold: params.Threshold,
	}
	if params.UseTopicFilter {
		q.Topic = req.Topic
	}
	matches := b.memory.Search(ctx, q)
	b.metrics.ObserveStage(observability.StageMemoryLookup, time.Since(start))
	b.logger.Debug("memory lookup",
		zap.String("user_id", req.UserID),
		zap.String("class", string(params.Class)),
		zap.Int("matches", len(matches)),
	)
	return matches
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
