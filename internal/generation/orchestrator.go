// Package generation drives one LLM call per use case, recovers structured
// output from it and falls back to deterministic content when the model
// output is missing or incomplete. Callers always get a usable record.
package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/prompts"
	"go.uber.org/zap"

	"github.com/ent0n29/studybuddy/internal/extract"
	"github.com/ent0n29/studybuddy/internal/llm"
	"github.com/ent0n29/studybuddy/internal/memory"
	"github.com/ent0n29/studybuddy/internal/observability"
	"github.com/ent0n29/studybuddy/internal/policy"
	"github.com/ent0n29/studybuddy/internal/prompt"
	"github.com/ent0n29/studybuddy/internal/search"
)

const (
	DefaultMemoryWriteTimeout = 8 * time.Second
	DefaultSearchTimeout      = 12 * time.Second
)

// Invoker renders a prompt template and returns the model's raw text.
type Invoker interface {
	Invoke(ctx context.Context, tmpl prompts.MessageFormatter, vars map[string]any) (string, error)
}

// MemoryWriter is the write side of the memory store.
type MemoryWriter interface {
	Save(ctx context.Context, turn memory.ChatTurn) (string, bool)
}

type Deps struct {
	LLM     Invoker
	Prompts *prompt.Builder
	Memory  MemoryWriter
	Search  search.Searcher
	Logger  *zap.Logger
	Metrics *observability.Metrics

	MemoryWriteTimeout time.Duration
	SearchTimeout      time.Duration
}

type Orchestrator struct {
	llm     Invoker
	prompts *prompt.Builder
	memory  MemoryWriter
	search  search.Searcher
	logger  *zap.Logger
	metrics *observability.Metrics

	memoryTimeout time.Duration
	searchTimeout time.Duration
	now           func() time.Time

	mu     sync.Mutex
	closed bool
	writes sync.WaitGroup
}

func New(d Deps) *Orchestrator {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Prompts == nil {
		d.Prompts = prompt.NewBuilder(nil, d.Search, prompt.Options{SearchTimeout: d.SearchTimeout}, d.Logger, d.Metrics)
	}
	if d.MemoryWriteTimeout <= 0 {
		d.MemoryWriteTimeout = DefaultMemoryWriteTimeout
	}
	if d.SearchTimeout <= 0 {
		d.SearchTimeout = DefaultSearchTimeout
	}
	return &Orchestrator{
		llm:           d.LLM,
		prompts:       d.Prompts,
		memory:        d.Memory,
		search:        d.Search,
		logger:        d.Logger,
		metrics:       d.Metrics,
		memoryTimeout: d.MemoryWriteTimeout,
		searchTimeout: d.SearchTimeout,
		now:           time.Now,
	}
}

// Generate invokes the model once and extracts a JSON object from its reply.
// A failed call or unparseable output yields an Absent result.
func (o *Orchestrator) Generate(ctx context.Context, tmpl prompts.MessageFormatter, vars map[string]any) extract.Result {
	_, res := o.generate(ctx, "generate", tmpl, vars)
	return res
}

func (o *Orchestrator) generate(ctx context.Context, useCase string, tmpl prompts.MessageFormatter, vars map[string]any) (string, extract.Result) {
	if o.llm == nil {
		return "", extract.Result{Outcome: extract.Absent}
	}
	vars = normalizeVars(vars)

	start := time.Now()
	raw, err := o.llm.Invoke(ctx, tmpl, vars)
	o.metrics.ObserveStage(observability.StageLLM, time.Since(start))
	if err != nil {
		if errors.Is(err, llm.ErrOffline) {
			o.logger.Debug("no language model configured", zap.String("use_case", useCase))
		} else {
			o.logger.Warn("generation call failed", zap.String("use_case", useCase), zap.Error(err))
		}
		o.metrics.ObserveExtraction(string(extract.Absent))
		return "", extract.Result{Outcome: extract.Absent}
	}

	start = time.Now()
	res := extract.Extract(raw)
	o.metrics.ObserveStage(observability.StageExtract, time.Since(start))
	o.metrics.ObserveExtraction(string(res.Outcome))
	if res.Outcome != extract.Clean {
		o.logger.Debug("model output needed recovery",
			zap.String("use_case", useCase),
			zap.String("outcome", string(res.Outcome)),
			zap.Int("raw_length", len(raw)),
		)
	}
	return raw, res
}

// normalizeVars guarantees language and tasks_context are set.
func normalizeVars(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars)+2)
	for k, v := range vars {
		out[k] = v
	}
	if s, _ := out["language"].(string); strings.TrimSpace(s) == "" {
		topic, _ := out["topic"].(string)
		out["language"] = policy.DetectLanguage(topic)
	}
	if s, _ := out["tasks_context"].(string); strings.TrimSpace(s) == "" {
		out["tasks_context"] = prompt.DefaultTasksContext
	}
	return out
}

// remember saves a turn in the background. Writes started before Close
// finish before Close returns; later ones are dropped.
func (o *Orchestrator) remember(turn memory.ChatTurn) {
	if o.memory == nil || strings.TrimSpace(turn.UserID) == "" {
		return
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.writes.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.memoryTimeout)
		defer cancel()
		if _, ok := o.memory.Save(ctx, turn); !ok {
			o.logger.Debug("memory write skipped", zap.String("user_id", turn.UserID))
		}
	}()
}

// Close waits for pending memory writes.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.writes.Wait()
}

func (o *Orchestrator) finish(useCase string, source Source, start time.Time) {
	o.metrics.ObserveGeneration(useCase, string(source), time.Since(start))
	o.logger.Info("generation complete",
		zap.String("use_case", useCase),
		zap.String("source", string(source)),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func sourceOf(res extract.Result) Source {
	if res.Outcome == extract.Salvaged {
		return SourceSalvaged
	}
	return SourceModel
}
