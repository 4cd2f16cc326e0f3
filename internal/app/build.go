package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ent0n29/studybuddy/internal/config"
	"github.com/ent0n29/studybuddy/internal/embedding"
	"github.com/ent0n29/studybuddy/internal/generation"
	"github.com/ent0n29/studybuddy/internal/httpapi"
	"github.com/ent0n29/studybuddy/internal/llm"
	"github.com/ent0n29/studybuddy/internal/memory"
	"github.com/ent0n29/studybuddy/internal/observability"
	"github.com/ent0n29/studybuddy/internal/prompt"
	"github.com/ent0n29/studybuddy/internal/session"
	"github.com/ent0n29/studybuddy/internal/vectorindex"
)

// JanitorInterval is how often idle sessions are swept.
const JanitorInterval = 5 * time.Second

// ProviderInfo describes which backends were resolved at startup.
type ProviderInfo struct {
	LLM       string
	Embedding string
	Memory    memory.Status
	Search    string
}

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *generation.Orchestrator
	Memory       *memory.Store
	Metrics      *observability.Metrics
	Providers    ProviderInfo

	// Cleanup waits for pending memory writes and releases external resources.
	Cleanup func() error
}

// Options tweak Build for embedding in other processes and tests.
type Options struct {
	// Registerer receives the service metrics. Nil uses the default registry.
	Registerer prometheus.Registerer
}

func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace, opts.Registerer)

	model, err := llm.NewModel(ctx, cfg.LLMConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("llm init failed: %w", err)
	}
	client := llm.NewClient(model, cfg.LLMTimeout, logger, metrics)

	embedSetup, err := resolveEmbedding(ctx, cfg)
	if err != nil {
		return nil, err
	}
	embedder := embedding.NewClient(embedSetup.engine, cfg.EmbeddingDimensions, cfg.EmbeddingTimeout, logger, metrics)

	var cleanups []func() error
	fail := func(err error) (*BuildResult, error) {
		for i := len(cleanups) - 1; i >= 0; i-- {
			_ = cleanups[i]()
		}
		return nil, err
	}

	var index vectorindex.Index
	if embedder.Enabled() {
		index, err = vectorindex.New(ctx, vectorindex.Options{
			Backend:         cfg.MemoryBackend,
			IndexName:       cfg.MemoryIndexName,
			Dimensions:      cfg.EmbeddingDimensions,
			DatabaseURL:     cfg.DatabaseURL,
			ChromemPath:     cfg.MemoryChromemPath,
			ChromemCompress: cfg.MemoryChromemCompress,
		})
		if err != nil {
			// Memory degrades to disabled; the service still answers.
			logger.Warn("vector index unavailable; memory disabled", zap.Error(err))
			index = nil
		}
		if index != nil {
			cleanups = append(cleanups, index.Close)
		}
	}

	store := memory.New(index, embedder, memory.Options{
		Timeout:   cfg.MemoryTimeout,
		RedactPII: cfg.MemoryRedactPII,
	}, logger, metrics)
	store.Init(ctx)

	searchSetup, err := resolveSearch(ctx, cfg, logger, metrics)
	if err != nil {
		return fail(err)
	}
	if searchSetup.cleanup != nil {
		cleanups = append(cleanups, searchSetup.cleanup)
	}

	builder := prompt.NewBuilder(store, searchSetup.searcher, prompt.Options{
		MemoryTimeout: cfg.MemoryTimeout,
		SearchTimeout: cfg.SearchTimeout,
	}, logger, metrics)

	orchestrator := generation.New(generation.Deps{
		LLM:                client,
		Prompts:            builder,
		Memory:             store,
		Search:             searchSetup.searcher,
		Logger:             logger,
		Metrics:            metrics,
		MemoryWriteTimeout: cfg.MemoryTimeout,
		SearchTimeout:      cfg.SearchTimeout,
	})

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		logger.Debug("session expired", zap.String("session_id", s.ID))
		metrics.ObserveIndicator("session_expired")
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	api := httpapi.New(cfg, sessions, orchestrator, store, metrics, logger)

	providers := ProviderInfo{
		LLM:       client.Name(),
		Embedding: embedSetup.detail,
		Memory:    store.Status(),
		Search:    searchSetup.detail,
	}
	logger.Info("providers resolved",
		zap.String("llm", providers.LLM),
		zap.String("embedding", providers.Embedding),
		zap.String("memory_state", string(providers.Memory.State)),
		zap.String("memory_backend", providers.Memory.Backend),
		zap.String("search", providers.Search),
	)

	cleanup := func() error {
		orchestrator.Close()
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Memory:       store,
		Metrics:      metrics,
		Providers:    providers,
		Cleanup:      cleanup,
	}, nil
}
