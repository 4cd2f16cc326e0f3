package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/studybuddy/internal/config"
	"github.com/ent0n29/studybuddy/internal/embedding"
	"github.com/ent0n29/studybuddy/internal/observability"
	"github.com/ent0n29/studybuddy/internal/search"
)

type embeddingSetup struct {
	engine   embedding.Engine
	provider string
	detail   string
}

// resolveEmbedding picks the embedding engine. In auto mode Gemini wins when
// its key is set, then a hosted HTTP endpoint; otherwise memory stays off.
func resolveEmbedding(ctx context.Context, cfg config.Config) (embeddingSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.EmbeddingProvider))
	if mode == "" {
		mode = "auto"
	}

	tryGemini := func() (embeddingSetup, error) {
		e, err := embedding.NewGenAIEngine(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
		if err != nil {
			return embeddingSetup{}, fmt.Errorf("gemini embedding init failed: %w", err)
		}
		return embeddingSetup{engine: e, provider: "gemini", detail: e.Name()}, nil
	}
	tryHTTP := func() embeddingSetup {
		return embeddingSetup{
			engine:   embedding.NewHTTPEngine(cfg.EmbeddingEndpoint, cfg.EmbeddingAPIKey),
			provider: "http",
			detail:   cfg.EmbeddingEndpoint,
		}
	}
	none := embeddingSetup{provider: "none", detail: "no embedding provider configured"}

	switch mode {
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return embeddingSetup{}, fmt.Errorf("EMBEDDING_PROVIDER=gemini but GEMINI_API_KEY is not set")
		}
		return tryGemini()
	case "http":
		return tryHTTP(), nil
	case "none":
		return none, nil
	case "auto":
		if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
			return tryGemini()
		}
		if strings.TrimSpace(cfg.EmbeddingEndpoint) != "" {
			return tryHTTP(), nil
		}
		return none, nil
	default:
		return embeddingSetup{}, fmt.Errorf("invalid EMBEDDING_PROVIDER: %q (expected auto|http|gemini|none)", cfg.EmbeddingProvider)
	}
}

type searchSetup struct {
	searcher search.Searcher
	detail   string
	cleanup  func() error
}

// resolveSearch builds DuckDuckGo search behind a result cache. Redis is used
// when REDIS_URL is set and reachable, else an in-process cache.
func resolveSearch(ctx context.Context, cfg config.Config, logger *zap.Logger, metrics *observability.Metrics) (searchSetup, error) {
	if !cfg.SearchEnabled {
		return searchSetup{searcher: search.Disabled{}, detail: "disabled"}, nil
	}
	ddg, err := search.NewDuckDuckGo(search.DuckDuckGoOptions{
		MaxResults: cfg.SearchMaxResults,
		UserAgent:  cfg.SearchUserAgent,
	}, logger)
	if err != nil {
		return searchSetup{}, err
	}

	var (
		cache   search.Cache = search.NewMemoryCache()
		detail               = "duckduckgo (in-process cache)"
		cleanup func() error
	)
	if url := strings.TrimSpace(cfg.RedisURL); url != "" {
		rc, err := search.NewRedisCache(ctx, url)
		if err != nil {
			logger.Warn("redis search cache unavailable; using in-process cache", zap.Error(err))
		} else {
			cache = rc
			detail = "duckduckgo (redis cache)"
			cleanup = rc.Close
		}
	}
	return searchSetup{
		searcher: search.NewCached(ddg, cache, cfg.SearchCacheTTL, logger, metrics),
		detail:   detail,
		cleanup:  cleanup,
	}, nil
}
