package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/studybuddy/internal/llm"
)

// Config contains all runtime settings for the study assistant service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	AllowAnyOrigin           bool

	LogLevel  string
	LogFormat string

	LLMProvider    string
	LLMTimeout     time.Duration
	LLMTemperature float64
	GeminiAPIKey   string
	GeminiModel    string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	OpenAIModel    string

	EmbeddingProvider   string
	EmbeddingEndpoint   string
	EmbeddingAPIKey     string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingTimeout    time.Duration

	MemoryBackend         string
	MemoryIndexName       string
	MemoryChromemPath     string
	MemoryChromemCompress bool
	DatabaseURL           string
	MemoryTimeout         time.Duration
	MemoryRedactPII       bool

	SearchEnabled    bool
	SearchMaxResults int
	SearchTimeout    time.Duration
	SearchUserAgent  string
	SearchCacheTTL   time.Duration
	RedisURL         string
}

var (
	llmProviders       = []string{"auto", "gemini", "openai", "mock"}
	embeddingProviders = []string{"auto", "http", "gemini", "none"}
	memoryBackends     = []string{"auto", "chromem", "pgvector", "none"}
	logLevels          = []string{"debug", "info", "warn", "error"}
	logFormats         = []string{"json", "console"}
)

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("METRICS_NAMESPACE", "studybuddy"),
		LogLevel:         strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(envOrDefault("LOG_FORMAT", "json")),

		LLMProvider:   strings.ToLower(envOrDefault("LLM_PROVIDER", "auto")),
		GeminiAPIKey:  stringsTrimSpace("GEMINI_API_KEY"),
		GeminiModel:   envOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		OpenAIAPIKey:  stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL: envOrDefault("OPENAI_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenAIModel:   stringsTrimSpace("OPENAI_MODEL"),

		EmbeddingProvider: strings.ToLower(envOrDefault("EMBEDDING_PROVIDER", "auto")),
		EmbeddingEndpoint: stringsTrimSpace("HF_ENDPOINT"),
		EmbeddingAPIKey:   stringsTrimSpace("HF_API_KEY"),
		EmbeddingModel:    envOrDefault("EMBEDDING_MODEL", "gemini-embedding-001"),

		MemoryBackend:     strings.ToLower(envOrDefault("MEMORY_BACKEND", "auto")),
		MemoryIndexName:   envOrDefault("MEMORY_INDEX_NAME", "studybuddy-memory"),
		MemoryChromemPath: stringsTrimSpace("MEMORY_CHROMEM_PATH"),
		DatabaseURL:       stringsTrimSpace("DATABASE_URL"),

		SearchUserAgent: stringsTrimSpace("SEARCH_USER_AGENT"),
		RedisURL:        stringsTrimSpace("REDIS_URL"),

		ShutdownTimeout:          10 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		LLMTimeout:               60 * time.Second,
		LLMTemperature:           0.7,
		EmbeddingDimensions:      384,
		EmbeddingTimeout:         45 * time.Second,
		MemoryTimeout:            8 * time.Second,
		SearchEnabled:            true,
		SearchMaxResults:         6,
		SearchTimeout:            12 * time.Second,
		SearchCacheTTL:           30 * time.Minute,
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"SESSION_INACTIVITY_TIMEOUT", &cfg.SessionInactivityTimeout},
		{"LLM_TIMEOUT", &cfg.LLMTimeout},
		{"EMBEDDING_TIMEOUT", &cfg.EmbeddingTimeout},
		{"MEMORY_TIMEOUT", &cfg.MemoryTimeout},
		{"SEARCH_TIMEOUT", &cfg.SearchTimeout},
		{"SEARCH_CACHE_TTL", &cfg.SearchCacheTTL},
	}
	for _, d := range durations {
		if *d.dst, err = durationFromEnv(d.key, *d.dst); err != nil {
			return Config{}, err
		}
	}
	bools := []struct {
		key string
		dst *bool
	}{
		{"ALLOW_ANY_ORIGIN", &cfg.AllowAnyOrigin},
		{"MEMORY_CHROMEM_COMPRESS", &cfg.MemoryChromemCompress},
		{"MEMORY_REDACT_PII", &cfg.MemoryRedactPII},
		{"SEARCH_ENABLED", &cfg.SearchEnabled},
	}
	for _, b := range bools {
		if *b.dst, err = boolFromEnv(b.key, *b.dst); err != nil {
			return Config{}, err
		}
	}
	cfg.EmbeddingDimensions, err = intFromEnv("EMBEDDING_DIMENSIONS", cfg.EmbeddingDimensions)
	if err != nil {
		return Config{}, err
	}
	cfg.SearchMaxResults, err = intFromEnv("SEARCH_MAX_RESULTS", cfg.SearchMaxResults)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTemperature, err = floatFromEnv("LLM_TEMPERATURE", cfg.LLMTemperature)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LLMConfig returns the model construction settings.
func (c Config) LLMConfig() llm.Config {
	return llm.Config{
		Provider:      c.LLMProvider,
		Temperature:   c.LLMTemperature,
		GeminiAPIKey:  c.GeminiAPIKey,
		GeminiModel:   c.GeminiModel,
		OpenAIAPIKey:  c.OpenAIAPIKey,
		OpenAIBaseURL: c.OpenAIBaseURL,
		OpenAIModel:   c.OpenAIModel,
	}
}

func (c Config) validate() error {
	if err := oneOf("LLM_PROVIDER", c.LLMProvider, llmProviders); err != nil {
		return err
	}
	if err := oneOf("EMBEDDING_PROVIDER", c.EmbeddingProvider, embeddingProviders); err != nil {
		return err
	}
	if err := oneOf("MEMORY_BACKEND", c.MemoryBackend, memoryBackends); err != nil {
		return err
	}
	if err := oneOf("LOG_LEVEL", c.LogLevel, logLevels); err != nil {
		return err
	}
	if err := oneOf("LOG_FORMAT", c.LogFormat, logFormats); err != nil {
		return err
	}
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive")
	}
	if c.SearchMaxResults <= 0 {
		return fmt.Errorf("SEARCH_MAX_RESULTS must be positive")
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0, 2]")
	}
	if c.LLMProvider == "gemini" && c.GeminiAPIKey == "" {
		return fmt.Errorf("LLM_PROVIDER=gemini requires GEMINI_API_KEY")
	}
	if c.LLMProvider == "openai" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("LLM_PROVIDER=openai requires OPENAI_API_KEY")
	}
	if c.EmbeddingProvider == "http" && c.EmbeddingEndpoint == "" {
		return fmt.Errorf("EMBEDDING_PROVIDER=http requires HF_ENDPOINT")
	}
	if c.MemoryBackend == "pgvector" && c.DatabaseURL == "" {
		return fmt.Errorf("MEMORY_BACKEND=pgvector requires DATABASE_URL")
	}
	for _, d := range []struct {
		key string
		v   time.Duration
	}{
		{"LLM_TIMEOUT", c.LLMTimeout},
		{"EMBEDDING_TIMEOUT", c.EmbeddingTimeout},
		{"MEMORY_TIMEOUT", c.MemoryTimeout},
		{"SEARCH_TIMEOUT", c.SearchTimeout},
	} {
		if d.v <= 0 {
			return fmt.Errorf("%s must be positive", d.key)
		}
	}
	return nil
}

func oneOf(key, v string, allowed []string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), v)
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
