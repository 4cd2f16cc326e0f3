package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	Generations       *prometheus.CounterVec
	Extractions       *prometheus.CounterVec
	LLMRequests       *prometheus.CounterVec
	LLMLatency        *prometheus.HistogramVec
	MemoryOperations  *prometheus.CounterVec
	SearchRequests    *prometheus.CounterVec
	EmbeddingRequests *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	Perf              *PerfWindow
	gatherer          prometheus.Gatherer
}

// NewMetrics registers instruments on reg. A nil reg uses the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active study chat sessions.",
		}),
		Generations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_total",
			Help:      "Generation results by use case and content source.",
		}, []string{"use_case", "source"}),
		Extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_total",
			Help:      "Structured output extraction outcomes.",
		}, []string{"outcome"}),
		LLMRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "LLM calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		LLMLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_latency_seconds",
			Help:      "LLM call latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"provider"}),
		MemoryOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_operations_total",
			Help:      "Memory store operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		SearchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Web search requests by outcome.",
		}, []string{"outcome"}),
		EmbeddingRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Embedding requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		Perf:     NewPerfWindow(256),
		gatherer: gatherer,
	}
}

// ObserveGeneration counts a finished generation and adds it to the
// rolling per-use-case window.
func (m *Metrics) ObserveGeneration(useCase, source string, d time.Duration) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(useCase, source).Inc()
	m.Perf.ObserveGeneration(useCase, source, millis(d))
}

func (m *Metrics) ObserveExtraction(outcome string) {
	if m == nil {
		return
	}
	m.Extractions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLLM(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.LLMRequests.WithLabelValues(provider, outcome).Inc()
	m.LLMLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) ObserveMemory(op, outcome string) {
	if m == nil {
		return
	}
	m.MemoryOperations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveSearch(outcome string) {
	if m == nil {
		return
	}
	m.SearchRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveEmbedding(provider, outcome string) {
	if m == nil {
		return
	}
	m.EmbeddingRequests.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) ObserveHTTP(route, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, status).Inc()
}

// ObserveStage records a stage latency in the rolling window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.Perf.ObserveStage(stage, millis(d))
}

// ObserveIndicator counts a named event in the rolling window.
func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.Perf.ObserveIndicator(name)
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// Handler serves the registry these metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == prometheus.DefaultGatherer {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
