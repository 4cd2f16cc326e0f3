package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Collaborator stages timed inside one generation.
const (
	StageMemoryLookup = "memory_lookup"
	StageWebSearch    = "web_search"
	StageLLM          = "llm_call"
	StageExtract      = "extract"
	StageMaterials    = "materials_backfill"
)

// SourceFallback is the generation source that marks deterministic content.
const SourceFallback = "fallback"

// Latency summarizes a rolling set of samples in milliseconds.
type Latency struct {
	Samples int     `json:"samples"`
	LastMS  float64 `json:"last_ms"`
	AvgMS   float64 `json:"avg_ms"`
	P50MS   float64 `json:"p50_ms"`
	P95MS   float64 `json:"p95_ms"`
	P99MS   float64 `json:"p99_ms"`
}

type StageStats struct {
	Stage string `json:"stage"`
	Latency
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

// UseCaseStats covers whole generations of one use case: how long they took
// and where their content came from.
type UseCaseStats struct {
	UseCase string `json:"use_case"`
	Latency
	Sources      map[string]int `json:"sources"`
	FallbackRate float64        `json:"fallback_rate"`
}

type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type PerfSnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowSize  int            `json:"window_size"`
	UseCases    []UseCaseStats `json:"use_cases"`
	Stages      []StageStats   `json:"stages"`
	Indicators  []Indicator    `json:"indicators,omitempty"`
}

// PerfWindow keeps the most recent generations per use case and the most
// recent collaborator latencies per stage.
type PerfWindow struct {
	mu         sync.Mutex
	size       int
	useCases   map[string]*generationRing
	stages     map[string]*ring
	indicators map[string]int
}

func NewPerfWindow(size int) *PerfWindow {
	if size <= 0 {
		size = 256
	}
	return &PerfWindow{
		size:       size,
		useCases:   make(map[string]*generationRing),
		stages:     make(map[string]*ring),
		indicators: make(map[string]int),
	}
}

// ObserveGeneration records one finished generation.
func (w *PerfWindow) ObserveGeneration(useCase, source string, ms float64) {
	if w == nil || useCase == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	g, ok := w.useCases[useCase]
	if !ok {
		g = &generationRing{latency: newRing(w.size), sources: make([]string, w.size)}
		w.useCases[useCase] = g
	}
	g.add(source, ms)
}

func (w *PerfWindow) ObserveStage(stage string, ms float64) {
	if w == nil || stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.stages[stage]
	if !ok {
		r = newRing(w.size)
		w.stages[stage] = r
	}
	r.add(ms)
}

func (w *PerfWindow) ObserveIndicator(name string) {
	name = strings.TrimSpace(name)
	if w == nil || name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

func (w *PerfWindow) Snapshot() PerfSnapshot {
	snap := PerfSnapshot{
		GeneratedAt: time.Now().UTC(),
		UseCases:    []UseCaseStats{},
		Stages:      []StageStats{},
	}
	if w == nil {
		return snap
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	snap.WindowSize = w.size

	for _, name := range sortedKeys(w.useCases) {
		g := w.useCases[name]
		if g.latency.n == 0 {
			continue
		}
		snap.UseCases = append(snap.UseCases, g.stats(name))
	}
	for _, name := range sortedKeys(w.stages) {
		r := w.stages[name]
		if r.n == 0 {
			continue
		}
		snap.Stages = append(snap.Stages, StageStats{
			Stage:       name,
			Latency:     r.summary(),
			TargetP95MS: stageTargetP95MS[name],
		})
	}
	for _, name := range sortedKeys(w.indicators) {
		snap.Indicators = append(snap.Indicators, Indicator{Name: name, Count: w.indicators[name]})
	}
	return snap
}

// ring is a fixed-size circular buffer of millisecond samples.
type ring struct {
	values []float64
	pos    int
	n      int
	last   float64
}

func newRing(size int) *ring {
	return &ring{values: make([]float64, size)}
}

func (r *ring) add(ms float64) {
	r.values[r.pos] = ms
	r.last = ms
	r.pos = (r.pos + 1) % len(r.values)
	if r.n < len(r.values) {
		r.n++
	}
}

func (r *ring) summary() Latency {
	sorted := append([]float64(nil), r.values[:r.n]...)
	sort.Float64s(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return Latency{
		Samples: r.n,
		LastMS:  round2(r.last),
		AvgMS:   round2(sum / float64(r.n)),
		P50MS:   round2(percentile(sorted, 0.50)),
		P95MS:   round2(percentile(sorted, 0.95)),
		P99MS:   round2(percentile(sorted, 0.99)),
	}
}

// generationRing pairs each latency sample with the source of that generation.
type generationRing struct {
	latency *ring
	sources []string
}

func (g *generationRing) add(source string, ms float64) {
	g.sources[g.latency.pos] = source
	g.latency.add(ms)
}

func (g *generationRing) stats(useCase string) UseCaseStats {
	sources := make(map[string]int)
	for _, s := range g.sources[:g.latency.n] {
		sources[s]++
	}
	return UseCaseStats{
		UseCase:      useCase,
		Latency:      g.latency.summary(),
		Sources:      sources,
		FallbackRate: round2(float64(sources[SourceFallback]) / float64(g.latency.n)),
	}
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*(pos-float64(lo))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var stageTargetP95MS = map[string]float64{
	StageMemoryLookup: 800,
	StageWebSearch:    4000,
	StageLLM:          12000,
	StageExtract:      5,
	StageMaterials:    8000,
}
