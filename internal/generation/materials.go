package generation

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/studybuddy/internal/extract"
	"github.com/ent0n29/studybuddy/internal/observability"
	"github.com/ent0n29/studybuddy/internal/policy"
	"github.com/ent0n29/studybuddy/internal/prompt"
	"github.com/ent0n29/studybuddy/internal/search"
)

// MaxPerCategory caps each materials category filled from search.
const MaxPerCategory = 5

// Category is one of the four materials groups.
type Category string

const (
	CategoryVideos   Category = "videos"
	CategoryArticles Category = "articles"
	CategoryPractice Category = "practice"
	CategoryTools    Category = "tools"
)

var Categories = []Category{CategoryVideos, CategoryArticles, CategoryPractice, CategoryTools}

// MaterialsQuery is the web search used to fill category for topic.
func MaterialsQuery(topic string, c Category) string {
	switch c {
	case CategoryVideos:
		return topic + " tutorial video YouTube"
	case CategoryArticles:
		return topic + " guide article documentation"
	case CategoryPractice:
		return topic + " practice exercises examples code"
	default:
		return topic + " tools libraries frameworks"
	}
}

var (
	videoHosts       = []string{"youtube.com", "youtu.be"}
	articleBlacklist = []string{"youtube.com", "youtu.be", "twitter.com", "facebook.com"}
	practiceKeywords = []string{"exercise", "practice", "example", "tutorial"}
	toolKeywords     = []string{"library", "framework", "tool", "package"}
)

// Materials asks the model for resources and backfills every empty
// category from a targeted web search.
func (o *Orchestrator) Materials(ctx context.Context, topic string) MaterialsBundle {
	start := time.Now()
	vars := map[string]any{
		"topic":         topic,
		"language":      policy.DetectLanguage(topic),
		"tasks_context": prompt.DefaultTasksContext,
	}
	_, res := o.generate(ctx, "materials", prompt.Materials, vars)

	bundle := MaterialsBundle{Topic: topic, Source: SourceModel}
	if res.OK() {
		bundle.Videos = materialsOf(res.Value[string(CategoryVideos)], "video")
		bundle.Articles = materialsOf(res.Value[string(CategoryArticles)], "article")
		bundle.Practice = materialsOf(res.Value[string(CategoryPractice)], "practice")
		bundle.Tools = materialsOf(res.Value[string(CategoryTools)], "tool")
		bundle.Source = sourceOf(res)
	}
	if bundle.Complete() {
		o.finish("materials", bundle.Source, start)
		return bundle
	}

	modelHadAny := len(bundle.Videos)+len(bundle.Articles)+len(bundle.Practice)+len(bundle.Tools) > 0
	var missing []Category
	for _, c := range Categories {
		if len(*bundle.slot(c)) == 0 {
			missing = append(missing, c)
		}
	}
	backfillStart := time.Now()
	found := o.SearchMaterials(ctx, topic, missing...)
	o.metrics.ObserveStage(observability.StageMaterials, time.Since(backfillStart))

	backfilled := false
	for _, c := range missing {
		if items := found[c]; len(items) > 0 {
			*bundle.slot(c) = items
			backfilled = true
		}
	}
	switch {
	case backfilled:
		bundle.Source = SourceSearch
	case !modelHadAny:
		bundle.Source = SourceFallback
	}
	bundle.fillEmpty()
	o.logger.Info("materials backfilled",
		zap.String("topic", topic),
		zap.Int("missing", len(missing)),
		zap.Bool("from_search", backfilled),
	)
	o.finish("materials", bundle.Source, start)
	return bundle
}

// SearchMaterials runs one targeted search per category, concurrently, and
// classifies the result lines. Failed searches yield empty categories.
func (o *Orchestrator) SearchMaterials(ctx context.Context, topic string, categories ...Category) map[Category][]Material {
	if len(categories) == 0 {
		categories = Categories
	}
	results := make([]string, len(categories))
	if o.search != nil {
		var g errgroup.Group
		for i, c := range categories {
			g.Go(func() error {
				results[i] = o.runSearch(ctx, MaterialsQuery(topic, c))
				return nil
			})
		}
		_ = g.Wait()
	}

	out := make(map[Category][]Material, len(categories))
	for i, c := range categories {
		out[c] = ClassifyMaterials(c, results[i])
	}
	return out
}

func (o *Orchestrator) runSearch(ctx context.Context, query string) string {
	ctx, cancel := context.WithTimeout(ctx, o.searchTimeout)
	defer cancel()
	text, err := o.search.Run(ctx, query)
	if err != nil {
		if !errors.Is(err, search.ErrDisabled) {
			o.logger.Warn("materials search failed", zap.String("query", query), zap.Error(err))
		}
		return ""
	}
	return text
}

// ClassifyMaterials turns search result lines into resources for category.
func ClassifyMaterials(c Category, results string) []Material {
	switch c {
	case CategoryVideos:
		return VideosFromSearch(results)
	case CategoryArticles:
		return ArticlesFromSearch(results)
	case CategoryPractice:
		return PracticeFromSearch(results)
	default:
		return ToolsFromSearch(results)
	}
}

// VideosFromSearch keeps video-host URLs from lines that mention a video host.
func VideosFromSearch(results string) []Material {
	return collect(results, func(line, lower, u string) (Material, bool) {
		if !containsAny(lower, videoHosts) || !containsAny(u, videoHosts) {
			return Material{}, false
		}
		return Material{Title: search.ExtractTitle(line), URL: u, Channel: "YouTube", Duration: "Unknown duration", Type: "video"}, true
	})
}

// ArticlesFromSearch keeps every URL not on a social or video host.
func ArticlesFromSearch(results string) []Material {
	return collect(results, func(line, _, u string) (Material, bool) {
		if containsAny(u, articleBlacklist) {
			return Material{}, false
		}
		return Material{Title: search.ExtractTitle(line), URL: u, Source: search.ExtractDomain(u), ReadingTime: "Unknown reading time", Type: "article"}, true
	})
}

// PracticeFromSearch keeps URLs on lines mentioning exercises or examples.
func PracticeFromSearch(results string) []Material {
	return collect(results, func(line, lower, u string) (Material, bool) {
		if !containsAny(lower, practiceKeywords) {
			return Material{}, false
		}
		return Material{Title: search.ExtractTitle(line), URL: u, Difficulty: "Intermediate", Type: "practice"}, true
	})
}

// ToolsFromSearch keeps URLs on lines mentioning libraries or frameworks.
func ToolsFromSearch(results string) []Material {
	return collect(results, func(line, lower, u string) (Material, bool) {
		if !containsAny(lower, toolKeywords) {
			return Material{}, false
		}
		desc := strings.TrimSpace(line)
		if len([]rune(desc)) > 100 {
			desc = extract.Truncate(desc, 100) + "..."
		}
		return Material{Name: search.ExtractTitle(line), URL: u, Description: desc, Type: "tool"}, true
	})
}

func collect(results string, pick func(line, lower, url string) (Material, bool)) []Material {
	out := []Material{}
	for _, line := range strings.Split(results, "\n") {
		lower := strings.ToLower(line)
		for _, u := range search.URLs(line) {
			m, ok := pick(line, lower, u)
			if !ok {
				continue
			}
			out = append(out, m)
			if len(out) == MaxPerCategory {
				return out
			}
		}
	}
	return out
}

func materialsOf(v any, kind string) []Material {
	out := []Material{}
	for _, m := range objectsOf(v) {
		item := Material{
			Title:       textOf(m["title"]),
			Name:        textOf(m["name"]),
			URL:         textOf(m["url"]),
			Channel:     textOf(m["channel"]),
			Duration:    textOf(m["duration"]),
			Source:      textOf(m["source"]),
			ReadingTime: textOf(m["reading_time"]),
			Difficulty:  textOf(m["difficulty"]),
			Description: textOf(m["description"]),
			Type:        orDefault(textOf(m["type"]), kind),
		}
		if item.URL == "" || (item.Title == "" && item.Name == "") {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (m *MaterialsBundle) slot(c Category) *[]Material {
	switch c {
	case CategoryVideos:
		return &m.Videos
	case CategoryArticles:
		return &m.Articles
	case CategoryPractice:
		return &m.Practice
	default:
		return &m.Tools
	}
}

// fillEmpty replaces nil categories with empty slices so they encode as [].
func (m *MaterialsBundle) fillEmpty() {
	for _, c := range Categories {
		if s := m.slot(c); *s == nil {
			*s = []Material{}
		}
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
