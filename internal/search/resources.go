package search

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ent0n29/studybuddy/internal/extract"
)

const (
	MaxResources = 8
	TitleLimit   = 60
	SnippetLimit = 150
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// Resource is a link pulled out of search text.
type Resource struct {
	URL         string `json:"url"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Domain      string `json:"domain"`
	Description string `json:"description"`
}

// URLs returns every http(s) URL in line, in order.
func URLs(line string) []string {
	return urlPattern.FindAllString(line, -1)
}

// ExtractResources collects up to limit unique resources from search text.
// limit <= 0 selects MaxResources.
func ExtractResources(text string, limit int) []Resource {
	if limit <= 0 {
		limit = MaxResources
	}
	seen := make(map[string]bool)
	var out []Resource
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, "http") {
			continue
		}
		title := ExtractTitle(line)
		if title == "" {
			continue
		}
		for _, u := range URLs(line) {
			if seen[u] {
				continue
			}
			if len(out) >= limit {
				return out
			}
			seen[u] = true
			out = append(out, Resource{
				URL:         u,
				Type:        ClassifyResourceType(u, line),
				Title:       title,
				Domain:      ExtractDomain(u),
				Description: Snippet(line, SnippetLimit),
			})
		}
	}
	return out
}

// ClassifyResourceType labels a URL as video, tool, documentation or article.
func ClassifyResourceType(rawURL, context string) string {
	u := strings.ToLower(rawURL)
	switch {
	case strings.Contains(u, "youtube.com") || strings.Contains(u, "youtu.be"):
		return "video"
	case strings.Contains(u, "github.com"):
		return "tool"
	case strings.Contains(u, "docs") || strings.Contains(strings.ToLower(context), "documentation"):
		return "documentation"
	default:
		return "article"
	}
}

// ExtractTitle strips URLs and leading bullets from a result line and
// truncates it to TitleLimit runes with an ellipsis.
func ExtractTitle(line string) string {
	clean := urlPattern.ReplaceAllString(line, "")
	clean = strings.Trim(clean, " -•\t")
	return Snippet(clean, TitleLimit)
}

// Snippet trims s and truncates it to n runes, appending "..." when cut.
func Snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	cut := extract.Truncate(s, n)
	if cut != s {
		return cut + "..."
	}
	return s
}

// ExtractDomain returns the URL host without a leading "www.".
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}
