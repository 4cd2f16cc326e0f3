package policy

import (
	"regexp"
	"strings"
)

var (
	temporalTriggers = []string{"current", "recent", "latest"}
	howToTriggers    = []string{"tutorial", "how to", "guide", "learn"}
	resourceTriggers = []string{"tools", "libraries", "frameworks", "resources"}

	trendKeywords = []string{"trend", "current", "nowadays", "state of", "news"}
	toolKeywords  = []string{"tool", "library", "libraries", "framework", "package", "resources"}

	yearPattern = regexp.MustCompile(`\b20[2-9][0-9]\b`)
)

// ShouldSearch reports whether message wants live web results: temporal
// wording, how-to phrasing or resource requests. Plain conceptual questions skip search.
func ShouldSearch(message string) bool {
	in := strings.ToLower(message)
	if containsAny(in, temporalTriggers) || yearPattern.MatchString(in) {
		return true
	}
	return containsAny(in, howToTriggers) || containsAny(in, resourceTriggers)
}

// SearchQuery builds the web query for a search-triggering message.
func SearchQuery(topic, message string) string {
	in := strings.ToLower(message)
	topic = strings.TrimSpace(topic)
	switch {
	case containsAny(in, trendKeywords):
		return strings.TrimSpace(topic + " current trends developments")
	case containsAny(in, toolKeywords):
		return strings.TrimSpace(topic + " tools libraries frameworks")
	default:
		return strings.TrimSpace(strings.Join(strings.Fields(topic+" "+message), " ") + " tutorial guide examples")
	}
}
