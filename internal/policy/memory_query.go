package policy

import "strings"

// QueryClass is the memory-retrieval category of a user message.
type QueryClass string

const (
	QueryPersonal QueryClass = "personal"
	QueryShort    QueryClass = "short"
	QueryCode     QueryClass = "code"
	QueryConcept  QueryClass = "concept"
	QueryDefault  QueryClass = "default"
)

// MemoryParams are the similarity-search settings chosen for a message.
type MemoryParams struct {
	Class          QueryClass
	Threshold      float64
	Limit          int
	UseTopicFilter bool
}

const (
	DefaultMemoryThreshold = 0.75
	DefaultMemoryLimit     = 5
)

var (
	personalKeywords = []string{
		"my name", "who am i", "remember me", "i am ", "call me",
		"do you know", "can you recall", "have we talked", "previous conversation",
		"before", "earlier", "last time",
	}
	codeKeywords = []string{
		"code", "function", "class", "method", "import", "def ",
		"javascript", "python", "java", "c++", "html", "css",
		"example", "syntax", "error", "debug", "fix", "how to",
	}
	conceptKeywords = []string{
		"what is", "explain", "define", "meaning of", "understand",
		"concept", "theory", "principle", "basics", "fundamentals",
	}
	greetings = []string{
		"hi", "hello", "hey", "good morning", "good afternoon",
		"good evening", "what's up", "how are you",
	}
)

// ClassifyMemoryQuery picks memory search parameters for message.
// Personal phrasing wins over greetings, which win over code, then concept.
func ClassifyMemoryQuery(message string) MemoryParams {
	in := strings.ToLower(strings.TrimSpace(message))

	switch {
	case containsAny(in, personalKeywords):
		return MemoryParams{Class: QueryPersonal, Threshold: 0.4, Limit: 5}
	case isGreeting(in) || len(strings.Fields(in)) <= 2:
		return MemoryParams{Class: QueryShort, Threshold: 0.3, Limit: 3}
	case containsAny(in, codeKeywords):
		return MemoryParams{Class: QueryCode, Threshold: 0.8, Limit: DefaultMemoryLimit, UseTopicFilter: true}
	case containsAny(in, conceptKeywords):
		return MemoryParams{Class: QueryConcept, Threshold: 0.7, Limit: DefaultMemoryLimit, UseTopicFilter: true}
	default:
		return MemoryParams{Class: QueryDefault, Threshold: DefaultMemoryThreshold, Limit: DefaultMemoryLimit, UseTopicFilter: true}
	}
}

func isGreeting(in string) bool {
	for _, g := range greetings {
		if in == g || strings.HasPrefix(in, g+" ") || strings.Contains(in, " "+g+" ") {
			return true
		}
	}
	return false
}

func containsAny(in string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(in, kw) {
			return true
		}
	}
	return false
}
