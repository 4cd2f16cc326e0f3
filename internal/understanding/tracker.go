// Package understanding scores conversations and keeps a per-concept mastery map.
package understanding

import (
	"fmt"
	"sort"
	"strings"
)

// Map is a user's concept -> mastery level, each in [0, 100]. Keys are lowercase.
type Map map[string]int

const (
	MaxLevel      = 100
	MaxComplexity = 5
	// MaxGain bounds the per-update improvement of a single concept.
	MaxGain = 10
	// MinTopicLevel is the level a brand-new topic starts at.
	MinTopicLevel = 10
	MaxConcepts   = 10
)

var complexityIndicators = []string{
	"how does", "why does", "explain", "compare", "difference between",
	"implement", "optimize", "architecture", "best practice", "advanced",
}

var technicalTerms = map[string]bool{
	"function": true, "variable": true, "class": true, "object": true, "method": true,
	"algorithm": true, "framework": true, "library": true, "api": true, "database": true,
	"syntax": true, "compiler": true, "debug": true, "deploy": true, "optimize": true,
}

// Complexity scores an exchange from 0 to MaxComplexity.
func Complexity(userMessage, aiResponse string) int {
	score := 0
	if len(strings.Fields(userMessage)) > 20 {
		score += 2
	}
	if len(strings.Fields(aiResponse)) > 100 {
		score += 3
	}
	lower := strings.ToLower(userMessage)
	for _, phrase := range complexityIndicators {
		if strings.Contains(lower, phrase) {
			score += 2
		}
	}
	if strings.Contains(aiResponse, "```") {
		score += 3
	}
	return min(score, MaxComplexity)
}

// Concepts returns the lowercased topic followed by any technical terms in
// text, in order of first appearance, deduplicated and capped at MaxConcepts.
func Concepts(text, topic string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(c string) {
		if c == "" || seen[c] || len(out) >= MaxConcepts {
			return
		}
		seen[c] = true
		out = append(out, c)
	}
	add(strings.ToLower(strings.TrimSpace(topic)))
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?()[]{}\"'`")
		if technicalTerms[word] {
			add(word)
		}
	}
	return out
}

// Update returns a new map with every concept in the exchange raised by
// min(2*complexity, MaxGain). current is not modified.
func Update(userMessage, aiResponse string, current Map, topic string) Map {
	next := make(Map, len(current)+MaxConcepts)
	for k, v := range current {
		next[k] = clamp(v)
	}

	gain := min(Complexity(userMessage, aiResponse)*2, MaxGain)
	for _, concept := range Concepts(userMessage+" "+aiResponse, topic) {
		next[concept] = clamp(next[concept] + gain)
	}

	key := strings.ToLower(strings.TrimSpace(topic))
	if key != "" {
		if _, had := current[key]; !had && next[key] < MinTopicLevel {
			next[key] = MinTopicLevel
		}
	}
	return next
}

// Level names a mastery score for prompts.
func Level(score int) string {
	switch {
	case score >= 70:
		return "advanced"
	case score >= 30:
		return "intermediate"
	default:
		return "beginner"
	}
}

// Describe renders the map as prompt text, topic first then by level descending.
func Describe(m Map, topic string) string {
	if len(m) == 0 {
		return "No prior understanding recorded"
	}
	key := strings.ToLower(strings.TrimSpace(topic))
	concepts := make([]string, 0, len(m))
	for c := range m {
		concepts = append(concepts, c)
	}
	sort.Slice(concepts, func(i, j int) bool {
		a, b := concepts[i], concepts[j]
		if (a == key) != (b == key) {
			return a == key
		}
		if m[a] != m[b] {
			return m[a] > m[b]
		}
		return a < b
	})
	parts := make([]string, 0, len(concepts))
	for _, c := range concepts {
		parts = append(parts, fmt.Sprintf("%s: %d/100 (%s)", c, m[c], Level(m[c])))
	}
	return strings.Join(parts, ", ")
}

func clamp(v int) int {
	return max(0, min(v, MaxLevel))
}
