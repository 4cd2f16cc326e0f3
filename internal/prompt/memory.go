package prompt

import (
	"fmt"
	"strings"

	"github.com/ent0n29/studybuddy/internal/extract"
	"github.com/ent0n29/studybuddy/internal/memory"
)

// NoMemoryContext fills memory_context when nothing relevant was found.
const NoMemoryContext = "No relevant past conversations found."

const (
	memoryUserLimit = 150
	memoryAILimit   = 200
)

// FormatMemories renders retrieved turns as a numbered prompt section.
// Turns missing either side of the exchange are skipped.
func FormatMemories(matches []memory.Match) string {
	var b strings.Builder
	n := 0
	for _, m := range matches {
		user := strings.TrimSpace(m.Turn.UserMessage)
		ai := strings.TrimSpace(m.Turn.AIResponse)
		if user == "" || ai == "" {
			continue
		}
		if n == 0 {
			b.WriteString("## Relevant Past Conversations:\n")
		}
		n++
		topic := strings.TrimSpace(m.Turn.Topic)
		if topic == "" {
			topic = "general"
		}
		relevance := fmt.Sprintf("Relevance: %.1f%%", m.Score*100)
		if m.Confidence == memory.ConfidenceFallback {
			relevance += ", weak match"
		}
		fmt.Fprintf(&b, "\n%d. **%s** (%s)\n", n, strings.ToUpper(topic), relevance)
		fmt.Fprintf(&b, "   **User**: %s\n", clip(user, memoryUserLimit))
		fmt.Fprintf(&b, "   **AI**: %s\n", clip(ai, memoryAILimit))
	}
	if n == 0 {
		return ""
	}
	b.WriteString("\n---")
	return b.String()
}

func clip(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return extract.Truncate(s, n) + "..."
}
