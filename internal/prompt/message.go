package prompt

import (
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Message is one role-tagged line of chat history as clients send it.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ChatHistory converts client history to langchain messages. Roles other
// than user and assistant, and empty lines, are dropped.
func ChatHistory(history []Message) []llms.ChatMessage {
	out := make([]llms.ChatMessage, 0, len(history))
	for _, m := range history {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case "user", "human":
			out = append(out, llms.HumanChatMessage{Content: text})
		case "ai", "assistant", "model":
			out = append(out, llms.AIChatMessage{Content: text})
		}
	}
	return out
}
