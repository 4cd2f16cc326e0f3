package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestParseClientMessageChat(t *testing.T) {
	raw := []byte(`{"type":"chat_message","session_id":"s1","message":"  what is a closure? ","topic":"python"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	chat, ok := msg.(ChatMessage)
	if !ok {
		t.Fatalf("message type = %T, want ChatMessage", msg)
	}
	if chat.SessionID != "s1" || chat.Message != "what is a closure?" || chat.Topic != "python" {
		t.Fatalf("unexpected chat message: %+v", chat)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageControl(t *testing.T) {
	raw := []byte(`{"type":"control","session_id":"s1","action":"set_topic","topic":"rust"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.Action != ActionSetTopic || control.Topic != "rust" {
		t.Fatalf("unexpected control: %+v", control)
	}
}

func TestParseClientMessageRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty message":     `{"type":"chat_message","session_id":"s1","message":"   "}`,
		"missing session":   `{"type":"chat_message","message":"hi"}`,
		"unknown action":    `{"type":"control","session_id":"s1","action":"dance"}`,
		"topic-less switch": `{"type":"control","session_id":"s1","action":"set_topic"}`,
		"oversized":         `{"type":"chat_message","session_id":"s1","message":"` + strings.Repeat("a", MaxMessageRunes+1) + `"}`,
		"not json":          `{"type":`,
	}
	for name, raw := range cases {
		if _, err := ParseClientMessage([]byte(raw)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func BenchmarkParseClientMessageChat(b *testing.B) {
	raw := []byte(`{"type":"chat_message","session_id":"s1","message":"explain goroutines and channels","topic":"go"}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg, err := ParseClientMessage(raw)
		if err != nil {
			b.Fatalf("ParseClientMessage() error = %v", err)
		}
		if _, ok := msg.(ChatMessage); !ok {
			b.Fatalf("message type = %T, want ChatMessage", msg)
		}
	}
}
