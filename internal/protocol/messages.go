package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/studybuddy/internal/generation"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatMessage   MessageType = "chat_message"
	TypeClientControl MessageType = "control"
	TypeSessionReady  MessageType = "session_ready"
	TypeChatResponse  MessageType = "chat_response"
	TypeSystemEvent   MessageType = "system_event"
	TypeErrorEvent    MessageType = "error_event"
)

// Control actions.
const (
	ActionEnd      = "end"
	ActionPing     = "ping"
	ActionSetTopic = "set_topic"
)

// MaxMessageRunes bounds a single chat message.
const MaxMessageRunes = 8000

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ChatMessage struct {
	Type         MessageType `json:"type"`
	SessionID    string      `json:"session_id"`
	Message      string      `json:"message"`
	Topic        string      `json:"topic,omitempty"`
	TasksContext string      `json:"tasks_context,omitempty"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	Topic     string      `json:"topic,omitempty"`
}

type SessionReady struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	UserID    string      `json:"user_id"`
	Topic     string      `json:"topic"`
}

type ChatResponse struct {
	Type      MessageType             `json:"type"`
	SessionID string                  `json:"session_id"`
	TurnID    string                  `json:"turn_id"`
	Response  generation.ChatResponse `json:"response"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatMessage:
		var msg ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.Message = strings.TrimSpace(msg.Message)
		if msg.SessionID == "" || msg.Message == "" {
			return nil, errors.New("invalid chat_message")
		}
		if len([]rune(msg.Message)) > MaxMessageRunes {
			return nil, fmt.Errorf("chat_message exceeds %d characters", MaxMessageRunes)
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid control")
		}
		switch msg.Action {
		case ActionEnd, ActionPing:
		case ActionSetTopic:
			if strings.TrimSpace(msg.Topic) == "" {
				return nil, errors.New("set_topic requires a topic")
			}
		default:
			return nil, fmt.Errorf("unknown control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
