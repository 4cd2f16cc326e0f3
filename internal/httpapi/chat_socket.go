package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/studybuddy/internal/generation"
	"github.com/ent0n29/studybuddy/internal/protocol"
	"github.com/ent0n29/studybuddy/internal/session"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsIdleTimeout  = 120 * time.Second
)

// chatTurn runs one chat exchange inside a session and records it in the
// session history.
func (s *Server) chatTurn(ctx context.Context, sessionID, message, topic, tasksContext string) (string, generation.ChatResponse, error) {
	turnID := uuid.NewString()
	if err := s.sessions.StartTurn(sessionID, turnID); err != nil {
		return "", generation.ChatResponse{}, err
	}
	if topic = strings.TrimSpace(topic); topic != "" {
		_ = s.sessions.SetTopic(sessionID, topic)
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		_ = s.sessions.AbortTurn(sessionID)
		return "", generation.ChatResponse{}, err
	}

	resp := s.generator.Chat(ctx, generation.ChatRequest{
		UserID:        sess.UserID,
		SessionID:     sess.ID,
		Topic:         sess.Topic,
		Message:       message,
		History:       sess.History,
		Understanding: sess.Understanding,
		TasksContext:  tasksContext,
	})
	if err := ctx.Err(); err != nil {
		_ = s.sessions.AbortTurn(sessionID)
		return "", generation.ChatResponse{}, err
	}
	if _, err := s.sessions.CompleteTurn(sessionID, message, resp.Response, resp.Understanding); err != nil {
		return "", generation.ChatResponse{}, err
	}
	return turnID, resp, nil
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "id"))
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if sess.Status != session.StatusActive {
		respondError(w, http.StatusGone, "session_ended", session.ErrEnded.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.metrics.ObserveIndicator("ws_connected")
	s.logger.Debug("chat socket connected", zap.String("session_id", sessionID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 16)
	outbound := make(chan any, 64)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		defer close(outbound)
		s.runConnection(ctx, sess, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		for msg := range outbound {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				s.metrics.ObserveIndicator("ws_write_error")
				cancel()
				return
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
			time.Now().Add(time.Second))
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		var next any
		parsed, err := protocol.ParseClientMessage(data)
		switch {
		case err != nil:
			next = protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Detail:    err.Error(),
			}
		case sessionIDOf(parsed) != sessionID:
			next = protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "session_mismatch",
				Source:    "gateway",
				Detail:    "message session_id does not match this socket",
			}
		default:
			next = parsed
		}

		select {
		case <-ctx.Done():
			break readLoop
		case <-runDone:
			break readLoop
		case inbound <- next:
		}
	}

	cancel()
	<-runDone
	<-writerDone
	s.metrics.ObserveIndicator("ws_disconnected")
}

// runConnection answers socket messages one at a time until the session
// ends or the context is cancelled. It is the only writer to outbound.
func (s *Server) runConnection(ctx context.Context, sess *session.Session, inbound <-chan any, outbound chan<- any) {
	send := func(v any) bool {
		select {
		case <-ctx.Done():
			return false
		case outbound <- v:
			return true
		}
	}

	if !send(protocol.SessionReady{
		Type:      protocol.TypeSessionReady,
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Topic:     sess.Topic,
	}) {
		return
	}

	for {
		var msg any
		select {
		case <-ctx.Done():
			return
		case msg = <-inbound:
		}

		switch m := msg.(type) {
		case protocol.ErrorEvent:
			send(m)
		case protocol.ChatMessage:
			turnID, resp, err := s.chatTurn(ctx, sess.ID, m.Message, m.Topic, m.TasksContext)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				_, code := sessionErrorStatus(err)
				send(protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					SessionID: sess.ID,
					Code:      code,
					Source:    "session",
					Retryable: errors.Is(err, session.ErrTurnInProgress),
					Detail:    err.Error(),
				})
				if errors.Is(err, session.ErrEnded) || errors.Is(err, session.ErrNotFound) {
					return
				}
				continue
			}
			send(protocol.ChatResponse{
				Type:      protocol.TypeChatResponse,
				SessionID: sess.ID,
				TurnID:    turnID,
				Response:  resp,
			})
		case protocol.ClientControl:
			switch m.Action {
			case protocol.ActionPing:
				_ = s.sessions.Touch(sess.ID)
				send(systemEvent(sess.ID, "pong", ""))
			case protocol.ActionSetTopic:
				topic := strings.TrimSpace(m.Topic)
				if err := s.sessions.SetTopic(sess.ID, topic); err != nil {
					return
				}
				send(systemEvent(sess.ID, "topic_changed", topic))
			case protocol.ActionEnd:
				_, _ = s.sessions.End(sess.ID)
				s.trackSessions()
				send(systemEvent(sess.ID, "session_ended", ""))
				return
			}
		}
	}
}

func systemEvent(sessionID, code, detail string) protocol.SystemEvent {
	return protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: sessionID,
		Code:      code,
		Detail:    detail,
	}
}

func sessionIDOf(v any) string {
	switch m := v.(type) {
	case protocol.ChatMessage:
		return m.SessionID
	case protocol.ClientControl:
		return m.SessionID
	default:
		return ""
	}
}
