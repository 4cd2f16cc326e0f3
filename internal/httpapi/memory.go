package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ent0n29/studybuddy/internal/memory"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

type deleteMemoryRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleMemoryStatus(w http.ResponseWriter, _ *http.Request) {
	if s.memory == nil {
		respond(w, http.StatusOK, "", memory.Status{State: memory.StateDisabled, Backend: "none", Embedder: "none", Reason: "memory not configured"})
		return
	}
	respond(w, http.StatusOK, "", s.memory.Status())
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.memoryUser(w, r)
	if !ok {
		return
	}
	stats, err := s.memory.Stats(r.Context(), userID)
	if err != nil {
		s.respondMemoryError(w, err)
		return
	}
	respond(w, http.StatusOK, "", stats)
}

func (s *Server) handleMemoryHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.memoryUser(w, r)
	if !ok {
		return
	}
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	topic := strings.TrimSpace(r.URL.Query().Get("topic"))
	turns := s.memory.History(r.Context(), userID, limit, topic)
	if turns == nil {
		turns = []memory.ChatTurn{}
	}
	respond(w, http.StatusOK, "", turns)
}

func (s *Server) handleMemoryDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.memoryUser(w, r)
	if !ok {
		return
	}
	var req deleteMemoryRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.memory.Delete(r.Context(), userID, req.IDs); err != nil {
		s.respondMemoryError(w, err)
		return
	}
	s.logger.Info("memory deleted", zap.String("user_id", userID), zap.Int("ids", len(req.IDs)))
	respond(w, http.StatusOK, "memory deleted", map[string]any{"user_id": userID, "deleted_ids": req.IDs})
}

func (s *Server) memoryUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.memory == nil {
		respondError(w, http.StatusServiceUnavailable, "memory_unavailable", memory.ErrUnavailable.Error())
		return "", false
	}
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "missing_user_id", "user id is required")
		return "", false
	}
	return userID, true
}

func (s *Server) respondMemoryError(w http.ResponseWriter, err error) {
	if errors.Is(err, memory.ErrUnavailable) {
		respondError(w, http.StatusServiceUnavailable, "memory_unavailable", err.Error())
		return
	}
	s.logger.Warn("memory request failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "memory_error", err.Error())
}
