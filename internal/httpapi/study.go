package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/studybuddy/internal/generation"
	"github.com/ent0n29/studybuddy/internal/protocol"
	"github.com/ent0n29/studybuddy/internal/understanding"
)

type flashcardsRequest struct {
	Topic         string            `json:"topic"`
	Count         int               `json:"count"`
	Understanding understanding.Map `json:"understanding,omitempty"`
}

type studyGuideRequest struct {
	Topic         string            `json:"topic"`
	Level         string            `json:"level"`
	Understanding understanding.Map `json:"understanding,omitempty"`
}

type materialsRequest struct {
	Topic string `json:"topic"`
}

type refineRequest struct {
	Roadmap  generation.Roadmap `json:"roadmap"`
	Feedback string             `json:"feedback"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req generation.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "missing_message", "message is required")
		return
	}
	if len([]rune(req.Message)) > protocol.MaxMessageRunes {
		respondError(w, http.StatusRequestEntityTooLarge, "message_too_long", "message is too long")
		return
	}

	if req.SessionID != "" {
		_, resp, err := s.chatTurn(r.Context(), req.SessionID, req.Message, req.Topic, req.TasksContext)
		if err != nil {
			status, code := sessionErrorStatus(err)
			respondError(w, status, code, err.Error())
			return
		}
		respond(w, http.StatusOK, "", resp)
		return
	}

	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}
	if strings.TrimSpace(req.Topic) == "" {
		req.Topic = "general"
	}
	respond(w, http.StatusOK, "", s.generator.Chat(r.Context(), req))
}

func (s *Server) handleAskAboutTask(w http.ResponseWriter, r *http.Request) {
	var q generation.TaskQuestion
	if err := decodeJSON(r, &q); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(q.Task) == "" || strings.TrimSpace(q.Question) == "" {
		respondError(w, http.StatusBadRequest, "missing_fields", "task and question are required")
		return
	}
	respond(w, http.StatusOK, "", s.generator.AskAboutTask(r.Context(), q))
}

func (s *Server) handleFlashcards(w http.ResponseWriter, r *http.Request) {
	var req flashcardsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		respondError(w, http.StatusBadRequest, "missing_topic", "topic is required")
		return
	}
	set := s.generator.Flashcards(r.Context(), req.Topic, req.Count, req.Understanding)
	respond(w, http.StatusOK, messageFor(set.Source, "flashcards"), set)
}

func (s *Server) handleStudyGuide(w http.ResponseWriter, r *http.Request) {
	var req studyGuideRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		respondError(w, http.StatusBadRequest, "missing_topic", "topic is required")
		return
	}
	guide := s.generator.StudyGuide(r.Context(), req.Topic, req.Level, req.Understanding)
	respond(w, http.StatusOK, messageFor(guide.Source, "study guide"), guide)
}

func (s *Server) handleMaterials(w http.ResponseWriter, r *http.Request) {
	var req materialsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		respondError(w, http.StatusBadRequest, "missing_topic", "topic is required")
		return
	}
	bundle := s.generator.Materials(r.Context(), req.Topic)
	respond(w, http.StatusOK, messageFor(bundle.Source, "materials"), bundle)
}

func (s *Server) handleRoadmap(w http.ResponseWriter, r *http.Request) {
	var req generation.RoadmapRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	roadmap, err := s.generator.Roadmap(r.Context(), req)
	if err != nil {
		if errors.Is(err, generation.ErrInvalidRoadmap) {
			respondError(w, http.StatusBadRequest, "invalid_roadmap", err.Error())
			return
		}
		s.logger.Error("roadmap generation failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal", "roadmap generation failed")
		return
	}
	respond(w, http.StatusOK, messageFor(roadmap.Source, "roadmap"), roadmap)
}

func (s *Server) handleRefineRoadmap(w http.ResponseWriter, r *http.Request) {
	var req refineRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(req.Roadmap.Plan) == 0 {
		respondError(w, http.StatusBadRequest, "missing_roadmap", "roadmap is required")
		return
	}
	refined := s.generator.RefineRoadmap(r.Context(), req.Roadmap, req.Feedback)
	respond(w, http.StatusOK, messageFor(refined.Source, "roadmap"), refined)
}

// messageFor tells clients when they received canned content.
func messageFor(source generation.Source, what string) string {
	switch source {
	case generation.SourceFallback:
		return what + " generated from fallback content"
	case generation.SourceSearch:
		return what + " completed from web search"
	default:
		return what + " generated"
	}
}
