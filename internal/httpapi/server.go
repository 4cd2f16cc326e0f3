package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/studybuddy/internal/config"
	"github.com/ent0n29/studybuddy/internal/generation"
	"github.com/ent0n29/studybuddy/internal/memory"
	"github.com/ent0n29/studybuddy/internal/observability"
	"github.com/ent0n29/studybuddy/internal/session"
	"github.com/ent0n29/studybuddy/internal/understanding"
)

// Generator is the study content surface served over HTTP.
type Generator interface {
	Chat(ctx context.Context, req generation.ChatRequest) generation.ChatResponse
	AskAboutTask(ctx context.Context, q generation.TaskQuestion) generation.Answer
	Flashcards(ctx context.Context, topic string, count int, known understanding.Map) generation.FlashcardSet
	StudyGuide(ctx context.Context, topic, level string, known understanding.Map) generation.StudyGuide
	Materials(ctx context.Context, topic string) generation.MaterialsBundle
	Roadmap(ctx context.Context, req generation.RoadmapRequest) (generation.Roadmap, error)
	RefineRoadmap(ctx context.Context, current generation.Roadmap, feedback string) generation.Roadmap
}

// MemoryAdmin exposes stored conversation turns for inspection and removal.
type MemoryAdmin interface {
	Status() memory.Status
	Stats(ctx context.Context, userID string) (memory.Stats, error)
	History(ctx context.Context, userID string, limit int, topic string) []memory.ChatTurn
	Delete(ctx context.Context, userID string, ids []string) error
}

type Server struct {
	cfg       config.Config
	sessions  *session.Manager
	generator Generator
	memory    MemoryAdmin
	metrics   *observability.Metrics
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, generator Generator, mem MemoryAdmin, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		sessions:  sessions,
		generator: generator,
		memory:    mem,
		metrics:   metrics,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only open chat sockets from the serving origin.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observeRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/stages", s.handlePerfStages)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/tasks/ask", s.handleAskAboutTask)
		r.Post("/flashcards", s.handleFlashcards)
		r.Post("/study-guide", s.handleStudyGuide)
		r.Post("/materials", s.handleMaterials)
		r.Post("/roadmaps", s.handleRoadmap)
		r.Post("/roadmaps/refine", s.handleRefineRoadmap)

		r.Post("/sessions", s.handleCreateSession)
		r.Delete("/sessions/{id}", s.handleEndSession)
		r.Get("/sessions/{id}/ws", s.handleSessionWS)

		r.Get("/memory/status", s.handleMemoryStatus)
		r.Get("/memory/{userID}/stats", s.handleMemoryStats)
		r.Get("/memory/{userID}/history", s.handleMemoryHistory)
		r.Delete("/memory/{userID}", s.handleMemoryDelete)
	})
	return r
}

// observeRequests counts requests by route pattern and status code.
func (s *Server) observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(route, strconv.Itoa(status))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":          "ready",
		"llm_provider":    s.cfg.LLMProvider,
		"search_enabled":  s.cfg.SearchEnabled,
		"active_sessions": s.sessions.ActiveCount(),
	}
	if s.memory != nil {
		body["memory"] = s.memory.Status()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		req.UserID = "anonymous"
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		req.Topic = "general"
	}

	sess := s.sessions.Create(req.UserID, req.Topic, req.Understanding)
	s.trackSessions()
	s.logger.Info("session created", zap.String("session_id", sess.ID), zap.String("user_id", sess.UserID))

	respond(w, http.StatusCreated, "session created", session.CreateResponse{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		Topic:           sess.Topic,
		Status:          sess.Status,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.sessions.InactivityTimeout().Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.trackSessions()
	respond(w, http.StatusOK, "session ended", sess)
}

func (s *Server) trackSessions() {
	if s.metrics == nil || s.sessions == nil {
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

var errEmptyBody = errors.New("empty body")

// maxBodyBytes bounds request bodies; roadmaps are the largest payloads.
const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respond(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Status: "success", Message: message, Data: data})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{Status: "error", Message: message, Code: code})
}

// sessionErrorStatus maps session manager errors onto HTTP statuses.
func sessionErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, session.ErrEnded):
		return http.StatusGone, "session_ended"
	case errors.Is(err, session.ErrTurnInProgress):
		return http.StatusConflict, "turn_in_progress"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
