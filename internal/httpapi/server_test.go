package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ent0n29/studybuddy/internal/config"
	"github.com/ent0n29/studybuddy/internal/generation"
	"github.com/ent0n29/studybuddy/internal/memory"
	"github.com/ent0n29/studybuddy/internal/observability"
	"github.com/ent0n29/studybuddy/internal/protocol"
	"github.com/ent0n29/studybuddy/internal/session"
	"github.com/ent0n29/studybuddy/internal/understanding"
)

type fakeGenerator struct {
	mu    sync.Mutex
	chats []generation.ChatRequest
}

func (f *fakeGenerator) Chat(_ context.Context, req generation.ChatRequest) generation.ChatResponse {
	f.mu.Lock()
	f.chats = append(f.chats, req)
	f.mu.Unlock()
	known := understanding.Map{req.Topic: len(req.History) + 1}
	return generation.ChatResponse{
		Response:      "echo: " + req.Message,
		Understanding: known,
		Source:        generation.SourceModel,
	}
}

func (f *fakeGenerator) lastChat() generation.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chats[len(f.chats)-1]
}

func (f *fakeGenerator) AskAboutTask(_ context.Context, q generation.TaskQuestion) generation.Answer {
	return generation.Answer{Answer: "about " + q.Task, Source: generation.SourceModel}
}

func (f *fakeGenerator) Flashcards(_ context.Context, topic string, _ int, _ understanding.Map) generation.FlashcardSet {
	return generation.FallbackFlashcards(topic)
}

func (f *fakeGenerator) StudyGuide(_ context.Context, topic, _ string, _ understanding.Map) generation.StudyGuide {
	return generation.FallbackStudyGuide(topic)
}

func (f *fakeGenerator) Materials(_ context.Context, topic string) generation.MaterialsBundle {
	return generation.MaterialsBundle{Topic: topic, Source: generation.SourceSearch}
}

func (f *fakeGenerator) Roadmap(_ context.Context, req generation.RoadmapRequest) (generation.Roadmap, error) {
	if req.Days <= 0 {
		return generation.Roadmap{}, fmt.Errorf("%w: days must be positive", generation.ErrInvalidRoadmap)
	}
	return generation.FallbackRoadmap(req), nil
}

func (f *fakeGenerator) RefineRoadmap(_ context.Context, current generation.Roadmap, _ string) generation.Roadmap {
	current.Source = generation.SourceFallback
	return current
}

type fakeMemory struct {
	turns   []memory.ChatTurn
	deleted []string
}

func (f *fakeMemory) Status() memory.Status {
	return memory.Status{State: memory.StateReady, Available: true, Backend: "chromem"}
}

func (f *fakeMemory) Stats(_ context.Context, userID string) (memory.Stats, error) {
	if userID == "ghost" {
		return memory.Stats{}, memory.ErrUnavailable
	}
	return memory.Stats{UserID: userID, TotalTurns: len(f.turns)}, nil
}

func (f *fakeMemory) History(_ context.Context, _ string, limit int, _ string) []memory.ChatTurn {
	if limit < len(f.turns) {
		return f.turns[:limit]
	}
	return f.turns
}

func (f *fakeMemory) Delete(_ context.Context, _ string, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

type testServer struct {
	*httptest.Server
	gen      *fakeGenerator
	mem      *fakeMemory
	sessions *session.Manager
	metrics  *observability.Metrics
}

func newTestServer(t *testing.T, withMemory bool) *testServer {
	t.Helper()
	cfg := config.Config{SessionInactivityTimeout: 2 * time.Minute, LLMProvider: "mock"}
	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	metrics := observability.NewMetrics("test_httpapi", prometheus.NewRegistry())
	gen := &fakeGenerator{}

	ts := &testServer{gen: gen, sessions: sessions, metrics: metrics}
	var mem MemoryAdmin
	if withMemory {
		ts.mem = &fakeMemory{turns: make([]memory.ChatTurn, 150)}
		mem = ts.mem
	}
	srv := New(cfg, sessions, gen, mem, metrics, nil)
	ts.Server = httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) (int, envelopeOf) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer res.Body.Close()
	var env envelopeOf
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return res.StatusCode, env
}

type envelopeOf struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func TestCreateAndEndSession(t *testing.T) {
	ts := newTestServer(t, false)

	status, env := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions", map[string]string{"user_id": "user-1", "topic": "python"})
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", status, http.StatusCreated)
	}
	if env.Status != "success" {
		t.Fatalf("envelope status = %q, want success", env.Status)
	}
	var created session.CreateResponse
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.SessionID == "" || created.Topic != "python" {
		t.Fatalf("unexpected create response: %+v", created)
	}
	if created.InactivityTTLMS != (2 * time.Minute).Milliseconds() {
		t.Fatalf("InactivityTTLMS = %d", created.InactivityTTLMS)
	}

	status, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/sessions/"+created.SessionID, nil)
	if status != http.StatusOK {
		t.Fatalf("end status = %d, want %d", status, http.StatusOK)
	}
	status, env = doJSON(t, http.MethodDelete, ts.URL+"/v1/sessions/missing", nil)
	if status != http.StatusNotFound || env.Code != "session_not_found" {
		t.Fatalf("end missing = %d %q", status, env.Code)
	}
}

func TestChatWithoutSessionDefaultsIdentity(t *testing.T) {
	ts := newTestServer(t, false)

	status, env := doJSON(t, http.MethodPost, ts.URL+"/v1/chat", map[string]string{"message": "  what is a closure  "})
	if status != http.StatusOK {
		t.Fatalf("chat status = %d", status)
	}
	var resp generation.ChatResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	if resp.Response != "echo: what is a closure" {
		t.Fatalf("Response = %q", resp.Response)
	}
	got := ts.gen.lastChat()
	if got.UserID != "anonymous" || got.Topic != "general" {
		t.Fatalf("defaults not applied: %+v", got)
	}

	status, env = doJSON(t, http.MethodPost, ts.URL+"/v1/chat", map[string]string{"message": "   "})
	if status != http.StatusBadRequest || env.Status != "error" {
		t.Fatalf("empty message = %d %q", status, env.Status)
	}

	long := strings.Repeat("x", protocol.MaxMessageRunes+1)
	status, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/chat", map[string]string{"message": long})
	if status != http.StatusRequestEntityTooLarge {
		t.Fatalf("long message status = %d", status)
	}
}

func TestChatInSessionRecordsHistory(t *testing.T) {
	ts := newTestServer(t, false)
	sess := ts.sessions.Create("alice", "python", nil)

	for _, msg := range []string{"first", "second"} {
		status, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/chat", map[string]string{"session_id": sess.ID, "message": msg})
		if status != http.StatusOK {
			t.Fatalf("chat %q status = %d", msg, status)
		}
	}

	got := ts.gen.lastChat()
	if got.UserID != "alice" || got.Topic != "python" {
		t.Fatalf("session identity not used: %+v", got)
	}
	if len(got.History) != 2 || got.History[0].Text != "first" || got.History[1].Text != "echo: first" {
		t.Fatalf("history passed to chat = %+v", got.History)
	}

	stored, err := ts.sessions.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.TurnCount != 2 || len(stored.History) != 4 {
		t.Fatalf("turns = %d history = %d", stored.TurnCount, len(stored.History))
	}
	if stored.Understanding["python"] != 3 {
		t.Fatalf("understanding = %+v", stored.Understanding)
	}

	if _, err := ts.sessions.End(sess.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	status, env := doJSON(t, http.MethodPost, ts.URL+"/v1/chat", map[string]string{"session_id": sess.ID, "message": "third"})
	if status != http.StatusGone || env.Code != "session_ended" {
		t.Fatalf("ended session = %d %q", status, env.Code)
	}
}

func TestStudyRoutes(t *testing.T) {
	ts := newTestServer(t, false)

	status, env := doJSON(t, http.MethodPost, ts.URL+"/v1/flashcards", map[string]any{"topic": "python", "count": 5})
	if status != http.StatusOK || !strings.Contains(env.Message, "fallback") {
		t.Fatalf("flashcards = %d %q", status, env.Message)
	}
	var set generation.FlashcardSet
	if err := json.Unmarshal(env.Data, &set); err != nil {
		t.Fatalf("decode flashcards: %v", err)
	}
	if len(set.Flashcards) != 3 {
		t.Fatalf("flashcards = %d, want 3", len(set.Flashcards))
	}

	status, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/study-guide", map[string]string{"level": "beginner"})
	if status != http.StatusBadRequest {
		t.Fatalf("study guide without topic = %d", status)
	}

	status, env = doJSON(t, http.MethodPost, ts.URL+"/v1/materials", map[string]string{"topic": "rust"})
	if status != http.StatusOK || !strings.Contains(env.Message, "web search") {
		t.Fatalf("materials = %d %q", status, env.Message)
	}

	status, env = doJSON(t, http.MethodPost, ts.URL+"/v1/tasks/ask", map[string]string{"task": "write tests", "question": "how?"})
	if status != http.StatusOK {
		t.Fatalf("ask = %d", status)
	}
	var answer generation.Answer
	if err := json.Unmarshal(env.Data, &answer); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if answer.Answer != "about write tests" {
		t.Fatalf("answer = %q", answer.Answer)
	}
}

func TestRoadmapRoutes(t *testing.T) {
	ts := newTestServer(t, false)

	status, env := doJSON(t, http.MethodPost, ts.URL+"/v1/roadmaps", map[string]any{"topic": "go", "days": 0, "hours": 2})
	if status != http.StatusBadRequest || env.Code != "invalid_roadmap" {
		t.Fatalf("invalid roadmap = %d %q", status, env.Code)
	}

	status, env = doJSON(t, http.MethodPost, ts.URL+"/v1/roadmaps", map[string]any{"topic": "go", "days": 3, "hours": 2})
	if status != http.StatusOK {
		t.Fatalf("roadmap = %d", status)
	}
	var roadmap generation.Roadmap
	if err := json.Unmarshal(env.Data, &roadmap); err != nil {
		t.Fatalf("decode roadmap: %v", err)
	}
	if len(roadmap.Plan) != 3 {
		t.Fatalf("roadmap days = %d, want 3", len(roadmap.Plan))
	}

	status, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/roadmaps/refine", map[string]any{"feedback": "shorter"})
	if status != http.StatusBadRequest {
		t.Fatalf("refine without roadmap = %d", status)
	}
	status, env = doJSON(t, http.MethodPost, ts.URL+"/v1/roadmaps/refine", map[string]any{"roadmap": roadmap, "feedback": "shorter"})
	if status != http.StatusOK || !strings.Contains(env.Message, "fallback") {
		t.Fatalf("refine = %d %q", status, env.Message)
	}
}

func TestMemoryRoutes(t *testing.T) {
	disabled := newTestServer(t, false)
	status, env := doJSON(t, http.MethodGet, disabled.URL+"/v1/memory/alice/stats", nil)
	if status != http.StatusServiceUnavailable || env.Code != "memory_unavailable" {
		t.Fatalf("stats without memory = %d %q", status, env.Code)
	}
	status, env = doJSON(t, http.MethodGet, disabled.URL+"/v1/memory/status", nil)
	if status != http.StatusOK || !strings.Contains(string(env.Data), `"disabled"`) {
		t.Fatalf("status without memory = %d %s", status, env.Data)
	}

	ts := newTestServer(t, true)
	status, env = doJSON(t, http.MethodGet, ts.URL+"/v1/memory/alice/stats", nil)
	if status != http.StatusOK {
		t.Fatalf("stats = %d", status)
	}
	var stats memory.Stats
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.UserID != "alice" || stats.TotalTurns != 150 {
		t.Fatalf("stats = %+v", stats)
	}

	status, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/memory/ghost/stats", nil)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("unavailable stats = %d", status)
	}

	status, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/memory/alice/history?limit=abc", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("bad limit = %d", status)
	}
	status, env = doJSON(t, http.MethodGet, ts.URL+"/v1/memory/alice/history?limit=500", nil)
	if status != http.StatusOK {
		t.Fatalf("history = %d", status)
	}
	var turns []memory.ChatTurn
	if err := json.Unmarshal(env.Data, &turns); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(turns) != maxHistoryLimit {
		t.Fatalf("history len = %d, want %d", len(turns), maxHistoryLimit)
	}

	status, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/memory/alice", map[string][]string{"ids": {"a", "b"}})
	if status != http.StatusOK {
		t.Fatalf("delete = %d", status)
	}
	if len(ts.mem.deleted) != 2 {
		t.Fatalf("deleted = %v", ts.mem.deleted)
	}
}

func TestHTTPMetricsUseRoutePattern(t *testing.T) {
	ts := newTestServer(t, true)
	doJSON(t, http.MethodGet, ts.URL+"/v1/memory/alice/stats", nil)
	doJSON(t, http.MethodGet, ts.URL+"/v1/memory/bob/stats", nil)

	got := testutil.ToFloat64(ts.metrics.HTTPRequests.WithLabelValues("/v1/memory/{userID}/stats", "200"))
	if got != 2 {
		t.Fatalf("http requests for stats route = %v, want 2", got)
	}

	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", res.StatusCode)
	}
}

func TestPerfStagesReportsGenerations(t *testing.T) {
	ts := newTestServer(t, false)
	ts.metrics.ObserveGeneration("chat", "fallback", 20*time.Millisecond)
	ts.metrics.ObserveStage(observability.StageLLM, 15*time.Millisecond)

	status, env := doJSON(t, http.MethodGet, ts.URL+"/v1/perf/stages", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	var snap observability.PerfSnapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.UseCases) != 1 || snap.UseCases[0].UseCase != "chat" || snap.UseCases[0].FallbackRate != 1 {
		t.Fatalf("UseCases = %+v", snap.UseCases)
	}
	if len(snap.Stages) != 1 || snap.Stages[0].Stage != observability.StageLLM {
		t.Fatalf("Stages = %+v", snap.Stages)
	}
}

func TestSessionWebSocketChat(t *testing.T) {
	ts := newTestServer(t, false)
	sess := ts.sessions.Create("alice", "python", nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/" + sess.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ready protocol.SessionReady
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatalf("read session_ready: %v", err)
	}
	if ready.Type != protocol.TypeSessionReady || ready.SessionID != sess.ID || ready.Topic != "python" {
		t.Fatalf("unexpected ready: %+v", ready)
	}

	if err := conn.WriteJSON(map[string]string{"type": "not_a_type"}); err != nil {
		t.Fatalf("write bad message: %v", err)
	}
	var bad protocol.ErrorEvent
	if err := conn.ReadJSON(&bad); err != nil {
		t.Fatalf("read error_event: %v", err)
	}
	if bad.Type != protocol.TypeErrorEvent || bad.Code != "invalid_client_message" {
		t.Fatalf("unexpected error event: %+v", bad)
	}

	if err := conn.WriteJSON(protocol.ChatMessage{Type: protocol.TypeChatMessage, SessionID: sess.ID, Message: "hello"}); err != nil {
		t.Fatalf("write chat: %v", err)
	}
	var chat protocol.ChatResponse
	if err := conn.ReadJSON(&chat); err != nil {
		t.Fatalf("read chat_response: %v", err)
	}
	if chat.Type != protocol.TypeChatResponse || chat.TurnID == "" || chat.Response.Response != "echo: hello" {
		t.Fatalf("unexpected chat response: %+v", chat)
	}

	if err := conn.WriteJSON(protocol.ClientControl{Type: protocol.TypeClientControl, SessionID: sess.ID, Action: protocol.ActionEnd}); err != nil {
		t.Fatalf("write end: %v", err)
	}
	var ended protocol.SystemEvent
	if err := conn.ReadJSON(&ended); err != nil {
		t.Fatalf("read system_event: %v", err)
	}
	if ended.Code != "session_ended" {
		t.Fatalf("unexpected system event: %+v", ended)
	}

	stored, err := ts.sessions.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Status != session.StatusEnded || stored.TurnCount != 1 {
		t.Fatalf("session after socket = %+v", stored)
	}
}

func TestSessionWebSocketAnswersBackToBackMessagesInOrder(t *testing.T) {
	ts := newTestServer(t, false)
	sess := ts.sessions.Create("alice", "python", nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/" + sess.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ready protocol.SessionReady
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatalf("read session_ready: %v", err)
	}

	for _, msg := range []string{"first", "second"} {
		if err := conn.WriteJSON(protocol.ChatMessage{Type: protocol.TypeChatMessage, SessionID: sess.ID, Message: msg}); err != nil {
			t.Fatalf("write %s: %v", msg, err)
		}
	}
	for _, want := range []string{"echo: first", "echo: second"} {
		var chat protocol.ChatResponse
		if err := conn.ReadJSON(&chat); err != nil {
			t.Fatalf("read chat_response: %v", err)
		}
		if chat.Type != protocol.TypeChatResponse || chat.Response.Response != want {
			t.Fatalf("got %+v, want response %q", chat, want)
		}
	}

	stored, err := ts.sessions.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.TurnCount != 2 {
		t.Fatalf("TurnCount = %d, want 2", stored.TurnCount)
	}
}

func TestSessionWebSocketRejectsUnknownSession(t *testing.T) {
	ts := newTestServer(t, false)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/missing/ws"
	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("dial unknown session succeeded")
	}
	if res == nil || res.StatusCode != http.StatusNotFound {
		t.Fatalf("dial response = %+v", res)
	}
}
