package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"go.uber.org/goleak"

	"github.com/ent0n29/studybuddy/internal/llm"
	"github.com/ent0n29/studybuddy/internal/memory"
	"github.com/ent0n29/studybuddy/internal/observability"
	"github.com/ent0n29/studybuddy/internal/prompt"
	"github.com/ent0n29/studybuddy/internal/search"
)

type scriptedModel struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
	vars  []map[string]any
}

func (s *scriptedModel) Invoke(_ context.Context, _ prompts.MessageFormatter, vars map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.vars = append(s.vars, vars)
	return s.reply, s.err
}

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string]string
	err     error
	queries []string
}

func (f *fakeSearcher) Run(_ context.Context, query string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return "", f.err
	}
	return f.results[query], nil
}

func (f *fakeSearcher) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type recordingMemory struct {
	mu    sync.Mutex
	delay time.Duration
	turns []memory.ChatTurn
}

func (r *recordingMemory) Save(_ context.Context, turn memory.ChatTurn) (string, bool) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, turn)
	return "id", true
}

func (r *recordingMemory) saved() []memory.ChatTurn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]memory.ChatTurn(nil), r.turns...)
}

type unavailableModel struct{}

func (unavailableModel) Name() string { return "gemini" }
func (unavailableModel) Generate(context.Context, []llms.ChatMessage) (string, error) {
	return "", errors.New("503 service unavailable")
}

func newOrchestrator(model *scriptedModel, searcher search.Searcher, mem MemoryWriter) *Orchestrator {
	d := Deps{Search: searcher, Memory: mem}
	if model != nil {
		d.LLM = model
	}
	return New(d)
}

func TestGenerateNormalizesVars(t *testing.T) {
	model := &scriptedModel{reply: `{"answer": "ok"}`}
	o := newOrchestrator(model, nil, nil)

	res := o.Generate(context.Background(), prompt.Chat, map[string]any{"topic": "Python basics"})
	require.True(t, res.OK())
	require.Len(t, model.vars, 1)
	assert.Equal(t, "python", model.vars[0]["language"])
	assert.Equal(t, prompt.DefaultTasksContext, model.vars[0]["tasks_context"])

	res = o.Generate(context.Background(), prompt.Chat, map[string]any{"language": "rust", "tasks_context": "ship it"})
	require.True(t, res.OK())
	assert.Equal(t, "rust", model.vars[1]["language"])
	assert.Equal(t, "ship it", model.vars[1]["tasks_context"])

	model.err = errors.New("upstream 503")
	res = o.Generate(context.Background(), prompt.Chat, nil)
	assert.False(t, res.OK())
	assert.Equal(t, 3, model.calls, "one invocation per call, no retry loop")
}

func TestFlashcardsFallBackOnEmptyList(t *testing.T) {
	o := newOrchestrator(&scriptedModel{reply: `{"flashcards": []}`}, nil, nil)

	got := o.Flashcards(context.Background(), "Python basics", 5, nil)

	assert.Equal(t, SourceFallback, got.Source)
	require.Len(t, got.Flashcards, 3)
	assert.Equal(t, FallbackFlashcards("Python basics"), got)
}

func TestFlashcardsFromModel(t *testing.T) {
	reply := `Here you go:
{"flashcards": [
  {"question": "What is a goroutine?", "answer": "A lightweight thread", "difficulty": "Easy"},
  {"question": "What is a channel?", "answer": "A typed conduit"},
  {"question": "", "answer": "orphan"},
  {"question": "What does defer do?", "answer": "Runs a call when the function returns", "category": "Control flow"}
]}`
	o := newOrchestrator(&scriptedModel{reply: reply}, nil, nil)

	got := o.Flashcards(context.Background(), "golang", 3, nil)

	assert.Equal(t, SourceModel, got.Source)
	require.Len(t, got.Flashcards, 3)
	assert.Equal(t, "easy", got.Flashcards[0].Difficulty)
	assert.Equal(t, "General", got.Flashcards[1].Category)
	assert.Equal(t, "medium", got.Flashcards[1].Difficulty)
	assert.Equal(t, "Control flow", got.Flashcards[2].Category)

	generic := newOrchestrator(&scriptedModel{err: errors.New("down")}, nil, nil).Flashcards(context.Background(), "chemistry", 0, nil)
	assert.Equal(t, SourceFallback, generic.Source)
	require.Len(t, generic.Flashcards, 2)
	assert.Contains(t, generic.Flashcards[0].Question, "chemistry")
}

func TestFallbacksAreDeterministic(t *testing.T) {
	assert.Equal(t, FallbackStudyGuide("linear algebra"), FallbackStudyGuide("linear algebra"))
	assert.Equal(t, FallbackFlashcards("rust"), FallbackFlashcards("rust"))
	assert.Equal(t, FallbackChatResponse("go", "why?"), FallbackChatResponse("go", "why?"))

	guide := FallbackStudyGuide("linear algebra")
	assert.Len(t, guide.Objectives, 4)
	assert.Len(t, guide.KeyConcepts, 5)
	assert.Equal(t, "https://www.google.com/search?q=linear+algebra+documentation", guide.Resources[0].URL)
}

func TestStudyGuideRequiresObjectivesAndConcepts(t *testing.T) {
	reply := `{"overview": "Graphs", "learning_objectives": ["Traverse graphs"], "key_concepts": [{"concept": "BFS", "explanation": "layers"}],
"practice_exercises": [{"title": "Shortest path", "description": "Use BFS", "difficulty": "beginner"}],
"study_schedule": [{"topics": ["BFS"], "exercises": ["Shortest path"]}]}`
	got := newOrchestrator(&scriptedModel{reply: reply}, nil, nil).StudyGuide(context.Background(), "graphs", "", nil)
	assert.Equal(t, SourceModel, got.Source)
	assert.Equal(t, []string{"BFS"}, got.KeyConcepts)
	require.Len(t, got.StudySchedule, 1)
	assert.Equal(t, 1, got.StudySchedule[0].Week)

	partial := newOrchestrator(&scriptedModel{reply: `{"learning_objectives": ["x"], "key_concepts": []}`}, nil, nil).
		StudyGuide(context.Background(), "graphs", "advanced", nil)
	assert.Equal(t, FallbackStudyGuide("graphs"), partial)
}

func TestChatSearchesForFrameworkQuestions(t *testing.T) {
	searcher := &fakeSearcher{results: map[string]string{
		"javascript tools libraries frameworks": "React - A JavaScript library for building UIs https://react.dev\n" +
			"Svelte - Cybernetically enhanced web apps https://svelte.dev",
	}}
	model := &scriptedModel{reply: "```json\n" + `{"answer": "Popular picks:\n` + "```js\\nconsole.log(1)\\n```" + `", "key_points": ["React", "Svelte"]}` + "\n```"}
	mem := &recordingMemory{}
	o := newOrchestrator(model, searcher, mem)

	resp := o.Chat(context.Background(), ChatRequest{
		UserID:  "alice",
		Topic:   "javascript",
		Message: "latest javascript frameworks 2024",
	})
	o.Close()

	require.NotEmpty(t, searcher.seen())
	assert.Contains(t, searcher.seen()[0], "tools libraries frameworks")
	assert.True(t, resp.UsedSearch)
	assert.Equal(t, SourceModel, resp.Source)
	require.Len(t, resp.CodeBlocks, 1)
	assert.Equal(t, "js", resp.CodeBlocks[0].Language)
	assert.Contains(t, resp.Response, "```js\nconsole.log(1)\n```")
	assert.Equal(t, []string{"React", "Svelte"}, resp.KeyPoints)
	require.Len(t, resp.Resources, 2)
	assert.Equal(t, "react.dev", resp.Resources[0].Domain)
	assert.GreaterOrEqual(t, resp.Understanding["javascript"], 10)

	turns := mem.saved()
	require.Len(t, turns, 1)
	assert.Equal(t, "latest javascript frameworks 2024", turns[0].UserMessage)
	assert.NotEmpty(t, turns[0].Metadata["stored_at"])
}

func TestChatFallsBackWhenModelFails(t *testing.T) {
	mem := &recordingMemory{}
	o := newOrchestrator(&scriptedModel{err: context.DeadlineExceeded}, nil, mem)

	resp := o.Chat(context.Background(), ChatRequest{UserID: "alice", Topic: "sql", Message: "what is a join"})
	o.Close()

	assert.Equal(t, SourceFallback, resp.Source)
	assert.True(t, strings.HasPrefix(resp.Response, "# Response to: what is a join"))
	assert.Contains(t, resp.Response, "**sql**")
	assert.Len(t, resp.Steps, 4)
	assert.False(t, resp.UsedSearch)
	assert.Empty(t, mem.saved())
}

func TestChatPrimaryOutageUsesFallbackWithoutMemoryWrite(t *testing.T) {
	mem := &recordingMemory{}
	client := llm.NewClient(llm.NewFallbackModel(unavailableModel{}, llm.NewMockModel(), nil), time.Second, nil, nil)
	o := New(Deps{LLM: client, Memory: mem})

	resp := o.Chat(context.Background(), ChatRequest{UserID: "alice", Topic: "sql", Message: "what is a join"})
	o.Close()

	assert.Equal(t, SourceFallback, resp.Source)
	assert.Equal(t, FallbackChatResponse("sql", "what is a join").Answer, resp.Response)
	assert.NotContains(t, resp.Response, "No language model is configured")
	assert.Empty(t, mem.saved())
}

func TestChatOfflineUsesFallback(t *testing.T) {
	mem := &recordingMemory{}
	o := New(Deps{LLM: llm.NewClient(llm.NewMockModel(), time.Second, nil, nil), Memory: mem})

	resp := o.Chat(context.Background(), ChatRequest{UserID: "alice", Topic: "sql", Message: "what is a join"})
	o.Close()

	assert.Equal(t, SourceFallback, resp.Source)
	assert.Empty(t, mem.saved())
}

func TestGenerationsFeedPerfWindow(t *testing.T) {
	metrics := observability.NewMetrics("studybuddy_test", prometheus.NewRegistry())
	o := New(Deps{LLM: &scriptedModel{err: errors.New("down")}, Metrics: metrics})

	o.Flashcards(context.Background(), "sql", 3, nil)
	o.Chat(context.Background(), ChatRequest{Topic: "sql", Message: "what is a join"})
	o.Close()

	snap := metrics.Perf.Snapshot()
	require.Len(t, snap.UseCases, 2)
	assert.Equal(t, "chat", snap.UseCases[0].UseCase)
	assert.Equal(t, "flashcards", snap.UseCases[1].UseCase)
	for _, uc := range snap.UseCases {
		assert.Equal(t, 1, uc.Sources[string(SourceFallback)], uc.UseCase)
		assert.Equal(t, 1.0, uc.FallbackRate, uc.UseCase)
	}
}

func TestChatKeepsProseReplies(t *testing.T) {
	o := newOrchestrator(&scriptedModel{reply: "A join combines rows from two tables."}, nil, nil)

	resp := o.Chat(context.Background(), ChatRequest{Topic: "sql", Message: "what is a join"})

	assert.Equal(t, SourceSalvaged, resp.Source)
	assert.Equal(t, "A join combines rows from two tables.", resp.Response)
	assert.NotNil(t, resp.CodeBlocks)
}

func TestAskAboutTaskNeverSearches(t *testing.T) {
	searcher := &fakeSearcher{}
	model := &scriptedModel{reply: `{"answer": "Start with the tutorial", "steps": ["Read", "Try"]}`}
	o := newOrchestrator(model, searcher, nil)

	got := o.AskAboutTask(context.Background(), TaskQuestion{Topic: "go", Task: "Set up modules", Question: "how to start the latest tutorial"})

	assert.Empty(t, searcher.seen())
	assert.Equal(t, "Start with the tutorial", got.Answer)
	assert.Equal(t, []string{"Read", "Try"}, got.Steps)
	assert.Equal(t, "Set up modules", model.vars[0]["task"])
}

const practiceResults = "Go by Example - hands-on example programs https://gobyexample.com\n" +
	"Exercism Go track practice https://exercism.org/tracks/go"

const toolResults = "Gin - HTTP web framework written in Go https://github.com/gin-gonic/gin\n" +
	"Cobra - a library for CLI apps https://github.com/spf13/cobra"

func TestMaterialsBackfillsEmptyCategories(t *testing.T) {
	searcher := &fakeSearcher{results: map[string]string{
		"golang practice exercises examples code": practiceResults,
		"golang tools libraries frameworks":       toolResults,
	}}
	reply := `{"videos": [{"title": "Go in 100 seconds", "url": "https://youtube.com/watch?v=1", "channel": "Fireship"}],
"articles": [{"title": "Effective Go", "url": "https://go.dev/doc/effective_go", "source": "go.dev"}],
"practice": [], "tools": []}`
	o := newOrchestrator(&scriptedModel{reply: reply}, searcher, nil)

	got := o.Materials(context.Background(), "golang")

	assert.ElementsMatch(t, []string{"golang practice exercises examples code", "golang tools libraries frameworks"}, searcher.seen())
	assert.Equal(t, SourceSearch, got.Source)
	require.Len(t, got.Videos, 1)
	assert.Equal(t, "Fireship", got.Videos[0].Channel)
	assert.Equal(t, "video", got.Videos[0].Type)
	require.Len(t, got.Practice, 2)
	assert.Equal(t, "Go by Example - hands-on example programs", got.Practice[0].Title)
	require.Len(t, got.Tools, 2)
	assert.Equal(t, "https://github.com/gin-gonic/gin", got.Tools[0].URL)
	assert.True(t, got.Complete())
}

func TestMaterialsFromSearchWhenModelFails(t *testing.T) {
	searcher := &fakeSearcher{results: map[string]string{
		"golang tutorial video YouTube":           "Learn Go - full course https://www.youtube.com/watch?v=abc",
		"golang guide article documentation":      "Effective Go https://go.dev/doc/effective_go\nThread https://twitter.com/golang/status/1",
		"golang practice exercises examples code": practiceResults,
		"golang tools libraries frameworks":       toolResults,
	}}
	o := newOrchestrator(&scriptedModel{err: errors.New("down")}, searcher, nil)

	got := o.Materials(context.Background(), "golang")

	assert.Len(t, searcher.seen(), 4)
	assert.Equal(t, SourceSearch, got.Source)
	require.Len(t, got.Videos, 1)
	require.Len(t, got.Articles, 1)
	assert.Equal(t, "go.dev", got.Articles[0].Source)
}

func TestMaterialsEmptyWhenEverythingFails(t *testing.T) {
	o := newOrchestrator(&scriptedModel{err: errors.New("down")}, &fakeSearcher{err: errors.New("offline")}, nil)

	got := o.Materials(context.Background(), "golang")

	assert.Equal(t, SourceFallback, got.Source)
	assert.NotNil(t, got.Videos)
	assert.Empty(t, got.Videos)
	assert.Empty(t, got.Articles)
	assert.Empty(t, got.Practice)
	assert.Empty(t, got.Tools)
}

func TestSearchClassifiersCapAtFive(t *testing.T) {
	var lines []string
	for i := 0; i < 8; i++ {
		lines = append(lines, "Example video https://youtube.com/watch?v="+string(rune('a'+i)))
	}
	results := strings.Join(lines, "\n")

	assert.Len(t, VideosFromSearch(results), MaxPerCategory)
	assert.Empty(t, ArticlesFromSearch(results))
	assert.Len(t, PracticeFromSearch(results), MaxPerCategory)
	assert.Empty(t, ToolsFromSearch(results))

	long := "A framework " + strings.Repeat("z", 120) + " https://example.com/fw"
	tools := ToolsFromSearch(long)
	require.Len(t, tools, 1)
	assert.True(t, strings.HasSuffix(tools[0].Description, "..."))
	assert.Len(t, []rune(tools[0].Description), 103)
}

func TestRoadmapValidation(t *testing.T) {
	o := newOrchestrator(&scriptedModel{}, nil, nil)
	for _, req := range []RoadmapRequest{
		{Topic: "", Days: 3, HoursPerDay: 2},
		{Topic: "go", Days: 0, HoursPerDay: 2},
		{Topic: "go", Days: 3, HoursPerDay: 0},
	} {
		_, err := o.Roadmap(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRoadmap)
	}
}

func TestRoadmapFallbackSplitsPhases(t *testing.T) {
	o := newOrchestrator(&scriptedModel{reply: `{"topic": "go", "roadmap": []}`}, nil, nil)

	got, err := o.Roadmap(context.Background(), RoadmapRequest{Topic: "go", Days: 3, HoursPerDay: 2.5})
	require.NoError(t, err)

	assert.Equal(t, SourceFallback, got.Source)
	require.Len(t, got.Plan, 3)
	assert.True(t, strings.HasPrefix(got.Plan[0].Tasks[0].ParentTask, "Fundamentals"))
	assert.True(t, strings.HasPrefix(got.Plan[1].Tasks[0].ParentTask, "Practice"))
	assert.True(t, strings.HasPrefix(got.Plan[2].Tasks[0].ParentTask, "Project"))
	for _, day := range got.Plan {
		task := day.Tasks[0]
		sum := 0
		for _, s := range task.SubTasks {
			sum += s.DurationMinutes
		}
		assert.Equal(t, 150, task.OriginalDurationMinutes)
		assert.Equal(t, task.OriginalDurationMinutes, sum)
	}
}

const modelRoadmap = `{"topic": "go", "days": 1, "hours": 1, "roadmap": [{"day": 1, "tasks": [
 {"parent_task": "Basics", "original_duration_minutes": 60, "sub_tasks": [
  {"task": "Install Go", "duration_minutes": 20, "description": "Set up the toolchain."},
  {"task": "Hello world", "duration_minutes": 40, "description": "Write a first program."}]}]}]}`

func TestRoadmapFromModelAndRefine(t *testing.T) {
	model := &scriptedModel{reply: modelRoadmap}
	o := newOrchestrator(model, nil, nil)

	got, err := o.Roadmap(context.Background(), RoadmapRequest{Topic: "go", Days: 1, HoursPerDay: 1})
	require.NoError(t, err)
	assert.Equal(t, SourceModel, got.Source)
	require.Len(t, got.Plan, 1)
	require.Len(t, got.Plan[0].Tasks[0].SubTasks, 2)
	assert.Equal(t, "beginner", model.vars[0]["experience"])

	model.reply = "I cannot do that."
	refined := o.RefineRoadmap(context.Background(), got, "make it shorter")
	assert.Equal(t, SourceFallback, refined.Source)
	assert.Equal(t, got.Plan, refined.Plan)
	assert.Contains(t, model.vars[1]["roadmap"], `"parent_task":"Basics"`)

	calls := model.calls
	o.RefineRoadmap(context.Background(), got, "  ")
	assert.Equal(t, calls, model.calls)
}

func TestCloseWaitsForMemoryWrites(t *testing.T) {
	defer goleak.VerifyNone(t)

	mem := &recordingMemory{delay: 50 * time.Millisecond}
	o := newOrchestrator(&scriptedModel{reply: `{"answer": "Use a map."}`}, nil, mem)
	for i := 0; i < 3; i++ {
		o.Chat(context.Background(), ChatRequest{UserID: "alice", Topic: "go", Message: "how do I count words"})
	}
	o.Close()
	assert.Len(t, mem.saved(), 3)

	o.Chat(context.Background(), ChatRequest{UserID: "alice", Topic: "go", Message: "one more"})
	time.Sleep(80 * time.Millisecond)
	assert.Len(t, mem.saved(), 3)
}
