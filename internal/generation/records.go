package generation

import (
	"github.com/ent0n29/studybuddy/internal/extract"
	"github.com/ent0n29/studybuddy/internal/observability"
	"github.com/ent0n29/studybuddy/internal/prompt"
	"github.com/ent0n29/studybuddy/internal/search"
	"github.com/ent0n29/studybuddy/internal/understanding"
)

// Source tags where a record's content came from.
type Source string

const (
	SourceModel    Source = "model"
	SourceSalvaged Source = "salvaged"
	SourceSearch   Source = "search"
	SourceFallback Source = observability.SourceFallback
)

type ChatRequest struct {
	UserID        string            `json:"user_id"`
	SessionID     string            `json:"session_id,omitempty"`
	Topic         string            `json:"topic"`
	Message       string            `json:"message"`
	History       []prompt.Message  `json:"history,omitempty"`
	Understanding understanding.Map `json:"understanding,omitempty"`
	TasksContext  string            `json:"tasks_context,omitempty"`
}

type ChatResponse struct {
	Response      string              `json:"response"`
	KeyPoints     []string            `json:"key_points"`
	Steps         []string            `json:"steps"`
	Examples      []string            `json:"examples"`
	CodeBlocks    []extract.CodeBlock `json:"code_blocks"`
	Resources     []search.Resource   `json:"resources"`
	Understanding understanding.Map   `json:"understanding"`
	UsedSearch    bool                `json:"used_search"`
	UsedMemory    bool                `json:"used_memory"`
	MemoryCount   int                 `json:"memory_count"`
	Source        Source              `json:"source"`
}

type TaskQuestion struct {
	UserID       string           `json:"user_id"`
	Topic        string           `json:"topic"`
	Task         string           `json:"task"`
	Question     string           `json:"question"`
	TasksContext string           `json:"tasks_context,omitempty"`
	History      []prompt.Message `json:"history,omitempty"`
}

type Answer struct {
	Answer     string              `json:"answer"`
	KeyPoints  []string            `json:"key_points"`
	Steps      []string            `json:"steps"`
	Examples   []string            `json:"examples"`
	CodeBlocks []extract.CodeBlock `json:"code_blocks"`
	Source     Source              `json:"source"`
}

type Flashcard struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
}

type FlashcardSet struct {
	Topic      string      `json:"topic"`
	Flashcards []Flashcard `json:"flashcards"`
	Source     Source      `json:"source"`
}

type Exercise struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Difficulty  string `json:"difficulty"`
}

type ScheduleWeek struct {
	Week      int      `json:"week"`
	Topics    []string `json:"topics"`
	Exercises []string `json:"exercises"`
}

type GuideResource struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

type StudyGuide struct {
	Topic             string          `json:"topic"`
	Overview          string          `json:"overview,omitempty"`
	Objectives        []string        `json:"learning_objectives"`
	KeyConcepts       []string        `json:"key_concepts"`
	PracticeExercises []Exercise      `json:"practice_exercises"`
	StudySchedule     []ScheduleWeek  `json:"study_schedule"`
	Resources         []GuideResource `json:"resources"`
	Source            Source          `json:"source"`
}

// Material is one curated resource. Only the fields relevant to its
// category are set.
type Material struct {
	Title       string `json:"title,omitempty"`
	Name        string `json:"name,omitempty"`
	URL         string `json:"url"`
	Channel     string `json:"channel,omitempty"`
	Duration    string `json:"duration,omitempty"`
	Source      string `json:"source,omitempty"`
	ReadingTime string `json:"reading_time,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
}

type MaterialsBundle struct {
	Topic    string     `json:"topic"`
	Videos   []Material `json:"videos"`
	Articles []Material `json:"articles"`
	Practice []Material `json:"practice"`
	Tools    []Material `json:"tools"`
	Source   Source     `json:"source"`
}

// Complete reports whether every category has at least one entry.
func (m MaterialsBundle) Complete() bool {
	return len(m.Videos) > 0 && len(m.Articles) > 0 && len(m.Practice) > 0 && len(m.Tools) > 0
}

type RoadmapRequest struct {
	Topic       string  `json:"topic"`
	Days        int     `json:"days"`
	HoursPerDay float64 `json:"hours"`
	Experience  string  `json:"experience"`
	Goals       string  `json:"goals,omitempty"`
}

type SubTask struct {
	Task            string `json:"task"`
	DurationMinutes int    `json:"duration_minutes"`
	Description     string `json:"description"`
}

type RoadmapTask struct {
	ParentTask              string    `json:"parent_task"`
	OriginalDurationMinutes int       `json:"original_duration_minutes"`
	SubTasks                []SubTask `json:"sub_tasks"`
}

type RoadmapDay struct {
	Day   int           `json:"day"`
	Tasks []RoadmapTask `json:"tasks"`
}

type Roadmap struct {
	Topic  string       `json:"topic"`
	Days   int          `json:"days"`
	Hours  float64      `json:"hours"`
	Plan   []RoadmapDay `json:"roadmap"`
	Source Source       `json:"source"`
}
