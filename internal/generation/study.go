package generation

import (
	"context"
	"strings"
	"time"

	"github.com/ent0n29/studybuddy/internal/policy"
	"github.com/ent0n29/studybuddy/internal/prompt"
	"github.com/ent0n29/studybuddy/internal/understanding"
)

const (
	DefaultFlashcards = 10
	MaxFlashcards     = 30
	minFlashcards     = 3
)

// Flashcards generates up to count cards. Output with fewer than
// min(count, 3) usable cards is replaced by FallbackFlashcards.
func (o *Orchestrator) Flashcards(ctx context.Context, topic string, count int, known understanding.Map) FlashcardSet {
	start := time.Now()
	if count <= 0 {
		count = DefaultFlashcards
	}
	if count > MaxFlashcards {
		count = MaxFlashcards
	}
	vars := map[string]any{
		"topic":         topic,
		"language":      policy.DetectLanguage(topic),
		"understanding": understanding.Describe(known, topic),
		"count":         count,
	}
	_, res := o.generate(ctx, "flashcards", prompt.Flashcards, vars)

	set := FlashcardSet{Topic: topic, Source: sourceOf(res)}
	if res.OK() {
		for _, m := range objectsOf(res.Value["flashcards"]) {
			card := Flashcard{
				Question:   firstText(m, "question", "front"),
				Answer:     firstText(m, "answer", "back"),
				Category:   orDefault(textOf(m["category"]), "General"),
				Difficulty: strings.ToLower(orDefault(textOf(m["difficulty"]), "medium")),
			}
			if card.Question == "" || card.Answer == "" {
				continue
			}
			set.Flashcards = append(set.Flashcards, card)
			if len(set.Flashcards) == count {
				break
			}
		}
	}
	if len(set.Flashcards) < min(count, minFlashcards) {
		set = FallbackFlashcards(topic)
	}
	o.finish("flashcards", set.Source, start)
	return set
}

// StudyGuide generates a study guide for topic at level. A guide without
// objectives or key concepts is replaced by FallbackStudyGuide.
func (o *Orchestrator) StudyGuide(ctx context.Context, topic, level string, known understanding.Map) StudyGuide {
	start := time.Now()
	vars := map[string]any{
		"topic":         topic,
		"language":      policy.DetectLanguage(topic),
		"understanding": understanding.Describe(known, topic),
		"level":         orDefault(strings.TrimSpace(level), "beginner"),
	}
	_, res := o.generate(ctx, "study_guide", prompt.StudyGuide, vars)

	guide := FallbackStudyGuide(topic)
	if res.OK() {
		v := res.Value
		parsed := StudyGuide{
			Topic:             topic,
			Overview:          textOf(v["overview"]),
			Objectives:        textsOf(v["learning_objectives"], "objective", "title"),
			KeyConcepts:       textsOf(v["key_concepts"], "concept", "name", "title"),
			PracticeExercises: []Exercise{},
			StudySchedule:     []ScheduleWeek{},
			Resources:         []GuideResource{},
			Source:            sourceOf(res),
		}
		for _, m := range objectsOf(v["practice_exercises"]) {
			ex := Exercise{Title: textOf(m["title"]), Description: textOf(m["description"]), Difficulty: textOf(m["difficulty"])}
			if ex.Title != "" {
				parsed.PracticeExercises = append(parsed.PracticeExercises, ex)
			}
		}
		for i, m := range objectsOf(v["study_schedule"]) {
			week := ScheduleWeek{
				Week:      intOf(m["week"]),
				Topics:    textsOf(m["topics"], "topic", "title"),
				Exercises: textsOf(m["exercises"], "title", "exercise"),
			}
			if week.Week <= 0 {
				week.Week = i + 1
			}
			parsed.StudySchedule = append(parsed.StudySchedule, week)
		}
		for _, m := range objectsOf(v["resources"]) {
			r := GuideResource{Type: orDefault(textOf(m["type"]), "article"), Title: firstText(m, "title", "name"), URL: textOf(m["url"])}
			if r.Title != "" {
				parsed.Resources = append(parsed.Resources, r)
			}
		}
		if len(parsed.Objectives) > 0 && len(parsed.KeyConcepts) > 0 {
			guide = parsed
		}
	}
	o.finish("study_guide", guide.Source, start)
	return guide
}
