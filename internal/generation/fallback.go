package generation

import (
	"fmt"
	"math"
	"strings"

	"github.com/ent0n29/studybuddy/internal/extract"
)

// Deterministic content used when the model gives nothing usable. Each
// function depends only on its arguments.

// FallbackChatResponse is a generic study answer for a question.
func FallbackChatResponse(topic, question string) Answer {
	topic = orDefault(strings.TrimSpace(topic), "this topic")
	keyPoints := []string{
		"Start with fundamentals",
		"Practice regularly",
		"Use documentation",
		"Build projects",
	}
	steps := []string{
		"Learn basic concepts",
		"Practice with examples",
		"Build small projects",
		"Review and refine",
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Response to: %s\n\n", strings.TrimSpace(question))
	b.WriteString("I could not generate a complete answer right now. Here is a starting point.\n\n")
	fmt.Fprintf(&b, "Regarding **%s**, focus on these points:\n\n", topic)
	for _, p := range keyPoints {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	b.WriteString("\n## Suggested steps\n\n")
	for i, s := range steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	b.WriteString("\nWould you like me to elaborate on any specific aspect?")

	return Answer{
		Answer:     b.String(),
		KeyPoints:  keyPoints,
		Steps:      steps,
		Examples:   []string{},
		CodeBlocks: []extract.CodeBlock{},
		Source:     SourceFallback,
	}
}

// FallbackFlashcards returns three Python cards for Python topics and two
// generic cards otherwise.
func FallbackFlashcards(topic string) FlashcardSet {
	set := FlashcardSet{Topic: topic, Source: SourceFallback}
	if strings.Contains(strings.ToLower(topic), "python") {
		set.Flashcards = []Flashcard{
			{
				Question:   "What is the difference between a list and a tuple in Python?",
				Answer:     "Lists are mutable (can be modified) while tuples are immutable (cannot be modified). Lists use square brackets [] and tuples use parentheses ().",
				Category:   "Data Structures",
				Difficulty: "easy",
			},
			{
				Question:   "How do you define a function in Python?",
				Answer:     "Using the 'def' keyword followed by the function name and parentheses containing parameters. Example: def my_function(param1, param2):",
				Category:   "Functions",
				Difficulty: "easy",
			},
			{
				Question:   "What are Python decorators and how are they used?",
				Answer:     "Decorators are functions that modify the behavior of other functions. They are denoted by the @ symbol and are placed above function definitions.",
				Category:   "Advanced Concepts",
				Difficulty: "medium",
			},
		}
		return set
	}
	set.Flashcards = []Flashcard{
		{
			Question:   fmt.Sprintf("What are the key concepts of %s?", topic),
			Answer:     fmt.Sprintf("This flashcard covers fundamental concepts in %s. Study the main principles and applications.", topic),
			Category:   "Fundamentals",
			Difficulty: "easy",
		},
		{
			Question:   fmt.Sprintf("How is %s applied in real-world scenarios?", topic),
			Answer:     fmt.Sprintf("%s has various practical applications across different industries and use cases.", topic),
			Category:   "Applications",
			Difficulty: "medium",
		},
	}
	return set
}

// FallbackStudyGuide is a two-week skeleton guide for topic.
func FallbackStudyGuide(topic string) StudyGuide {
	query := strings.Join(strings.Fields(topic), "+")
	return StudyGuide{
		Topic:    topic,
		Overview: fmt.Sprintf("A structured path through the fundamentals and practice of %s.", topic),
		Objectives: []string{
			fmt.Sprintf("Master fundamental concepts of %s", topic),
			fmt.Sprintf("Develop practical skills in %s application", topic),
			fmt.Sprintf("Understand advanced %s concepts and patterns", topic),
			fmt.Sprintf("Build real-world projects using %s", topic),
		},
		KeyConcepts: []string{
			"Basic syntax and structure",
			"Data types and variables",
			"Control flow and functions",
			"Object-oriented programming",
			"Error handling and debugging",
		},
		PracticeExercises: []Exercise{
			{Title: "Basic Syntax Practice", Description: "Write a simple program to demonstrate basic syntax", Difficulty: "beginner"},
			{Title: "Data Structures Implementation", Description: "Create and manipulate common data structures", Difficulty: "intermediate"},
			{Title: "Project Building", Description: "Build a complete application using core concepts", Difficulty: "advanced"},
		},
		StudySchedule: []ScheduleWeek{
			{Week: 1, Topics: []string{"Introduction", "Basic Syntax", "Variables"}, Exercises: []string{"Hello World", "Basic Calculator"}},
			{Week: 2, Topics: []string{"Functions", "Control Flow", "Data Structures"}, Exercises: []string{"Function Practice", "Data Manipulation"}},
		},
		Resources: []GuideResource{
			{Type: "documentation", Title: fmt.Sprintf("Official %s Documentation", topic), URL: "https://www.google.com/search?q=" + query + "+documentation"},
			{Type: "tutorial", Title: fmt.Sprintf("Complete %s Tutorial", topic), URL: "https://www.google.com/search?q=" + query + "+tutorial"},
		},
		Source: SourceFallback,
	}
}

type roadmapPhase struct {
	name  string
	steps [3]string
	notes [3]string
}

var roadmapPhases = [3]roadmapPhase{
	{
		name:  "Fundamentals",
		steps: [3]string{"Study the core concepts of %s", "Work through introductory examples", "Summarize what you learned"},
		notes: [3]string{"Read an introduction and take notes.", "Reproduce small examples by hand.", "Write a short summary in your own words."},
	},
	{
		name:  "Practice",
		steps: [3]string{"Solve guided exercises on %s", "Tackle a harder problem set", "Review mistakes"},
		notes: [3]string{"Complete exercises that apply the fundamentals.", "Attempt problems without looking at solutions.", "Revisit errors and fix misunderstandings."},
	},
	{
		name:  "Project",
		steps: [3]string{"Plan a small %s project", "Build the project", "Polish and reflect"},
		notes: [3]string{"Choose a scope that fits the time available.", "Implement the main features.", "Test the result and note what to learn next."},
	},
}

// FallbackRoadmap splits the days into fundamentals, practice and project
// phases with one task per day. Sub-task minutes sum to the daily total.
func FallbackRoadmap(req RoadmapRequest) Roadmap {
	total := int(math.Round(req.HoursPerDay * 60))
	if total < 3 {
		total = 3
	}
	split := [3]int{total / 2, total / 3, 0}
	split[2] = total - split[0] - split[1]

	out := Roadmap{Topic: req.Topic, Days: req.Days, Hours: req.HoursPerDay, Source: SourceFallback}
	for day := 1; day <= req.Days; day++ {
		phase := roadmapPhases[(day-1)*len(roadmapPhases)/req.Days]
		task := RoadmapTask{
			ParentTask:              fmt.Sprintf("%s: %s (day %d)", phase.name, req.Topic, day),
			OriginalDurationMinutes: total,
		}
		for i := range phase.steps {
			name := phase.steps[i]
			if strings.Contains(name, "%s") {
				name = fmt.Sprintf(name, req.Topic)
			}
			task.SubTasks = append(task.SubTasks, SubTask{
				Task:            name,
				DurationMinutes: split[i],
				Description:     phase.notes[i],
			})
		}
		out.Plan = append(out.Plan, RoadmapDay{Day: day, Tasks: []RoadmapTask{task}})
	}
	return out
}
