package prompt

import "github.com/tmc/langchaingo/prompts"

// HistoryKey is the variable holding role-tagged chat history.
const HistoryKey = "chat_history"

const jsonOnly = `You MUST respond with ONLY a valid JSON object. Do not write any text before or after it. Do not wrap it in markdown fences.`

const tutorSystem = `You are a patient, precise programming and study tutor.
` + jsonOnly + `
Use {{.language}} for code examples; when it is "auto", pick the language that suits {{.topic}}.
Learner understanding so far: {{.understanding}}`

const answerShape = `Required JSON structure:
{
  "answer": "Complete answer in Markdown, with fenced code blocks where code helps",
  "key_points": ["Point 1", "Point 2"],
  "steps": ["Step 1", "Step 2"],
  "examples": ["Example 1"],
  "code_blocks": [{"language": "python", "code": "print('hello')"}]
}
code_blocks may be empty when no code is needed.`

// Chat answers a free-form question with memory context.
var Chat = conversation(tutorSystem, `PAST CONVERSATIONS CONTEXT:
{{.memory_context}}

When past conversations are relevant, build on them instead of repeating them.

`+answerShape+`

Topic: {{.topic}}
Tasks: {{.tasks_context}}

---
Question: {{.message}}`)

// SearchChat answers with fresh web search results as well as memory.
var SearchChat = conversation(tutorSystem, `PAST CONVERSATIONS CONTEXT:
{{.memory_context}}

WEB SEARCH RESULTS:
{{.search_results}}

Ground the answer in the search results where they help, and cite their URLs inside the answer.

`+answerShape+`

Topic: {{.topic}}
Tasks: {{.tasks_context}}

---
Question: {{.message}}`)

// TaskQA answers a question about one of the learner's study tasks.
var TaskQA = conversation(tutorSystem, `PAST CONVERSATIONS CONTEXT:
{{.memory_context}}

The learner is working on this task: {{.task}}

If they ask for code, give complete, runnable, commented code.

`+answerShape+`

Topic: {{.topic}}
Task Context: {{.tasks_context}}

---
Question: {{.question}}`)

// Flashcards asks for a flashcard deck.
var Flashcards = single(jsonOnly, `Required JSON structure:
{
  "flashcards": [
    {"question": "Question text?", "answer": "Answer text", "category": "Category name", "difficulty": "easy"}
  ]
}

Generate {{.count}} flashcards for: {{.topic}}
Use {{.language}} for any code.
Focus on areas where understanding is low:
{{.understanding}}`)

// StudyGuide asks for a structured study guide.
var StudyGuide = single(jsonOnly, `Required JSON structure:
{
  "overview": "One paragraph overview",
  "learning_objectives": ["Objective 1", "Objective 2"],
  "key_concepts": ["Concept 1", "Concept 2"],
  "practice_exercises": [{"title": "Exercise name", "description": "What to do", "difficulty": "beginner"}],
  "study_schedule": [{"week": 1, "topics": ["Topic A"], "exercises": ["Exercise 1"]}],
  "resources": [{"type": "documentation", "title": "Resource title", "url": "https://example.com"}]
}

Topic: {{.topic}}
Level: {{.level}}
Use {{.language}} for any code.
User understanding: {{.understanding}}`)

// Materials asks for curated learning resources.
var Materials = single(jsonOnly, `Required JSON structure:
{
  "videos": [{"title": "Video title", "url": "https://youtube.com/...", "channel": "Channel name", "duration": "10 min", "type": "video"}],
  "articles": [{"title": "Article title", "url": "https://example.com", "source": "Website name", "reading_time": "5 min", "type": "article"}],
  "practice": [{"title": "Practice resource", "url": "https://example.com", "difficulty": "Beginner", "type": "practice"}],
  "tools": [{"name": "Tool name", "url": "https://example.com", "description": "Brief description", "type": "tool"}]
}

Only include URLs you are confident exist.
Topic: {{.topic}}
Language: {{.language}}
Tasks: {{.tasks_context}}`)

// Roadmap asks for a day-by-day study plan.
var Roadmap = single(`You are an expert study planner. `+jsonOnly, `Required JSON structure:
{
  "topic": "{{.topic}}",
  "days": {{.days}},
  "hours": {{.hours}},
  "roadmap": [
    {
      "day": 1,
      "tasks": [
        {
          "parent_task": "High-level task title",
          "original_duration_minutes": 120,
          "sub_tasks": [{"task": "Micro task", "duration_minutes": 30, "description": "One sentence explanation."}]
        }
      ]
    }
  ]
}

Rules:
- Plan exactly {{.days}} days of about {{.hours}} hours each for a {{.experience}} learner.
- Learner goals: {{.goals}}
- If the topic is not programming-related, do not insert programming tasks.
- Sub-task durations MUST sum to original_duration_minutes.`)

// RefineRoadmap asks for an edited copy of an existing roadmap.
var RefineRoadmap = single(`You refine study roadmaps. `+jsonOnly, `Current Roadmap:
{{.roadmap}}

Instruction:
{{.feedback}}

Rules:
- Keep the identical JSON structure, with sub-tasks nested under their parent task.
- Sub-task durations MUST sum to original_duration_minutes.`)

func conversation(system, human string) prompts.ChatPromptTemplate {
	return prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		prompts.NewSystemMessagePromptTemplate(system, nil),
		prompts.MessagesPlaceholder{VariableName: HistoryKey},
		prompts.NewHumanMessagePromptTemplate(human, nil),
	})
}

func single(system, human string) prompts.ChatPromptTemplate {
	return prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		prompts.NewSystemMessagePromptTemplate(system, nil),
		prompts.NewHumanMessagePromptTemplate(human, nil),
	})
}
