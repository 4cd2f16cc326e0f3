package generation

import (
	"context"
	"strings"
	"time"

	"github.com/ent0n29/studybuddy/internal/extract"
	"github.com/ent0n29/studybuddy/internal/memory"
	"github.com/ent0n29/studybuddy/internal/prompt"
	"github.com/ent0n29/studybuddy/internal/search"
	"github.com/ent0n29/studybuddy/internal/understanding"
)

// Chat answers one learner message with memory and, when the message asks
// for fresh material, web search context. The exchange is saved to memory
// in the background.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) ChatResponse {
	start := time.Now()
	payload := o.prompts.Build(ctx, prompt.Request{
		UserID:        req.UserID,
		Topic:         req.Topic,
		Message:       req.Message,
		TasksContext:  req.TasksContext,
		History:       req.History,
		Understanding: req.Understanding,
	})

	tmpl := prompt.Chat
	if payload.UsedSearch {
		tmpl = prompt.SearchChat
	}
	raw, res := o.generate(ctx, "chat", tmpl, payload.Vars())
	answer := answerFrom(raw, res, req.Topic, req.Message)

	resp := ChatResponse{
		Response:    answer.Answer,
		KeyPoints:   answer.KeyPoints,
		Steps:       answer.Steps,
		Examples:    answer.Examples,
		CodeBlocks:  answer.CodeBlocks,
		Resources:   []search.Resource{},
		UsedSearch:  payload.UsedSearch,
		UsedMemory:  len(payload.Memories) > 0,
		MemoryCount: len(payload.Memories),
		Source:      answer.Source,
	}
	if payload.UsedSearch {
		if found := search.ExtractResources(payload.SearchResults, search.MaxResources); len(found) > 0 {
			resp.Resources = found
		}
	}
	resp.Understanding = understanding.Update(req.Message, resp.Response, req.Understanding, req.Topic)

	if answer.Source != SourceFallback {
		o.remember(memory.ChatTurn{
			UserID:      req.UserID,
			SessionID:   req.SessionID,
			Topic:       req.Topic,
			UserMessage: req.Message,
			AIResponse:  resp.Response,
			Metadata:    map[string]string{"stored_at": o.now().UTC().Format(time.RFC3339)},
		})
	}
	o.finish("chat", answer.Source, start)
	return resp
}

// AskAboutTask answers a question about one study task. It uses memory but
// never web search.
func (o *Orchestrator) AskAboutTask(ctx context.Context, q TaskQuestion) Answer {
	start := time.Now()
	payload := o.prompts.Build(ctx, prompt.Request{
		UserID:       q.UserID,
		Topic:        q.Topic,
		Message:      q.Question,
		TasksContext: q.TasksContext,
		History:      q.History,
		NoSearch:     true,
	})
	vars := payload.Vars()
	vars["task"] = orDefault(strings.TrimSpace(q.Task), "No specific task selected")

	raw, res := o.generate(ctx, "task_qa", prompt.TaskQA, vars)
	answer := answerFrom(raw, res, q.Topic, q.Question)
	o.finish("task_qa", answer.Source, start)
	return answer
}

// answerFrom turns model output into an Answer. Prose without any JSON is
// kept as the answer; an empty reply gets the fallback response.
func answerFrom(raw string, res extract.Result, topic, question string) Answer {
	var (
		text   string
		source Source
		fields map[string]any
	)
	switch {
	case res.OK():
		fields = res.Value
		text = firstText(fields, "answer", "markdown", "text", "response")
		source = sourceOf(res)
	case strings.TrimSpace(raw) != "":
		text = strings.TrimSpace(raw)
		source = SourceSalvaged
	}
	if text == "" {
		return FallbackChatResponse(topic, question)
	}

	processed, blocks := extract.ProcessCodeBlocks(text)
	if len(blocks) == 0 {
		blocks = codeBlocksOf(fields["code_blocks"])
	}
	if blocks == nil {
		blocks = []extract.CodeBlock{}
	}
	return Answer{
		Answer:     processed,
		KeyPoints:  textsOf(fields["key_points"], "point", "text"),
		Steps:      textsOf(fields["steps"], "step", "text"),
		Examples:   textsOf(fields["examples"], "example", "text"),
		CodeBlocks: blocks,
		Source:     source,
	}
}
