package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/studybuddy/internal/prompt"
)

// ErrInvalidRoadmap reports a roadmap request that cannot be planned.
var ErrInvalidRoadmap = errors.New("invalid roadmap request")

// MaxRoadmapDays bounds a single plan.
const MaxRoadmapDays = 90

func (r RoadmapRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Topic) == "":
		return fmt.Errorf("%w: topic is required", ErrInvalidRoadmap)
	case r.Days <= 0 || r.Days > MaxRoadmapDays:
		return fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidRoadmap, MaxRoadmapDays)
	case r.HoursPerDay <= 0 || r.HoursPerDay > 24:
		return fmt.Errorf("%w: hours per day must be in (0, 24]", ErrInvalidRoadmap)
	}
	return nil
}

// Roadmap plans a day-by-day schedule. Only an invalid request is an error;
// a missing or empty plan from the model is replaced by FallbackRoadmap.
func (o *Orchestrator) Roadmap(ctx context.Context, req RoadmapRequest) (Roadmap, error) {
	if err := req.validate(); err != nil {
		return Roadmap{}, err
	}
	start := time.Now()
	req.Topic = strings.TrimSpace(req.Topic)
	req.Experience = orDefault(strings.TrimSpace(req.Experience), "beginner")

	vars := map[string]any{
		"topic":      req.Topic,
		"days":       req.Days,
		"hours":      req.HoursPerDay,
		"experience": req.Experience,
		"goals":      orDefault(strings.TrimSpace(req.Goals), "Not specified"),
	}
	_, res := o.generate(ctx, "roadmap", prompt.Roadmap, vars)

	out := FallbackRoadmap(req)
	if res.OK() {
		if parsed := roadmapOf(res.Value, req.Topic, req.Days, req.HoursPerDay); len(parsed.Plan) > 0 {
			parsed.Source = sourceOf(res)
			out = parsed
		}
	}
	o.finish("roadmap", out.Source, start)
	return out, nil
}

// RefineRoadmap applies feedback to current. When the model gives no usable
// plan, current comes back unchanged with Source set to fallback.
func (o *Orchestrator) RefineRoadmap(ctx context.Context, current Roadmap, feedback string) Roadmap {
	start := time.Now()
	unchanged := current
	unchanged.Source = SourceFallback

	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		o.finish("refine_roadmap", unchanged.Source, start)
		return unchanged
	}
	encoded, err := json.Marshal(current)
	if err != nil {
		o.finish("refine_roadmap", unchanged.Source, start)
		return unchanged
	}

	vars := map[string]any{
		"topic":    current.Topic,
		"roadmap":  string(encoded),
		"feedback": feedback,
	}
	_, res := o.generate(ctx, "refine_roadmap", prompt.RefineRoadmap, vars)

	out := unchanged
	if res.OK() {
		if parsed := roadmapOf(res.Value, current.Topic, current.Days, current.Hours); len(parsed.Plan) > 0 {
			parsed.Source = sourceOf(res)
			out = parsed
		}
	}
	o.finish("refine_roadmap", out.Source, start)
	return out
}

func roadmapOf(v map[string]any, topic string, days int, hours float64) Roadmap {
	out := Roadmap{
		Topic: orDefault(textOf(v["topic"]), topic),
		Days:  intOf(v["days"]),
		Hours: floatOf(v["hours"]),
	}
	if out.Days <= 0 {
		out.Days = days
	}
	if out.Hours <= 0 {
		out.Hours = hours
	}
	for i, d := range objectsOf(v["roadmap"]) {
		day := RoadmapDay{Day: intOf(d["day"])}
		if day.Day <= 0 {
			day.Day = i + 1
		}
		for _, t := range objectsOf(d["tasks"]) {
			task := RoadmapTask{
				ParentTask:              firstText(t, "parent_task", "task", "title"),
				OriginalDurationMinutes: intOf(t["original_duration_minutes"]),
			}
			for _, s := range objectsOf(t["sub_tasks"]) {
				sub := SubTask{
					Task:            firstText(s, "task", "title"),
					DurationMinutes: intOf(s["duration_minutes"]),
					Description:     textOf(s["description"]),
				}
				if sub.Task != "" {
					task.SubTasks = append(task.SubTasks, sub)
				}
			}
			if task.ParentTask == "" {
				continue
			}
			if task.OriginalDurationMinutes <= 0 {
				for _, s := range task.SubTasks {
					task.OriginalDurationMinutes += s.DurationMinutes
				}
			}
			day.Tasks = append(day.Tasks, task)
		}
		if len(day.Tasks) > 0 {
			out.Plan = append(out.Plan, day)
		}
	}
	return out
}
