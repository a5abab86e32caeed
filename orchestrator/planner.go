package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/internal/util"
	"github.com/hupe1980/convomesh/model"
	"github.com/hupe1980/convomesh/session"
)

// Planner produces the staged task plan for one batch. Implementations may
// consult the generation model; the orchestrator validates whatever comes
// back and falls back to a single default task on structural problems.
type Planner interface {
	Plan(ctx context.Context, batch core.Batch, history []session.Message) (core.TaskPlan, error)
}

// ModelPlanner delegates planning to a text-generation model. The model is
// shown the batch, recent history and the registered task kinds, and asked
// for a JSON plan. Parsing is tolerant (prose around the JSON is ignored);
// structural validation happens in the orchestrator.
type ModelPlanner struct {
	llm   model.Model
	kinds map[core.TaskKind]string // kind -> description for the prompt
}

// NewModelPlanner builds a planner over the given model and the kind
// catalog. kinds maps each registered task kind to a one-line description
// used in the planning prompt.
func NewModelPlanner(llm model.Model, kinds map[core.TaskKind]string) *ModelPlanner {
	return &ModelPlanner{llm: llm, kinds: kinds}
}

// Plan implements Planner.
func (p *ModelPlanner) Plan(ctx context.Context, batch core.Batch, history []session.Message) (core.TaskPlan, error) {
	resp, err := p.llm.Generate(ctx, model.Request{
		System: p.systemPrompt(),
		Prompt: p.userPrompt(batch, history),
	})
	if err != nil {
		return core.TaskPlan{}, fmt.Errorf("planning call: %w", err)
	}
	plan, err := ParsePlan(resp.Text)
	if err != nil {
		return core.TaskPlan{}, err
	}
	return plan, nil
}

func (p *ModelPlanner) systemPrompt() string {
	kinds := make([]string, 0, len(p.kinds))
	for k := range p.kinds {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	var sb strings.Builder
	sb.WriteString("You are a task planner for a real-estate concierge. Split the incoming messages into tasks.\n")
	sb.WriteString("Available task kinds:\n")
	for _, k := range kinds {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", k, p.kinds[core.TaskKind(k)]))
	}
	sb.WriteString("Answer only with a JSON object of the form\n")
	sb.WriteString(`{"tasks": [{"id": "t1", "stage": 1, "kind": "...", "description": "..."}]}` + "\n")
	sb.WriteString("Tasks in the same stage run concurrently; a later stage may use earlier results.")
	return sb.String()
}

func (p *ModelPlanner) userPrompt(batch core.Batch, history []session.Message) string {
	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, msg := range history {
			sb.WriteString(msg.Role + ": " + msg.Text + "\n")
		}
		sb.WriteString("\n")
	}
	if name := batch.SenderName(); name != "" {
		sb.WriteString("Sender: " + name + "\n")
	}
	sb.WriteString("New messages:\n" + batch.Text())
	return sb.String()
}

// ParsePlan extracts a TaskPlan from model output. Tasks missing a stage
// default to stage 1; tasks missing an id get a positional one. Returns a
// PlanValidationError when no tasks can be extracted at all; structural
// validation beyond extraction is the orchestrator's job.
func ParsePlan(text string) (core.TaskPlan, error) {
	raw := text
	if !gjson.Valid(raw) {
		raw = util.FirstJSONObject(text)
	}
	if raw == "" || !gjson.Valid(raw) {
		return core.TaskPlan{}, &core.PlanValidationError{Reason: "planner returned no parseable JSON"}
	}
	tasks := gjson.Get(raw, "tasks")
	if !tasks.Exists() || !tasks.IsArray() {
		return core.TaskPlan{}, &core.PlanValidationError{Reason: "plan is missing a tasks array"}
	}

	var plan core.TaskPlan
	for i, t := range tasks.Array() {
		task := core.Task{
			ID:          t.Get("id").String(),
			Stage:       int(t.Get("stage").Int()),
			Kind:        core.TaskKind(t.Get("kind").String()),
			Description: t.Get("description").String(),
		}
		if task.ID == "" {
			task.ID = fmt.Sprintf("t%d", i+1)
		}
		if task.Stage == 0 {
			task.Stage = 1
		}
		plan.Tasks = append(plan.Tasks, task)
	}
	if len(plan.Tasks) == 0 {
		return core.TaskPlan{}, &core.PlanValidationError{Reason: "plan contains no tasks"}
	}
	return plan, nil
}

// defaultPlan is the degraded single-task plan used when planning fails.
func defaultPlan(kind core.TaskKind, batch core.Batch) core.TaskPlan {
	return core.TaskPlan{Tasks: []core.Task{{
		ID:          "default",
		Stage:       1,
		Kind:        kind,
		Description: "Reply to: " + batch.Text(),
	}}}
}
