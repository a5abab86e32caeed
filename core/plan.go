package core

import "fmt"

// TaskKind categorizes a planned task and selects the agent that executes it.
// The set of known kinds is fixed at dispatcher registration time.
type TaskKind string

// Task is one unit of work inside a TaskPlan.
type Task struct {
	ID          string   `json:"id"`
	Stage       int      `json:"stage"`
	Kind        TaskKind `json:"kind"`
	Description string   `json:"description"`
}

// TaskPlan is the ordered, dependency-staged list of tasks produced for one
// processing cycle. Tasks sharing a stage number have no declared dependency
// on one another; a later stage may read earlier stages' results by task id.
type TaskPlan struct {
	Tasks []Task `json:"tasks"`
}

// Validate checks the plan structurally: at least one task, unique task ids,
// non-decreasing stage numbers and only recognized kinds. known may be nil to
// skip the kind check.
func (p TaskPlan) Validate(known map[TaskKind]bool) error {
	if len(p.Tasks) == 0 {
		return &PlanValidationError{Reason: "plan contains no tasks"}
	}
	seen := make(map[string]bool, len(p.Tasks))
	prevStage := 0
	for i, t := range p.Tasks {
		if t.ID == "" {
			return &PlanValidationError{Reason: fmt.Sprintf("task %d has empty id", i)}
		}
		if seen[t.ID] {
			return &PlanValidationError{Reason: fmt.Sprintf("duplicate task id %q", t.ID)}
		}
		seen[t.ID] = true
		if t.Stage < prevStage {
			return &PlanValidationError{Reason: fmt.Sprintf("task %q stage %d decreases below %d", t.ID, t.Stage, prevStage)}
		}
		prevStage = t.Stage
		if known != nil && !known[t.Kind] {
			return &PlanValidationError{Reason: fmt.Sprintf("task %q has unrecognized kind %q", t.ID, t.Kind)}
		}
	}
	return nil
}

// Stages groups tasks by stage preserving plan order within each stage and
// returns the groups in ascending stage order.
func (p TaskPlan) Stages() [][]Task {
	var stages [][]Task
	var current []Task
	for i, t := range p.Tasks {
		if i > 0 && t.Stage != p.Tasks[i-1].Stage {
			stages = append(stages, current)
			current = nil
		}
		current = append(current, t)
	}
	if len(current) > 0 {
		stages = append(stages, current)
	}
	return stages
}

// TaskResult is the outcome of dispatching one task to an agent. Results
// accumulate into a map keyed by task id, visible to later-stage tasks.
type TaskResult struct {
	TaskID     string   `json:"task_id"`
	Kind       TaskKind `json:"kind"`
	Success    bool     `json:"success"`
	Output     string   `json:"output"`
	Confidence float64  `json:"confidence"`
	Iterations int      `json:"iterations"`
	Error      string   `json:"error,omitempty"`
}
