package agent

import (
	"context"
	"time"

	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/logging"
	"github.com/hupe1980/convomesh/session"
)

// Output is the product of one agent iteration. PerformedSideEffects lists
// identifiers of external writes the iteration committed (tagged with the
// executionID) so cleanup and audit can find them.
type Output struct {
	Text                 string   `json:"text"`
	PerformedSideEffects []string `json:"performed_side_effects,omitempty"`
}

// Evaluation scores one iteration's output. Only the latest evaluation is
// kept; it becomes the corrective feedback for the next iteration.
type Evaluation struct {
	Score       float64  `json:"score"` // 0..10
	Valid       bool     `json:"valid"`
	Issues      []string `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	ShouldRetry bool     `json:"should_retry"`
}

// IterationState is the sole feedback an agent's next iteration may consume:
// the previous iteration number, its output and its evaluation.
type IterationState struct {
	Iteration  int
	Output     Output
	Evaluation Evaluation
}

// RunContext carries everything one agent run may read: the batch under
// processing, the cycle's ExecutionContext, results of earlier-stage tasks,
// conversation history and a logger. It is shared read-only between agents of
// one stage.
type RunContext struct {
	Batch     core.Batch
	Execution *core.ExecutionContext
	Task      core.Task
	Results   map[string]core.TaskResult
	History   []session.Message
	Logger    logging.Logger
}

// ResultFor returns the TaskResult of an earlier-stage task by id.
func (rc *RunContext) ResultFor(taskID string) (core.TaskResult, bool) {
	r, ok := rc.Results[taskID]
	return r, ok
}

// Agent is the template for one generation-backed capability.
//
// Implementations must keep each operation side-effect free except
// ExecuteIteration, and must check rc.Execution.IsAborted() before committing
// any external write.
type Agent interface {
	// Name identifies the agent in logs and results.
	Name() string

	// ShouldActivate gates the run; when false the driver returns an empty,
	// successful no-op result immediately.
	ShouldActivate(ctx context.Context, rc *RunContext) bool

	// ExecuteIteration performs one generation step, optionally informed by
	// the previous iteration's evaluation feedback.
	ExecuteIteration(ctx context.Context, rc *RunContext, prev *IterationState) (Output, error)

	// Evaluate scores an iteration's output.
	Evaluate(ctx context.Context, rc *RunContext, out Output) (Evaluation, error)
}

// Result is what every agent run returns, success or not. The zero output on
// failure carries whatever iteration/timing metadata was gathered so far.
type Result struct {
	AgentName   string        `json:"agent_name"`
	Success     bool          `json:"success"`
	Skipped     bool          `json:"skipped,omitempty"` // activation gate declined
	Output      Output        `json:"output"`
	Score       float64       `json:"score"`
	Iterations  int           `json:"iterations"`
	Elapsed     time.Duration `json:"elapsed"`
	SideEffects []string      `json:"side_effects,omitempty"`
	Err         error         `json:"-"`
}
