package orchestrator

import (
	"context"
	"strings"

	"github.com/hupe1980/convomesh/agent"
	"github.com/hupe1980/convomesh/core"
)

// merge runs the validating merge agent over the combined worker outputs
// with its own bounded correction loop, independent of per-task budgets.
// Hard merger failures fall back to the raw combined output rather than
// silence; a loop ending below threshold returns the best-scoring draft with
// degraded set.
func (o *Orchestrator) merge(ctx context.Context, plan core.TaskPlan, rc *agent.RunContext) (string, float64, bool, error) {
	combined := o.combinedOutput(plan, rc.Results)
	if combined == "" {
		return "", 0, false, ErrNoOutput
	}
	if o.merger == nil {
		return combined, 0, false, nil
	}

	mergeRC := &agent.RunContext{
		Batch:     rc.Batch,
		Execution: rc.Execution,
		Task:      core.Task{ID: "merge", Kind: "merge", Description: "Combine the task outputs into one reply"},
		Results:   rc.Results,
		History:   rc.History,
		Logger:    rc.Logger,
	}

	var (
		prev      *agent.IterationState
		bestText  string
		bestScore = -1.0
	)
	for pass := 1; pass <= o.mergePasses; pass++ {
		if rc.Execution != nil && rc.Execution.IsAborted() {
			return "", 0, false, core.ErrAborted
		}

		out, err := o.merger.ExecuteIteration(ctx, mergeRC, prev)
		if err != nil {
			if core.IsTransient(err) && pass < o.mergePasses {
				rc.Logger.Warn("transient merge failure, retrying", "pass", pass, "error", err)
				continue
			}
			rc.Logger.Error("merge failed, falling back to combined output", "pass", pass, "error", err)
			return o.fallback(bestText, bestScore, combined)
		}

		eval, err := o.merger.Evaluate(ctx, mergeRC, out)
		if err != nil {
			rc.Logger.Error("merge evaluation failed, falling back", "pass", pass, "error", err)
			return o.fallback(bestText, bestScore, combined)
		}

		if eval.Score > bestScore {
			bestText, bestScore = out.Text, eval.Score
		}
		if eval.Valid && !eval.ShouldRetry && eval.Score >= o.mergeThreshold {
			return out.Text, eval.Score, false, nil
		}
		prev = &agent.IterationState{Iteration: pass, Output: out, Evaluation: eval}
	}

	rc.Logger.Warn("merge budget exhausted, returning best draft", "passes", o.mergePasses, "score", bestScore)
	return o.fallback(bestText, bestScore, combined)
}

// fallback returns the best draft seen so far, or the raw combined output
// when no draft exists, always flagged degraded.
func (o *Orchestrator) fallback(bestText string, bestScore float64, combined string) (string, float64, bool, error) {
	if bestText != "" {
		return bestText, bestScore, true, nil
	}
	return combined, 0, true, nil
}

// combinedOutput joins the successful non-empty task outputs in plan order.
func (o *Orchestrator) combinedOutput(plan core.TaskPlan, results map[string]core.TaskResult) string {
	var parts []string
	for _, task := range plan.Tasks {
		if res, ok := results[task.ID]; ok && res.Output != "" {
			parts = append(parts, res.Output)
		}
	}
	return strings.Join(parts, "\n\n")
}
