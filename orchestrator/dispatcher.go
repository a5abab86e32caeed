package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/convomesh/agent"
	"github.com/hupe1980/convomesh/core"
)

// defaultMaxIterations is the per-task iteration budget applied when a
// Registration leaves MaxIterations unset.
const defaultMaxIterations = 3

// Registration binds one task kind to the agent executing it plus the
// per-agent iteration budget and optional wall-clock timeout. A zero
// MaxIterations gets the default budget of 3; a zero Timeout falls back to
// the orchestrator's TaskTimeout.
type Registration struct {
	Agent         agent.Agent
	Description   string // one-line capability summary shown to the planner
	MaxIterations int
	Timeout       time.Duration
}

// runStage executes all tasks of one stage concurrently and merges their
// results into the shared result map. Unknown kinds were filtered before the
// stage started; failed agents are logged and omitted so a broken task never
// halts the cycle.
func (o *Orchestrator) runStage(ctx context.Context, registry map[core.TaskKind]Registration, tasks []core.Task, rc *agent.RunContext) []agent.Result {
	results := make([]agent.Result, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		reg := registry[task.Kind]
		iterations := reg.MaxIterations
		if iterations == 0 {
			iterations = defaultMaxIterations
		}
		timeout := reg.Timeout
		if timeout == 0 {
			timeout = o.taskTimeout
		}

		wg.Add(1)
		go func(i int, task core.Task) {
			defer wg.Done()
			taskRC := &agent.RunContext{
				Batch:     rc.Batch,
				Execution: rc.Execution,
				Task:      task,
				Results:   rc.Results,
				History:   rc.History,
				Logger:    rc.Logger,
			}
			results[i] = agent.Execute(ctx, reg.Agent, taskRC,
				agent.WithMaxIterations(iterations),
				agent.WithTimeout(timeout),
			)
		}(i, task)
	}
	wg.Wait()
	return results
}
