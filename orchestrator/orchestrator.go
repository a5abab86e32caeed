package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/convomesh/agent"
	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/logging"
	"github.com/hupe1980/convomesh/session"
)

// ErrNoOutput reports that no task produced any output, leaving nothing to
// merge. The caller sends no reply for the cycle.
var ErrNoOutput = errors.New("no task produced output")

// Reply is the final product of one cycle.
type Reply struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// Metadata carries per-cycle observability: which tasks ran, how many
// iterations and what score each took, and whether the merge budget had to
// settle for a below-threshold draft.
type Metadata struct {
	SelectedTasks     []string           `json:"selected_tasks"`
	IterationsPerTask map[string]int     `json:"iterations_per_task"`
	Scores            map[string]float64 `json:"scores"`
	Degraded          bool               `json:"degraded"`
}

// Options configure an Orchestrator.
type Options struct {
	// DefaultKind is the task kind used when planning fails structurally.
	DefaultKind core.TaskKind
	// MergePasses bounds the merger's correction loop.
	MergePasses int
	// MergeThreshold is the minimum acceptance score for the merged reply.
	MergeThreshold float64
	// TaskTimeout bounds each task's wall-clock when the registration does
	// not set its own.
	TaskTimeout time.Duration
	// Logger receives orchestration records.
	Logger logging.Logger
}

// Orchestrator coordinates one processing cycle: plan, dispatch, merge.
type Orchestrator struct {
	planner Planner

	mu       sync.RWMutex
	registry map[core.TaskKind]Registration

	merger         agent.Agent
	defaultKind    core.TaskKind
	mergePasses    int
	mergeThreshold float64
	taskTimeout    time.Duration
	logger         logging.Logger
}

// New constructs an Orchestrator. merger is the dedicated validating agent
// applied to the combined worker outputs; registry maps every known task
// kind to its worker agent. The default kind must be present in the
// registry.
func New(planner Planner, registry map[core.TaskKind]Registration, merger agent.Agent, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		DefaultKind:    "reply",
		MergePasses:    2,
		MergeThreshold: 7.0,
		TaskTimeout:    60 * time.Second,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	// Own a copy so Register cannot race a registry map the caller retains.
	reg := make(map[core.TaskKind]Registration, len(registry))
	for k, v := range registry {
		reg[k] = v
	}
	return &Orchestrator{
		planner:        planner,
		registry:       reg,
		merger:         merger,
		defaultKind:    opts.DefaultKind,
		mergePasses:    opts.MergePasses,
		mergeThreshold: opts.MergeThreshold,
		taskTimeout:    opts.TaskTimeout,
		logger:         opts.Logger,
	}
}

// Register adds or replaces the worker for a task kind. Kinds registered
// after construction become available to the planner on the next cycle; a
// cycle already running keeps the registry view it started with.
func (o *Orchestrator) Register(kind core.TaskKind, reg Registration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.registry[kind] = reg
}

// Kinds returns the kind catalog (kind -> description) for planner prompts.
func (o *Orchestrator) Kinds() map[core.TaskKind]string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[core.TaskKind]string, len(o.registry))
	for k, reg := range o.registry {
		out[k] = reg.Description
	}
	return out
}

// snapshotRegistry copies the registry so one cycle sees a stable view even
// when Register runs concurrently.
func (o *Orchestrator) snapshotRegistry() map[core.TaskKind]Registration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[core.TaskKind]Registration, len(o.registry))
	for k, reg := range o.registry {
		out[k] = reg
	}
	return out
}

// Run executes one full cycle for the batch. It returns core.ErrAborted when
// the execution context was cancelled at any checkpoint, ErrNoOutput when
// nothing could be merged, and a Reply otherwise. A below-threshold merge
// after the correction budget yields the best-scoring draft with
// Metadata.Degraded set, never silence while any task produced output.
func (o *Orchestrator) Run(ctx context.Context, batch core.Batch, execCtx *core.ExecutionContext, history []session.Message) (*Reply, error) {
	log := o.logger
	if execCtx != nil {
		log = withExecution(log, batch, execCtx)
	}

	registry := o.snapshotRegistry()
	plan := o.plan(ctx, registry, batch, history, log)

	rc := &agent.RunContext{
		Batch:     batch,
		Execution: execCtx,
		Results:   make(map[string]core.TaskResult),
		History:   history,
		Logger:    log,
	}

	meta := Metadata{
		IterationsPerTask: make(map[string]int),
		Scores:            make(map[string]float64),
	}

	for _, stage := range plan.Stages() {
		if execCtx != nil && execCtx.IsAborted() {
			return nil, core.ErrAborted
		}

		known := stage[:0:0]
		for _, task := range stage {
			if _, ok := registry[task.Kind]; !ok {
				log.Warn("skipping task with unknown kind", "task_id", task.ID, "kind", task.Kind)
				continue
			}
			known = append(known, task)
		}
		if len(known) == 0 {
			continue
		}

		for i, res := range o.runStage(ctx, registry, known, rc) {
			task := known[i]
			if res.Err != nil {
				if errors.Is(res.Err, core.ErrAborted) {
					return nil, core.ErrAborted
				}
				log.Warn("task failed, proceeding without its result", "task_id", task.ID, "agent", res.AgentName, "error", res.Err)
				continue
			}
			if res.Skipped {
				log.Debug("task skipped by activation gate", "task_id", task.ID, "agent", res.AgentName)
				continue
			}
			meta.SelectedTasks = append(meta.SelectedTasks, task.ID)
			meta.IterationsPerTask[task.ID] = res.Iterations
			meta.Scores[task.ID] = res.Score
			rc.Results[task.ID] = core.TaskResult{
				TaskID:     task.ID,
				Kind:       task.Kind,
				Success:    true,
				Output:     res.Output.Text,
				Confidence: res.Score,
				Iterations: res.Iterations,
			}
		}
	}

	if execCtx != nil && execCtx.IsAborted() {
		return nil, core.ErrAborted
	}

	text, score, degraded, err := o.merge(ctx, plan, rc)
	if err != nil {
		return nil, err
	}
	meta.Degraded = degraded
	meta.Scores["merge"] = score

	return &Reply{Text: text, Metadata: meta}, nil
}

// plan obtains and validates the task plan, degrading to the single default
// task on any planner or structural failure.
func (o *Orchestrator) plan(ctx context.Context, registry map[core.TaskKind]Registration, batch core.Batch, history []session.Message, log logging.Logger) core.TaskPlan {
	known := make(map[core.TaskKind]bool, len(registry))
	for k := range registry {
		known[k] = true
	}

	plan, err := o.planner.Plan(ctx, batch, history)
	if err == nil {
		err = plan.Validate(known)
	}
	if err != nil {
		log.Warn("plan rejected, degrading to default task", "error", err)
		return defaultPlan(o.defaultKind, batch)
	}
	log.Debug("plan accepted", "tasks", len(plan.Tasks))
	return plan
}

// withExecution attaches cycle correlation identifiers when the logger
// supports it.
func withExecution(log logging.Logger, batch core.Batch, execCtx *core.ExecutionContext) logging.Logger {
	if cl, ok := log.(*logging.ConvoLogger); ok {
		return cl.WithExecution(batch.Key.String(), execCtx.ID())
	}
	return log
}
