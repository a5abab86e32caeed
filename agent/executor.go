package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/logging"
)

// Options configure one driver run.
type Options struct {
	// MaxIterations bounds the generate/evaluate loop. Minimum 1.
	MaxIterations int
	// Timeout, when positive, bounds the whole run wall-clock.
	Timeout time.Duration
	// Logger overrides the RunContext logger for driver-level records.
	Logger logging.Logger
}

// WithMaxIterations sets the iteration budget for the run.
func WithMaxIterations(n int) func(o *Options) {
	return func(o *Options) { o.MaxIterations = n }
}

// WithTimeout bounds the run wall-clock.
func WithTimeout(d time.Duration) func(o *Options) {
	return func(o *Options) { o.Timeout = d }
}

// Execute drives one agent through the bounded generate/evaluate loop.
//
// Control flow:
//  1. Activation gate; a declined gate yields an empty successful no-op.
//  2. Up to MaxIterations rounds of ExecuteIteration then Evaluate.
//  3. Stop when the evaluation is valid and does not ask for a retry;
//     otherwise the evaluation feeds the next iteration as feedback.
//  4. On budget exhaustion the last iteration's output is returned
//     regardless of score, never an empty result except on an
//     unrecoverable error.
//
// Transient generation failures consume iterations from the same budget.
// Panics and non-transient errors mark the run failed without propagating;
// cancellation of the cycle's ExecutionContext is checked before each
// iteration and after each generation result.
func Execute(ctx context.Context, a Agent, rc *RunContext, optFns ...func(o *Options)) Result {
	opts := Options{MaxIterations: 3}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxIterations < 1 {
		opts.MaxIterations = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = rc.Logger
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	result := Result{AgentName: a.Name()}
	defer func() {
		if cl, ok := logger.(*logging.ConvoLogger); ok && !result.Skipped {
			cl.LogAgentRun(a.Name(), result.Iterations, result.Score, result.Elapsed, result.Success)
		}
	}()

	if !a.ShouldActivate(ctx, rc) {
		result.Success = true
		result.Skipped = true
		result.Elapsed = time.Since(start)
		logger.Debug("agent activation declined", "agent", a.Name(), "task_id", rc.Task.ID)
		return result
	}

	var prev *IterationState
	for i := 1; i <= opts.MaxIterations; i++ {
		if rc.Execution != nil && rc.Execution.IsAborted() {
			result.Err = core.ErrAborted
			result.Elapsed = time.Since(start)
			return result
		}

		result.Iterations = i
		out, err := runIteration(ctx, a, rc, prev)
		if err != nil {
			if core.IsTransient(err) {
				if i < opts.MaxIterations {
					logger.Warn("transient generation failure, retrying", "agent", a.Name(), "iteration", i, "error", err)
					continue
				}
				if prev != nil {
					// Budget gone but an earlier draft exists; return it
					// rather than an empty result.
					result.Output = prev.Output
					result.Score = prev.Evaluation.Score
					result.Success = true
					result.Elapsed = time.Since(start)
					logger.Warn("transient failure on final iteration, returning previous draft", "agent", a.Name(), "iteration", i)
					return result
				}
			}
			result.Err = &core.AgentIterationError{AgentName: a.Name(), Iteration: i, Err: err}
			result.Elapsed = time.Since(start)
			logger.Error("agent iteration failed", "agent", a.Name(), "iteration", i, "error", err)
			return result
		}
		result.SideEffects = append(result.SideEffects, out.PerformedSideEffects...)

		// Generation may have raced an abort; do not evaluate or commit further.
		if rc.Execution != nil && rc.Execution.IsAborted() {
			result.Err = core.ErrAborted
			result.Elapsed = time.Since(start)
			return result
		}

		eval, err := a.Evaluate(ctx, rc, out)
		if err != nil {
			result.Err = &core.AgentIterationError{AgentName: a.Name(), Iteration: i, Err: fmt.Errorf("evaluate: %w", err)}
			result.Elapsed = time.Since(start)
			logger.Error("agent evaluation failed", "agent", a.Name(), "iteration", i, "error", err)
			return result
		}

		result.Output = out
		result.Score = eval.Score
		if eval.Valid && !eval.ShouldRetry {
			break
		}
		prev = &IterationState{Iteration: i, Output: out, Evaluation: eval}
	}

	result.Success = true
	result.Elapsed = time.Since(start)
	logger.Debug("agent run finished", "agent", a.Name(), "iterations", result.Iterations, "score", result.Score, "elapsed", result.Elapsed, "side_effects", len(result.SideEffects))
	return result
}

// runIteration invokes one generation step converting a panic into an error.
func runIteration(ctx context.Context, a Agent, rc *RunContext, prev *IterationState) (out Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("iteration panicked: %v", r)
		}
	}()
	return a.ExecuteIteration(ctx, rc, prev)
}
