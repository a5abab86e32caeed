package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/convomesh/logging"
	"github.com/hupe1980/convomesh/model"
)

// PromptFunc builds the system and user prompts for one iteration. prev is
// nil on the first iteration; implementations typically append Feedback(prev)
// to the user prompt.
type PromptFunc func(rc *RunContext, prev *IterationState) (system string, prompt string)

// GateFunc decides whether the agent activates for the given run.
type GateFunc func(rc *RunContext) bool

// GenerationAgentOptions configures a GenerationAgent instance.
//
// Use functional options with NewGenerationAgent to override defaults.
type GenerationAgentOptions struct {
	// Gate short-circuits the run when it returns false. Defaults to always on.
	Gate GateFunc
	// Threshold is the minimum self-evaluation score for acceptance.
	Threshold float64
	// SelfEvaluate toggles the model-backed evaluation step. When off, any
	// non-empty output is accepted.
	SelfEvaluate bool
	// EvalCriteria is appended to the evaluator prompt (style rules, policy).
	EvalCriteria string
}

// GenerationAgent is a reusable Agent implementation backed by a text
// generation model: the iteration step renders prompts via a PromptFunc and
// calls the model once; the evaluation step asks the same model to score the
// draft against the acceptance criteria.
//
// Business agents embed or instantiate it with their own prompt builders;
// agents that perform external side effects implement Agent directly instead.
type GenerationAgent struct {
	name      string
	llm       model.Model
	prompt    PromptFunc
	gate      GateFunc
	threshold float64
	selfEval  bool
	criteria  string
}

// NewGenerationAgent creates a model-backed agent with sensible defaults:
// always activated, self-evaluation on, acceptance threshold 7.
func NewGenerationAgent(name string, llm model.Model, prompt PromptFunc, optFns ...func(o *GenerationAgentOptions)) *GenerationAgent {
	opts := GenerationAgentOptions{
		Threshold:    7.0,
		SelfEvaluate: true,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &GenerationAgent{
		name:      name,
		llm:       llm,
		prompt:    prompt,
		gate:      opts.Gate,
		threshold: opts.Threshold,
		selfEval:  opts.SelfEvaluate,
		criteria:  opts.EvalCriteria,
	}
}

// Name implements Agent.
func (g *GenerationAgent) Name() string { return g.name }

// ShouldActivate implements Agent.
func (g *GenerationAgent) ShouldActivate(_ context.Context, rc *RunContext) bool {
	if g.gate == nil {
		return true
	}
	return g.gate(rc)
}

// ExecuteIteration implements Agent performing one model call.
func (g *GenerationAgent) ExecuteIteration(ctx context.Context, rc *RunContext, prev *IterationState) (Output, error) {
	system, prompt := g.prompt(rc, prev)
	resp, err := g.generate(ctx, rc, model.Request{System: system, Prompt: prompt})
	if err != nil {
		return Output{}, err
	}
	return Output{Text: resp.Text}, nil
}

// generate calls the model, recording call latency and outcome when the run
// logger supports it.
func (g *GenerationAgent) generate(ctx context.Context, rc *RunContext, req model.Request) (*model.Response, error) {
	start := time.Now()
	resp, err := g.llm.Generate(ctx, req)
	if cl, ok := rc.Logger.(*logging.ConvoLogger); ok {
		cl.LogModelCall(g.llm.Info().Name, time.Since(start), err == nil, err)
	}
	return resp, err
}

// Evaluate implements Agent. With self-evaluation enabled it asks the model
// for a JSON verdict; otherwise any non-empty draft is accepted.
func (g *GenerationAgent) Evaluate(ctx context.Context, rc *RunContext, out Output) (Evaluation, error) {
	if out.Text == "" {
		return Evaluation{Score: 0, Valid: false, ShouldRetry: true, Issues: []string{"empty draft"}}, nil
	}
	if !g.selfEval {
		return Evaluation{Score: 10, Valid: true}, nil
	}

	system := "You are a strict reviewer. Score the draft from 0 to 10 and answer only with a JSON object " +
		`{"score": n, "valid": bool, "issues": [], "suggestions": [], "should_retry": bool}.`
	prompt := fmt.Sprintf("Task: %s\n\nDraft:\n%s", rc.Task.Description, out.Text)
	if g.criteria != "" {
		prompt += "\n\nAcceptance criteria:\n" + g.criteria
	}
	resp, err := g.generate(ctx, rc, model.Request{System: system, Prompt: prompt})
	if err != nil {
		return Evaluation{}, err
	}
	return ParseEvaluation(resp.Text, g.threshold), nil
}

var _ Agent = (*GenerationAgent)(nil)
