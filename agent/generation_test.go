package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/convomesh/logging"
	"github.com/hupe1980/convomesh/model"
)

func TestGenerationAgent_IterationAndSelfEvaluation(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueResponse("Hello Dana, how can I help?")
	llm.EnqueueResponse(`{"score": 9, "valid": true, "should_retry": false}`)

	a := NewGenerationAgent("reply", llm, func(rc *RunContext, prev *IterationState) (string, string) {
		return "be helpful", rc.Batch.Text() + Feedback(prev)
	})

	res := Execute(context.Background(), a, runContext())

	require.True(t, res.Success)
	assert.Equal(t, "Hello Dana, how can I help?", res.Output.Text)
	assert.Equal(t, 9.0, res.Score)
	require.Len(t, llm.Calls(), 2)
	assert.Contains(t, llm.Calls()[1].Prompt, "Hello Dana")
}

func TestGenerationAgent_SelfEvaluationOff(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueResponse("quick answer")

	a := NewGenerationAgent("reply", llm, func(*RunContext, *IterationState) (string, string) {
		return "", "prompt"
	}, func(o *GenerationAgentOptions) {
		o.SelfEvaluate = false
	})

	res := Execute(context.Background(), a, runContext())

	require.True(t, res.Success)
	assert.Equal(t, "quick answer", res.Output.Text)
	// No evaluator call was made.
	assert.Len(t, llm.Calls(), 1)
}

func TestGenerationAgent_EmitsModelCallRecords(t *testing.T) {
	var buf strings.Builder
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json", Output: &buf})

	llm := model.NewMockModel("mock-4", "mock")
	llm.EnqueueResponse("answer")
	llm.EnqueueResponse(`{"score": 9, "valid": true, "should_retry": false}`)

	a := NewGenerationAgent("reply", llm, func(*RunContext, *IterationState) (string, string) {
		return "", "prompt"
	})

	rc := runContext()
	rc.Logger = logger
	res := Execute(context.Background(), a, rc)
	require.True(t, res.Success)

	out := buf.String()
	// One record per model call: the iteration and the self-evaluation.
	assert.Equal(t, 2, strings.Count(out, "Model call completed"))
	assert.Contains(t, out, `"model":"mock-4"`)
}

func TestGenerationAgent_EmptyDraftRejected(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")

	a := NewGenerationAgent("reply", llm, func(*RunContext, *IterationState) (string, string) {
		return "", "prompt"
	})

	eval, err := a.Evaluate(context.Background(), runContext(), Output{Text: ""})
	require.NoError(t, err)
	assert.False(t, eval.Valid)
	assert.True(t, eval.ShouldRetry)
}

func TestGenerationAgent_Gate(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")

	a := NewGenerationAgent("reply", llm, func(*RunContext, *IterationState) (string, string) {
		return "", ""
	}, func(o *GenerationAgentOptions) {
		o.Gate = func(rc *RunContext) bool { return rc.Batch.Text() != "" }
	})

	assert.True(t, a.ShouldActivate(context.Background(), runContext()))

	empty := runContext()
	empty.Batch.Events = nil
	assert.False(t, a.ShouldActivate(context.Background(), empty))
}
