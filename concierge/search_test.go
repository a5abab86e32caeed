package concierge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/convomesh/agent"
	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/internal/testutil"
	"github.com/hupe1980/convomesh/model"
)

func searchRunContext() *agent.RunContext {
	batch := testutil.NewBatchBuilder("sess", "+1").
		Text("Looking for a 2 bedroom in Riverside under 1600").Build()
	return &agent.RunContext{
		Batch: batch,
		Task:  core.Task{ID: "t1", Kind: KindSearch, Description: "find matching flats"},
	}
}

func TestSearchAgent_QueriesCatalogWithExtractedFilters(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueResponse(`{"zone": "Riverside", "max_price": 1600, "min_bedrooms": 2}`)
	llm.EnqueueResponse("One option: Sunny 2BR (apt-301) at 1450/month in Riverside.")

	a := NewSearchAgent(llm, seedCatalog(), 7.0)

	out, err := a.ExecuteIteration(context.Background(), searchRunContext(), nil)
	require.NoError(t, err)
	assert.Contains(t, out.Text, "apt-301")
	assert.Empty(t, out.PerformedSideEffects)

	// The presentation prompt carried the matching listing, nothing else.
	calls := llm.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].Prompt, "apt-301")
	assert.NotContains(t, calls[1].Prompt, "apt-220")
}

func TestSearchAgent_NoMatchesAskToRelaxCriteria(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueResponse(`{"zone": "Harbor", "max_price": 0, "min_bedrooms": 0}`)
	llm.EnqueueResponse("Nothing in Harbor right now; would another zone work?")

	a := NewSearchAgent(llm, seedCatalog(), 7.0)

	out, err := a.ExecuteIteration(context.Background(), searchRunContext(), nil)
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Harbor")

	calls := llm.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].Prompt, "No listings matched")
}

func TestSearchAgent_UnparseableFiltersFallBackToUnconstrained(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueResponse("I could not determine filters")
	llm.EnqueueResponse("Here is everything we have available.")

	a := NewSearchAgent(llm, seedCatalog(), 7.0)

	out, err := a.ExecuteIteration(context.Background(), searchRunContext(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Text)

	// All available listings made it into the presentation prompt.
	calls := llm.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].Prompt, "apt-301")
	assert.Contains(t, calls[1].Prompt, "apt-114")
	assert.Contains(t, calls[1].Prompt, "apt-220")
}

func TestSearchAgent_ActivationRequiresCatalog(t *testing.T) {
	a := NewSearchAgent(model.NewMockModel("mock", "mock"), nil, 7.0)
	assert.False(t, a.ShouldActivate(context.Background(), nil))
}

func TestSearchAgent_Evaluate(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueResponse(`{"score": 8, "valid": true, "should_retry": false}`)

	a := NewSearchAgent(llm, seedCatalog(), 7.0)

	eval, err := a.Evaluate(context.Background(), searchRunContext(), agent.Output{Text: "found apt-301"})
	require.NoError(t, err)
	assert.True(t, eval.Valid)
	assert.Equal(t, 8.0, eval.Score)
}
