package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/internal/testutil"
	"github.com/hupe1980/convomesh/model"
)

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    []core.Task
		wantErr bool
	}{
		{
			name: "clean json",
			text: `{"tasks": [{"id": "t1", "stage": 1, "kind": "search", "description": "find flats"}]}`,
			want: []core.Task{{ID: "t1", Stage: 1, Kind: "search", Description: "find flats"}},
		},
		{
			name: "json wrapped in prose",
			text: "Sure, here is the plan:\n```json\n{\"tasks\": [{\"id\": \"t1\", \"stage\": 1, \"kind\": \"reply\"}]}\n```",
			want: []core.Task{{ID: "t1", Stage: 1, Kind: "reply"}},
		},
		{
			name: "missing ids and stages get defaults",
			text: `{"tasks": [{"kind": "search"}, {"kind": "reply"}]}`,
			want: []core.Task{
				{ID: "t1", Stage: 1, Kind: "search"},
				{ID: "t2", Stage: 1, Kind: "reply"},
			},
		},
		{
			name:    "no json",
			text:    "I cannot plan this",
			wantErr: true,
		},
		{
			name:    "missing tasks array",
			text:    `{"plan": "do things"}`,
			wantErr: true,
		},
		{
			name:    "empty tasks array",
			text:    `{"tasks": []}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlan(tt.text)
			if tt.wantErr {
				var pve *core.PlanValidationError
				require.ErrorAs(t, err, &pve)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.Tasks)
		})
	}
}

func TestModelPlanner_PromptContainsKindsAndContext(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueResponse(`{"tasks": [{"id": "t1", "stage": 1, "kind": "reply", "description": "answer"}]}`)

	planner := NewModelPlanner(llm, map[core.TaskKind]string{
		"reply":  "answer questions",
		"search": "look up listings",
	})

	batch := testutil.NewBatchBuilder("sess", "+1").Sender("Dana").Text("any 2BR available?").Build()
	history := testutil.NewHistoryBuilder().User("hi").Assistant("hello!").Build()

	plan, err := planner.Plan(context.Background(), batch, history)
	require.NoError(t, err)
	require.Len(t, plan.Tasks, 1)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "reply: answer questions")
	assert.Contains(t, calls[0].System, "search: look up listings")
	assert.Contains(t, calls[0].Prompt, "Sender: Dana")
	assert.Contains(t, calls[0].Prompt, "any 2BR available?")
	assert.Contains(t, calls[0].Prompt, "assistant: hello!")
}

func TestModelPlanner_GenerationError(t *testing.T) {
	llm := model.NewMockModel("mock", "mock")
	llm.EnqueueError(errors.New("down"))

	planner := NewModelPlanner(llm, nil)
	_, err := planner.Plan(context.Background(), core.Batch{}, nil)
	assert.Error(t, err)
}

func TestDefaultPlan(t *testing.T) {
	batch := testutil.NewBatchBuilder("sess", "+1").Text("hello there").Build()
	plan := defaultPlan("reply", batch)

	require.Len(t, plan.Tasks, 1)
	assert.Equal(t, "default", plan.Tasks[0].ID)
	assert.Equal(t, core.TaskKind("reply"), plan.Tasks[0].Kind)
	assert.Contains(t, plan.Tasks[0].Description, "hello there")
	assert.NoError(t, plan.Validate(map[core.TaskKind]bool{"reply": true}))
}
