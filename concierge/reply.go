package concierge

import (
	"strings"

	"github.com/hupe1980/convomesh/agent"
	"github.com/hupe1980/convomesh/model"
)

// NewReplyAgent builds the default conversational agent: it drafts an answer
// from the batch and recent history alone, evaluated against the concierge
// style policy. Planning routes tasks here whenever no lookup or booking is
// needed, and the orchestrator falls back to it when planning fails.
func NewReplyAgent(llm model.Model, policy StylePolicy, threshold float64) *agent.GenerationAgent {
	prompt := func(rc *agent.RunContext, prev *agent.IterationState) (string, string) {
		var sb strings.Builder
		if len(rc.History) > 0 {
			sb.WriteString("Recent conversation:\n")
			for _, msg := range rc.History {
				sb.WriteString(msg.Role + ": " + msg.Text + "\n")
			}
			sb.WriteString("\n")
		}
		sb.WriteString("Client wrote:\n" + rc.Batch.Text())
		if rc.Task.Description != "" {
			sb.WriteString("\n\nFocus: " + rc.Task.Description)
		}
		sb.WriteString(agent.Feedback(prev))
		return policy.SystemPrompt(), sb.String()
	}
	return agent.NewGenerationAgent("reply", llm, prompt, func(o *agent.GenerationAgentOptions) {
		o.Threshold = threshold
		o.EvalCriteria = policy.Criteria()
	})
}
