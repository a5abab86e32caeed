package concierge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/convomesh/agent"
	"github.com/hupe1980/convomesh/model"
)

// StylePolicy holds the concierge's reply conventions enforced by the merge
// pass.
type StylePolicy struct {
	Language     string // reply language, defaults to the client's
	Tone         string // e.g. "warm and professional"
	MaxSentences int    // 0 means unbounded
	Signature    string // appended closing line, optional
}

// SystemPrompt renders the policy as generation instructions.
func (p StylePolicy) SystemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are a real-estate concierge assistant.")
	if p.Language != "" {
		sb.WriteString(" Reply in " + p.Language + ".")
	} else {
		sb.WriteString(" Reply in the client's language.")
	}
	if p.Tone != "" {
		sb.WriteString(" Keep a " + p.Tone + " tone.")
	}
	if p.MaxSentences > 0 {
		sb.WriteString(fmt.Sprintf(" Use at most %d sentences.", p.MaxSentences))
	}
	if p.Signature != "" {
		sb.WriteString(" Close with: " + p.Signature)
	}
	return sb.String()
}

// Criteria renders the policy as acceptance criteria for evaluators.
func (p StylePolicy) Criteria() string {
	var rules []string
	rules = append(rules, "answers every question the client asked", "states only facts present in the task outputs")
	if p.Language != "" {
		rules = append(rules, "written in "+p.Language)
	}
	if p.Tone != "" {
		rules = append(rules, "keeps a "+p.Tone+" tone")
	}
	if p.MaxSentences > 0 {
		rules = append(rules, fmt.Sprintf("no more than %d sentences", p.MaxSentences))
	}
	return "- " + strings.Join(rules, "\n- ")
}

// MergeAgent is the validating final pass: it combines all worker outputs
// into one reply that honors the style policy, then scores its own draft
// against that policy. The orchestrator drives its correction loop.
type MergeAgent struct {
	llm       model.Model
	policy    StylePolicy
	threshold float64
}

// NewMergeAgent constructs the merge agent with the given policy and
// acceptance threshold.
func NewMergeAgent(llm model.Model, policy StylePolicy, threshold float64) *MergeAgent {
	if threshold <= 0 {
		threshold = 7.0
	}
	return &MergeAgent{llm: llm, policy: policy, threshold: threshold}
}

// Name implements agent.Agent.
func (m *MergeAgent) Name() string { return "merge" }

// ShouldActivate implements agent.Agent; the merge pass always runs.
func (m *MergeAgent) ShouldActivate(context.Context, *agent.RunContext) bool { return true }

// ExecuteIteration implements agent.Agent combining the task outputs into a
// single corrected reply.
func (m *MergeAgent) ExecuteIteration(ctx context.Context, rc *agent.RunContext, prev *agent.IterationState) (agent.Output, error) {
	var sb strings.Builder
	if len(rc.History) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, msg := range rc.History {
			sb.WriteString(msg.Role + ": " + msg.Text + "\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Client wrote:\n" + rc.Batch.Text() + "\n\n")
	sb.WriteString("Task outputs to combine:\n")

	ids := make([]string, 0, len(rc.Results))
	for id := range rc.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		res := rc.Results[id]
		sb.WriteString(fmt.Sprintf("[%s/%s]\n%s\n\n", id, res.Kind, res.Output))
	}
	sb.WriteString("Write the single final reply to the client.")
	sb.WriteString(agent.Feedback(prev))

	resp, err := m.llm.Generate(ctx, model.Request{System: m.policy.SystemPrompt(), Prompt: sb.String()})
	if err != nil {
		return agent.Output{}, err
	}
	return agent.Output{Text: resp.Text}, nil
}

// Evaluate implements agent.Agent scoring the merged draft against the
// style policy.
func (m *MergeAgent) Evaluate(ctx context.Context, rc *agent.RunContext, out agent.Output) (agent.Evaluation, error) {
	return evaluateDraft(ctx, m.llm, rc, out.Text, m.policy.Criteria(), m.threshold)
}

var _ agent.Agent = (*MergeAgent)(nil)
