package concierge

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/convomesh/agent"
	"github.com/hupe1980/convomesh/internal/util"
	"github.com/hupe1980/convomesh/model"
)

// SearchAgent resolves a catalog lookup: it extracts search filters from the
// task, queries the catalog and drafts a reply presenting the matches. The
// catalog is read-only, so the agent performs no compensatable side effects.
type SearchAgent struct {
	llm       model.Model
	catalog   Catalog
	threshold float64
}

// NewSearchAgent constructs a search agent over the given catalog.
func NewSearchAgent(llm model.Model, catalog Catalog, threshold float64) *SearchAgent {
	if threshold <= 0 {
		threshold = 7.0
	}
	return &SearchAgent{llm: llm, catalog: catalog, threshold: threshold}
}

// Name implements agent.Agent.
func (s *SearchAgent) Name() string { return "search" }

// ShouldActivate implements agent.Agent; a search task without a catalog is
// a no-op rather than a failure.
func (s *SearchAgent) ShouldActivate(context.Context, *agent.RunContext) bool {
	return s.catalog != nil
}

// ExecuteIteration implements agent.Agent: extract filters, query the
// catalog, draft the presentation.
func (s *SearchAgent) ExecuteIteration(ctx context.Context, rc *agent.RunContext, prev *agent.IterationState) (agent.Output, error) {
	query, err := s.extractQuery(ctx, rc)
	if err != nil {
		return agent.Output{}, err
	}

	listings, err := s.catalog.Search(ctx, query)
	if err != nil {
		return agent.Output{}, fmt.Errorf("catalog search: %w", err)
	}

	prompt := s.presentationPrompt(rc, query, listings) + agent.Feedback(prev)
	resp, err := s.llm.Generate(ctx, model.Request{
		System: "You are a real-estate concierge assistant. Present the search results faithfully; never invent listings or prices.",
		Prompt: prompt,
	})
	if err != nil {
		return agent.Output{}, err
	}
	return agent.Output{Text: resp.Text}, nil
}

// extractQuery asks the model for the structured filters behind the task.
func (s *SearchAgent) extractQuery(ctx context.Context, rc *agent.RunContext) (Query, error) {
	resp, err := s.llm.Generate(ctx, model.Request{
		System: "Extract real-estate search filters from the request. Answer only with a JSON object " +
			`{"zone": "", "max_price": 0, "min_bedrooms": 0}. Use zero values for unknown filters.`,
		Prompt: rc.Task.Description + "\n\n" + rc.Batch.Text(),
	})
	if err != nil {
		return Query{}, err
	}
	raw := util.FirstJSONObject(resp.Text)
	if raw == "" {
		// No parseable filters; an unconstrained query still yields a
		// presentable answer.
		return Query{}, nil
	}
	return Query{
		Zone:        gjson.Get(raw, "zone").String(),
		MaxPrice:    gjson.Get(raw, "max_price").Float(),
		MinBedrooms: int(gjson.Get(raw, "min_bedrooms").Int()),
	}, nil
}

func (s *SearchAgent) presentationPrompt(rc *agent.RunContext, query Query, listings []Listing) string {
	var sb strings.Builder
	sb.WriteString("Client request:\n" + rc.Batch.Text() + "\n\n")
	if len(listings) == 0 {
		sb.WriteString(fmt.Sprintf("No listings matched (zone=%q, max_price=%.0f, min_bedrooms=%d). ", query.Zone, query.MaxPrice, query.MinBedrooms))
		sb.WriteString("Write a short reply saying so and asking which criteria the client could relax.")
		return sb.String()
	}
	sb.WriteString("Matching listings:\n")
	for _, l := range listings {
		sb.WriteString(fmt.Sprintf("- %s: %s, %s, %d bedrooms, %.0f\n", l.ID, l.Title, l.Zone, l.Bedrooms, l.Price))
	}
	sb.WriteString("\nWrite a short reply presenting these options.")
	return sb.String()
}

// Evaluate implements agent.Agent.
func (s *SearchAgent) Evaluate(ctx context.Context, rc *agent.RunContext, out agent.Output) (agent.Evaluation, error) {
	criteria := "- mentions only listings present in the catalog results\n- states prices and sizes exactly as given"
	return evaluateDraft(ctx, s.llm, rc, out.Text, criteria, s.threshold)
}

var _ agent.Agent = (*SearchAgent)(nil)
