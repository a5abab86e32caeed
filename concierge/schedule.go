package concierge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/convomesh/agent"
	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/internal/util"
	"github.com/hupe1980/convomesh/model"
)

// ScheduleAgent resolves a scheduling intent: it extracts the visit details,
// books the appointment tagged with the cycle's executionID and defers the
// owner notification as a named pending action so two scheduling tasks in
// one cycle notify the owner once.
//
// The booking is the one real side effect performed mid-cycle; the agent
// checks the cancellation flag immediately before committing it and records
// the appointment id so an aborted cycle's cleanup can void it. The id is
// derived from the cycle and the visit slot, so an iteration retried after a
// transient confirmation failure re-books the same entry instead of creating
// a duplicate.
type ScheduleAgent struct {
	llm      model.Model
	book     AppointmentBook
	notifier Notifier
}

// NewScheduleAgent constructs a schedule agent over the given book.
func NewScheduleAgent(llm model.Model, book AppointmentBook, notifier Notifier) *ScheduleAgent {
	return &ScheduleAgent{llm: llm, book: book, notifier: notifier}
}

// Name implements agent.Agent.
func (s *ScheduleAgent) Name() string { return "schedule" }

// ShouldActivate implements agent.Agent.
func (s *ScheduleAgent) ShouldActivate(context.Context, *agent.RunContext) bool {
	return s.book != nil
}

// ExecuteIteration implements agent.Agent.
func (s *ScheduleAgent) ExecuteIteration(ctx context.Context, rc *agent.RunContext, prev *agent.IterationState) (agent.Output, error) {
	details, ok, err := s.extractDetails(ctx, rc)
	if err != nil {
		return agent.Output{}, err
	}
	if !ok {
		// Missing date or listing; ask instead of guessing.
		return s.clarify(ctx, rc, prev)
	}

	if rc.Execution != nil && rc.Execution.IsAborted() {
		return agent.Output{}, core.ErrAborted
	}

	executionID := ""
	if rc.Execution != nil {
		executionID = rc.Execution.ID()
	}
	appt := Appointment{
		ListingID:   details.listingID,
		Visitor:     details.visitor,
		When:        details.when,
		ExecutionID: executionID,
	}
	if executionID != "" {
		appt.ID = visitID(executionID, details.listingID, details.when)
	}
	apptID, err := s.book.Book(ctx, appt)
	if err != nil {
		return agent.Output{}, fmt.Errorf("book appointment: %w", err)
	}
	if rc.Execution != nil {
		rc.Execution.RecordSideEffect("appointment:" + apptID)
		if s.notifier != nil {
			listingID := details.listingID
			visitor := details.visitor
			when := details.when
			rc.Execution.AddPendingAction(func(ctx context.Context) error {
				msg := fmt.Sprintf("Visit booked for %s at %s by %s", listingID, when.Format(time.RFC3339), visitor)
				return s.notifier.Notify(ctx, "owner:"+listingID, msg)
			}, "notify-owner:"+details.listingID)
		}
	}

	resp, err := s.llm.Generate(ctx, model.Request{
		System: "You are a real-estate concierge assistant. Confirm the booked visit in one or two sentences.",
		Prompt: fmt.Sprintf("Visit booked: listing %s, %s, visitor %s.\nClient wrote:\n%s%s",
			details.listingID, details.when.Format("Monday 2 January 15:04"), details.visitor, rc.Batch.Text(), agent.Feedback(prev)),
	})
	if err != nil {
		return agent.Output{}, err
	}
	return agent.Output{
		Text:                 resp.Text,
		PerformedSideEffects: []string{"appointment:" + apptID},
	}, nil
}

// visitID derives a deterministic appointment id from the cycle and the
// visit slot. Booking under the same id is an upsert, which keeps the booking
// idempotent across retried iterations of one cycle.
func visitID(executionID, listingID string, when time.Time) string {
	sum := sha256.Sum256([]byte(executionID + "|" + listingID + "|" + when.UTC().Format(time.RFC3339)))
	return "visit-" + hex.EncodeToString(sum[:8])
}

// visitDetails is the structured scheduling intent.
type visitDetails struct {
	listingID string
	visitor   string
	when      time.Time
}

// extractDetails asks the model for the structured visit details. ok is
// false when the listing or time is still unknown.
func (s *ScheduleAgent) extractDetails(ctx context.Context, rc *agent.RunContext) (visitDetails, bool, error) {
	resp, err := s.llm.Generate(ctx, model.Request{
		System: "Extract property visit details from the request. Answer only with a JSON object " +
			`{"listing_id": "", "visitor": "", "when": "RFC3339 timestamp or empty"}. Use empty strings for unknown fields.`,
		Prompt: rc.Task.Description + "\n\n" + rc.Batch.Text(),
	})
	if err != nil {
		return visitDetails{}, false, err
	}
	raw := util.FirstJSONObject(resp.Text)
	if raw == "" {
		return visitDetails{}, false, nil
	}
	details := visitDetails{
		listingID: gjson.Get(raw, "listing_id").String(),
		visitor:   gjson.Get(raw, "visitor").String(),
	}
	if details.visitor == "" {
		details.visitor = rc.Batch.SenderName()
	}
	when, err := time.Parse(time.RFC3339, gjson.Get(raw, "when").String())
	if err != nil || details.listingID == "" {
		return details, false, nil
	}
	details.when = when
	return details, true, nil
}

// clarify drafts a question asking for the missing visit details.
func (s *ScheduleAgent) clarify(ctx context.Context, rc *agent.RunContext, prev *agent.IterationState) (agent.Output, error) {
	resp, err := s.llm.Generate(ctx, model.Request{
		System: "You are a real-estate concierge assistant.",
		Prompt: "The client wants to visit a property but the listing or date is unclear. Ask briefly for the missing details.\nClient wrote:\n" +
			rc.Batch.Text() + agent.Feedback(prev),
	})
	if err != nil {
		return agent.Output{}, err
	}
	return agent.Output{Text: resp.Text}, nil
}

// Evaluate implements agent.Agent. Booking already happened when the draft
// exists, so the evaluation only polices the confirmation text; a retry must
// not re-book.
func (s *ScheduleAgent) Evaluate(_ context.Context, _ *agent.RunContext, out agent.Output) (agent.Evaluation, error) {
	if out.Text == "" {
		return agent.Evaluation{Score: 0, Valid: false, ShouldRetry: true, Issues: []string{"empty confirmation"}}, nil
	}
	return agent.Evaluation{Score: 10, Valid: true}, nil
}

var _ agent.Agent = (*ScheduleAgent)(nil)
