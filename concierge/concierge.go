package concierge

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/convomesh/agent"
	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/model"
	"github.com/hupe1980/convomesh/orchestrator"
)

// Task kinds handled by the concierge agent set.
const (
	// KindReply drafts a conversational answer with no external lookups.
	// It is also the orchestrator's default kind when planning fails.
	KindReply core.TaskKind = "reply"
	// KindSearch queries the listing catalog and presents matches.
	KindSearch core.TaskKind = "search"
	// KindSchedule books a property visit and notifies the owner.
	KindSchedule core.TaskKind = "schedule"
)

// Config wires the concierge agent set.
type Config struct {
	Model    model.Model
	Catalog  Catalog
	Book     AppointmentBook
	Notifier Notifier
	Policy   StylePolicy

	// MaxIterations is the per-task iteration budget.
	MaxIterations int
	// Threshold is the per-agent acceptance score.
	Threshold float64
	// TaskTimeout bounds each task's wall-clock.
	TaskTimeout time.Duration
}

// Registry builds the kind-to-agent registry for the orchestrator.
func Registry(cfg Config) map[core.TaskKind]orchestrator.Registration {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 7.0
	}
	return map[core.TaskKind]orchestrator.Registration{
		KindReply: {
			Agent:         NewReplyAgent(cfg.Model, cfg.Policy, cfg.Threshold),
			Description:   "answer questions and small talk using conversation context only",
			MaxIterations: cfg.MaxIterations,
			Timeout:       cfg.TaskTimeout,
		},
		KindSearch: {
			Agent:         NewSearchAgent(cfg.Model, cfg.Catalog, cfg.Threshold),
			Description:   "look up property listings matching zone, budget and size requirements",
			MaxIterations: cfg.MaxIterations,
			Timeout:       cfg.TaskTimeout,
		},
		KindSchedule: {
			Agent:         NewScheduleAgent(cfg.Model, cfg.Book, cfg.Notifier),
			Description:   "book a property visit once date, time and listing are known",
			MaxIterations: cfg.MaxIterations,
			Timeout:       cfg.TaskTimeout,
		},
	}
}

// Cleanup returns the compensation hook for aborted cycles: it voids all
// appointments the cycle booked, matched by executionID.
func Cleanup(book AppointmentBook) core.CleanupFunc {
	return func(ctx context.Context, executionID string) error {
		if book == nil {
			return nil
		}
		return book.VoidByExecution(ctx, executionID)
	}
}

// evaluateDraft asks the model for a verdict on a draft against the given
// criteria, in the shared JSON verdict format.
func evaluateDraft(ctx context.Context, llm model.Model, rc *agent.RunContext, draft, criteria string, threshold float64) (agent.Evaluation, error) {
	if draft == "" {
		return agent.Evaluation{Score: 0, Valid: false, ShouldRetry: true, Issues: []string{"empty draft"}}, nil
	}
	system := "You are a strict reviewer for a real-estate concierge. Score the draft from 0 to 10 and answer only with a JSON object " +
		`{"score": n, "valid": bool, "issues": [], "suggestions": [], "should_retry": bool}.`
	prompt := fmt.Sprintf("Task: %s\n\nDraft:\n%s\n\nAcceptance criteria:\n%s", rc.Task.Description, draft, criteria)
	resp, err := llm.Generate(ctx, model.Request{System: system, Prompt: prompt})
	if err != nil {
		return agent.Evaluation{}, err
	}
	return agent.ParseEvaluation(resp.Text, threshold), nil
}
