// Package convomesh provides a high-level façade over the conversation queue
// and the task orchestrator, enabling rapid construction of generation-backed
// chat backends. Most applications interact with this package by:
//  1. Building an orchestrator.Orchestrator (planner + agent registry + merger)
//  2. Creating a Concierge via New() with a Sender for outbound delivery
//  3. Feeding normalized inbound events into HandleEvent
//
// The façade owns the glue between both halves: it loads conversation
// history for each cycle, runs the orchestrator, and defers the reply send
// and history writes as pending actions so they only commit when the cycle
// was not cancelled. All defaults are safe for local development and
// testing; production deployments typically supply a durable session store
// and a structured logger.
package convomesh

import (
	"context"
	"time"

	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/logging"
	"github.com/hupe1980/convomesh/orchestrator"
	"github.com/hupe1980/convomesh/queue"
	"github.com/hupe1980/convomesh/session"
)

// Sender delivers the final reply back to the conversation's transport.
type Sender interface {
	Send(ctx context.Context, key core.ConversationKey, text string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, key core.ConversationKey, text string) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, key core.ConversationKey, text string) error {
	return f(ctx, key, text)
}

// Options configure the Concierge instance.
type Options struct {
	// DebounceGap is the quiet period before a buffer becomes a batch.
	DebounceGap time.Duration
	// HistoryLimit caps how many past messages each cycle reads.
	HistoryLimit int
	// SessionStore persists conversation history (defaults to in-memory).
	SessionStore session.Store
	// Cleanup compensates committed side effects of aborted cycles.
	Cleanup core.CleanupFunc
	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Concierge is the high-level façade aggregating the queue, the orchestrator
// and the session store.
type Concierge struct {
	queue *queue.ConversationQueue
	orch  *orchestrator.Orchestrator
	store session.Store

	sender       Sender
	historyLimit int
	logger       logging.Logger
}

// New creates a new Concierge instance with optional overrides. Any unset
// service is initialized with an in-memory implementation.
func New(orch *orchestrator.Orchestrator, sender Sender, optFns ...func(o *Options)) *Concierge {
	opts := Options{
		DebounceGap:  500 * time.Millisecond,
		HistoryLimit: 20,
		SessionStore: session.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	c := &Concierge{
		orch:         orch,
		store:        opts.SessionStore,
		sender:       sender,
		historyLimit: opts.HistoryLimit,
		logger:       opts.Logger,
	}
	c.queue = queue.New(c.processBatch,
		queue.WithDebounceGap(opts.DebounceGap),
		queue.WithCleanup(opts.Cleanup),
		queue.WithLogger(opts.Logger),
	)
	return c
}

// HandleEvent feeds one normalized inbound event into the conversation's
// queue. Fire-and-forget; the reply is delivered through the Sender once the
// debounced batch has been processed.
func (c *Concierge) HandleEvent(key core.ConversationKey, event core.InboundEvent) {
	c.queue.Enqueue(key, event)
}

// RegisterAgent adds or replaces a task kind on the orchestrator's registry.
// The planner sees the new kind from the next cycle on; cycles already in
// flight keep the registry view they started with.
func (c *Concierge) RegisterAgent(kind core.TaskKind, reg orchestrator.Registration) {
	c.orch.Register(kind, reg)
}

// Queue exposes the underlying queue for introspection and tests.
func (c *Concierge) Queue() *queue.ConversationQueue { return c.queue }

// Shutdown drains the queue: timers stop, new events are rejected and active
// cycles get until ctx expires to finish.
func (c *Concierge) Shutdown(ctx context.Context) error {
	return c.queue.Shutdown(ctx)
}

// processBatch is the queue's processing callback: one full cycle from batch
// to deferred delivery.
func (c *Concierge) processBatch(ctx context.Context, batch core.Batch, execCtx *core.ExecutionContext) error {
	history, err := c.store.History(ctx, batch.Key, c.historyLimit)
	if err != nil {
		c.logger.Warn("history unavailable, proceeding without it", "conversation", batch.Key.String(), "execution_id", execCtx.ID(), "error", err)
		history = nil
	}

	reply, err := c.orch.Run(ctx, batch, execCtx, history)
	if err != nil {
		return err
	}

	// A late abort means newer events arrived; the grown buffer is
	// re-batched, so sending now would double-reply.
	if execCtx.IsAborted() {
		return core.ErrAborted
	}

	key := batch.Key
	text := reply.Text
	execCtx.AddPendingAction(func(ctx context.Context) error {
		return c.sender.Send(ctx, key, text)
	}, "send-reply")
	execCtx.AddPendingAction(func(ctx context.Context) error {
		for _, ev := range batch.Events {
			if err := c.store.Append(ctx, key, session.Message{Role: "user", Text: ev.Text, Timestamp: ev.ReceivedAt}); err != nil {
				return err
			}
		}
		return c.store.Append(ctx, key, session.NewAssistantMessage(text))
	})

	if reply.Metadata.Degraded {
		c.logger.Warn("degraded reply", "conversation", key.String(), "execution_id", execCtx.ID(), "score", reply.Metadata.Scores["merge"])
	}
	return nil
}
