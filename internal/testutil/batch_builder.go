package testutil

import (
	"time"

	"github.com/hupe1980/convomesh/core"
)

// BatchBuilder provides a fluent helper for constructing batches in tests.
// Example:
//
//	b := NewBatchBuilder("sess-1", "+555").Text("hi").Text("anyone there?").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type BatchBuilder struct {
	key    core.ConversationKey
	sender string
	at     time.Time
	events []core.InboundEvent
}

// NewBatchBuilder creates a builder for the given conversation key with
// default sender "client".
func NewBatchBuilder(sessionID, counterpart string) *BatchBuilder {
	return &BatchBuilder{
		key:    core.ConversationKey{SessionID: sessionID, Counterpart: counterpart},
		sender: "client",
		at:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// Sender sets the sender name applied to subsequent events (chainable).
func (b *BatchBuilder) Sender(name string) *BatchBuilder { b.sender = name; return b }

// At sets the timestamp applied to subsequent events (chainable). Each added
// event advances the clock by one second to keep ordering deterministic.
func (b *BatchBuilder) At(t time.Time) *BatchBuilder { b.at = t; return b }

// Text appends one inbound text event (chainable).
func (b *BatchBuilder) Text(text string) *BatchBuilder {
	b.events = append(b.events, core.InboundEvent{
		Text:       text,
		SenderName: b.sender,
		ReceivedAt: b.at,
	})
	b.at = b.at.Add(time.Second)
	return b
}

// Event appends a fully specified event (chainable).
func (b *BatchBuilder) Event(ev core.InboundEvent) *BatchBuilder {
	b.events = append(b.events, ev)
	return b
}

// Build constructs the core.Batch value.
func (b *BatchBuilder) Build() core.Batch {
	return core.Batch{Key: b.key, Events: append([]core.InboundEvent{}, b.events...)}
}
