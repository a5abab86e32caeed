package testutil

import (
	"time"

	"github.com/hupe1980/convomesh/session"
)

// HistoryBuilder helps construct conversation histories with fluent chaining
// for tests. Example:
//
//	history := NewHistoryBuilder().User("hi").Assistant("hello!").Build()
type HistoryBuilder struct {
	at       time.Time
	messages []session.Message
}

// NewHistoryBuilder creates a new builder with a fixed starting timestamp so
// histories are deterministic across runs.
func NewHistoryBuilder() *HistoryBuilder {
	return &HistoryBuilder{at: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)}
}

// User appends a user message (chainable).
func (b *HistoryBuilder) User(text string) *HistoryBuilder {
	return b.add("user", text)
}

// Assistant appends an assistant message (chainable).
func (b *HistoryBuilder) Assistant(text string) *HistoryBuilder {
	return b.add("assistant", text)
}

func (b *HistoryBuilder) add(role, text string) *HistoryBuilder {
	b.messages = append(b.messages, session.Message{Role: role, Text: text, Timestamp: b.at})
	b.at = b.at.Add(time.Minute)
	return b
}

// Build returns the accumulated messages in insertion order.
func (b *HistoryBuilder) Build() []session.Message {
	return append([]session.Message{}, b.messages...)
}
