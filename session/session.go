package session

import (
	"context"
	"time"

	"github.com/hupe1980/convomesh/core"
)

// Message is one turn of a conversation's history.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage builds a user-authored message stamped now.
func NewUserMessage(text string) Message {
	return Message{Role: "user", Text: text, Timestamp: time.Now().UTC()}
}

// NewAssistantMessage builds an assistant-authored message stamped now.
func NewAssistantMessage(text string) Message {
	return Message{Role: "assistant", Text: text, Timestamp: time.Now().UTC()}
}

// Store persists conversation history per conversation key.
type Store interface {
	// Append adds a message to the end of the key's history.
	Append(ctx context.Context, key core.ConversationKey, msg Message) error

	// History returns up to limit most recent messages in chronological
	// order. limit <= 0 returns the full history.
	History(ctx context.Context, key core.ConversationKey, limit int) ([]Message, error)

	// Clear removes the key's history.
	Clear(ctx context.Context, key core.ConversationKey) error
}
