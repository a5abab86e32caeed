package core

import (
	"time"

	"github.com/google/uuid"
)

// ConversationKey identifies one ongoing exchange: a (session, counterpart)
// pair. It stays stable for the conversation's lifetime and is the unit of
// serialization in the queue; cycles for distinct keys run independently.
type ConversationKey struct {
	SessionID   string `json:"session_id"`
	Counterpart string `json:"counterpart"`
}

// String renders the key in "session/counterpart" form for logging and for
// use as a map or Redis key.
func (k ConversationKey) String() string { return k.SessionID + "/" + k.Counterpart }

// InboundEvent is one normalized chat event delivered by the transport
// boundary. The core requires only this shape; webhook parsing lives outside
// the module.
type InboundEvent struct {
	Text       string    `json:"text"`
	SenderName string    `json:"sender_name,omitempty"`
	ReplyToID  string    `json:"reply_to_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Batch is the ordered set of buffered events handed to one processing cycle.
// Events preserve arrival order. A batch is discarded after a successful
// cycle and retained (possibly grown) after a cancelled one.
type Batch struct {
	Key    ConversationKey `json:"key"`
	Events []InboundEvent  `json:"events"`
}

// Text joins the batch's event texts in arrival order, separated by newlines.
// Agents consume the batch as one coalesced user turn.
func (b Batch) Text() string {
	switch len(b.Events) {
	case 0:
		return ""
	case 1:
		return b.Events[0].Text
	}
	n := 0
	for _, ev := range b.Events {
		n += len(ev.Text) + 1
	}
	buf := make([]byte, 0, n)
	for i, ev := range b.Events {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, ev.Text...)
	}
	return string(buf)
}

// SenderName returns the display name carried by the batch's events, taken
// from the first event that has one.
func (b Batch) SenderName() string {
	for _, ev := range b.Events {
		if ev.SenderName != "" {
			return ev.SenderName
		}
	}
	return ""
}

// NewID generates a new unique identifier for execution contexts and tasks.
func NewID() string { return uuid.NewString() }
