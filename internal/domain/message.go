package domain

import (
	"time"

	"github.com/google/uuid"
)

// Speaker identifies who authored a chat message.
type Speaker string

const (
	// SpeakerVisitor is the human using the page.
	SpeakerVisitor Speaker = "visitor"
	// SpeakerAssistant is the text-generation persona behind the widget.
	SpeakerAssistant Speaker = "assistant"
)

// ChatMessage is a single transcript entry. It is never mutated after it is
// appended to a transcript.
type ChatMessage struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NewChatMessage builds a message stamped with a fresh ID and the current time.
func NewChatMessage(speaker Speaker, text string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Speaker:   speaker,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// RequestState tracks whether a widget has an outbound request in flight.
type RequestState string

const (
	// RequestIdle means a new question may be submitted.
	RequestIdle RequestState = "idle"
	// RequestPending means a question is awaiting its reply.
	RequestPending RequestState = "pending"
)
