package push

import (
	"context"

	"github.com/google/uuid"
)

// Message is one outbound push notification. Ephemeral: it lives in the
// queue until dispatched or exhausted by retries.
type Message struct {
	// ID correlates a message across retry passes in logs.
	ID       string
	Token    Token
	Title    string
	Body     string
	Data     map[string]string
	Sound    bool
	Priority string
}

// NewMessage assigns a fresh correlation ID.
func NewMessage(token Token, title, body string, data map[string]string) Message {
	return Message{
		ID:       uuid.NewString(),
		Token:    token,
		Title:    title,
		Body:     body,
		Data:     data,
		Sound:    true,
		Priority: "high",
	}
}

// Delivery is the per-message outcome of a provider send. Permanent marks
// failures that must not be retried (the device will never accept pushes
// at this token again).
type Delivery struct {
	Message   Message
	Err       error
	Permanent bool
}

// Provider sends a batch of messages and reports a Delivery per message.
type Provider interface {
	Name() string
	Send(ctx context.Context, msgs []Message) []Delivery
}
