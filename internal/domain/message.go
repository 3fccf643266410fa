package domain

import (
	"time"
)

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageStatus is the delivery state of a chat message.
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusError   MessageStatus = "error"
)

// Message is one entry of the conversation log. Only Status changes after creation.
type Message struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
	Status    MessageStatus `json:"status"`
	HasCanvas bool          `json:"has_canvas,omitempty"`
}

// IsAssistant reports whether the message was produced by the assistant side.
func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}
