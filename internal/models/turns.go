package models

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleSystem marks persona and injected context turns.
	RoleSystem Role = "system"
	// RoleUser marks customer turns.
	RoleUser Role = "user"
	// RoleAssistant marks agent turns.
	RoleAssistant Role = "assistant"
)

// Turn represents a single message in a session's conversation history.
type Turn struct {
	Role      Role      `json:"role"`      // "system", "user" or "assistant"
	Content   string    `json:"content"`   // message content
	Timestamp time.Time `json:"timestamp"` // when the message was added
}

// IncomingMessage represents an inbound message from a messaging channel.
// MessageID is the provider's message identifier when the channel supplies
// one; it is used to deduplicate webhook redeliveries.
type IncomingMessage struct {
	From      string `json:"from"`
	Body      string `json:"body"`
	Time      int64  `json:"time"`
	MessageID string `json:"message_id,omitempty"`
}
