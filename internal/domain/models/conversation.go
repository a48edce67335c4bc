package models

import (
	"time"
)

// Turn roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is an ordered, append-only sequence of turns scoped to
// one room and one step.
type Conversation struct {
	ID        string    `json:"id" db:"id"`
	RoomID    string    `json:"room_id" db:"room_id"`
	StepID    string    `json:"step_id" db:"step_id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Turn is a single user or assistant message. Immutable once created;
// a truncated assistant reply is continued by appending a new turn,
// never by mutating this one. Seq is strictly increasing within a
// conversation and is the only ordering that matters.
type Turn struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	Seq            int       `json:"seq" db:"seq"`
	Role           string    `json:"role" db:"role"`
	Body           string    `json:"body" db:"body"`
	Truncated      bool      `json:"truncated" db:"truncated"`
	Provider       *string   `json:"provider,omitempty" db:"provider"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// LearningNote is the distilled synthesis of one conversation, at most
// one row per conversation. MessageCount records the user-message
// milestone the note was generated at and only ever moves forward.
type LearningNote struct {
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	RoomID         string    `json:"room_id" db:"room_id"`
	StepLabel      string    `json:"step_label" db:"step_label"`
	Body           string    `json:"body" db:"body"`
	MessageCount   int       `json:"message_count" db:"message_count"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
