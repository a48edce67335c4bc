package models

import (
	"time"
)

// Room is a collaborative container: a goal statement plus an ordered
// plan of learning steps. Conversations are always opened against one
// of the room's steps.
type Room struct {
	ID        string     `json:"id" db:"id"`
	OwnerID   string     `json:"owner_id" db:"owner_id"`
	Title     string     `json:"title" db:"title"`
	Goal      string     `json:"goal" db:"goal"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`

	// Computed field (not stored in the rooms table)
	Steps []Step `json:"steps,omitempty"`
}

// Step is one ordered learning stage within a room. Key is always the
// sequential "step1".."stepN" form; Position mirrors the ordinal for
// ORDER BY convenience.
type Step struct {
	ID          string `json:"id" db:"id"`
	RoomID      string `json:"room_id" db:"room_id"`
	Key         string `json:"key" db:"key"`
	Label       string `json:"label" db:"label"`
	Instruction string `json:"instruction" db:"instruction"`
	Position    int    `json:"position" db:"position"`
}

// Refinement is an immutable history record of one step-plan rewrite:
// the preference text that drove it, the plan before and after, and the
// model's (or pre-pass's) summary of what changed. OldSteps enables
// one-click revert.
type Refinement struct {
	ID         string    `json:"id" db:"id"`
	RoomID     string    `json:"room_id" db:"room_id"`
	Preference string    `json:"preference" db:"preference"`
	OldSteps   []Step    `json:"old_steps" db:"old_steps"`
	NewSteps   []Step    `json:"new_steps" db:"new_steps"`
	Summary    string    `json:"summary" db:"summary"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
