package repositories

import (
	"context"

	"studyroom/internal/domain/models"
)

// ConversationRepository manages conversations and their append-only
// turn logs.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error

	GetConversation(ctx context.Context, conversationID, ownerID string) (*models.Conversation, error)

	// ListConversationsByRoom returns a room's conversations ordered by
	// creation time (oldest first). That order drives learning-context
	// assembly, so it must be stable.
	ListConversationsByRoom(ctx context.Context, roomID string) ([]models.Conversation, error)

	// AppendTurn inserts the next turn. Seq assignment happens in the
	// database so concurrent writers can't produce duplicates.
	AppendTurn(ctx context.Context, turn *models.Turn) error

	// ListTurns returns all turns of a conversation ordered by seq.
	ListTurns(ctx context.Context, conversationID string) ([]models.Turn, error)

	// CountUserTurns returns the number of stored user-role turns.
	// Milestone arithmetic runs on user messages; counting assistant
	// replies too would double the metric per exchange and skip every
	// odd milestone.
	CountUserTurns(ctx context.Context, conversationID string) (int, error)
}

// NoteRepository manages learning notes, the one piece of mutable
// shared state this subsystem writes outside the turn log.
type NoteRepository interface {
	GetNote(ctx context.Context, conversationID string) (*models.LearningNote, error)

	// UpsertNoteIfNewer inserts or overwrites the conversation's note,
	// but only when note.MessageCount exceeds the stored value. Returns
	// whether the write was applied; a stale writer is a no-op, not an
	// error.
	UpsertNoteIfNewer(ctx context.Context, note *models.LearningNote) (bool, error)

	// ListRoomNotes returns the notes of every other conversation in the
	// room, ordered by conversation creation time.
	ListRoomNotes(ctx context.Context, roomID, excludeConversationID string) ([]models.LearningNote, error)

	// LockConversationNotes takes the per-conversation advisory lock.
	// Must be called inside a transaction; the lock releases on
	// commit/rollback.
	LockConversationNotes(ctx context.Context, conversationID string) error
}
