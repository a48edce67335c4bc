// Package learning carries insight across conversations: per-
// conversation notes distilled at message-count milestones, the
// cross-conversation context assembled from them, and the step-plan
// refinement flow.
package learning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"studyroom/internal/domain/repositories"
)

// ContextManager assembles the learning context injected into the
// first turn of a new conversation.
type ContextManager struct {
	notes  repositories.NoteRepository
	logger *slog.Logger
}

// NewContextManager creates a new ContextManager.
func NewContextManager(notes repositories.NoteRepository, logger *slog.Logger) *ContextManager {
	return &ContextManager{
		notes:  notes,
		logger: logger,
	}
}

// ContextForNewConversation concatenates the notes of every other
// conversation in the room, ordered by conversation creation time,
// each attributed to its step. Returns "" when no sibling notes exist.
// The excluded conversation's own note is never included, even if it
// already reached a milestone.
func (m *ContextManager) ContextForNewConversation(ctx context.Context, roomID, excludeConversationID string) (string, error) {
	notes, err := m.notes.ListRoomNotes(ctx, roomID, excludeConversationID)
	if err != nil {
		return "", fmt.Errorf("list room notes: %w", err)
	}
	if len(notes) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(notes))
	for _, note := range notes {
		parts = append(parts, fmt.Sprintf("[%s]\n%s", note.StepLabel, note.Body))
	}

	m.logger.Debug("assembled learning context",
		"room_id", roomID,
		"notes", len(notes),
	)

	return strings.Join(parts, "\n\n"), nil
}
