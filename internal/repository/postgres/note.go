package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"studyroom/internal/domain"
	"studyroom/internal/domain/models"
	"studyroom/internal/domain/repositories"
)

// PostgresNoteRepository implements the NoteRepository interface using
// PostgreSQL
type PostgresNoteRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewNoteRepository creates a new PostgresNoteRepository
func NewNoteRepository(config *RepositoryConfig) repositories.NoteRepository {
	return &PostgresNoteRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// GetNote retrieves the learning note for a conversation
func (r *PostgresNoteRepository) GetNote(ctx context.Context, conversationID string) (*models.LearningNote, error) {
	query := fmt.Sprintf(`
		SELECT conversation_id, room_id, step_label, body, message_count, updated_at
		FROM %s
		WHERE conversation_id = $1
	`, r.tables.LearningNotes)

	var note models.LearningNote
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, conversationID).Scan(
		&note.ConversationID,
		&note.RoomID,
		&note.StepLabel,
		&note.Body,
		&note.MessageCount,
		&note.UpdatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("note for conversation %s: %w", conversationID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get note: %w", err)
	}

	return &note, nil
}

// UpsertNoteIfNewer inserts or overwrites the conversation's note, but
// only when the incoming message_count exceeds the stored one. The
// WHERE clause on the conflict update turns a stale writer into a
// no-op instead of letting it clobber a newer milestone's note.
func (r *PostgresNoteRepository) UpsertNoteIfNewer(ctx context.Context, note *models.LearningNote) (bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (conversation_id, room_id, step_label, body, message_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (conversation_id) DO UPDATE SET
			body = EXCLUDED.body,
			step_label = EXCLUDED.step_label,
			message_count = EXCLUDED.message_count,
			updated_at = EXCLUDED.updated_at
		WHERE %s.message_count < EXCLUDED.message_count
	`, r.tables.LearningNotes, r.tables.LearningNotes)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query,
		note.ConversationID,
		note.RoomID,
		note.StepLabel,
		note.Body,
		note.MessageCount,
		note.UpdatedAt,
	)

	if err != nil {
		if IsPgForeignKeyError(err) {
			return false, fmt.Errorf("conversation %s: %w", note.ConversationID, domain.ErrNotFound)
		}
		return false, fmt.Errorf("upsert note: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ListRoomNotes returns the notes of every other conversation in the
// room, ordered by conversation creation time. The join against the
// conversations table supplies that order; notes never reference each
// other directly.
func (r *PostgresNoteRepository) ListRoomNotes(ctx context.Context, roomID, excludeConversationID string) ([]models.LearningNote, error) {
	query := fmt.Sprintf(`
		SELECT n.conversation_id, n.room_id, n.step_label, n.body, n.message_count, n.updated_at
		FROM %s n
		JOIN %s c ON c.id = n.conversation_id
		WHERE n.room_id = $1 AND n.conversation_id != $2
		ORDER BY c.created_at ASC
	`, r.tables.LearningNotes, r.tables.Conversations)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, roomID, excludeConversationID)
	if err != nil {
		return nil, fmt.Errorf("list room notes: %w", err)
	}
	defer rows.Close()

	var notes []models.LearningNote
	for rows.Next() {
		var note models.LearningNote
		err := rows.Scan(
			&note.ConversationID,
			&note.RoomID,
			&note.StepLabel,
			&note.Body,
			&note.MessageCount,
			&note.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, note)
	}

	return notes, rows.Err()
}

// LockConversationNotes takes the per-conversation advisory lock.
// hashtextextended maps the UUID string onto the bigint key space
// pg_advisory_xact_lock expects. The lock releases on commit/rollback,
// so this must run inside a transaction; called outside one it locks
// for the remainder of the implicit statement transaction only.
func (r *PostgresNoteRepository) LockConversationNotes(ctx context.Context, conversationID string) error {
	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, conversationID); err != nil {
		return fmt.Errorf("lock conversation notes: %w", err)
	}
	return nil
}
