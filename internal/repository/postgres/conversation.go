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

// PostgresConversationRepository implements the ConversationRepository
// interface using PostgreSQL
type PostgresConversationRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewConversationRepository creates a new PostgresConversationRepository
func NewConversationRepository(config *RepositoryConfig) repositories.ConversationRepository {
	return &PostgresConversationRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateConversation creates a new conversation against a step
func (r *PostgresConversationRepository) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, room_id, step_id, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, r.tables.Conversations)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		conv.ID,
		conv.RoomID,
		conv.StepID,
		conv.OwnerID,
		conv.CreatedAt,
		conv.UpdatedAt,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)

	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("room %s or step %s: %w", conv.RoomID, conv.StepID, domain.ErrNotFound)
		}
		return fmt.Errorf("create conversation: %w", err)
	}

	return nil
}

// GetConversation retrieves a conversation by ID
func (r *PostgresConversationRepository) GetConversation(ctx context.Context, conversationID, ownerID string) (*models.Conversation, error) {
	query := fmt.Sprintf(`
		SELECT id, room_id, step_id, owner_id, created_at, updated_at
		FROM %s
		WHERE id = $1 AND owner_id = $2
	`, r.tables.Conversations)

	var conv models.Conversation
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, conversationID, ownerID).Scan(
		&conv.ID,
		&conv.RoomID,
		&conv.StepID,
		&conv.OwnerID,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	return &conv, nil
}

// ListConversationsByRoom returns a room's conversations ordered by
// creation time (oldest first)
func (r *PostgresConversationRepository) ListConversationsByRoom(ctx context.Context, roomID string) ([]models.Conversation, error) {
	query := fmt.Sprintf(`
		SELECT id, room_id, step_id, owner_id, created_at, updated_at
		FROM %s
		WHERE room_id = $1
		ORDER BY created_at ASC
	`, r.tables.Conversations)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		err := rows.Scan(
			&conv.ID,
			&conv.RoomID,
			&conv.StepID,
			&conv.OwnerID,
			&conv.CreatedAt,
			&conv.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}

	return convs, rows.Err()
}

// AppendTurn inserts the next turn. Seq is assigned in the database
// from the current max so concurrent writers can't produce duplicates;
// the unique (conversation_id, seq) constraint backstops the subquery.
func (r *PostgresConversationRepository) AppendTurn(ctx context.Context, turn *models.Turn) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, conversation_id, seq, role, body, truncated, provider, created_at)
		VALUES (
			$1, $2,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM %s WHERE conversation_id = $2),
			$3, $4, $5, $6, $7
		)
		RETURNING seq, created_at
	`, r.tables.Turns, r.tables.Turns)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		turn.ID,
		turn.ConversationID,
		turn.Role,
		turn.Body,
		turn.Truncated,
		turn.Provider,
		turn.CreatedAt,
	).Scan(&turn.Seq, &turn.CreatedAt)

	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("conversation %s: %w", turn.ConversationID, domain.ErrNotFound)
		}
		if IsPgDuplicateError(err) {
			return fmt.Errorf("turn seq conflict in conversation %s: %w", turn.ConversationID, domain.ErrConflict)
		}
		return fmt.Errorf("append turn: %w", err)
	}

	return nil
}

// ListTurns returns all turns of a conversation ordered by seq
func (r *PostgresConversationRepository) ListTurns(ctx context.Context, conversationID string) ([]models.Turn, error) {
	query := fmt.Sprintf(`
		SELECT id, conversation_id, seq, role, body, truncated, provider, created_at
		FROM %s
		WHERE conversation_id = $1
		ORDER BY seq ASC
	`, r.tables.Turns)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var turn models.Turn
		err := rows.Scan(
			&turn.ID,
			&turn.ConversationID,
			&turn.Seq,
			&turn.Role,
			&turn.Body,
			&turn.Truncated,
			&turn.Provider,
			&turn.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, turn)
	}

	return turns, rows.Err()
}

// CountUserTurns returns the number of stored user-role turns
func (r *PostgresConversationRepository) CountUserTurns(ctx context.Context, conversationID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE conversation_id = $1 AND role = $2`, r.tables.Turns)

	var count int
	executor := GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, conversationID, models.RoleUser).Scan(&count); err != nil {
		return 0, fmt.Errorf("count user turns: %w", err)
	}

	return count, nil
}
