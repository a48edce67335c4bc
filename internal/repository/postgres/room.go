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

// PostgresRoomRepository implements the RoomRepository interface using PostgreSQL
type PostgresRoomRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewRoomRepository creates a new PostgresRoomRepository
func NewRoomRepository(config *RepositoryConfig) repositories.RoomRepository {
	return &PostgresRoomRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateRoom inserts a room together with its initial step plan.
// Both inserts participate in the caller's transaction when one is
// present in the context.
func (r *PostgresRoomRepository) CreateRoom(ctx context.Context, room *models.Room, steps []models.Step) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, owner_id, title, goal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, r.tables.Rooms)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		room.ID,
		room.OwnerID,
		room.Title,
		room.Goal,
		room.CreatedAt,
		room.UpdatedAt,
	).Scan(&room.CreatedAt, &room.UpdatedAt)

	if err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("room '%s' already exists", room.Title),
				ResourceType: "room",
				ResourceID:   room.ID,
			}
		}
		return fmt.Errorf("create room: %w", err)
	}

	if err := r.insertSteps(ctx, room.ID, steps); err != nil {
		return err
	}
	room.Steps = steps

	return nil
}

// GetRoom retrieves a room by ID (without steps)
func (r *PostgresRoomRepository) GetRoom(ctx context.Context, roomID, ownerID string) (*models.Room, error) {
	query := fmt.Sprintf(`
		SELECT id, owner_id, title, goal, created_at, updated_at, deleted_at
		FROM %s
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL
	`, r.tables.Rooms)

	var room models.Room
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, roomID, ownerID).Scan(
		&room.ID,
		&room.OwnerID,
		&room.Title,
		&room.Goal,
		&room.CreatedAt,
		&room.UpdatedAt,
		&room.DeletedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get room: %w", err)
	}

	return &room, nil
}

// ListRooms retrieves all non-deleted rooms owned by a user
func (r *PostgresRoomRepository) ListRooms(ctx context.Context, ownerID string) ([]models.Room, error) {
	query := fmt.Sprintf(`
		SELECT id, owner_id, title, goal, created_at, updated_at, deleted_at
		FROM %s
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY updated_at DESC
	`, r.tables.Rooms)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		err := rows.Scan(
			&room.ID,
			&room.OwnerID,
			&room.Title,
			&room.Goal,
			&room.CreatedAt,
			&room.UpdatedAt,
			&room.DeletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// SoftDeleteRoom marks a room deleted without removing rows
func (r *PostgresRoomRepository) SoftDeleteRoom(ctx context.Context, roomID, ownerID string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL
	`, r.tables.Rooms)

	executor := GetExecutor(ctx, r.pool)
	tag, err := executor.Exec(ctx, query, roomID, ownerID)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}

	return nil
}

// ListSteps returns a room's steps ordered by position
func (r *PostgresRoomRepository) ListSteps(ctx context.Context, roomID string) ([]models.Step, error) {
	query := fmt.Sprintf(`
		SELECT id, room_id, key, label, instruction, position
		FROM %s
		WHERE room_id = $1
		ORDER BY position ASC
	`, r.tables.Steps)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []models.Step
	for rows.Next() {
		var step models.Step
		err := rows.Scan(
			&step.ID,
			&step.RoomID,
			&step.Key,
			&step.Label,
			&step.Instruction,
			&step.Position,
		)
		if err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, step)
	}

	return steps, rows.Err()
}

// GetStep retrieves a single step by ID
func (r *PostgresRoomRepository) GetStep(ctx context.Context, stepID string) (*models.Step, error) {
	query := fmt.Sprintf(`
		SELECT id, room_id, key, label, instruction, position
		FROM %s
		WHERE id = $1
	`, r.tables.Steps)

	var step models.Step
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, stepID).Scan(
		&step.ID,
		&step.RoomID,
		&step.Key,
		&step.Label,
		&step.Instruction,
		&step.Position,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("step %s: %w", stepID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get step: %w", err)
	}

	return &step, nil
}

// ReplaceSteps swaps a room's step plan wholesale. Callers run this
// inside a transaction together with the refinement history insert so
// the two succeed or fail together.
func (r *PostgresRoomRepository) ReplaceSteps(ctx context.Context, roomID string, steps []models.Step) error {
	executor := GetExecutor(ctx, r.pool)

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE room_id = $1`, r.tables.Steps)
	if _, err := executor.Exec(ctx, deleteQuery, roomID); err != nil {
		return fmt.Errorf("delete steps: %w", err)
	}

	return r.insertSteps(ctx, roomID, steps)
}

func (r *PostgresRoomRepository) insertSteps(ctx context.Context, roomID string, steps []models.Step) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, room_id, key, label, instruction, position)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.tables.Steps)

	executor := GetExecutor(ctx, r.pool)
	for i := range steps {
		steps[i].RoomID = roomID
		_, err := executor.Exec(ctx, query,
			steps[i].ID,
			roomID,
			steps[i].Key,
			steps[i].Label,
			steps[i].Instruction,
			steps[i].Position,
		)
		if err != nil {
			if IsPgForeignKeyError(err) {
				return fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
			}
			return fmt.Errorf("insert step %s: %w", steps[i].Key, err)
		}
	}

	return nil
}
