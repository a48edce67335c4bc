package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"studyroom/internal/domain"
	"studyroom/internal/domain/models"
	"studyroom/internal/domain/repositories"
)

// PostgresRefinementRepository implements the RefinementRepository
// interface using PostgreSQL. Step plans are stored as JSONB snapshots;
// they are history, not live rows, so there is nothing to join against.
type PostgresRefinementRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewRefinementRepository creates a new PostgresRefinementRepository
func NewRefinementRepository(config *RepositoryConfig) repositories.RefinementRepository {
	return &PostgresRefinementRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateRefinement inserts an immutable refinement history record
func (r *PostgresRefinementRepository) CreateRefinement(ctx context.Context, ref *models.Refinement) error {
	oldSteps, err := json.Marshal(ref.OldSteps)
	if err != nil {
		return fmt.Errorf("marshal old steps: %w", err)
	}
	newSteps, err := json.Marshal(ref.NewSteps)
	if err != nil {
		return fmt.Errorf("marshal new steps: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, room_id, preference, old_steps, new_steps, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, r.tables.Refinements)

	executor := GetExecutor(ctx, r.pool)
	err = executor.QueryRow(ctx, query,
		ref.ID,
		ref.RoomID,
		ref.Preference,
		oldSteps,
		newSteps,
		ref.Summary,
		ref.CreatedAt,
	).Scan(&ref.CreatedAt)

	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("room %s: %w", ref.RoomID, domain.ErrNotFound)
		}
		return fmt.Errorf("create refinement: %w", err)
	}

	return nil
}

// GetRefinement retrieves a single refinement record
func (r *PostgresRefinementRepository) GetRefinement(ctx context.Context, refinementID, roomID string) (*models.Refinement, error) {
	query := fmt.Sprintf(`
		SELECT id, room_id, preference, old_steps, new_steps, summary, created_at
		FROM %s
		WHERE id = $1 AND room_id = $2
	`, r.tables.Refinements)

	executor := GetExecutor(ctx, r.pool)
	ref, err := scanRefinement(executor.QueryRow(ctx, query, refinementID, roomID))
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("refinement %s: %w", refinementID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get refinement: %w", err)
	}

	return ref, nil
}

// ListRefinements returns a room's refinement history, newest first
func (r *PostgresRefinementRepository) ListRefinements(ctx context.Context, roomID string) ([]models.Refinement, error) {
	query := fmt.Sprintf(`
		SELECT id, room_id, preference, old_steps, new_steps, summary, created_at
		FROM %s
		WHERE room_id = $1
		ORDER BY created_at DESC
	`, r.tables.Refinements)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("list refinements: %w", err)
	}
	defer rows.Close()

	var refs []models.Refinement
	for rows.Next() {
		ref, err := scanRefinement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refinement: %w", err)
		}
		refs = append(refs, *ref)
	}

	return refs, rows.Err()
}

// rowScanner covers both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRefinement(row rowScanner) (*models.Refinement, error) {
	var ref models.Refinement
	var oldSteps, newSteps []byte

	err := row.Scan(
		&ref.ID,
		&ref.RoomID,
		&ref.Preference,
		&oldSteps,
		&newSteps,
		&ref.Summary,
		&ref.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(oldSteps, &ref.OldSteps); err != nil {
		return nil, fmt.Errorf("unmarshal old steps: %w", err)
	}
	if err := json.Unmarshal(newSteps, &ref.NewSteps); err != nil {
		return nil, fmt.Errorf("unmarshal new steps: %w", err)
	}

	return &ref, nil
}
