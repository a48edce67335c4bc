package repositories

import (
	"context"

	"studyroom/internal/domain/models"
)

// RoomRepository manages rooms and their step plans.
type RoomRepository interface {
	// CreateRoom inserts a room together with its initial step plan.
	CreateRoom(ctx context.Context, room *models.Room, steps []models.Step) error

	// GetRoom retrieves a room by ID (without steps).
	GetRoom(ctx context.Context, roomID, ownerID string) (*models.Room, error)

	// ListRooms retrieves all non-deleted rooms owned by a user.
	ListRooms(ctx context.Context, ownerID string) ([]models.Room, error)

	// SoftDeleteRoom marks a room deleted without removing rows.
	SoftDeleteRoom(ctx context.Context, roomID, ownerID string) error

	// ListSteps returns a room's steps ordered by position.
	ListSteps(ctx context.Context, roomID string) ([]models.Step, error)

	// GetStep retrieves a single step by ID.
	GetStep(ctx context.Context, stepID string) (*models.Step, error)

	// ReplaceSteps swaps a room's step plan wholesale. Callers wrap this
	// in a transaction together with the refinement history insert.
	ReplaceSteps(ctx context.Context, roomID string, steps []models.Step) error
}

// RefinementRepository stores the immutable history of step-plan rewrites.
type RefinementRepository interface {
	CreateRefinement(ctx context.Context, ref *models.Refinement) error
	GetRefinement(ctx context.Context, refinementID, roomID string) (*models.Refinement, error)
	ListRefinements(ctx context.Context, roomID string) ([]models.Refinement, error)
}
