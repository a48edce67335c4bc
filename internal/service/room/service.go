// Package room implements room and step-plan management: creation with
// an initial plan, refinement, and revert.
package room

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"studyroom/internal/config"
	"studyroom/internal/domain"
	"studyroom/internal/domain/models"
	"studyroom/internal/domain/repositories"
	"studyroom/internal/learning"
)

// Service handles room CRUD and delegates plan rewrites to the refiner.
type Service struct {
	rooms       repositories.RoomRepository
	refinements repositories.RefinementRepository
	refiner     *learning.Refiner
	logger      *slog.Logger
}

// NewService creates a room service.
func NewService(
	rooms repositories.RoomRepository,
	refinements repositories.RefinementRepository,
	refiner *learning.Refiner,
	logger *slog.Logger,
) *Service {
	return &Service{
		rooms:       rooms,
		refinements: refinements,
		refiner:     refiner,
		logger:      logger,
	}
}

// StepInput is one caller-supplied step for room creation.
type StepInput struct {
	Label       string `json:"label"`
	Instruction string `json:"instruction"`
}

// CreateRoomRequest creates a room with an optional explicit step plan.
// Without one, the default five-step plan is used.
type CreateRoomRequest struct {
	OwnerID string      `json:"-"`
	Title   string      `json:"title"`
	Goal    string      `json:"goal"`
	Steps   []StepInput `json:"steps,omitempty"`
}

func (r *CreateRoomRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.OwnerID, validation.Required),
		validation.Field(&r.Title, validation.Required, validation.Length(1, config.MaxRoomTitleLength)),
		validation.Field(&r.Goal, validation.Required, validation.Length(1, config.MaxRoomGoalLength)),
		validation.Field(&r.Steps, validation.Length(0, config.MaxSteps)),
	)
}

// defaultPlan is the step plan a room starts with when the caller
// doesn't supply one. Labels deliberately span the archetype spectrum.
var defaultPlan = []learning.StepDraft{
	{Label: "Explore the territory", Prompt: "Brainstorm openly around the room's goal. Surface assumptions, adjacent ideas, and what-if directions before anything gets judged."},
	{Label: "Analyze the core problem", Prompt: "Break the goal down into its parts. Examine causes, constraints, and the evidence behind each assumption surfaced so far."},
	{Label: "Compare the candidate approaches", Prompt: "Hold the promising directions side by side. Work through trade-offs and differences on consistent criteria."},
	{Label: "Create a first draft", Prompt: "Produce a concrete draft, outline, or prototype of the chosen direction, ready to be critiqued and revised."},
	{Label: "Reflect on what you learned", Prompt: "Review the journey through this room. Summarize takeaways, surprises, and what you would do differently next time."},
}

// CreateRoom creates a room together with its initial step plan. The
// plan goes through the same normalization as refinement output, so a
// room can never exist with an invalid plan.
func (s *Service) CreateRoom(ctx context.Context, req *CreateRoomRequest) (*models.Room, error) {
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	drafts := defaultPlan
	if len(req.Steps) > 0 {
		drafts = make([]learning.StepDraft, 0, len(req.Steps))
		for _, in := range req.Steps {
			drafts = append(drafts, learning.StepDraft{Label: in.Label, Prompt: in.Instruction})
		}
	}

	steps, err := learning.NormalizeSteps(drafts)
	if err != nil {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("invalid step plan: %v", err)}
	}

	now := time.Now().UTC()
	room := &models.Room{
		ID:        uuid.NewString(),
		OwnerID:   req.OwnerID,
		Title:     req.Title,
		Goal:      req.Goal,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.rooms.CreateRoom(ctx, room, steps); err != nil {
		return nil, err
	}

	s.logger.Info("room created",
		"room_id", room.ID,
		"owner_id", room.OwnerID,
		"steps", len(steps),
	)

	return room, nil
}

// GetRoom returns a room with its steps loaded.
func (s *Service) GetRoom(ctx context.Context, roomID, ownerID string) (*models.Room, error) {
	room, err := s.rooms.GetRoom(ctx, roomID, ownerID)
	if err != nil {
		return nil, err
	}

	steps, err := s.rooms.ListSteps(ctx, roomID)
	if err != nil {
		return nil, err
	}
	room.Steps = steps

	return room, nil
}

// ListRooms returns the caller's rooms, most recently updated first.
func (s *Service) ListRooms(ctx context.Context, ownerID string) ([]models.Room, error) {
	return s.rooms.ListRooms(ctx, ownerID)
}

// DeleteRoom soft-deletes a room.
func (s *Service) DeleteRoom(ctx context.Context, roomID, ownerID string) error {
	return s.rooms.SoftDeleteRoom(ctx, roomID, ownerID)
}

// Refine rewrites the room's step plan from a free-text preference.
// Ownership is checked here; the refiner itself is owner-agnostic.
func (s *Service) Refine(ctx context.Context, roomID, ownerID, preference string) (*learning.RefineOutcome, error) {
	if _, err := s.rooms.GetRoom(ctx, roomID, ownerID); err != nil {
		return nil, err
	}
	return s.refiner.RefineSteps(ctx, roomID, preference)
}

// Revert restores the plan recorded before a past refinement.
func (s *Service) Revert(ctx context.Context, roomID, ownerID, refinementID string) (*learning.RefineOutcome, error) {
	if _, err := s.rooms.GetRoom(ctx, roomID, ownerID); err != nil {
		return nil, err
	}
	return s.refiner.Revert(ctx, roomID, refinementID)
}

// ListRefinements returns the room's refinement history, newest first.
func (s *Service) ListRefinements(ctx context.Context, roomID, ownerID string) ([]models.Refinement, error) {
	if _, err := s.rooms.GetRoom(ctx, roomID, ownerID); err != nil {
		return nil, err
	}
	return s.refinements.ListRefinements(ctx, roomID)
}
