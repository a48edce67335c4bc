package handler

import (
	"log/slog"
	"net/http"

	"studyroom/internal/httputil"
	room "studyroom/internal/service/room"
)

// RoomHandler handles room and step-plan HTTP requests
type RoomHandler struct {
	roomService *room.Service
	logger      *slog.Logger
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(roomService *room.Service, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
		logger:      logger,
	}
}

// CreateRoom creates a room with its initial step plan
// POST /api/rooms
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req room.CreateRoomRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.OwnerID = userID

	created, err := h.roomService.CreateRoom(r.Context(), &req)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, created)
}

// ListRooms retrieves the caller's rooms
// GET /api/rooms
func (h *RoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	rooms, err := h.roomService.ListRooms(r.Context(), userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, rooms)
}

// GetRoom retrieves a room with its steps
// GET /api/rooms/{id}
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "room ID is required")
		return
	}

	got, err := h.roomService.GetRoom(r.Context(), id, userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, got)
}

// DeleteRoom soft-deletes a room
// DELETE /api/rooms/{id}
func (h *RoomHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "room ID is required")
		return
	}

	if err := h.roomService.DeleteRoom(r.Context(), id, userID); err != nil {
		respondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type refineRequest struct {
	Preference string `json:"preference"`
}

// Refine rewrites the room's step plan from a free-text preference
// POST /api/rooms/{id}/refine
func (h *RoomHandler) Refine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "room ID is required")
		return
	}

	var req refineRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := h.roomService.Refine(r.Context(), id, userID, req.Preference)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"steps":         outcome.Steps,
		"summary":       outcome.Summary,
		"refinement_id": outcome.Refinement.ID,
	})
}

// ListRefinements returns the room's refinement history, newest first
// GET /api/rooms/{id}/refinements
func (h *RoomHandler) ListRefinements(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "room ID is required")
		return
	}

	refs, err := h.roomService.ListRefinements(r.Context(), id, userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, refs)
}

// Revert restores the plan recorded before a past refinement
// POST /api/rooms/{id}/refinements/{refinementID}/revert
func (h *RoomHandler) Revert(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	refinementID := r.PathValue("refinementID")
	if id == "" || refinementID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "room ID and refinement ID are required")
		return
	}

	outcome, err := h.roomService.Revert(r.Context(), id, userID, refinementID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"steps":         outcome.Steps,
		"summary":       outcome.Summary,
		"refinement_id": outcome.Refinement.ID,
	})
}
