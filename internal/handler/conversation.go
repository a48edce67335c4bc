package handler

import (
	"log/slog"
	"net/http"

	"studyroom/internal/httputil"
	conversation "studyroom/internal/service/conversation"
)

// ConversationHandler handles conversation and message HTTP requests
type ConversationHandler struct {
	convService *conversation.Service
	logger      *slog.Logger
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(convService *conversation.Service, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{
		convService: convService,
		logger:      logger,
	}
}

type createConversationRequest struct {
	StepID string `json:"step_id"`
}

// CreateConversation opens a conversation against one of the room's steps
// POST /api/rooms/{id}/conversations
func (h *ConversationHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	roomID := r.PathValue("id")
	if roomID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "room ID is required")
		return
	}

	var req createConversationRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StepID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "step_id is required")
		return
	}

	conv, err := h.convService.CreateConversation(r.Context(), roomID, req.StepID, userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, conv)
}

// ListConversations returns the room's conversations
// GET /api/rooms/{id}/conversations
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	roomID := r.PathValue("id")
	if roomID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "room ID is required")
		return
	}

	convs, err := h.convService.ListConversations(r.Context(), roomID, userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, convs)
}

// ListTurns returns the conversation's full ordered turn log
// GET /api/conversations/{id}/turns
func (h *ConversationHandler) ListTurns(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "conversation ID is required")
		return
	}

	turns, err := h.convService.ListTurns(r.Context(), id, userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, turns)
}

// SendMessage stores the user's message and returns the generated reply
// POST /api/conversations/{id}/messages
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "conversation ID is required")
		return
	}

	var req conversation.SendMessageRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ConversationID = id
	req.OwnerID = userID

	resp, err := h.convService.SendMessage(r.Context(), &req)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, resp)
}

// ContinueReply extends a truncated assistant reply
// POST /api/conversations/{id}/continue
func (h *ConversationHandler) ContinueReply(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if id == "" {
		httputil.RespondError(w, http.StatusBadRequest, "conversation ID is required")
		return
	}

	resp, err := h.convService.ContinueReply(r.Context(), id, userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, resp)
}
