// Package conversation implements the message path: store the user's
// turn, orchestrate the AI reply, store it, and kick the learning-note
// scheduler.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"studyroom/internal/ai"
	"studyroom/internal/config"
	"studyroom/internal/domain"
	"studyroom/internal/domain/models"
	"studyroom/internal/domain/repositories"
	"studyroom/internal/learning"
)

// toneInstructions is the fixed allow-list of reply-tone directives.
// The key is what callers send; the value is appended to the composed
// system prompt verbatim. Free text never reaches the prompt this way.
var toneInstructions = map[string]string{
	"":           "",
	"supportive": "Adopt a supportive tone: encourage, acknowledge effort, and frame gaps as next steps.",
	"neutral":    "Adopt a neutral, matter-of-fact tone without praise or criticism.",
	"critical":   "Adopt a constructively critical tone: challenge weak reasoning directly and say what is missing.",
	"socratic":   "Respond primarily with questions that lead the learner to their own answer.",
}

func toneKeys() []interface{} {
	keys := make([]interface{}, 0, len(toneInstructions))
	for k := range toneInstructions {
		keys = append(keys, k)
	}
	return keys
}

// Service drives conversations end to end.
type Service struct {
	convs      repositories.ConversationRepository
	rooms      repositories.RoomRepository
	engine     *ai.Engine
	contextMgr *learning.ContextManager
	scheduler  *learning.NoteScheduler
	logger     *slog.Logger
}

// NewService creates a conversation service.
func NewService(
	convs repositories.ConversationRepository,
	rooms repositories.RoomRepository,
	engine *ai.Engine,
	contextMgr *learning.ContextManager,
	scheduler *learning.NoteScheduler,
	logger *slog.Logger,
) *Service {
	return &Service{
		convs:      convs,
		rooms:      rooms,
		engine:     engine,
		contextMgr: contextMgr,
		scheduler:  scheduler,
		logger:     logger,
	}
}

// CreateConversation opens a conversation against one of the room's
// steps.
func (s *Service) CreateConversation(ctx context.Context, roomID, stepID, ownerID string) (*models.Conversation, error) {
	step, err := s.rooms.GetStep(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if step.RoomID != roomID {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("step %s does not belong to room %s", stepID, roomID)}
	}

	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		StepID:    stepID,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.convs.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	return conv, nil
}

// ListConversations returns the room's conversations, newest first.
func (s *Service) ListConversations(ctx context.Context, roomID, ownerID string) ([]models.Conversation, error) {
	if _, err := s.rooms.GetRoom(ctx, roomID, ownerID); err != nil {
		return nil, err
	}
	return s.convs.ListConversationsByRoom(ctx, roomID)
}

// ListTurns returns the conversation's full ordered turn log.
func (s *Service) ListTurns(ctx context.Context, conversationID, ownerID string) ([]models.Turn, error) {
	if _, err := s.convs.GetConversation(ctx, conversationID, ownerID); err != nil {
		return nil, err
	}
	return s.convs.ListTurns(ctx, conversationID)
}

// SendMessageRequest is one inbound user message.
type SendMessageRequest struct {
	ConversationID string `json:"-"`
	OwnerID        string `json:"-"`
	Body           string `json:"body"`
	Tone           string `json:"tone,omitempty"`
	MaxTokens      int    `json:"max_tokens,omitempty"`
}

func (r *SendMessageRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ConversationID, validation.Required),
		validation.Field(&r.OwnerID, validation.Required),
		validation.Field(&r.Body, validation.Required, validation.Length(1, config.MaxMessageLength)),
		validation.Field(&r.Tone, validation.In(toneKeys()...)),
	)
}

// SendMessageResponse is the caller-facing reply contract plus the
// attempt metadata for debugging.
type SendMessageResponse struct {
	Reply        models.Turn  `json:"reply"`
	ProviderUsed string       `json:"provider_used"`
	Truncated    bool         `json:"truncated"`
	Archetype    string       `json:"archetype"`
	RequestID    string       `json:"request_id"`
	Attempts     []ai.Attempt `json:"attempts"`
}

// SendMessage stores the user's turn, generates and stores the
// assistant's reply, and fires the note scheduler. The reply path never
// surfaces a provider failure: at worst the template fallback answers.
func (s *Service) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	conv, err := s.convs.GetConversation(ctx, req.ConversationID, req.OwnerID)
	if err != nil {
		return nil, err
	}
	step, err := s.rooms.GetStep(ctx, conv.StepID)
	if err != nil {
		return nil, err
	}

	history, err := s.convs.ListTurns(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	userTurn := models.Turn{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Body:           req.Body,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.convs.AppendTurn(ctx, &userTurn); err != nil {
		return nil, err
	}

	// Cross-conversation notes seed only the first turn of a new
	// conversation; mid-conversation turns never get them. Seeding is
	// best-effort: a failed lookup degrades to no context, not to a
	// failed message.
	learningContext := ""
	if len(history) == 0 {
		learningContext, err = s.contextMgr.ContextForNewConversation(ctx, conv.RoomID, conv.ID)
		if err != nil {
			s.logger.Warn("learning context unavailable, continuing without",
				"conversation_id", conv.ID,
				"error", err,
			)
			learningContext = ""
		}
	}

	result := s.engine.Respond(ctx, &ai.RespondInput{
		Step:             *step,
		Turns:            append(history, userTurn),
		LearningContext:  learningContext,
		ExtraInstruction: toneInstructions[req.Tone],
		MaxTokens:        req.MaxTokens,
	})

	provider := result.Provider
	reply := models.Turn{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Body:           result.Text,
		Truncated:      result.Truncated,
		Provider:       &provider,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.convs.AppendTurn(ctx, &reply); err != nil {
		return nil, err
	}

	// Detached best-effort side effect; never blocks the reply
	s.scheduler.OnMessageStored(*conv, *step)

	return &SendMessageResponse{
		Reply:        reply,
		ProviderUsed: result.Provider,
		Truncated:    result.Truncated,
		Archetype:    result.Archetype,
		RequestID:    result.RequestID,
		Attempts:     result.Attempts,
	}, nil
}

// ContinueReply extends the most recent assistant turn when it was cut
// off by the token budget. The continuation is appended as a new turn;
// the truncated original stays immutable.
func (s *Service) ContinueReply(ctx context.Context, conversationID, ownerID string) (*SendMessageResponse, error) {
	conv, err := s.convs.GetConversation(ctx, conversationID, ownerID)
	if err != nil {
		return nil, err
	}
	step, err := s.rooms.GetStep(ctx, conv.StepID)
	if err != nil {
		return nil, err
	}

	history, err := s.convs.ListTurns(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, &domain.ValidationError{Message: "conversation has no turns to continue"}
	}
	last := history[len(history)-1]
	if last.Role != models.RoleAssistant || !last.Truncated {
		return nil, &domain.ValidationError{Message: "latest reply is not a truncated assistant turn"}
	}

	// Ephemeral instruction turn: drives the continuation but is never
	// persisted, so the stored log stays a clean user/assistant record.
	continuation := models.Turn{
		Role: models.RoleUser,
		Body: "Continue your previous reply exactly where it stopped. Do not repeat what you already said.",
	}

	result := s.engine.Respond(ctx, &ai.RespondInput{
		Step:  *step,
		Turns: append(history, continuation),
	})

	provider := result.Provider
	reply := models.Turn{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Body:           result.Text,
		Truncated:      result.Truncated,
		Provider:       &provider,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.convs.AppendTurn(ctx, &reply); err != nil {
		return nil, err
	}

	s.scheduler.OnMessageStored(*conv, *step)

	return &SendMessageResponse{
		Reply:        reply,
		ProviderUsed: result.Provider,
		Truncated:    result.Truncated,
		Archetype:    result.Archetype,
		RequestID:    result.RequestID,
		Attempts:     result.Attempts,
	}, nil
}
