package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"studyroom/internal/ai"
	"studyroom/internal/config"
	"studyroom/internal/domain"
	"studyroom/internal/domain/models"
	"studyroom/internal/domain/repositories"
	"studyroom/internal/learning"
)

// The engine under test runs with no provider adapters, so every reply
// comes from the deterministic template fallback. That keeps these
// tests hermetic while still exercising the full message path.

type memConvRepo struct {
	mu    sync.Mutex
	convs map[string]models.Conversation
	turns map[string][]models.Turn
}

func newMemConvRepo() *memConvRepo {
	return &memConvRepo{
		convs: make(map[string]models.Conversation),
		turns: make(map[string][]models.Turn),
	}
}

func (m *memConvRepo) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[conv.ID] = *conv
	return nil
}

func (m *memConvRepo) GetConversation(ctx context.Context, conversationID, ownerID string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[conversationID]
	if !ok || conv.OwnerID != ownerID {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}
	return &conv, nil
}

func (m *memConvRepo) ListConversationsByRoom(ctx context.Context, roomID string) ([]models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Conversation
	for _, conv := range m.convs {
		if conv.RoomID == roomID {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (m *memConvRepo) AppendTurn(ctx context.Context, turn *models.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	turn.Seq = len(m.turns[turn.ConversationID]) + 1
	m.turns[turn.ConversationID] = append(m.turns[turn.ConversationID], *turn)
	return nil
}

func (m *memConvRepo) ListTurns(ctx context.Context, conversationID string) ([]models.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := make([]models.Turn, len(m.turns[conversationID]))
	copy(turns, m.turns[conversationID])
	return turns, nil
}

func (m *memConvRepo) CountUserTurns(ctx context.Context, conversationID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, turn := range m.turns[conversationID] {
		if turn.Role == models.RoleUser {
			count++
		}
	}
	return count, nil
}

type memRoomRepo struct {
	rooms map[string]models.Room
	steps map[string]models.Step // by step ID
}

func newMemRoomRepo() *memRoomRepo {
	return &memRoomRepo{
		rooms: make(map[string]models.Room),
		steps: make(map[string]models.Step),
	}
}

func (m *memRoomRepo) CreateRoom(ctx context.Context, room *models.Room, steps []models.Step) error {
	m.rooms[room.ID] = *room
	for _, s := range steps {
		m.steps[s.ID] = s
	}
	return nil
}

func (m *memRoomRepo) GetRoom(ctx context.Context, roomID, ownerID string) (*models.Room, error) {
	room, ok := m.rooms[roomID]
	if !ok || room.OwnerID != ownerID {
		return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	return &room, nil
}

func (m *memRoomRepo) ListRooms(ctx context.Context, ownerID string) ([]models.Room, error) {
	return nil, nil
}

func (m *memRoomRepo) SoftDeleteRoom(ctx context.Context, roomID, ownerID string) error {
	delete(m.rooms, roomID)
	return nil
}

func (m *memRoomRepo) ListSteps(ctx context.Context, roomID string) ([]models.Step, error) {
	var out []models.Step
	for _, s := range m.steps {
		if s.RoomID == roomID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memRoomRepo) GetStep(ctx context.Context, stepID string) (*models.Step, error) {
	s, ok := m.steps[stepID]
	if !ok {
		return nil, fmt.Errorf("step %s: %w", stepID, domain.ErrNotFound)
	}
	return &s, nil
}

func (m *memRoomRepo) ReplaceSteps(ctx context.Context, roomID string, steps []models.Step) error {
	for id, s := range m.steps {
		if s.RoomID == roomID {
			delete(m.steps, id)
		}
	}
	for _, s := range steps {
		m.steps[s.ID] = s
	}
	return nil
}

type memNoteRepo struct {
	mu      sync.Mutex
	notes   map[string]models.LearningNote
	applied int
}

func newMemNoteRepo() *memNoteRepo {
	return &memNoteRepo{notes: make(map[string]models.LearningNote)}
}

func (m *memNoteRepo) GetNote(ctx context.Context, conversationID string) (*models.LearningNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	note, ok := m.notes[conversationID]
	if !ok {
		return nil, fmt.Errorf("note: %w", domain.ErrNotFound)
	}
	return &note, nil
}
func (m *memNoteRepo) UpsertNoteIfNewer(ctx context.Context, note *models.LearningNote) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.notes[note.ConversationID]
	if ok && existing.MessageCount >= note.MessageCount {
		return false, nil
	}
	m.notes[note.ConversationID] = *note
	m.applied++
	return true, nil
}
func (m *memNoteRepo) ListRoomNotes(ctx context.Context, roomID, excludeConversationID string) ([]models.LearningNote, error) {
	return nil, nil
}
func (m *memNoteRepo) LockConversationNotes(ctx context.Context, conversationID string) error {
	return nil
}
func (m *memNoteRepo) appliedWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied
}

// stubSummarizer stands in for the engine on the note path, which
// would otherwise refuse template-backed summaries in this adapterless
// setup.
type stubSummarizer struct{}

func (stubSummarizer) Summarize(ctx context.Context, step models.Step, turns []models.Turn) (string, error) {
	return fmt.Sprintf("synthesis of %d turns", len(turns)), nil
}

type memTxManager struct{}

func (memTxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error { return fn(ctx) }

type fixture struct {
	service   *Service
	convs     *memConvRepo
	rooms     *memRoomRepo
	notes     *memNoteRepo
	scheduler *learning.NoteScheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	aiCfg := &config.AIConfig{
		MaxTokens:               400,
		MaxHistoryTurns:         8,
		NoteMilestoneInterval:   5,
		ArchetypePromptsEnabled: true,
		RequestTimeout:          time.Second,
		RetryBaseDelay:          time.Millisecond,
		RetryMaxAttempts:        1,
		MaxConcurrentCalls:      4,
	}

	registry, err := ai.NewArchetypeRegistry()
	if err != nil {
		t.Fatalf("archetype registry: %v", err)
	}
	failover := ai.NewFailoverController(nil, ai.NewTemplateFallback(), aiCfg, logger)
	engine := ai.NewEngine(registry, failover, aiCfg, logger)

	convs := newMemConvRepo()
	rooms := newMemRoomRepo()
	notes := newMemNoteRepo()

	contextMgr := learning.NewContextManager(notes, logger)
	scheduler := learning.NewNoteScheduler(convs, notes, memTxManager{}, stubSummarizer{}, 5, time.Second, logger)

	return &fixture{
		service:   NewService(convs, rooms, engine, contextMgr, scheduler, logger),
		convs:     convs,
		rooms:     rooms,
		notes:     notes,
		scheduler: scheduler,
	}
}

func (f *fixture) seed(t *testing.T) (roomID, stepID string) {
	t.Helper()
	roomID, stepID = "room-1", "step-1"
	err := f.rooms.CreateRoom(context.Background(),
		&models.Room{ID: roomID, OwnerID: "owner-1", Title: "T", Goal: "G"},
		[]models.Step{{ID: stepID, RoomID: roomID, Key: "step1", Label: "1. Analyze", Instruction: "Analyze it"}},
	)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return roomID, stepID
}

func TestCreateConversation_StepMustBelongToRoom(t *testing.T) {
	f := newFixture(t)
	_, stepID := f.seed(t)

	_, err := f.service.CreateConversation(context.Background(), "other-room", stepID, "owner-1")
	if err == nil {
		t.Fatalf("expected rejection for step from another room")
	}

	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("error type = %T, want ValidationError", err)
	}
}

func TestSendMessage_ValidatesTone(t *testing.T) {
	f := newFixture(t)
	roomID, stepID := f.seed(t)

	conv, err := f.service.CreateConversation(context.Background(), roomID, stepID, "owner-1")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	_, err = f.service.SendMessage(context.Background(), &SendMessageRequest{
		ConversationID: conv.ID,
		OwnerID:        "owner-1",
		Body:           "hello",
		Tone:           "sarcastic", // not on the allow-list
	})
	if err == nil {
		t.Fatalf("free-text tone must be rejected")
	}
}

func TestSendMessage_StoresBothTurns(t *testing.T) {
	f := newFixture(t)
	roomID, stepID := f.seed(t)

	conv, err := f.service.CreateConversation(context.Background(), roomID, stepID, "owner-1")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	resp, err := f.service.SendMessage(context.Background(), &SendMessageRequest{
		ConversationID: conv.ID,
		OwnerID:        "owner-1",
		Body:           "What should I look at first?",
		Tone:           "supportive",
	})
	if err != nil {
		t.Fatalf("SendMessage() failed: %v", err)
	}

	if resp.Reply.Body == "" {
		t.Errorf("empty reply")
	}
	if resp.ProviderUsed != "template" {
		t.Errorf("provider = %q, want template with no adapters configured", resp.ProviderUsed)
	}

	turns, _ := f.convs.ListTurns(context.Background(), conv.ID)
	if len(turns) != 2 {
		t.Fatalf("stored turns = %d, want user + assistant", len(turns))
	}
	if turns[0].Role != models.RoleUser || turns[1].Role != models.RoleAssistant {
		t.Errorf("roles = %q, %q", turns[0].Role, turns[1].Role)
	}
	if turns[1].Provider == nil || *turns[1].Provider != "template" {
		t.Errorf("assistant turn is missing provider attribution")
	}
}

func TestSendMessage_FifthMessageWritesMilestoneNote(t *testing.T) {
	f := newFixture(t)
	roomID, stepID := f.seed(t)

	conv, err := f.service.CreateConversation(context.Background(), roomID, stepID, "owner-1")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	send := func(n int) {
		t.Helper()
		_, err := f.service.SendMessage(context.Background(), &SendMessageRequest{
			ConversationID: conv.ID,
			OwnerID:        "owner-1",
			Body:           fmt.Sprintf("message %d", n),
		})
		if err != nil {
			t.Fatalf("SendMessage() %d failed: %v", n, err)
		}
		f.scheduler.Wait()
	}

	// Each exchange stores two turns, so after message 3 there are 6
	// turns on record. Milestones count user messages, so nothing has
	// fired yet.
	for n := 1; n <= 3; n++ {
		send(n)
	}
	if _, err := f.notes.GetNote(context.Background(), conv.ID); err == nil {
		t.Fatalf("note written before the 5-message milestone")
	}

	send(4)
	send(5)

	note, err := f.notes.GetNote(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("note missing after the 5th message: %v", err)
	}
	if note.MessageCount != 5 {
		t.Errorf("message count = %d, want 5", note.MessageCount)
	}
	if writes := f.notes.appliedWrites(); writes != 1 {
		t.Errorf("note writes = %d, want exactly 1", writes)
	}
}

func TestSendMessage_RejectsOversizedBody(t *testing.T) {
	f := newFixture(t)
	roomID, stepID := f.seed(t)
	conv, _ := f.service.CreateConversation(context.Background(), roomID, stepID, "owner-1")

	big := make([]byte, config.MaxMessageLength+1)
	for i := range big {
		big[i] = 'a'
	}

	_, err := f.service.SendMessage(context.Background(), &SendMessageRequest{
		ConversationID: conv.ID,
		OwnerID:        "owner-1",
		Body:           string(big),
	})
	if err == nil {
		t.Fatalf("oversized body must fail validation")
	}
}

func TestSendMessage_WrongOwner(t *testing.T) {
	f := newFixture(t)
	roomID, stepID := f.seed(t)
	conv, _ := f.service.CreateConversation(context.Background(), roomID, stepID, "owner-1")

	_, err := f.service.SendMessage(context.Background(), &SendMessageRequest{
		ConversationID: conv.ID,
		OwnerID:        "intruder",
		Body:           "hi",
	})
	if err == nil {
		t.Fatalf("another owner must not reach the conversation")
	}
}

func TestContinueReply_RequiresTruncatedAssistantTurn(t *testing.T) {
	f := newFixture(t)
	roomID, stepID := f.seed(t)
	conv, _ := f.service.CreateConversation(context.Background(), roomID, stepID, "owner-1")

	// Empty conversation
	if _, err := f.service.ContinueReply(context.Background(), conv.ID, "owner-1"); err == nil {
		t.Errorf("continue on empty conversation must fail")
	}

	// Template replies are never truncated, so continue stays rejected
	_, err := f.service.SendMessage(context.Background(), &SendMessageRequest{
		ConversationID: conv.ID,
		OwnerID:        "owner-1",
		Body:           "tell me everything",
	})
	if err != nil {
		t.Fatalf("SendMessage() failed: %v", err)
	}
	if _, err := f.service.ContinueReply(context.Background(), conv.ID, "owner-1"); err == nil {
		t.Errorf("continue after a complete reply must fail")
	}
}

func TestContinueReply_AppendsNewTurn(t *testing.T) {
	f := newFixture(t)
	roomID, stepID := f.seed(t)
	conv, _ := f.service.CreateConversation(context.Background(), roomID, stepID, "owner-1")

	// Simulate a truncated assistant reply already on record
	_ = f.convs.AppendTurn(context.Background(), &models.Turn{
		ID: "t1", ConversationID: conv.ID, Role: models.RoleUser, Body: "go on at length",
	})
	_ = f.convs.AppendTurn(context.Background(), &models.Turn{
		ID: "t2", ConversationID: conv.ID, Role: models.RoleAssistant, Body: "partial...", Truncated: true,
	})

	resp, err := f.service.ContinueReply(context.Background(), conv.ID, "owner-1")
	if err != nil {
		t.Fatalf("ContinueReply() failed: %v", err)
	}
	if resp.Reply.Body == "" {
		t.Errorf("empty continuation")
	}

	turns, _ := f.convs.ListTurns(context.Background(), conv.ID)
	if len(turns) != 3 {
		t.Fatalf("turns = %d, want 3 (original pair + continuation)", len(turns))
	}
	if turns[1].Body != "partial..." {
		t.Errorf("original truncated turn was modified: %q", turns[1].Body)
	}
}
