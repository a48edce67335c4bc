package learning

import (
	"context"
	"fmt"
	"sync"

	"studyroom/internal/domain"
	"studyroom/internal/domain/models"
	"studyroom/internal/domain/repositories"
)

// fakeConvRepo is an in-memory ConversationRepository.
type fakeConvRepo struct {
	mu    sync.Mutex
	convs map[string]models.Conversation
	turns map[string][]models.Turn
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{
		convs: make(map[string]models.Conversation),
		turns: make(map[string][]models.Turn),
	}
}

func (f *fakeConvRepo) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convs[conv.ID] = *conv
	return nil
}

func (f *fakeConvRepo) GetConversation(ctx context.Context, conversationID, ownerID string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[conversationID]
	if !ok || conv.OwnerID != ownerID {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}
	return &conv, nil
}

func (f *fakeConvRepo) ListConversationsByRoom(ctx context.Context, roomID string) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Conversation
	for _, conv := range f.convs {
		if conv.RoomID == roomID {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (f *fakeConvRepo) AppendTurn(ctx context.Context, turn *models.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	turn.Seq = len(f.turns[turn.ConversationID]) + 1
	f.turns[turn.ConversationID] = append(f.turns[turn.ConversationID], *turn)
	return nil
}

func (f *fakeConvRepo) ListTurns(ctx context.Context, conversationID string) ([]models.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	turns := make([]models.Turn, len(f.turns[conversationID]))
	copy(turns, f.turns[conversationID])
	return turns, nil
}

func (f *fakeConvRepo) CountUserTurns(ctx context.Context, conversationID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, turn := range f.turns[conversationID] {
		if turn.Role == models.RoleUser {
			count++
		}
	}
	return count, nil
}

// addExchanges stores n complete exchanges (user turn + assistant
// reply), mirroring what the message path persists before the
// scheduler fires.
func (f *fakeConvRepo) addExchanges(conversationID string, n int) {
	for i := 0; i < n; i++ {
		_ = f.AppendTurn(context.Background(), &models.Turn{
			ConversationID: conversationID,
			Role:           models.RoleUser,
			Body:           fmt.Sprintf("message-%d", i),
		})
		_ = f.AppendTurn(context.Background(), &models.Turn{
			ConversationID: conversationID,
			Role:           models.RoleAssistant,
			Body:           fmt.Sprintf("reply-%d", i),
		})
	}
}

// fakeNoteRepo is an in-memory NoteRepository with the same conditional
// upsert semantics as the real one.
type fakeNoteRepo struct {
	mu    sync.Mutex
	notes map[string]models.LearningNote
	order []string // conversation IDs in insertion order
}

func newFakeNoteRepo() *fakeNoteRepo {
	return &fakeNoteRepo{notes: make(map[string]models.LearningNote)}
}

func (f *fakeNoteRepo) GetNote(ctx context.Context, conversationID string) (*models.LearningNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	note, ok := f.notes[conversationID]
	if !ok {
		return nil, fmt.Errorf("note %s: %w", conversationID, domain.ErrNotFound)
	}
	return &note, nil
}

func (f *fakeNoteRepo) UpsertNoteIfNewer(ctx context.Context, note *models.LearningNote) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.notes[note.ConversationID]
	if ok && existing.MessageCount >= note.MessageCount {
		return false, nil
	}
	if !ok {
		f.order = append(f.order, note.ConversationID)
	}
	f.notes[note.ConversationID] = *note
	return true, nil
}

func (f *fakeNoteRepo) ListRoomNotes(ctx context.Context, roomID, excludeConversationID string) ([]models.LearningNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LearningNote
	for _, id := range f.order {
		note := f.notes[id]
		if note.RoomID == roomID && note.ConversationID != excludeConversationID {
			out = append(out, note)
		}
	}
	return out, nil
}

func (f *fakeNoteRepo) LockConversationNotes(ctx context.Context, conversationID string) error {
	return nil
}

// fakeRoomRepo is an in-memory RoomRepository; only the step-plan
// methods the refiner touches have real behavior.
type fakeRoomRepo struct {
	mu    sync.Mutex
	rooms map[string]models.Room
	steps map[string][]models.Step
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{
		rooms: make(map[string]models.Room),
		steps: make(map[string][]models.Step),
	}
}

func (f *fakeRoomRepo) CreateRoom(ctx context.Context, room *models.Room, steps []models.Step) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[room.ID] = *room
	f.steps[room.ID] = steps
	return nil
}

func (f *fakeRoomRepo) GetRoom(ctx context.Context, roomID, ownerID string) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok || room.OwnerID != ownerID {
		return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	return &room, nil
}

func (f *fakeRoomRepo) ListRooms(ctx context.Context, ownerID string) ([]models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Room
	for _, room := range f.rooms {
		if room.OwnerID == ownerID {
			out = append(out, room)
		}
	}
	return out, nil
}

func (f *fakeRoomRepo) SoftDeleteRoom(ctx context.Context, roomID, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, roomID)
	return nil
}

func (f *fakeRoomRepo) ListSteps(ctx context.Context, roomID string) ([]models.Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	steps := make([]models.Step, len(f.steps[roomID]))
	copy(steps, f.steps[roomID])
	return steps, nil
}

func (f *fakeRoomRepo) GetStep(ctx context.Context, stepID string) (*models.Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, steps := range f.steps {
		for _, s := range steps {
			if s.ID == stepID {
				return &s, nil
			}
		}
	}
	return nil, fmt.Errorf("step %s: %w", stepID, domain.ErrNotFound)
}

func (f *fakeRoomRepo) ReplaceSteps(ctx context.Context, roomID string, steps []models.Step) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps[roomID] = steps
	return nil
}

// fakeRefinementRepo is an in-memory RefinementRepository.
type fakeRefinementRepo struct {
	mu   sync.Mutex
	refs []models.Refinement
}

func (f *fakeRefinementRepo) CreateRefinement(ctx context.Context, ref *models.Refinement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs = append(f.refs, *ref)
	return nil
}

func (f *fakeRefinementRepo) GetRefinement(ctx context.Context, refinementID, roomID string) (*models.Refinement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ref := range f.refs {
		if ref.ID == refinementID && ref.RoomID == roomID {
			return &ref, nil
		}
	}
	return nil, fmt.Errorf("refinement %s: %w", refinementID, domain.ErrNotFound)
}

func (f *fakeRefinementRepo) ListRefinements(ctx context.Context, roomID string) ([]models.Refinement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Refinement
	for i := len(f.refs) - 1; i >= 0; i-- {
		if f.refs[i].RoomID == roomID {
			out = append(out, f.refs[i])
		}
	}
	return out, nil
}

// fakeRewriter scripts the model-assisted rewrite.
type fakeRewriter struct {
	mu     sync.Mutex
	calls  int
	output string
	err    error
}

func (f *fakeRewriter) Refine(ctx context.Context, system, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

func (f *fakeRewriter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeTxManager runs the function directly; the fakes have no
// transactions to manage.
type fakeTxManager struct{}

func (f *fakeTxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}

// fakeSummarizer returns a fixed body and counts invocations. An
// optional gate makes the call block until released, for concurrency
// tests.
type fakeSummarizer struct {
	mu      sync.Mutex
	calls   int
	body    string
	err     error
	entered chan struct{} // closed on first call, if set
	release chan struct{} // blocks the call until closed, if set
}

func (f *fakeSummarizer) Summarize(ctx context.Context, step models.Step, turns []models.Turn) (string, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()

	if first && f.entered != nil {
		close(f.entered)
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return "", f.err
	}
	if f.body != "" {
		return f.body, nil
	}
	return fmt.Sprintf("summary of %d turns", len(turns)), nil
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
