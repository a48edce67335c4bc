package learning

import (
	"context"
	"testing"

	"studyroom/internal/domain/models"
)

func TestContextForNewConversation_NoNotes(t *testing.T) {
	notes := newFakeNoteRepo()
	m := NewContextManager(notes, testLogger())

	got, err := m.ContextForNewConversation(context.Background(), "room-1", "conv-new")
	if err != nil {
		t.Fatalf("ContextForNewConversation() failed: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
}

func TestContextForNewConversation_AssemblesAttributedNotes(t *testing.T) {
	notes := newFakeNoteRepo()
	ctx := context.Background()

	_, _ = notes.UpsertNoteIfNewer(ctx, &models.LearningNote{
		ConversationID: "conv-a", RoomID: "room-1",
		StepLabel: "1. Explore", Body: "Learner prefers concrete examples.", MessageCount: 5,
	})
	_, _ = notes.UpsertNoteIfNewer(ctx, &models.LearningNote{
		ConversationID: "conv-b", RoomID: "room-1",
		StepLabel: "2. Analyze", Body: "Struggled with quorum intersection.", MessageCount: 10,
	})

	m := NewContextManager(notes, testLogger())

	got, err := m.ContextForNewConversation(ctx, "room-1", "conv-new")
	if err != nil {
		t.Fatalf("ContextForNewConversation() failed: %v", err)
	}

	want := "[1. Explore]\nLearner prefers concrete examples.\n\n[2. Analyze]\nStruggled with quorum intersection."
	if got != want {
		t.Errorf("context =\n%q\nwant\n%q", got, want)
	}
}

func TestContextForNewConversation_ExcludesOwnNote(t *testing.T) {
	notes := newFakeNoteRepo()
	ctx := context.Background()

	_, _ = notes.UpsertNoteIfNewer(ctx, &models.LearningNote{
		ConversationID: "conv-self", RoomID: "room-1",
		StepLabel: "1. Explore", Body: "My own earlier note.", MessageCount: 5,
	})
	_, _ = notes.UpsertNoteIfNewer(ctx, &models.LearningNote{
		ConversationID: "conv-other", RoomID: "room-1",
		StepLabel: "2. Analyze", Body: "A sibling's note.", MessageCount: 5,
	})

	m := NewContextManager(notes, testLogger())

	got, err := m.ContextForNewConversation(ctx, "room-1", "conv-self")
	if err != nil {
		t.Fatalf("ContextForNewConversation() failed: %v", err)
	}

	want := "[2. Analyze]\nA sibling's note."
	if got != want {
		t.Errorf("context = %q, want only the sibling note %q", got, want)
	}
}

func TestContextForNewConversation_ScopedToRoom(t *testing.T) {
	notes := newFakeNoteRepo()
	ctx := context.Background()

	_, _ = notes.UpsertNoteIfNewer(ctx, &models.LearningNote{
		ConversationID: "conv-elsewhere", RoomID: "room-2",
		StepLabel: "1. Explore", Body: "Different room entirely.", MessageCount: 5,
	})

	m := NewContextManager(notes, testLogger())

	got, err := m.ContextForNewConversation(ctx, "room-1", "conv-new")
	if err != nil {
		t.Fatalf("ContextForNewConversation() failed: %v", err)
	}
	if got != "" {
		t.Errorf("note from another room leaked into context: %q", got)
	}
}
