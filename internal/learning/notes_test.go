package learning

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"studyroom/internal/domain/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(convs *fakeConvRepo, notes *fakeNoteRepo, sum *fakeSummarizer, interval int) *NoteScheduler {
	return NewNoteScheduler(convs, notes, &fakeTxManager{}, sum, interval, 5*time.Second, testLogger())
}

func testConv(id, roomID string) models.Conversation {
	return models.Conversation{ID: id, RoomID: roomID, OwnerID: "owner-1"}
}

func testStep() models.Step {
	return models.Step{ID: "step-1", Key: "step1", Label: "1. Analyze", Instruction: "Analyze things"}
}

func TestMaybeGenerateNote_MilestoneNotReached(t *testing.T) {
	convs := newFakeConvRepo()
	notes := newFakeNoteRepo()
	sum := &fakeSummarizer{}
	s := newTestScheduler(convs, notes, sum, 5)

	// 3 user messages (6 stored turns): milestone 5 not reached
	convs.addExchanges("conv-1", 3)

	if err := s.MaybeGenerateNote(context.Background(), testConv("conv-1", "room-1"), testStep()); err != nil {
		t.Fatalf("MaybeGenerateNote() failed: %v", err)
	}

	if sum.callCount() != 0 {
		t.Errorf("summarizer called %d times before the milestone", sum.callCount())
	}
	if _, err := notes.GetNote(context.Background(), "conv-1"); err == nil {
		t.Errorf("note was written before the milestone")
	}
}

func TestMaybeGenerateNote_MilestoneWritesNote(t *testing.T) {
	convs := newFakeConvRepo()
	notes := newFakeNoteRepo()
	sum := &fakeSummarizer{body: "distilled insight"}
	s := newTestScheduler(convs, notes, sum, 5)

	// 5 user messages and their replies: 10 stored turns, but the
	// milestone metric is user messages, so this lands exactly on 5
	convs.addExchanges("conv-1", 5)

	if err := s.MaybeGenerateNote(context.Background(), testConv("conv-1", "room-1"), testStep()); err != nil {
		t.Fatalf("MaybeGenerateNote() failed: %v", err)
	}

	note, err := notes.GetNote(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("note missing after milestone: %v", err)
	}
	if note.Body != "distilled insight" {
		t.Errorf("body = %q", note.Body)
	}
	if note.MessageCount != 5 {
		t.Errorf("message count = %d, want 5", note.MessageCount)
	}
	if note.RoomID != "room-1" || note.StepLabel != "1. Analyze" {
		t.Errorf("note attribution wrong: %+v", note)
	}
}

func TestMaybeGenerateNote_MilestoneAlreadyCaptured(t *testing.T) {
	convs := newFakeConvRepo()
	notes := newFakeNoteRepo()
	sum := &fakeSummarizer{}
	s := newTestScheduler(convs, notes, sum, 5)

	convs.addExchanges("conv-1", 5)
	conv := testConv("conv-1", "room-1")

	if err := s.MaybeGenerateNote(context.Background(), conv, testStep()); err != nil {
		t.Fatalf("first generation failed: %v", err)
	}
	if err := s.MaybeGenerateNote(context.Background(), conv, testStep()); err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if sum.callCount() != 1 {
		t.Errorf("summarizer called %d times for one milestone, want 1", sum.callCount())
	}
}

func TestMaybeGenerateNote_RegeneratesAtNextMilestone(t *testing.T) {
	convs := newFakeConvRepo()
	notes := newFakeNoteRepo()
	sum := &fakeSummarizer{}
	s := newTestScheduler(convs, notes, sum, 5)

	conv := testConv("conv-1", "room-1")
	convs.addExchanges("conv-1", 5)
	if err := s.MaybeGenerateNote(context.Background(), conv, testStep()); err != nil {
		t.Fatalf("first milestone failed: %v", err)
	}

	convs.addExchanges("conv-1", 5)
	if err := s.MaybeGenerateNote(context.Background(), conv, testStep()); err != nil {
		t.Fatalf("second milestone failed: %v", err)
	}

	note, err := notes.GetNote(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("note missing: %v", err)
	}
	if note.MessageCount != 10 {
		t.Errorf("message count = %d, want 10 after regeneration", note.MessageCount)
	}
	if sum.callCount() != 2 {
		t.Errorf("summarizer calls = %d, want 2", sum.callCount())
	}
}

func TestMaybeGenerateNote_SummarizerFailureLeavesNoNote(t *testing.T) {
	convs := newFakeConvRepo()
	notes := newFakeNoteRepo()
	sum := &fakeSummarizer{err: errors.New("provider down")}
	s := newTestScheduler(convs, notes, sum, 5)

	convs.addExchanges("conv-1", 5)

	err := s.MaybeGenerateNote(context.Background(), testConv("conv-1", "room-1"), testStep())
	if err == nil {
		t.Fatalf("expected error from failed summarization")
	}
	if _, err := notes.GetNote(context.Background(), "conv-1"); err == nil {
		t.Errorf("failed generation must not write a note")
	}
}

func TestMaybeGenerateNote_ConcurrentCallsSingleWriter(t *testing.T) {
	convs := newFakeConvRepo()
	notes := newFakeNoteRepo()
	sum := &fakeSummarizer{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := newTestScheduler(convs, notes, sum, 5)

	convs.addExchanges("conv-1", 5)
	conv := testConv("conv-1", "room-1")

	done := make(chan error, 1)
	go func() {
		done <- s.MaybeGenerateNote(context.Background(), conv, testStep())
	}()

	// Wait until the first writer is inside the summarizer, then hit the
	// same conversation from other goroutines: they must skip, not queue.
	<-sum.entered

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.MaybeGenerateNote(context.Background(), conv, testStep()); err != nil {
				t.Errorf("concurrent call failed: %v", err)
			}
		}()
	}
	wg.Wait()

	close(sum.release)
	if err := <-done; err != nil {
		t.Fatalf("first writer failed: %v", err)
	}

	if sum.callCount() != 1 {
		t.Errorf("summarizer called %d times under contention, want 1", sum.callCount())
	}
	note, err := notes.GetNote(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("note missing: %v", err)
	}
	if note.MessageCount != 5 {
		t.Errorf("message count = %d, want 5", note.MessageCount)
	}
}

func TestUpsertNoteIfNewer_StaleWriteSkipped(t *testing.T) {
	notes := newFakeNoteRepo()

	applied, err := notes.UpsertNoteIfNewer(context.Background(), &models.LearningNote{
		ConversationID: "conv-1", RoomID: "room-1", MessageCount: 10, Body: "newer",
	})
	if err != nil || !applied {
		t.Fatalf("initial upsert: applied=%v err=%v", applied, err)
	}

	applied, err = notes.UpsertNoteIfNewer(context.Background(), &models.LearningNote{
		ConversationID: "conv-1", RoomID: "room-1", MessageCount: 5, Body: "stale",
	})
	if err != nil {
		t.Fatalf("stale upsert errored: %v", err)
	}
	if applied {
		t.Errorf("stale write was applied")
	}

	note, _ := notes.GetNote(context.Background(), "conv-1")
	if note.Body != "newer" {
		t.Errorf("body = %q, stale write overwrote newer note", note.Body)
	}
}

func TestOnMessageStored_DetachedAndWaitable(t *testing.T) {
	convs := newFakeConvRepo()
	notes := newFakeNoteRepo()
	sum := &fakeSummarizer{body: "async note"}
	s := newTestScheduler(convs, notes, sum, 5)

	convs.addExchanges("conv-1", 5)

	s.OnMessageStored(testConv("conv-1", "room-1"), testStep())
	s.Wait()

	note, err := notes.GetNote(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("note missing after OnMessageStored + Wait: %v", err)
	}
	if note.Body != "async note" {
		t.Errorf("body = %q", note.Body)
	}
}
