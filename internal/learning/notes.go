package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"studyroom/internal/domain"
	"studyroom/internal/domain/models"
	"studyroom/internal/domain/repositories"
)

// Summarizer distills a conversation into note text. *ai.Engine
// satisfies this; tests substitute a fake.
type Summarizer interface {
	Summarize(ctx context.Context, step models.Step, turns []models.Turn) (string, error)
}

// NoteScheduler decides, per stored exchange, whether a user-message
// milestone has been reached and a learning note should be
// (re)generated. Generation
// is a detached best-effort side effect: it never blocks or fails the
// message path, and a failed milestone is simply retried at the next
// one.
//
// At-most-one writer per conversation is enforced three times over:
// an in-process inflight set (skip, don't queue), a Postgres advisory
// lock inside the write transaction (serializes across instances), and
// a conditional upsert that refuses to move message_count backwards
// (makes a stale writer a no-op).
type NoteScheduler struct {
	convs      repositories.ConversationRepository
	notes      repositories.NoteRepository
	txManager  repositories.TransactionManager
	summarizer Summarizer
	interval   int
	timeout    time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// NewNoteScheduler creates a scheduler with the given milestone
// interval (user messages between regenerations).
func NewNoteScheduler(
	convs repositories.ConversationRepository,
	notes repositories.NoteRepository,
	txManager repositories.TransactionManager,
	summarizer Summarizer,
	interval int,
	timeout time.Duration,
	logger *slog.Logger,
) *NoteScheduler {
	return &NoteScheduler{
		convs:      convs,
		notes:      notes,
		txManager:  txManager,
		summarizer: summarizer,
		interval:   interval,
		timeout:    timeout,
		logger:     logger,
		inflight:   make(map[string]struct{}),
	}
}

// OnMessageStored fires after a message is durably stored. It returns
// immediately; the milestone check and any generation run on a
// detached goroutine with their own deadline.
func (s *NoteScheduler) OnMessageStored(conv models.Conversation, step models.Step) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.MaybeGenerateNote(ctx, conv, step); err != nil {
			s.logger.Warn("note generation failed, will retry at next milestone",
				"conversation_id", conv.ID,
				"error", err,
			)
		}
	}()
}

// Wait blocks until all in-flight generations finish. Used by shutdown
// and tests.
func (s *NoteScheduler) Wait() {
	s.wg.Wait()
}

// MaybeGenerateNote regenerates the conversation's note if the
// user-message count sits exactly on a milestone and no note exists for
// that count yet. Only user turns are counted: each exchange stores a
// user turn and an assistant reply before this runs, and a total-turn
// count would land on even numbers only and never hit an odd milestone
// multiple. Safe to call concurrently for the same conversation.
func (s *NoteScheduler) MaybeGenerateNote(ctx context.Context, conv models.Conversation, step models.Step) error {
	if !s.acquire(conv.ID) {
		// Another writer is already handling this conversation
		return nil
	}
	defer s.release(conv.ID)

	count, err := s.convs.CountUserTurns(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("count user turns: %w", err)
	}
	if count == 0 || count%s.interval != 0 {
		return nil
	}

	existing, err := s.notes.GetNote(ctx, conv.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("load existing note: %w", err)
	}
	if existing != nil && existing.MessageCount >= count {
		// This milestone was already captured
		return nil
	}

	turns, err := s.convs.ListTurns(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("list turns: %w", err)
	}

	body, err := s.summarizer.Summarize(ctx, step, turns)
	if err != nil {
		return fmt.Errorf("summarize conversation: %w", err)
	}

	note := &models.LearningNote{
		ConversationID: conv.ID,
		RoomID:         conv.RoomID,
		StepLabel:      step.Label,
		Body:           body,
		MessageCount:   count,
		UpdatedAt:      time.Now().UTC(),
	}

	var applied bool
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.notes.LockConversationNotes(txCtx, conv.ID); err != nil {
			return err
		}
		applied, err = s.notes.UpsertNoteIfNewer(txCtx, note)
		return err
	})
	if err != nil {
		return fmt.Errorf("store note: %w", err)
	}

	if !applied {
		s.logger.Debug("stale note write skipped",
			"conversation_id", conv.ID,
			"message_count", count,
		)
		return nil
	}

	s.logger.Info("learning note updated",
		"conversation_id", conv.ID,
		"message_count", count,
	)
	return nil
}

func (s *NoteScheduler) acquire(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[conversationID]; busy {
		return false
	}
	s.inflight[conversationID] = struct{}{}
	return true
}

func (s *NoteScheduler) release(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, conversationID)
}
