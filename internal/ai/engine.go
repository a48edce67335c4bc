package ai

import (
	"context"
	"fmt"
	"log/slog"

	"studyroom/internal/config"
	"studyroom/internal/domain/models"
)

// Engine is the caller-facing surface of the orchestration subsystem.
// One request flows: history window -> archetype classification ->
// prompt composition -> failover chain. The engine itself is stateless;
// all tuning lives in the config struct it was constructed with.
type Engine struct {
	archetypes *ArchetypeRegistry
	failover   *FailoverController
	cfg        *config.AIConfig
	logger     *slog.Logger
}

// NewEngine creates the engine.
func NewEngine(archetypes *ArchetypeRegistry, failover *FailoverController, cfg *config.AIConfig, logger *slog.Logger) *Engine {
	return &Engine{
		archetypes: archetypes,
		failover:   failover,
		cfg:        cfg,
		logger:     logger,
	}
}

// RespondInput is everything one assistant turn needs. Turns must be
// the conversation's full ordered history including the just-stored
// user message; the engine applies the history window itself.
type RespondInput struct {
	Step            models.Step
	Turns           []models.Turn
	LearningContext string // non-empty only on the first turn of a new conversation

	// ExtraInstruction is appended to the composed system prompt
	// verbatim. Callers must pass only values from a fixed allow-list;
	// this layer does not sanitize free text.
	ExtraInstruction string

	// MaxTokens overrides the configured response budget when > 0.
	MaxTokens int
}

// RespondResult mirrors the caller-facing contract: the reply text,
// whether it was cut off by the token budget, which provider answered,
// and the full attempt trail for debugging.
type RespondResult struct {
	Text      string
	Truncated bool
	Provider  string
	Model     string
	RequestID string
	Archetype string
	Attempts  []Attempt
}

// Respond generates the assistant's reply for the current turn. It
// never returns an error: the failover chain terminates in the
// deterministic template fallback.
func (e *Engine) Respond(ctx context.Context, in *RespondInput) *RespondResult {
	window := SelectHistory(in.Turns, e.cfg.MaxHistoryTurns)

	archetypeKey := ArchetypeNone
	var archetype *Archetype
	if e.cfg.ArchetypePromptsEnabled {
		archetypeKey = e.archetypes.Classify(in.Step.Label, in.Step.Instruction)
		archetype = e.archetypes.Get(archetypeKey)
	}

	system := ComposeSystemPrompt(baseTutorPrompt(in.Step), archetype, in.LearningContext)
	if in.ExtraInstruction != "" {
		system = system + "\n\n" + in.ExtraInstruction
	}

	req := &Request{
		System:    system,
		Messages:  turnsToMessages(window),
		MaxTokens: e.cfg.ClampMaxTokens(in.MaxTokens),
	}

	e.logger.Debug("dispatching response request",
		"step", in.Step.Key,
		"archetype", archetypeKey,
		"window_turns", len(window),
		"history_turns", len(in.Turns),
		"system_tokens_est", EstimateTokens(system),
		"learning_context", in.LearningContext != "",
	)

	result := e.failover.Generate(ctx, req, "")

	return &RespondResult{
		Text:      result.Text,
		Truncated: result.Truncated,
		Provider:  result.Provider,
		Model:     result.Model,
		RequestID: result.RequestID,
		Archetype: archetypeKey,
		Attempts:  result.Attempts,
	}
}

// Summarize distills a conversation into a learning note over its full
// turn history. Unlike Respond it can fail: a canned template answer is
// worthless as a note, so provider exhaustion is reported as an error
// and the caller skips this milestone.
func (e *Engine) Summarize(ctx context.Context, step models.Step, turns []models.Turn) (string, error) {
	if len(turns) == 0 {
		return "", fmt.Errorf("summarize: conversation has no turns")
	}

	system := fmt.Sprintf(
		"You summarize one learning conversation so its insights can seed future discussions. "+
			"The conversation belongs to the step %q. Write a compact synthesis (120 words or less) of "+
			"what the learner worked through, what they concluded, and what remains open. "+
			"Third person, no preamble, no direct address.", stepName(step))

	messages := turnsToMessages(turns)
	messages = append(messages, Message{
		Role: models.RoleUser,
		Text: "Summarize the discussion above as instructed.",
	})

	result := e.failover.Generate(ctx, &Request{
		System:    system,
		Messages:  messages,
		MaxTokens: e.cfg.MaxTokens,
	}, IntentSummary)

	if result.Provider == ProviderTemplate {
		return "", fmt.Errorf("summarize: all providers exhausted (request %s)", result.RequestID)
	}

	return result.Text, nil
}

// Refine runs a single constrained generation for the step-refinement
// flow and hands the raw text back; parsing and validation live with
// the caller. Provider exhaustion is an error for the same reason as in
// Summarize.
func (e *Engine) Refine(ctx context.Context, system, prompt string) (string, error) {
	result := e.failover.Generate(ctx, &Request{
		System:    system,
		Messages:  []Message{{Role: models.RoleUser, Text: prompt}},
		MaxTokens: 2000,
	}, IntentDiscussion)

	if result.Provider == ProviderTemplate {
		return "", fmt.Errorf("refine: all providers exhausted (request %s)", result.RequestID)
	}

	return result.Text, nil
}

// baseTutorPrompt is the base instruction every archetype clause and
// context block is appended to.
func baseTutorPrompt(step models.Step) string {
	return fmt.Sprintf(
		"You are a thoughtful AI tutor in a collaborative study room. The learner is working "+
			"through the step %q. Step instruction: %s\n"+
			"Ground every reply in this step's intent and in the conversation so far. Guide rather "+
			"than lecture.", step.Label, step.Instruction)
}

func stepName(step models.Step) string {
	if step.Label != "" {
		return step.Label
	}
	return step.Key
}

func turnsToMessages(turns []models.Turn) []Message {
	messages := make([]Message, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, Message{Role: t.Role, Text: t.Body})
	}
	return messages
}
