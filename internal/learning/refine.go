package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"studyroom/internal/config"
	"studyroom/internal/domain"
	"studyroom/internal/domain/models"
	"studyroom/internal/domain/repositories"
)

// Rewriter produces the model-assisted step rewrite. *ai.Engine
// satisfies this; tests substitute a fake.
type Rewriter interface {
	Refine(ctx context.Context, system, prompt string) (string, error)
}

// StepDraft is one step as proposed by the pre-pass or the model,
// before normalization assigns final keys, ordinals, and IDs.
type StepDraft struct {
	Key    string
	Label  string
	Prompt string
}

func (d StepDraft) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Label, validation.Required, validation.Length(1, config.MaxStepLabelLength)),
		validation.Field(&d.Prompt, validation.Required, validation.Length(1, config.MaxStepInstructionLength)),
	)
}

// RefineOutcome is a successful refinement: the new live step plan and
// the immutable history record that enables revert.
type RefineOutcome struct {
	Steps      []models.Step
	Summary    string
	Refinement *models.Refinement
}

// Refiner rewrites a room's step plan from a free-text preference.
// Simple preferences ("reduce to 3 steps", "remove step 2") are applied
// deterministically without a model call; everything else goes through
// a constrained JSON rewrite. Either path's output passes the same
// validation before anything persists, and persistence is transactional
// with the history insert - a failed refinement leaves the prior plan
// fully intact.
type Refiner struct {
	rooms       repositories.RoomRepository
	refinements repositories.RefinementRepository
	txManager   repositories.TransactionManager
	rewriter    Rewriter
	logger      *slog.Logger
}

// NewRefiner creates a Refiner.
func NewRefiner(
	rooms repositories.RoomRepository,
	refinements repositories.RefinementRepository,
	txManager repositories.TransactionManager,
	rewriter Rewriter,
	logger *slog.Logger,
) *Refiner {
	return &Refiner{
		rooms:       rooms,
		refinements: refinements,
		txManager:   txManager,
		rewriter:    rewriter,
		logger:      logger,
	}
}

// RefineSteps applies preference to the room's current plan.
func (r *Refiner) RefineSteps(ctx context.Context, roomID, preference string) (*RefineOutcome, error) {
	if err := validation.Validate(preference,
		validation.Required,
		validation.Length(1, config.MaxPreferenceLength),
	); err != nil {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("preference: %v", err)}
	}

	current, err := r.rooms.ListSteps(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load current steps: %w", err)
	}
	if len(current) == 0 {
		return nil, fmt.Errorf("room %s has no steps: %w", roomID, domain.ErrNotFound)
	}

	drafts, summary, matched := DeterministicRefine(current, preference)
	if !matched {
		drafts, summary, err = r.modelRefine(ctx, current, preference)
		if err != nil {
			return nil, fmt.Errorf("model-assisted rewrite: %w", err)
		}
	}

	steps, err := NormalizeSteps(drafts)
	if err != nil {
		// Prior plan stays untouched; report and stop
		return nil, &domain.ValidationError{Message: fmt.Sprintf("refinement produced an invalid plan: %v", err)}
	}

	return r.apply(ctx, roomID, preference, current, steps, summary)
}

// Revert restores the step plan recorded before a past refinement. The
// restored plan goes through the same validation and is itself recorded
// as a new history entry, so a revert can be reverted.
func (r *Refiner) Revert(ctx context.Context, roomID, refinementID string) (*RefineOutcome, error) {
	ref, err := r.refinements.GetRefinement(ctx, refinementID, roomID)
	if err != nil {
		return nil, fmt.Errorf("load refinement: %w", err)
	}

	drafts := make([]StepDraft, 0, len(ref.OldSteps))
	for _, s := range ref.OldSteps {
		drafts = append(drafts, StepDraft{Key: s.Key, Label: s.Label, Prompt: s.Instruction})
	}

	steps, err := NormalizeSteps(drafts)
	if err != nil {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("recorded plan is invalid: %v", err)}
	}

	current, err := r.rooms.ListSteps(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load current steps: %w", err)
	}

	summary := fmt.Sprintf("Reverted to the plan from %s.", ref.CreatedAt.Format("2006-01-02 15:04"))
	preference := fmt.Sprintf("revert refinement %s", ref.ID)

	return r.apply(ctx, roomID, preference, current, steps, summary)
}

// apply persists the new plan and its history record in one
// transaction.
func (r *Refiner) apply(ctx context.Context, roomID, preference string, oldSteps, newSteps []models.Step, summary string) (*RefineOutcome, error) {
	ref := &models.Refinement{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		Preference: preference,
		OldSteps:   oldSteps,
		NewSteps:   newSteps,
		Summary:    summary,
		CreatedAt:  time.Now().UTC(),
	}

	err := r.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := r.rooms.ReplaceSteps(txCtx, roomID, newSteps); err != nil {
			return err
		}
		return r.refinements.CreateRefinement(txCtx, ref)
	})
	if err != nil {
		return nil, fmt.Errorf("persist refinement: %w", err)
	}

	r.logger.Info("step plan refined",
		"room_id", roomID,
		"steps", len(newSteps),
		"summary", summary,
	)

	return &RefineOutcome{Steps: newSteps, Summary: summary, Refinement: ref}, nil
}

var (
	reduceRe = regexp.MustCompile(`(?i)\breduce\s+(?:to\s+)?(\d+)\s+steps?\b`)
	removeRe = regexp.MustCompile(`(?i)\bremove\s+step\s+(\d+)\b`)
)

// DeterministicRefine pattern-matches preference against the simple
// known forms and applies them directly - the fast path that skips the
// model call. Returns matched=false when no form applies.
func DeterministicRefine(steps []models.Step, preference string) (drafts []StepDraft, summary string, matched bool) {
	if m := reduceRe.FindStringSubmatch(preference); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n < config.MinSteps || n >= len(steps) {
			// "reduce to 12" on a 5-step plan is not a reduction;
			// let the model interpret it
			return nil, "", false
		}
		for _, s := range steps[:n] {
			drafts = append(drafts, StepDraft{Key: s.Key, Label: s.Label, Prompt: s.Instruction})
		}
		return drafts, fmt.Sprintf("Reduced the plan to %d steps.", n), true
	}

	if m := removeRe.FindStringSubmatch(preference); m != nil {
		k, _ := strconv.Atoi(m[1])
		if k < 1 || k > len(steps) || len(steps) <= config.MinSteps {
			return nil, "", false
		}
		for i, s := range steps {
			if i == k-1 {
				continue
			}
			drafts = append(drafts, StepDraft{Key: s.Key, Label: s.Label, Prompt: s.Instruction})
		}
		return drafts, fmt.Sprintf("Removed step %d.", k), true
	}

	return nil, "", false
}

// modelRefine asks the rewriter for a strict-JSON plan rewrite.
func (r *Refiner) modelRefine(ctx context.Context, current []models.Step, preference string) ([]StepDraft, string, error) {
	currentJSON, err := json.Marshal(stepsToDraftJSON(current))
	if err != nil {
		return nil, "", fmt.Errorf("marshal current steps: %w", err)
	}

	system := fmt.Sprintf(
		"You rewrite learning step plans. Respond with a single strict JSON object and nothing else:\n"+
			`{"modes": [{"key": "step1", "label": "...", "prompt": "..."}], "summary": "...", "notes": "..."}`+"\n"+
			"Between %d and %d modes. Keys sequential. Labels short. Prompts are full instructions "+
			"for an AI tutor guiding that step. No markdown, no prose outside the JSON object.",
		config.MinSteps, config.MaxSteps)

	prompt := fmt.Sprintf("Current plan:\n%s\n\nRework it according to this preference: %s",
		currentJSON, preference)

	raw, err := r.rewriter.Refine(ctx, system, prompt)
	if err != nil {
		return nil, "", err
	}

	return ParseModelPlan(raw)
}

// ParseModelPlan extracts {modes, summary} from raw model output.
// Tolerant of code fences and surrounding prose: it parses the
// outermost braced region, not the whole text.
func ParseModelPlan(raw string) ([]StepDraft, string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, "", fmt.Errorf("no JSON object in model output")
	}
	body := raw[start : end+1]

	if !gjson.Valid(body) {
		return nil, "", fmt.Errorf("model output is not valid JSON")
	}

	parsed := gjson.Parse(body)
	modes := parsed.Get("modes")
	if !modes.IsArray() {
		return nil, "", fmt.Errorf("model output has no modes array")
	}

	var drafts []StepDraft
	for _, mode := range modes.Array() {
		drafts = append(drafts, StepDraft{
			Key:    mode.Get("key").String(),
			Label:  mode.Get("label").String(),
			Prompt: mode.Get("prompt").String(),
		})
	}

	summary := parsed.Get("summary").String()
	if summary == "" {
		summary = "Step plan rewritten."
	}

	return drafts, summary, nil
}

var (
	leadingOrdinalRe = regexp.MustCompile(`(?i)^\s*(?:step\s*)?\d+\s*[.):\-]?\s*`)
	markupRe         = regexp.MustCompile("[*_`#>]+")
)

// NormalizeSteps validates drafts and produces the final plan:
// count within bounds, keys renumbered to a strictly sequential
// step1..stepN regardless of what came in, labels normalized to start
// with their ordinal, prompts stripped of markup and length-capped.
// Any violation fails the whole plan; there is no partial application.
func NormalizeSteps(drafts []StepDraft) ([]models.Step, error) {
	if len(drafts) < config.MinSteps || len(drafts) > config.MaxSteps {
		return nil, fmt.Errorf("plan must have between %d and %d steps, got %d",
			config.MinSteps, config.MaxSteps, len(drafts))
	}

	steps := make([]models.Step, 0, len(drafts))
	for i, d := range drafts {
		ordinal := i + 1

		label := strings.TrimSpace(markupRe.ReplaceAllString(d.Label, ""))
		label = leadingOrdinalRe.ReplaceAllString(label, "")
		label = truncateRunes(label, config.MaxStepLabelLength-4)

		prompt := strings.TrimSpace(markupRe.ReplaceAllString(d.Prompt, ""))
		prompt = truncateRunes(prompt, config.MaxStepInstructionLength)

		draft := StepDraft{Key: fmt.Sprintf("step%d", ordinal), Label: label, Prompt: prompt}
		if err := draft.Validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", ordinal, err)
		}

		steps = append(steps, models.Step{
			ID:          uuid.NewString(),
			Key:         draft.Key,
			Label:       fmt.Sprintf("%d. %s", ordinal, label),
			Instruction: prompt,
			Position:    ordinal,
		})
	}

	return steps, nil
}

// truncateRunes caps s at max runes. Cutting by rune keeps the cap in
// the same units ozzo's Length validator counts and never splits a
// multi-byte character into invalid UTF-8.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}

func stepsToDraftJSON(steps []models.Step) []map[string]string {
	out := make([]map[string]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, map[string]string{
			"key":    s.Key,
			"label":  s.Label,
			"prompt": s.Instruction,
		})
	}
	return out
}
