package ai

import (
	"studyroom/internal/domain/models"
)

// SelectHistory returns the most recent maxPairs user+assistant pairs
// of a conversation, preserving order. Short conversations come back
// unmodified. The window never reorders turns and always contains the
// most recent one; truncation only ever removes from the oldest end.
//
// Older context isn't lost outright: it is carried forward in
// summarized form by the learning notes.
func SelectHistory(turns []models.Turn, maxPairs int) []models.Turn {
	if maxPairs <= 0 {
		return turns
	}

	limit := maxPairs * 2
	if len(turns) <= limit {
		return turns
	}

	window := turns[len(turns)-limit:]

	// Cutting mid-pair would open the window with an assistant reply
	// whose user message fell outside it. Drop that orphan so every
	// reply in the window has its prompt.
	if len(window) > 0 && window[0].Role == models.RoleAssistant {
		window = window[1:]
	}

	return window
}
