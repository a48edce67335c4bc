package ai

import (
	"fmt"
	"strings"
)

// learningContextHeader labels injected cross-conversation notes inside
// the system prompt. The exact wording is part of the prompt contract;
// changing it changes model behavior.
const learningContextHeader = "LEARNING CONTEXT FROM PREVIOUS DISCUSSIONS:"

// ComposeSystemPrompt assembles the final system prompt. Concatenation
// order is fixed for reproducibility:
//
//	base -> archetype constraint -> archetype style -> archetype length -> learning context
//
// Missing inputs omit their clause; this function has no failure mode.
func ComposeSystemPrompt(basePrompt string, archetype *Archetype, learningContext string) string {
	var parts []string

	if basePrompt != "" {
		parts = append(parts, basePrompt)
	}

	if archetype != nil {
		if archetype.Constraint != "" {
			parts = append(parts, archetype.Constraint)
		}
		if archetype.Style != "" {
			parts = append(parts, archetype.Style)
		}
		if archetype.MinWords > 0 && archetype.MaxWords >= archetype.MinWords {
			parts = append(parts, fmt.Sprintf("Aim for %d-%d words.", archetype.MinWords, archetype.MaxWords))
		}
	}

	if learningContext != "" {
		parts = append(parts, learningContextHeader+"\n"+learningContext)
	}

	return strings.Join(parts, "\n\n")
}
