package ai

import (
	"strings"
)

// Conversational intents the template fallback can answer. Detection is
// keyword-based and deliberately coarse; the fallback only has to be
// deterministic and non-empty, not clever.
const (
	IntentQuestion   = "question"
	IntentStuck      = "stuck"
	IntentSummary    = "summary"
	IntentGreeting   = "greeting"
	IntentContinue   = "continue"
	IntentDiscussion = "discussion"
)

// templateResponses is the static lookup table behind the terminal
// fallback state. Every entry is a complete, clearly-labeled substitute
// for an AI turn; none may be empty.
var templateResponses = map[string]string{
	IntentQuestion: "(The AI assistant is temporarily unavailable.) That's a question worth sitting with. " +
		"Try breaking it into smaller parts: what do you already know for certain, and which part is " +
		"actually uncertain? Write those down separately and tackle the uncertain part first. " +
		"When the assistant is back, bring the part that resisted.",
	IntentStuck: "(The AI assistant is temporarily unavailable.) Being stuck usually means the current " +
		"framing has run out, not that you have. Try restating the problem in one sentence as if " +
		"explaining it to someone new to the topic - the words you reach for often reveal the missing " +
		"piece. If that fails, step away from this step and skim the room's goal again.",
	IntentSummary: "(The AI assistant is temporarily unavailable.) For now, try summarizing yourself: " +
		"list the three points from this discussion you'd want to remember next week, each in one " +
		"sentence. A self-written summary tends to stick better than a generated one anyway.",
	IntentGreeting: "(The AI assistant is temporarily unavailable.) Hello! The assistant can't respond " +
		"properly right now, but your messages are saved and the conversation will pick up where you " +
		"left off. Feel free to write out your thoughts on this step in the meantime.",
	IntentContinue: "(The AI assistant is temporarily unavailable.) The previous reply can't be continued " +
		"right now. Your conversation is saved; try continuing again in a little while.",
	IntentDiscussion: "(The AI assistant is temporarily unavailable.) Your message is saved. While you " +
		"wait, consider writing down what response you'd expect - comparing it with the assistant's " +
		"later answer is a useful check on your own understanding.",
}

// TemplateFallback is the terminal state of the failover chain: a
// deterministic canned response keyed by conversational intent. It
// requires no network and cannot fail, which is what guarantees the
// response path never surfaces a raw provider error.
type TemplateFallback struct{}

// NewTemplateFallback creates the fallback.
func NewTemplateFallback() *TemplateFallback {
	return &TemplateFallback{}
}

// DetectIntent classifies the latest user message into one of the
// template intents. First match wins; anything unrecognized is treated
// as general discussion.
func (t *TemplateFallback) DetectIntent(lastUserMessage string) string {
	text := strings.ToLower(strings.TrimSpace(lastUserMessage))

	switch {
	case text == "" || hasAnyPrefix(text, "hi", "hello", "hey"):
		return IntentGreeting
	case strings.Contains(text, "continue"):
		return IntentContinue
	case strings.Contains(text, "stuck") || strings.Contains(text, "confused") || strings.Contains(text, "don't understand") || strings.Contains(text, "do not understand"):
		return IntentStuck
	case strings.Contains(text, "summar") || strings.Contains(text, "recap"):
		return IntentSummary
	case strings.Contains(text, "?") || hasAnyPrefix(text, "what", "why", "how", "when", "where", "who", "can ", "could ", "should "):
		return IntentQuestion
	default:
		return IntentDiscussion
	}
}

// Respond returns the canned response for an intent. Unknown intents
// get the discussion response; the return value is never empty.
func (t *TemplateFallback) Respond(intent string) string {
	if resp, ok := templateResponses[intent]; ok {
		return resp
	}
	return templateResponses[IntentDiscussion]
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
