package ai

import (
	"math"
	"strings"
	"unicode"
)

// EstimateTokens approximates the token cost of text as words / 0.75
// (~1.33 tokens per word), rounded up. Deliberately crude: it backs a
// soft budget, not billing. Callers must not assume parity with any
// provider-side tokenizer.
func EstimateTokens(text string) int {
	words := CountWords(text)
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) / 0.75))
}

// CountWords counts the words in a markdown string. Markdown syntax is
// stripped first so formatting characters don't inflate the count.
func CountWords(markdown string) int {
	text := cleanMarkdown(markdown)

	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r)
	})

	count := 0
	for _, word := range words {
		if len(strings.TrimSpace(word)) > 0 {
			count++
		}
	}

	return count
}

func cleanMarkdown(markdown string) string {
	text := removeCodeBlocks(markdown)

	// Inline code and emphasis markers
	for _, marker := range []string{"`", "**", "*", "__", "_", "~~", "#"} {
		text = strings.ReplaceAll(text, marker, "")
	}

	// List markers and blockquotes, line by line
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimPrefix(line, "> ")
		if len(line) > 2 && unicode.IsDigit(rune(line[0])) && line[1] == '.' {
			line = line[2:]
		}
		cleaned = append(cleaned, line)
	}
	text = strings.Join(cleaned, " ")

	// Horizontal rules
	text = strings.ReplaceAll(text, "---", "")

	return text
}

func removeCodeBlocks(text string) string {
	for {
		start := strings.Index(text, "```")
		if start == -1 {
			break
		}
		end := strings.Index(text[start+3:], "```")
		if end == -1 {
			break
		}
		text = text[:start] + text[start+end+6:]
	}
	return text
}
