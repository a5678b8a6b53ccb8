package chunker

import (
	"strings"

	"github.com/dgallion1/groundtruth/internal/document"
)

// EstimateTokens gives a rough token count from the word count.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	// Roughly 0.75 words per token for English text.
	tokens := int(float64(words) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// TotalTokens sums the estimate across chunks.
func TotalTokens(chunks []document.Chunk) int {
	n := 0
	for _, c := range chunks {
		n += EstimateTokens(c.Content)
	}
	return n
}

// splitByParagraphs splits on blank lines.
func splitByParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
