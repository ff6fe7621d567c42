package llm

import (
	"fmt"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// TokenBudget counts tokens with the GPT-4 encoding and trims prompts to fit.
// Claude and Gemini tokenize differently; the count is an approximation for them.
type TokenBudget struct {
	codec tokenizer.Codec
	limit int
}

// NewTokenBudget creates a budget of limit tokens.
func NewTokenBudget(limit int) (*TokenBudget, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenBudget{codec: codec, limit: limit}, nil
}

// Limit returns the configured token limit.
func (b *TokenBudget) Limit() int {
	return b.limit
}

// Count returns the number of tokens in text, estimating 4 chars per token on error.
func (b *TokenBudget) Count(text string) int {
	if b == nil || b.codec == nil {
		return len(text) / 4
	}
	count, err := b.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// Fits reports whether text is within the limit.
func (b *TokenBudget) Fits(text string) bool {
	return b.limit <= 0 || b.Count(text) <= b.limit
}

// Truncate cuts text to roughly limit tokens, proportionally by characters.
func (b *TokenBudget) Truncate(text string, limit int) string {
	current := b.Count(text)
	if limit <= 0 || current <= limit {
		return text
	}
	ratio := float64(limit) / float64(current)
	charLimit := int(float64(len(text)) * ratio * 0.9)
	if charLimit >= len(text) {
		return text
	}
	for charLimit > 0 && !utf8.RuneStart(text[charLimit]) {
		charLimit--
	}
	return text[:charLimit] + "\n... (truncated)"
}
