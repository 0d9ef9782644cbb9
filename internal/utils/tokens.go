package utils

import "strings"

// charsPerToken is the rough size of a model token in characters.
const charsPerToken = 4

// CountTokens estimates the tokens in text. Any non-empty text counts as at
// least one token.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return max(1, len([]rune(text))/charsPerToken)
}

// TruncateToTokenLimit cuts text to about limit tokens, backing up to the
// last line break when one falls in the second half of the kept text so
// tables are not cut mid-row.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	charLimit := limit * charsPerToken
	if charLimit >= len(runes) {
		return text
	}
	kept := string(runes[:charLimit])
	if i := strings.LastIndexByte(kept, '\n'); i >= len(kept)/2 {
		return kept[:i+1]
	}
	return kept
}
