package embedding

import "strings"

// Truncation strategies for text longer than the configured maximum.
const (
	TruncateEnd    = "end"    // keep the first N characters (default)
	TruncateStart  = "start"  // keep the last N characters
	TruncateMiddle = "middle" // keep the first and last halves, drop the middle
)

// Preprocess collapses whitespace runs to single spaces, trims, and truncates
// to maxLen characters using the given strategy. Length is measured in runes
// so multi-byte text is never cut mid-character.
func Preprocess(text string, maxLen int, strategy string) string {
	text = strings.Join(strings.Fields(text), " ")
	return Truncate(text, maxLen, strategy)
}

// Truncate shortens text to maxLen runes. All strategies return exactly
// maxLen runes for longer inputs; shorter inputs pass through unchanged.
func Truncate(text string, maxLen int, strategy string) string {
	if maxLen <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}

	switch strategy {
	case TruncateStart:
		return string(runes[len(runes)-maxLen:])
	case TruncateMiddle:
		half := maxLen / 2
		// The suffix takes the remainder so the result is always maxLen runes.
		return string(runes[:half]) + string(runes[len(runes)-(maxLen-half):])
	default: // TruncateEnd
		return string(runes[:maxLen])
	}
}
