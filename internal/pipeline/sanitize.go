package pipeline

import "strings"

// markupReplacer drops markdown decoration that synthesis engines read out
// loud ("asterisk asterisk hello asterisk asterisk").
var markupReplacer = strings.NewReplacer(
	"*", "",
	"_", " ",
	"`", "",
	"#", "",
	"~", "",
)

// sanitizeReply normalises a generated reply for speech synthesis: markup
// characters are stripped, whitespace runs (including newlines) collapse to
// single spaces, and the result is truncated to maxChars runes. Truncation
// prefers the last sentence boundary before the limit and falls back to the
// last word boundary, so the spoken clip never stops mid-word.
//
// maxChars <= 0 disables truncation.
func sanitizeReply(reply string, maxChars int) string {
	s := markupReplacer.Replace(reply)
	s = strings.Join(strings.Fields(s), " ")
	if maxChars <= 0 {
		return s
	}

	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	runes = runes[:maxChars]

	// Prefer cutting after the last complete sentence.
	if i := lastSentenceEnd(runes); i > 0 {
		return strings.TrimSpace(string(runes[:i+1]))
	}
	// Otherwise cut at the last word boundary.
	if i := strings.LastIndexByte(string(runes), ' '); i > 0 {
		return strings.TrimSpace(string(runes)[:i])
	}
	return strings.TrimSpace(string(runes))
}

// lastSentenceEnd returns the index of the last sentence-terminating rune,
// or -1 when none exists.
func lastSentenceEnd(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		switch runes[i] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}
