package pipeline

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// WakeOption is a functional option for configuring a [WakeDetector].
type WakeOption func(*WakeDetector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched wake phrase to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) WakeOption {
	return func(d *WakeDetector) {
		d.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when the
// wake phrase does not match phonetically and the detector falls back to
// pure string similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) WakeOption {
	return func(d *WakeDetector) {
		d.fuzzyThreshold = threshold
	}
}

// WakeDetector decides whether a transcript is addressed to the assistant by
// matching its leading words against a configured wake phrase.
//
// Speech recognition rarely spells an invented name consistently
// ("Kalliope" comes back as "Calliope", "kali api", ...), so exact string
// comparison is useless here. The detector instead combines Double Metaphone
// phonetic encoding with Jaro-Winkler similarity: the transcript's leading
// tokens match when they share a phonetic code with the wake phrase and score
// above the phonetic threshold, or when pure string similarity alone exceeds
// the stricter fuzzy threshold.
//
// All methods are safe for concurrent use — the detector is read-only after
// construction.
type WakeDetector struct {
	phrase            string
	phraseTokens      []string
	phraseCodes       map[string]struct{}
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewWakeDetector returns a detector for the given wake phrase. Returns nil
// when phrase is blank, which callers treat as "wake filtering disabled".
func NewWakeDetector(phrase string, opts ...WakeOption) *WakeDetector {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(phrase)))
	if len(tokens) == 0 {
		return nil
	}
	d := &WakeDetector{
		phrase:            strings.Join(tokens, " "),
		phraseTokens:      tokens,
		phraseCodes:       codesForTokens(tokens),
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Strip reports whether transcript begins with the wake phrase and, if so,
// returns the remainder with the wake phrase removed. When the phrase does
// not match, the transcript is returned unchanged and matched is false.
func (d *WakeDetector) Strip(transcript string) (remainder string, matched bool) {
	fields := strings.Fields(transcript)
	n := len(d.phraseTokens)
	if len(fields) < n {
		return transcript, false
	}

	window := make([]string, n)
	for i, f := range fields[:n] {
		window[i] = strings.ToLower(strings.Trim(f, ".,!?;:\"'"))
	}
	windowJoined := strings.Join(window, " ")

	windowCodes := codesForTokens(window)
	phonetic := codesOverlap(windowCodes, d.phraseCodes)
	score := bestJWScore(window, d.phraseTokens, windowJoined, d.phrase)

	if phonetic && score >= d.phoneticThreshold {
		matched = true
	} else if score >= d.fuzzyThreshold {
		matched = true
	}
	if !matched {
		return transcript, false
	}
	return strings.Join(fields[n:], " "), true
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (produced when the word is too short or
// contains no consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	// Iterate over the smaller set for efficiency.
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the
// transcript window and the wake phrase using three strategies:
//
//  1. Full-string comparison ("kali api" vs "kalliope").
//  2. Space-stripped comparison ("kaliapi" vs "kalliope").
//  3. Best pairwise token comparison, for when one spoken word corresponds
//     to one phrase word.
func bestJWScore(inputTokens, phraseTokens []string, inputFull, phraseFull string) float64 {
	// Strategy 1: full strings.
	score := matchr.JaroWinkler(inputFull, phraseFull, false)

	// Strategy 2: concatenated (no spaces).
	if len(inputTokens) > 1 || len(phraseTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(phraseTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	// Strategy 3: best pairwise token score.
	for _, it := range inputTokens {
		for _, pt := range phraseTokens {
			if s := matchr.JaroWinkler(it, pt, false); s > score {
				score = s
			}
		}
	}

	return score
}
