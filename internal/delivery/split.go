package delivery

import (
	"strings"
	"unicode/utf8"
)

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// splitSentences cuts text into sentence units. A unit runs up to and
// including a run of terminal punctuation; text after the last terminal mark
// is a unit of its own. Whitespace between sentences stays at the front of
// the following unit so that concatenating all units yields the input.
func splitSentences(text string) []string {
	var units []string
	start := 0
	inTerminal := false
	for i, r := range text {
		if isTerminal(r) {
			inTerminal = true
			continue
		}
		if inTerminal {
			units = append(units, text[start:i])
			start = i
			inTerminal = false
		}
	}
	if start < len(text) {
		units = append(units, text[start:])
	}
	return units
}

// SplitNaturally packs sentence units greedily into chunks of at most
// maxChars characters. A unit that alone exceeds maxChars becomes its own
// chunk and is never cut mid-sentence. Returned chunks are trimmed and
// non-empty.
func SplitNaturally(text string, maxChars int) []string {
	var chunks []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if c := strings.TrimSpace(current.String()); c != "" {
			chunks = append(chunks, c)
		}
		current.Reset()
		currentLen = 0
	}

	for _, unit := range splitSentences(text) {
		n := utf8.RuneCountInString(unit)
		if currentLen+n > maxChars && currentLen > 0 {
			flush()
		}
		current.WriteString(unit)
		currentLen += n
	}
	flush()
	return chunks
}
