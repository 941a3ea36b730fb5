package recognition

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// separator replaces consumed spans so that they cannot match again and do
// not join their neighbours into a new match.
const separator = "|"

// minRemainingLength is the amount of unconsumed text below which the
// dictionary pass is skipped.
const minRemainingLength = 5

const chunkDelimiters = ",;|/"

func normalize(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

func splitChunks(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(chunkDelimiters, r)
	})
	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks
}

func meaningfulLength(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(strings.ReplaceAll(s, separator, " ")))
}

// matchSubstrings runs the overlay pass then the dictionary pass over s,
// erasing each matched span. It returns the number of matches.
func (e *Engine) matchSubstrings(s string, c *compiledOverlay, emit func(string)) int {
	remaining := s
	matched := 0

	for i := range c.entries {
		entry := &c.entries[i]
		if !strings.Contains(remaining, entry.phrase) {
			continue
		}
		emit(entry.id)
		matched++
		remaining = strings.ReplaceAll(remaining, entry.phrase, separator)
	}

	if meaningfulLength(remaining) <= minRemainingLength {
		return matched
	}

	for _, key := range e.idx.Labels() {
		if !strings.Contains(remaining, key) {
			continue
		}
		id, _ := e.idx.IDFor(key)
		emit(id)
		matched++
		remaining = strings.ReplaceAll(remaining, key, separator)
	}
	return matched
}
