package capture

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultStrippedTags are markup blocks removed from every captured turn.
var DefaultStrippedTags = []string{"system-reminder"}

// TruncationMarker is appended to assistant text cut at the budget.
const TruncationMarker = " …[truncated]"

var blankRuns = regexp.MustCompile(`\n{3,}`)

// tagBlockPattern matches <tag ...>...</tag> lazily across lines.
func tagBlockPattern(tag string) *regexp.Regexp {
	q := regexp.QuoteMeta(tag)
	return regexp.MustCompile(fmt.Sprintf(`(?s)<%s\b[^>]*>.*?</%s\s*>`, q, q))
}

// Sanitizer strips internal directive blocks from turn text.
type Sanitizer struct {
	patterns []*regexp.Regexp
}

// NewSanitizer returns a sanitizer for the default tags plus extra.
func NewSanitizer(extra ...string) *Sanitizer {
	seen := make(map[string]bool)
	s := &Sanitizer{}
	for _, tag := range append(append([]string{}, DefaultStrippedTags...), extra...) {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		s.patterns = append(s.patterns, tagBlockPattern(tag))
	}
	return s
}

// Clean removes tag blocks, collapses runs of blank lines and trims.
func (s *Sanitizer) Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, p := range s.patterns {
		text = p.ReplaceAllString(text, "")
	}
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

var defaultSanitizer = NewSanitizer()

// Sanitize cleans text with the default tag set.
func Sanitize(text string) string {
	return defaultSanitizer.Clean(text)
}

// Truncate cuts text to budget runes and appends TruncationMarker. Text within
// budget, or a non-positive budget, is returned unchanged.
func Truncate(text string, budget int) string {
	if budget <= 0 || utf8.RuneCountInString(text) <= budget {
		return text
	}
	runes := []rune(text)
	return strings.TrimRight(string(runes[:budget]), " \t\n") + TruncationMarker
}

// singleLine folds whitespace runs, including newlines, into single spaces.
func singleLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
