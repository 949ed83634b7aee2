package evaluation

import (
	"regexp"
	"strconv"

	"github.com/salvador2999/missions/internal/policy"
)

// Patterns are tried in order, most specific first. A match whose value is
// out of range is skipped so a later pattern may still apply.
var (
	scorePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\*\*Pontuação:\*\*\s*(\d+)\s*/\s*200`),
		regexp.MustCompile(`(?i)Pontuação:\s*(\d+)\s*/\s*200`),
		regexp.MustCompile(`(\d+)/200\b`),
	}
	elementPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\*\*Elementos válidos:\*\*\s*(\d+)\s*/\s*5\b`),
		regexp.MustCompile(`(?i)Elementos válidos:\s*(\d+)\s*/\s*5\b`),
		regexp.MustCompile(`(\d+)/5\b`),
	}
)

// ExtractScore returns the score stated in text, or nil when none is found.
// A nil result means "unknown", which is distinct from a zero score.
func ExtractScore(text string) *int {
	return extract(text, scorePatterns, policy.MaxScore)
}

// ExtractElements returns the valid element count stated in text, or nil.
func ExtractElements(text string) *int {
	return extract(text, elementPatterns, policy.MaxElements)
}

func extract(text string, patterns []*regexp.Regexp, max int) *int {
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 0 || n > max {
				continue
			}
			return &n
		}
	}
	return nil
}
