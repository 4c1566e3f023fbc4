package plan

import (
	"strings"
	"unicode"

	"github.com/xxxsen/paperpilot/internal/chunker"
)

// EstimateComplexity scores a document's study effort on a 1..10 scale from
// its length, section structure and technical density. Recomputed whenever
// the document's text changes, so the scheduler always plans against the
// current content.
func EstimateComplexity(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 1
	}
	tokens := chunker.EstimateTokens(text)

	// length: a short note is 0, a long paper saturates at 4
	lengthScore := tokens / 1500
	if lengthScore > 4 {
		lengthScore = 4
	}

	sections := countSections(text)
	sectionScore := sections / 3
	if sectionScore > 3 {
		sectionScore = 3
	}

	densityScore := int(technicalDensity(text) * 10)
	if densityScore > 3 {
		densityScore = 3
	}

	score := 1 + lengthScore + sectionScore + densityScore
	if score > 10 {
		score = 10
	}
	return score
}

func countSections(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			n++
			continue
		}
		// numbered headings like "3. Results"
		if len(trimmed) > 2 && unicode.IsDigit(rune(trimmed[0])) && trimmed[1] == '.' &&
			len(strings.Fields(trimmed)) <= 8 {
			n++
		}
	}
	return n
}

// technicalDensity is the share of words that look like jargon: long terms,
// mixed alphanumerics, formulas.
func technicalDensity(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	technical := 0
	for _, w := range words {
		if isTechnicalWord(w) {
			technical++
		}
	}
	return float64(technical) / float64(len(words))
}

func isTechnicalWord(w string) bool {
	w = strings.Trim(w, ".,;:()[]{}\"'")
	if len(w) >= 12 {
		return true
	}
	hasLetter, hasDigit, hasSymbol := false, false, false
	for _, r := range w {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		case r == '=' || r == '+' || r == '^' || r == '_' || r == '\\' || r == '∑' || r == '∫':
			hasSymbol = true
		}
	}
	return (hasLetter && hasDigit) || hasSymbol
}
