// internal/dialogue/parameter-extractor/patterns.go
package parameterextractor

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	minYear = 1900
	maxYear = 2100
)

var (
	quotedPattern   = regexp.MustCompile(`"([^"]{10,})"|“([^”]{10,})”`)
	textTailPattern = regexp.MustCompile(`(?is)\b(?:text|document)\s*:\s*(.+)$`)
	filePattern     = regexp.MustCompile(`(?i)[\p{L}\p{N}_\-.]+\.(?:pdf|txt|docx|csv|md)\b`)

	unitPattern    = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:m|meters?|metres?)\b`)
	decimalPattern = regexp.MustCompile(`(?:^|[^\d.])(\d+\.\d+)\b`)
	numberPattern  = regexp.MustCompile(`\d+(?:\.\d+)?`)

	betweenPattern   = regexp.MustCompile(`(?i)\bbetween\s+(\d{4})\s+and\s+(\d{4})\b`)
	rangePattern     = regexp.MustCompile(`(?i)\b(?:from\s+)?(\d{4})\s*(?:-|–|to|until|through)\s*(\d{4})\b`)
	startYearPattern = regexp.MustCompile(`(?i)\bstart(?:ing)?[\s_]+year\s*(?:of|is|:|=)?\s*(\d{4})\b`)
	endYearPattern   = regexp.MustCompile(`(?i)\bend(?:ing)?[\s_]+year\s*(?:of|is|:|=)?\s*(\d{4})\b`)
	yearKeyPattern   = regexp.MustCompile(`(?i)\byear\s*(?:of|is|:|=|to)?\s*(\d{4})\b`)
	yearPattern      = regexp.MustCompile(`\b(\d{4})\b`)

	placePattern = regexp.MustCompile(`\b(?:for|in|at|near|around|of)\s+(\p{Lu}[\p{L}'\-]*(?:\s+\p{Lu}[\p{L}'\-]*){0,3})`)

	fillerPrefix = regexp.MustCompile(`(?i)^(?:(?:no|nope|actually|sorry|ok|okay|then|instead|make it|change it to|change to|set it to|use|let's do|lets do|how about|what about|try)\b[\s,.:!\-]*)+`)
	fillerSuffix = regexp.MustCompile(`(?i)(?:[\s,]+(?:instead|please|then|thanks|thank you))*[\s.!?]*$`)
)

// analysisWords start phrases that look like places but name an analysis.
var analysisWords = map[string]bool{
	"sea": true, "level": true, "rise": true, "urban": true, "development": true,
	"infrastructure": true, "population": true, "exposure": true, "topic": true,
	"topics": true, "modeling": true, "modelling": true, "analysis": true,
	"risk": true, "flood": true, "flooding": true, "growth": true,
}

// keyedPattern matches "<name> [of|is|at|to|:|=] <number>", with underscores
// in the name matching spaces.
func keyedPattern(name string) *regexp.Regexp {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)\b` + strings.Join(parts, `[\s_]+`) + `\s*(?:of|is|at|to|:|=)?\s*(\d+(?:\.\d+)?)\b`)
}

// countPattern matches "<number> <noun>" for count parameters named n_<noun>.
func countPattern(name string) *regexp.Regexp {
	noun := strings.TrimSuffix(strings.TrimPrefix(name, "n_"), "s")
	return regexp.MustCompile(`(?i)\b(\d{1,4})\s+` + regexp.QuoteMeta(noun) + `s?\b`)
}

// enumPattern matches an enum value, capturing a keyword that introduces it.
func enumPattern(value string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:\b(using|use|with|via|method)\s*[:=]?\s*)?\b` + regexp.QuoteMeta(value) + `\b`)
}

func parseYear(s string) (int, bool) {
	y, err := strconv.Atoi(s)
	if err != nil || y < minYear || y > maxYear {
		return 0, false
	}
	return y, true
}

// coreOf strips conversational filler so "no, 2018 instead" reduces to "2018".
func coreOf(utterance string) string {
	c := strings.TrimSpace(utterance)
	c = fillerPrefix.ReplaceAllString(c, "")
	c = fillerSuffix.ReplaceAllString(c, "")
	return strings.TrimSpace(c)
}

// normalizeWords lower-cases s and collapses everything but letters and
// digits to single spaces.
func normalizeWords(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevSpace = false
			continue
		}
		if !prevSpace {
			b.WriteByte(' ')
			prevSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
