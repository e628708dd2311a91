package retriever

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const excerptLimit = 200

// calculationRe matches arithmetic expressions: numbers joined by
// + - × x *, optionally followed by "= number".
var calculationRe = regexp.MustCompile(`\d+(?:[.,]\d+)?(?:\s*[+\-×x*]\s*\d+(?:[.,]\d+)?)+(?:\s*=\s*\d+(?:[.,]\d+)?)?`)

// areaRe matches area measurements: a number followed by an area-unit
// token, case-insensitive.
var areaRe = regexp.MustCompile(`(?i)\d+(?:[.,]\d+)?\s*(?:m²|m2|qm|quadratmeter[ns]?|square\s*met(?:er|re)s?)`)

// DetectCalculations extracts arithmetic expressions from text. Legal
// passages that show the actual computation are the strongest evidence
// for numeric answers, so matches are surfaced on citations.
func DetectCalculations(text string) []string {
	return dedupeMatches(calculationRe.FindAllString(text, -1))
}

// DetectAreaMeasurements extracts area figures like "100 m²" from text.
func DetectAreaMeasurements(text string) []string {
	return dedupeMatches(areaRe.FindAllString(text, -1))
}

func dedupeMatches(matches []string) []string {
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var result []string
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		result = append(result, m)
	}
	return result
}

// excerpt bounds chunk text for display, cutting on a word boundary.
func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= excerptLimit {
		return text
	}
	cut := text[:excerptLimit-3]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	if i := strings.LastIndex(cut, " "); i > excerptLimit/2 {
		cut = cut[:i]
	}
	return cut + "..."
}
