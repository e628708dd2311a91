// Package metadata derives structural document metadata (authority tier,
// jurisdiction, title) from corpus filename and folder conventions.
package metadata

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

// Tier is a document's rank in the fixed legal-precedence order.
// Lower value means higher authority.
type Tier int

const (
	TierLawOrRegulation Tier = 1
	TierGuideline       Tier = 2
	TierStandard        Tier = 3
	TierUnknown         Tier = 4
)

func (t Tier) String() string {
	switch t {
	case TierLawOrRegulation:
		return "law_or_regulation"
	case TierGuideline:
		return "guideline"
	case TierStandard:
		return "standard"
	default:
		return "unknown"
	}
}

// Label returns the display form used in retrieval context and citations.
func (t Tier) Label() string {
	switch t {
	case TierLawOrRegulation:
		return "LAW/REGULATION (1_/2_) - HIGHEST PRIORITY"
	case TierGuideline:
		return "OIB GUIDELINE (3_) - SECOND PRIORITY"
	case TierStandard:
		return "ÖNORM STANDARD (4_) - LOWEST PRIORITY"
	default:
		return "UNKNOWN PRIORITY"
	}
}

// Jurisdiction is the governing region a document's rules apply to.
type Jurisdiction string

const (
	JurisdictionFederal      Jurisdiction = "federal"
	JurisdictionVienna       Jurisdiction = "vienna"
	JurisdictionUpperAustria Jurisdiction = "upper_austria"
	JurisdictionUnknown      Jurisdiction = "unknown"
)

// Info is the metadata derived for one document identity.
type Info struct {
	Tier         Tier
	Jurisdiction Jurisdiction
	Title        string
	Year         int
}

var (
	prefixRe = regexp.MustCompile(`^(\d+)_`)
	yearRe   = regexp.MustCompile(`_(\d{4})(?:\.[A-Za-z]+)?$`)
)

// Parse derives Info from a corpus-relative document path. It never fails:
// anything that does not match the naming convention comes back Unknown.
func Parse(identity string, rules Rules) Info {
	info := Info{
		Tier:         TierUnknown,
		Jurisdiction: JurisdictionUnknown,
	}

	filename := path.Base(identity)

	if m := prefixRe.FindStringSubmatch(filename); m != nil {
		if tier, ok := rules.TierPrefixes[m[1]]; ok {
			info.Tier = tier
		}
	}

	info.Jurisdiction = parseJurisdiction(identity, rules)
	info.Title, info.Year = parseTitle(filename)
	return info
}

// parseJurisdiction checks folder components (and the filename itself)
// for region markers. Vienna and Upper Austria markers win over the
// federal marker so that state-law subfolders of a federal tree resolve
// to the state.
func parseJurisdiction(identity string, rules Rules) Jurisdiction {
	lower := strings.ToLower(identity)
	for _, marker := range rules.ViennaMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return JurisdictionVienna
		}
	}
	for _, marker := range rules.UpperAustriaMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return JurisdictionUpperAustria
		}
	}
	for _, marker := range rules.FederalMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return JurisdictionFederal
		}
	}
	return JurisdictionUnknown
}

// parseTitle extracts a human-readable title and optional year from the
// conventional {prefix}_{codes...}_{Title_Words}_{year}.ext form. Best
// effort only; callers must tolerate an empty title and a zero year.
func parseTitle(filename string) (title string, year int) {
	name := filename
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	if m := yearRe.FindStringSubmatch(filename); m != nil {
		year, _ = strconv.Atoi(m[1])
		name = strings.TrimSuffix(name, "_"+m[1])
	}
	name = prefixRe.ReplaceAllString(name, "")

	// Skip leading short code segments (country/state/type markers) and
	// keep the remaining words as the title.
	parts := strings.Split(name, "_")
	start := 0
	for start < len(parts) && isCodeSegment(parts[start]) {
		start++
	}
	if start >= len(parts) {
		start = len(parts) - 1
	}
	if start >= 0 && start < len(parts) {
		title = strings.Join(parts[start:], " ")
	}
	return title, year
}

func isCodeSegment(s string) bool {
	if s == "" {
		return true
	}
	if len(s) > 4 {
		return false
	}
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return false
		}
	}
	return true
}
