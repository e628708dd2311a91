package metadata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules is the naming-convention table. It is configuration data so that
// new corpus naming schemes do not require code changes.
type Rules struct {
	// TierPrefixes maps the leading numeric filename prefix to a tier.
	TierPrefixes map[string]Tier `yaml:"-"`

	// Raw prefix form used for YAML round-tripping.
	TierPrefixNames map[string]string `yaml:"tier_prefixes"`

	ViennaMarkers       []string `yaml:"vienna_markers"`
	UpperAustriaMarkers []string `yaml:"upper_austria_markers"`
	FederalMarkers      []string `yaml:"federal_markers"`
}

// DefaultRules matches the corpus layout this service was built for:
// numbered authority prefixes and German region folder names.
func DefaultRules() Rules {
	return Rules{
		TierPrefixes: map[string]Tier{
			"1": TierLawOrRegulation,
			"2": TierLawOrRegulation,
			"3": TierGuideline,
			"4": TierStandard,
		},
		ViennaMarkers:       []string{"wien", "vienna"},
		UpperAustriaMarkers: []string{"oberösterreich", "oberoesterreich", "upper austria", "ooe"},
		FederalMarkers:      []string{"bundesgesetze", "bundes"},
	}
}

// LoadRules reads a YAML rules file and merges it over the defaults.
// Missing keys keep their default values.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read rules file: %w", err)
	}

	var loaded Rules
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return rules, fmt.Errorf("parse rules file: %w", err)
	}

	if len(loaded.TierPrefixNames) > 0 {
		prefixes := make(map[string]Tier, len(loaded.TierPrefixNames))
		for prefix, name := range loaded.TierPrefixNames {
			tier, err := tierFromName(name)
			if err != nil {
				return rules, fmt.Errorf("rules file: prefix %q: %w", prefix, err)
			}
			prefixes[prefix] = tier
		}
		rules.TierPrefixes = prefixes
	}
	if len(loaded.ViennaMarkers) > 0 {
		rules.ViennaMarkers = loaded.ViennaMarkers
	}
	if len(loaded.UpperAustriaMarkers) > 0 {
		rules.UpperAustriaMarkers = loaded.UpperAustriaMarkers
	}
	if len(loaded.FederalMarkers) > 0 {
		rules.FederalMarkers = loaded.FederalMarkers
	}
	return rules, nil
}

func tierFromName(name string) (Tier, error) {
	switch name {
	case "law_or_regulation":
		return TierLawOrRegulation, nil
	case "guideline":
		return TierGuideline, nil
	case "standard":
		return TierStandard, nil
	case "unknown":
		return TierUnknown, nil
	default:
		return TierUnknown, fmt.Errorf("unknown tier name %q", name)
	}
}
