package retriever

import (
	"sort"
	"strings"
)

// termVariants maps domain terms to alternative phrasings used as
// additional sub-queries. Legal vocabulary differs between statutes and
// everyday questions, so literal similarity alone misses passages.
var termVariants = map[string][]string{
	"stellplatz":    {"Stellplatzverpflichtung Pflichtstellplätze Garage"},
	"parkplatz":     {"Stellplatzverpflichtung Pflichtstellplätze Garage"},
	"wohnfläche":    {"Wohnnutzfläche Nutzfläche Berechnung"},
	"nutzfläche":    {"Wohnnutzfläche Bruttogrundfläche Berechnung"},
	"barrierefrei":  {"barrierefreie Gestaltung Rampe Aufzug"},
	"abstand":       {"Abstandsflächen Bauplatz Grundgrenze"},
	"brandschutz":   {"Brandabschnitt Fluchtweg Feuerwiderstand"},
	"aufzug":        {"Personenaufzug Aufzugspflicht Geschosse"},
	"keller":        {"Kellergeschoss Belichtung Raumhöhe"},
	"dach":          {"Dachgeschoss Dachneigung Ausbau"},
	"bauklasse":     {"Bauklasse Gebäudehöhe Widmung"},
	"raumhöhe":      {"lichte Raumhöhe Aufenthaltsraum Mindesthöhe"},
}

// ExpandQuery returns variant queries for domain terms found in the
// user query. The original query is not included.
func ExpandQuery(query string) []string {
	lower := strings.ToLower(query)

	terms := make([]string, 0, len(termVariants))
	for term := range termVariants {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	seen := map[string]bool{}
	var variants []string
	for _, term := range terms {
		if !strings.Contains(lower, term) {
			continue
		}
		for _, alt := range termVariants[term] {
			if seen[alt] {
				continue
			}
			seen[alt] = true
			variants = append(variants, alt)
		}
	}
	return variants
}
