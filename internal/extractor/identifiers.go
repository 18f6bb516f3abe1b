package extractor

import (
	"regexp"
	"strings"
)

// identifier families, evaluated in this order
var identifierPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bG[1-9][- ]?\d{3}\b`), // guest with cabin: G2 505, G2-505, G2505
	regexp.MustCompile(`\bG\d{3}\b`),           // cabin only: G505
	regexp.MustCompile(`\bP[1-9]\b`),           // owner / principal
	regexp.MustCompile(`\bC[1-9]\b`),           // child
}

// ExtractIdentifiers returns wristband / cabin codes found in text, in order
// of family then position, deduplicated.
func ExtractIdentifiers(text string) []string {
	if text == "" {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, re := range identifierPatterns {
		for _, m := range re.FindAllString(text, -1) {
			id := CollapseSpaces(m)
			if seen[id] || coveredBy(id, out) {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// coveredBy drops a cabin-only hit (G505) already present as part of a guest
// code (G2 505)
func coveredBy(id string, found []string) bool {
	if len(id) != 4 || id[0] != 'G' {
		return false
	}
	cabin := id[1:]
	for _, f := range found {
		if len(f) > 4 && strings.HasPrefix(f, "G") && strings.HasSuffix(f, cabin) {
			return true
		}
	}
	return false
}
