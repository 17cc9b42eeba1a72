package rbac

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// particles are French connectives ignored when comparing role names, so that
// "Chef de Site" and the configured identifier "chef-site" compare equal.
var particles = map[string]struct{}{
	"de": {}, "du": {}, "des": {}, "d": {},
	"la": {}, "le": {}, "les": {}, "l": {},
}

// Slugify normalises a role name into a comparison-stable identifier:
// case-folded, accents stripped, separators unified to "_" and connective
// particles dropped when other words remain.
func Slugify(name string) string {
	folded := strings.ToLower(stripMarks(name))
	words := strings.FieldsFunc(folded, isSeparator)
	if len(words) == 0 {
		return ""
	}
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := particles[w]; ok {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		kept = words
	}
	return strings.Join(kept, "_")
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isSeparator(r rune) bool {
	switch r {
	case '-', '_', '.', '/', '\'', '’':
		return true
	}
	return unicode.IsSpace(r)
}
