package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

var folder = cases.Fold()

// NameKey is the comparison key for person names: case-folded, diacritics
// removed, dashes treated as spaces and runs of whitespace collapsed.
// "  Anna-Marie  Nováková" and "anna marie novakova" share a key.
func NameKey(name string) string {
	name = RemoveDiacritics(name)
	name = folder.String(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// SameName reports whether two names refer to the same person.
func SameName(a, b string) bool {
	return NameKey(a) == NameKey(b)
}

// CleanName trims surrounding whitespace; stored names keep their case.
func CleanName(name string) string {
	return strings.TrimSpace(name)
}
