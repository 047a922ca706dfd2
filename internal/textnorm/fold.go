// Package textnorm normalizes free text for matching.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold strips combining diacritics so patterns can be written in plain ASCII
// ("instalacao" matches "Instalação"). Case is left alone.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Key folds, trims and upper-cases s for case- and accent-insensitive lookups.
func Key(s string) string {
	return strings.ToUpper(strings.TrimSpace(Fold(s)))
}

// ContainsAny reports whether s contains any of the words, ignoring case and accents.
func ContainsAny(s string, words ...string) bool {
	k := Key(s)
	for _, w := range words {
		if w != "" && strings.Contains(k, Key(w)) {
			return true
		}
	}
	return false
}

// HasWord reports whether any of the words appears in s as a whole word,
// ignoring case and accents. Words are split on anything that is not a
// letter or digit.
func HasWord(s string, words ...string) bool {
	fields := strings.FieldsFunc(Key(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		k := Key(w)
		if k == "" {
			continue
		}
		for _, f := range fields {
			if f == k {
				return true
			}
		}
	}
	return false
}
