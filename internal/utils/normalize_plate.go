package utils

import (
	"strings"
	"unicode"
)

// NormalizePlate strips everything but letters and digits and uppercases the
// rest, so the same physical plate reported as "ABC 123", "abc-123" or
// "ABC.123" keys the same deduplication window.
func NormalizePlate(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
