package normalize

import (
	"strings"
	"unicode"
)

func isSeparator(r rune) bool {
	switch r {
	case '-', '.', '(', ')', '/':
		return true
	}
	return unicode.IsSpace(r)
}

// StripSeparators removes phone separator characters (whitespace, '-', '.',
// '(', ')', '/') from v.
func StripSeparators(v string) string {
	return strings.Map(func(r rune) rune {
		if isSeparator(r) {
			return -1
		}
		return r
	}, v)
}

// DigitCount returns the number of ASCII digits left in v after separator
// removal.
func DigitCount(v string) int {
	n := 0
	for _, r := range StripSeparators(v) {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// FormatPhone rewrites v as AAA-BBB-CCCC when exactly ten digits remain after
// separator removal. Any other value is returned unchanged with ok=false.
func FormatPhone(v string) (string, bool) {
	s := StripSeparators(v)
	if len(s) != 10 {
		return v, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return v, false
		}
	}
	return s[:3] + "-" + s[3:6] + "-" + s[6:], true
}
