// Package textnorm canonicalizes free text and phone numbers for comparison.
package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	nonWord    = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)
	whitespace = regexp.MustCompile(`\s+`)
	nonDigit   = regexp.MustCompile(`[^0-9]+`)
)

// phoneDigits is the number of trailing digits kept from a phone number.
const phoneDigits = 10

// NormalizeText lowercases s, removes punctuation and collapses whitespace.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	n := Lower(strings.TrimSpace(s))
	n = nonWord.ReplaceAllString(n, "")
	n = whitespace.ReplaceAllString(n, " ")
	return strings.TrimSpace(n)
}

// NormalizePhone keeps only digits. Numbers longer than ten digits are cut to
// their last ten so country-code prefixes compare equal.
func NormalizePhone(s string) string {
	digits := nonDigit.ReplaceAllString(s, "")
	if len(digits) > phoneDigits {
		digits = digits[len(digits)-phoneDigits:]
	}
	return digits
}

// Lower lowercases s using Unicode case rules. A Caser is stateful, so each
// call builds its own.
func Lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// ReplacePunct replaces every run of punctuation in s with a single space.
func ReplacePunct(s string) string {
	return nonWord.ReplaceAllString(s, " ")
}

// CollapseSpace trims s and collapses internal whitespace to single spaces.
func CollapseSpace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
