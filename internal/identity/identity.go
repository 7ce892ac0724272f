// Package identity decides whether two doctor names refer to the same person.
package identity

import (
	"strings"

	"github.com/sells-group/roster-cli/internal/textnorm"
)

// Tokens lowercases name, drops a leading "dr." or "dr " title, replaces
// punctuation with spaces and splits on whitespace.
func Tokens(name string) []string {
	t := strings.TrimSpace(textnorm.Lower(name))
	switch {
	case strings.HasPrefix(t, "dr."):
		t = t[len("dr."):]
	case strings.HasPrefix(t, "dr "):
		t = t[len("dr "):]
	}
	return strings.Fields(textnorm.ReplacePunct(t))
}

// FuzzyNameMatch reports whether a and b name the same doctor. Tokens are
// matched order-independently and a single-letter token matches any token it
// prefixes ("S" matches "Sharma").
//
// Every token of the shorter name is assigned, in order, to the first unused
// token of the longer name it matches. The assignment is greedy and never
// backtracks, so some ambiguous initial patterns fail to match even though an
// optimal assignment exists. Callers depend on that exact behavior.
func FuzzyNameMatch(a, b string) bool {
	if a == "" && b == "" {
		return true
	}
	if a == "" || b == "" {
		return false
	}

	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return false
	}

	reference, candidate := tb, ta
	if len(ta) > len(tb) {
		reference, candidate = ta, tb
	}

	used := make([]bool, len(reference))
	for _, c := range candidate {
		matched := false
		for i, r := range reference {
			if used[i] {
				continue
			}
			if tokenMatch(c, r) {
				used[i] = true
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// tokenMatch is exact equality or an initial that prefixes the other token.
func tokenMatch(a, b string) bool {
	if a == b {
		return true
	}
	if isInitial(a) && strings.HasPrefix(b, a) {
		return true
	}
	return isInitial(b) && strings.HasPrefix(a, b)
}

func isInitial(tok string) bool {
	return len([]rune(tok)) == 1
}
