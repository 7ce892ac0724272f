package location

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/sells-group/roster-cli/internal/textnorm"
)

// minAddressMatch is the share of query tokens (in percent) a candidate must
// contain to be accepted.
const minAddressMatch = 40.0

// minNameSimilarity is the similarity below which a found hospital name is
// rejected unless the two names share a token.
const minNameSimilarity = 0.5

var (
	postalCode    = regexp.MustCompile(`\b\d{6}\b`)
	tokenSplit    = regexp.MustCompile(`[^\p{L}\p{N}_]+`)
	facilityWords = regexp.MustCompile(`(?i)\b(hospital|clinic|medical|centre|center|institute|nursing)\b`)
)

var addressStopWords = map[string]bool{
	"hospital": true,
	"clinic":   true,
	"road":     true,
	"street":   true,
	"st":       true,
	"dr":       true,
	"doctor":   true,
	"lane":     true,
	"opp":      true,
	"near":     true,
	"beside":   true,
	"andhra":   true,
	"pradesh":  true,
	"india":    true,
}

var domesticKeywords = []string{
	"india", "andhra", "pradesh", "telangana", "delhi", "mumbai", "karnataka",
	"tamil", "nadu", "kerala", "bengaluru", "chennai", "hyderabad", "kurnool",
}

var medicalNameTerms = []string{
	"hospital", "clinic", "medical", "doctor", "dr.", "nursing", "scan", "lab", "pharmacy",
}

var medicalPlaceTypes = map[string]bool{
	"hospital":        true,
	"doctor":          true,
	"health":          true,
	"pharmacy":        true,
	"physiotherapist": true,
	"dentist":         true,
}

var healthCategoryCodes = map[string]bool{
	"LABRAD": true,
	"HSPGEN": true,
}

// IsDomestic reports whether the address mentions a region served by the
// domestic provider.
func IsDomestic(address string) bool {
	a := textnorm.Lower(address)
	for _, k := range domesticKeywords {
		if strings.Contains(a, k) {
			return true
		}
	}
	return false
}

// IsHealthcare reports whether a candidate looks like a medical facility,
// either by provider category or by its name.
func IsHealthcare(c Candidate) bool {
	for _, cat := range c.Categories {
		if strings.HasPrefix(cat, "HLT") || healthCategoryCodes[cat] || medicalPlaceTypes[cat] {
			return true
		}
	}
	name := textnorm.Lower(c.Name)
	for _, term := range medicalNameTerms {
		if strings.Contains(name, term) {
			return true
		}
	}
	return false
}

// StrictVerify checks a candidate against the search query. Differing
// six-digit postal codes reject outright. Otherwise the score is the percent
// of significant query tokens found in the candidate's name and address. A
// query with no significant tokens scores 100.
func StrictVerify(query, candidateName, candidateAddress string) (bool, float64) {
	q := textnorm.Lower(query)
	found := textnorm.Lower(candidateName + " " + candidateAddress)

	qPin := postalCode.FindString(q)
	fPin := postalCode.FindString(found)
	if qPin != "" && fPin != "" && qPin != fPin {
		return false, 0
	}

	tokens := significantTokens(q)
	if len(tokens) == 0 {
		return true, 100
	}

	matched := 0
	for _, tok := range tokens {
		if strings.Contains(found, tok) {
			matched++
		}
	}

	score := float64(matched) / float64(len(tokens)) * 100
	return score >= minAddressMatch, score
}

func significantTokens(s string) []string {
	var out []string
	for _, tok := range tokenSplit.Split(s, -1) {
		if utf8.RuneCountInString(tok) > 3 && !addressStopWords[tok] {
			out = append(out, tok)
		}
	}
	return out
}

// VerifyName compares the caller's hospital name with the name a provider
// returned, ignoring facility words such as "hospital" or "clinic". The names
// match when their sequence similarity reaches 0.5 or they share at least one
// token.
func VerifyName(expected, found string) bool {
	a, b := facilityKey(expected), facilityKey(found)
	return nameSimilarity(a, b) >= minNameSimilarity || sharedTokens(a, b) >= 1
}

// nameSimilarity is the matching-blocks ratio 2*M/T over the characters of a
// and b.
func nameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}

// FoundName returns the leading comma-separated part of a provider place name.
func FoundName(placeName string) string {
	name, _, _ := strings.Cut(placeName, ",")
	return strings.TrimSpace(name)
}

func facilityKey(name string) string {
	n := facilityWords.ReplaceAllString(name, "")
	n = textnorm.ReplacePunct(n)
	return textnorm.Lower(textnorm.CollapseSpace(n))
}

func sharedTokens(a, b string) int {
	seen := make(map[string]bool)
	for _, tok := range strings.Fields(a) {
		seen[tok] = true
	}
	shared := 0
	for _, tok := range strings.Fields(b) {
		if seen[tok] {
			shared++
			delete(seen, tok)
		}
	}
	return shared
}
