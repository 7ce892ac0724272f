// Package reconcile compares roster records with scraped listings and groups
// roster rows by hospital.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/sells-group/roster-cli/internal/identity"
	"github.com/sells-group/roster-cli/internal/model"
	"github.com/sells-group/roster-cli/internal/textnorm"
)

// ReasonAllMatch is the reason given when every compared field agrees.
const ReasonAllMatch = "All details match website data"

// NotFoundReason is the reason given when a doctor has no scraped counterpart.
func NotFoundReason(doctorName string) string {
	return fmt.Sprintf("Doctor '%s' not found on hospital website", doctorName)
}

// Compare classifies one roster record against a hospital's scraped listing.
// The first scraped entry whose name fuzzy-matches wins. A field matches when
// either side is empty or both normalize to the same value; mismatched fields
// with a usable scraped value are overwritten and listed in the reason.
func Compare(doctor model.DoctorRecord, scraped []model.ScrapedDoctor) model.ReconciliationResult {
	match, ok := findDoctor(doctor.DoctorName, scraped)
	if !ok {
		return model.ReconciliationResult{
			DoctorRecord: doctor,
			Status:       model.StatusNeedsReview,
			Reason:       NotFoundReason(doctor.DoctorName),
		}
	}

	result := model.ReconciliationResult{DoctorRecord: doctor}
	fields := []field{
		{"phone", doctor.PhoneNumber, match.PhoneNumber, textnorm.NormalizePhone, &result.PhoneNumber},
		{"specialization", doctor.Specialization, match.Specialization, textnorm.NormalizeText, &result.Specialization},
		{"qualification", doctor.Qualification, match.Qualification, textnorm.NormalizeText, &result.Qualification},
	}

	var changes []string
	for _, f := range fields {
		if f.matches() {
			continue
		}
		changes = append(changes, fmt.Sprintf("%s [%s → %s]", f.label, f.old, f.incoming))
		*f.target = f.incoming
	}

	if len(changes) == 0 {
		result.Status = model.StatusVerified
		result.Reason = ReasonAllMatch
		return result
	}
	result.Status = model.StatusUpdated
	result.Reason = "Updated: " + strings.Join(changes, ", ")
	return result
}

// CompareWithConfidence is Compare with the hospital's address confidence
// attached to the result.
func CompareWithConfidence(doctor model.DoctorRecord, scraped []model.ScrapedDoctor, confidence float64) model.ReconciliationResult {
	r := Compare(doctor, scraped)
	r.ConfidenceScore = confidence
	return r
}

func findDoctor(name string, scraped []model.ScrapedDoctor) (model.ScrapedDoctor, bool) {
	for _, s := range scraped {
		if identity.FuzzyNameMatch(name, s.FullName) {
			return s, true
		}
	}
	return model.ScrapedDoctor{}, false
}

type field struct {
	label    string
	old      string
	incoming string
	norm     func(string) string
	target   *string
}

// matches treats an empty side as agreement.
func (f field) matches() bool {
	a, b := f.norm(f.old), f.norm(f.incoming)
	return a == "" || b == "" || a == b
}
