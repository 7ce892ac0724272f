package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/roster-cli/internal/model"
)

func sharma() model.DoctorRecord {
	return model.DoctorRecord{
		HospitalName:   "Gowri Gopal Hospital",
		Address:        "Kurnool",
		DoctorName:     "Dr. S Sharma",
		Specialization: "Cardiology",
		Qualification:  "MBBS, MD",
		PhoneNumber:    "9876543210",
		LicenseNumber:  "AP-1234",
	}
}

func TestCompare_NotFound(t *testing.T) {
	doc := sharma()
	got := Compare(doc, []model.ScrapedDoctor{{FullName: "Dr. K Reddy"}})

	assert.Equal(t, model.StatusNeedsReview, got.Status)
	assert.Equal(t, "Doctor 'Dr. S Sharma' not found on hospital website", got.Reason)
	assert.Equal(t, doc, got.DoctorRecord)
}

func TestCompare_NotFoundEmptyListing(t *testing.T) {
	got := Compare(sharma(), nil)
	assert.Equal(t, model.StatusNeedsReview, got.Status)
}

func TestCompare_AllMatchAfterNormalization(t *testing.T) {
	got := Compare(sharma(), []model.ScrapedDoctor{{
		FullName:       "Sharma, S.",
		Specialization: "cardiology",
		Qualification:  "M.B.B.S. M.D.",
		PhoneNumber:    "+91 98765 43210",
	}})

	assert.Equal(t, model.StatusVerified, got.Status)
	assert.Equal(t, ReasonAllMatch, got.Reason)
	assert.Equal(t, "9876543210", got.PhoneNumber)
}

func TestCompare_EmptySidesAreVacuousMatches(t *testing.T) {
	doc := sharma()
	doc.Qualification = ""
	got := Compare(doc, []model.ScrapedDoctor{{
		FullName:       "S Sharma",
		Specialization: "",
		Qualification:  "DM Cardiology",
		PhoneNumber:    "9876543210",
	}})

	assert.Equal(t, model.StatusVerified, got.Status)
	assert.Equal(t, "", got.Qualification)
}

func TestCompare_SinglePhoneUpdate(t *testing.T) {
	got := Compare(sharma(), []model.ScrapedDoctor{{
		FullName:       "Dr. Suresh Sharma",
		Specialization: "Cardiology",
		Qualification:  "MBBS MD",
		PhoneNumber:    "9000000000",
	}})

	assert.Equal(t, model.StatusUpdated, got.Status)
	assert.Equal(t, "Updated: phone [9876543210 → 9000000000]", got.Reason)
	assert.Equal(t, "9000000000", got.PhoneNumber)
	assert.Equal(t, "Cardiology", got.Specialization)
	assert.Equal(t, "MBBS, MD", got.Qualification)
}

func TestCompare_MultipleUpdatesInFieldOrder(t *testing.T) {
	got := Compare(sharma(), []model.ScrapedDoctor{{
		FullName:       "S Sharma",
		Specialization: "Interventional Cardiology",
		Qualification:  "MBBS, MD, DM",
		PhoneNumber:    "08518-222333",
	}})

	assert.Equal(t, model.StatusUpdated, got.Status)
	assert.Equal(t,
		"Updated: phone [9876543210 → 08518-222333], "+
			"specialization [Cardiology → Interventional Cardiology], "+
			"qualification [MBBS, MD → MBBS, MD, DM]",
		got.Reason)
	assert.Equal(t, "08518-222333", got.PhoneNumber)
	assert.Equal(t, "Interventional Cardiology", got.Specialization)
	assert.Equal(t, "MBBS, MD, DM", got.Qualification)
	assert.Equal(t, "AP-1234", got.LicenseNumber)
}

func TestCompare_FirstMatchWins(t *testing.T) {
	got := Compare(sharma(), []model.ScrapedDoctor{
		{FullName: "Dr. S. Sharma", PhoneNumber: "1111111111"},
		{FullName: "Dr. S Sharma", PhoneNumber: "9876543210"},
	})

	assert.Equal(t, model.StatusUpdated, got.Status)
	assert.Equal(t, "1111111111", got.PhoneNumber)
}

func TestCompare_Idempotent(t *testing.T) {
	scraped := []model.ScrapedDoctor{{
		FullName:       "S Sharma",
		Specialization: "Neurology",
		Qualification:  "MBBS",
		PhoneNumber:    "9000000000",
	}}

	first := Compare(sharma(), scraped)
	second := Compare(sharma(), scraped)
	assert.Equal(t, first, second)

	// Feeding the updated record back finds nothing left to change.
	again := Compare(first.DoctorRecord, scraped)
	assert.Equal(t, model.StatusVerified, again.Status)
}

func TestCompare_DoesNotMutateInput(t *testing.T) {
	doc := sharma()
	scraped := []model.ScrapedDoctor{{FullName: "S Sharma", PhoneNumber: "9000000000"}}

	_ = Compare(doc, scraped)

	assert.Equal(t, sharma(), doc)
}

func TestCompareWithConfidence(t *testing.T) {
	got := CompareWithConfidence(sharma(), []model.ScrapedDoctor{{FullName: "S Sharma"}}, 83.3)

	assert.Equal(t, model.StatusVerified, got.Status)
	assert.InDelta(t, 83.3, got.ConfidenceScore, 1e-9)
}
