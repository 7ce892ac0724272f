package model

import (
	"github.com/twpayne/go-geom"
)

// Status is the per-doctor reconciliation verdict.
type Status string

const (
	StatusVerified    Status = "verified"
	StatusUpdated     Status = "updated details"
	StatusNeedsReview Status = "human verification needed"
)

// ReconciliationResult is the verdict for one roster row. Once emitted it is
// never mutated.
type ReconciliationResult struct {
	DoctorRecord
	Status          Status  `json:"status"`
	Reason          string  `json:"reason"`
	ConfidenceScore float64 `json:"confidence_score"`

	// Hospital coordinates, set only for verified hospitals.
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Point returns the hospital location as a WGS84 point, or nil when the
// result carries no coordinates.
func (r ReconciliationResult) Point() *geom.Point {
	if r.Latitude == nil || r.Longitude == nil {
		return nil
	}
	return NewPoint(*r.Latitude, *r.Longitude)
}

// SetPoint copies p's coordinates onto r. A nil or empty point clears them.
func (r *ReconciliationResult) SetPoint(p *geom.Point) {
	if p == nil || p.Empty() {
		r.Latitude, r.Longitude = nil, nil
		return
	}
	lat, lng := p.Y(), p.X()
	r.Latitude, r.Longitude = &lat, &lng
}

// OutputColumns is the fixed header of the tabular output sink.
var OutputColumns = []string{
	"hospital_name",
	"address",
	"doctor_name",
	"specialization",
	"qualification",
	"phone_number",
	"license_number",
	"status",
	"reason",
}

// Row renders the result in OutputColumns order.
func (r ReconciliationResult) Row() []string {
	return []string{
		r.HospitalName,
		r.Address,
		r.DoctorName,
		r.Specialization,
		r.Qualification,
		r.PhoneNumber,
		r.LicenseNumber,
		string(r.Status),
		r.Reason,
	}
}

// RunStatistics holds running totals for a reconciliation run.
type RunStatistics struct {
	TotalProcessed     int `json:"total_processed"`
	Verified           int `json:"verified"`
	Updated            int `json:"updated"`
	NeedsReview        int `json:"needs_review"`
	HospitalsCompleted int `json:"hospitals_completed"`
}

// Record adds a completed hospital's results to the totals.
func (s *RunStatistics) Record(results []ReconciliationResult) {
	for _, r := range results {
		s.TotalProcessed++
		switch r.Status {
		case StatusVerified:
			s.Verified++
		case StatusUpdated:
			s.Updated++
		default:
			s.NeedsReview++
		}
	}
	s.HospitalsCompleted++
}
