package model

import (
	"github.com/twpayne/go-geom"
)

// LocationVerdict is the outcome of resolving a hospital's identity against a
// geocoding provider. It is computed at most once per hospital group per run.
type LocationVerdict struct {
	Verified         bool    `json:"verified"`
	Source           string  `json:"source"`
	CanonicalName    string  `json:"canonical_name,omitempty"`
	CanonicalAddress string  `json:"canonical_address,omitempty"`
	ConfidenceScore  float64 `json:"confidence_score"`
	Error            string  `json:"error,omitempty"`

	// Point holds the provider's coordinates (SRID 4326) when it reported any.
	Point *geom.Point `json:"-"`
}

// Unverified builds a failed verdict with zero confidence.
func Unverified(source, reason string) LocationVerdict {
	return LocationVerdict{Verified: false, Source: source, Error: reason}
}

// Coordinates returns latitude and longitude, and false when no point is set.
func (v LocationVerdict) Coordinates() (lat, lng float64, ok bool) {
	if v.Point == nil || v.Point.Empty() {
		return 0, 0, false
	}
	return v.Point.Y(), v.Point.X(), true
}

// NewPoint builds a WGS84 point from latitude and longitude.
func NewPoint(lat, lng float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(4326)
}

// ScrapeOutcome is the collaborator's answer for one hospital.
type ScrapeOutcome struct {
	Verified               bool            `json:"verified" yaml:"verified"`
	HospitalName           string          `json:"hospital_name,omitempty" yaml:"hospital_name"`
	HospitalAddress        string          `json:"hospital_address,omitempty" yaml:"hospital_address"`
	Doctors                []ScrapedDoctor `json:"doctors,omitempty" yaml:"doctors"`
	AddressConfidenceScore float64         `json:"address_confidence_score" yaml:"address_confidence_score"`
	Source                 string          `json:"source,omitempty" yaml:"source"`
	Error                  string          `json:"error,omitempty" yaml:"error"`

	// Latitude and Longitude locate a verified hospital when the geocoder
	// reported coordinates.
	Latitude  *float64 `json:"latitude,omitempty" yaml:"latitude"`
	Longitude *float64 `json:"longitude,omitempty" yaml:"longitude"`
}
