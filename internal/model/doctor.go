// Package model defines the domain types shared by the reconciliation pipeline.
package model

// DoctorRecord is a single roster row as supplied by the caller.
type DoctorRecord struct {
	HospitalName   string `json:"hospital_name" yaml:"hospital_name"`
	Address        string `json:"address" yaml:"address"`
	DoctorName     string `json:"doctor_name" yaml:"doctor_name"`
	Specialization string `json:"specialization" yaml:"specialization"`
	Qualification  string `json:"qualification" yaml:"qualification"`
	PhoneNumber    string `json:"phone_number" yaml:"phone_number"`
	LicenseNumber  string `json:"license_number" yaml:"license_number"`
}

// HospitalKey identifies a hospital group. Values are the raw trimmed roster
// strings; two spellings of the same address form two groups.
type HospitalKey struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// HospitalGroup holds every roster row sharing a HospitalKey, in input order.
type HospitalGroup struct {
	Key     HospitalKey    `json:"key"`
	Doctors []DoctorRecord `json:"doctors"`
}

// ScrapedDoctor is a doctor listing returned by the scrape collaborator.
// Any field may be empty.
type ScrapedDoctor struct {
	FullName       string `json:"full_name" yaml:"full_name"`
	Specialization string `json:"specialization" yaml:"specialization"`
	Qualification  string `json:"qualification" yaml:"qualification"`
	PhoneNumber    string `json:"phone_number" yaml:"phone_number"`
}
