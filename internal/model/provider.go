package model

import "time"

// Provider is a persisted reconciliation result. One row exists per
// (hospital_name, address, doctor_name); later runs overwrite it.
type Provider struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	ReconciliationResult
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
