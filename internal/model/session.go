package model

import "time"

// SessionStatus is the lifecycle state of a persisted reconciliation session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// Session is the externally persisted view of a run.
type Session struct {
	ID                 string        `json:"session_id"`
	RosterPath         string        `json:"roster_path"`
	OutputPath         string        `json:"output_path"`
	Status             SessionStatus `json:"status"`
	TotalHospitals     int           `json:"total_hospitals"`
	CompletedHospitals int           `json:"completed_hospitals"`
	CurrentHospital    string        `json:"current_hospital"`
	StatusMessage      string        `json:"status_message"`
	Stats              RunStatistics `json:"stats"`
	Error              string        `json:"error,omitempty"`
	StartedAt          time.Time     `json:"started_at"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
}

// ProgressStatus tags a progress notification.
type ProgressStatus string

const (
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressError      ProgressStatus = "error"
)

// Progress is a single progress notification emitted by the pipeline.
type Progress struct {
	HospitalIndex  int                    `json:"hospital_index"`
	TotalHospitals int                    `json:"total_hospitals"`
	HospitalName   string                 `json:"hospital_name"`
	Status         ProgressStatus         `json:"status"`
	Results        []ReconciliationResult `json:"results,omitempty"`
	Stats          RunStatistics          `json:"stats"`
	Message        string                 `json:"message"`
}
