package models

const (
	EventPatientCreated = "patient_created"
	EventPatientUpdated = "patient_updated"
	EventPatientDeleted = "patient_deleted"
)

// PatientEvent is published on the patient_events topic after every
// confirmed write. Data carries only the ID and UserID for deletions.
type PatientEvent struct {
	Event string  `json:"event"`
	Data  Patient `json:"data"`
}
