package models

import (
	"time"
)

// Journey status values.
const (
	JourneyActive    = "active"
	JourneyCompleted = "completed"
	JourneyCancelled = "cancelled"
)

// SurgicalJourney is the aggregate root for one surgical episode
// (surgical_journeys table). One journey per active case; created when
// an operation is first scheduled or the patient is first tracked,
// completed on PACU arrival or cancellation, retained afterwards for
// audit.
type SurgicalJourney struct {
	JourneyID               string              `json:"journey_id" db:"journey_id"`
	CaseID                  string              `json:"case_id" db:"case_id"`
	PatientID               string              `json:"patient_id" db:"patient_id"`
	Operation               *ScheduledOperation `json:"operation,omitempty"`
	CurrentLocationCode     string              `json:"current_location_code" db:"current_location_code"`
	CurrentLocation         LocationState       `json:"current_location" db:"current_location"`
	ProphylaxisOrdered      bool                `json:"prophylaxis_ordered" db:"prophylaxis_ordered"`
	ProphylaxisAdministered bool                `json:"prophylaxis_administered" db:"prophylaxis_administered"`
	TherapeuticAntibiotics  bool                `json:"therapeutic_antibiotics" db:"therapeutic_antibiotics"`
	Alerts                  AlertFlags          `json:"alerts"`
	Excluded                bool                `json:"excluded" db:"excluded"`
	ExclusionReason         *string             `json:"exclusion_reason,omitempty" db:"exclusion_reason"`
	Status                  string              `json:"status" db:"status"`
	CreatedAt               time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time           `json:"updated_at" db:"updated_at"`
	CompletedAt             *time.Time          `json:"completed_at,omitempty" db:"completed_at"`
}

// ProphylaxisStatus is the point-in-time antibiotic picture for a
// journey, refreshed from the clinical-order interface.
type ProphylaxisStatus struct {
	OrderExists       bool     `json:"order_exists"`
	Administered      bool     `json:"administered"`
	TherapeuticActive bool     `json:"therapeutic_active"`
	OrderedAgents     []string `json:"ordered_agents,omitempty"`
}
