package models

import (
	"time"
)

// LocationState is the patient's position in the surgical pathway.
type LocationState string

const (
	LocationUnknown      LocationState = "UNKNOWN"
	LocationInpatient    LocationState = "INPATIENT"
	LocationPreOpHolding LocationState = "PRE_OP_HOLDING"
	LocationORSuite      LocationState = "OR_SUITE"
	LocationPACU         LocationState = "PACU"
	LocationDischarged   LocationState = "DISCHARGED"
)

// TransitionEvent names the pathway transitions the tracker emits.
type TransitionEvent string

const (
	TransitionNone            TransitionEvent = ""
	TransitionPreOpArrival    TransitionEvent = "preop_arrival"
	TransitionOREntry         TransitionEvent = "or_entry"
	TransitionRecoveryArrival TransitionEvent = "recovery_arrival"
	TransitionDischarge       TransitionEvent = "discharge"
)

// PatientLocationUpdate records one processed tracking message
// (append-only, location_history table).
type PatientLocationUpdate struct {
	PatientID         string          `json:"patient_id" db:"patient_id"`
	NewLocationCode   string          `json:"new_location_code" db:"new_location_code"`
	NewState          LocationState   `json:"new_state" db:"new_state"`
	PriorLocationCode string          `json:"prior_location_code" db:"prior_location_code"`
	PriorState        LocationState   `json:"prior_state" db:"prior_state"`
	Transition        TransitionEvent `json:"transition" db:"transition"`
	EventTime         time.Time       `json:"event_time" db:"event_time"`
	SourceMessageID   string          `json:"source_message_id" db:"source_message_id"`
}
