package models

import (
	"time"
)

// Trigger is a named point in the countdown to a scheduled operation.
type Trigger string

const (
	TriggerT24 Trigger = "T24" // ~24 hours before incision
	TriggerT2  Trigger = "T2"  // ~2 hours before incision
	TriggerT60 Trigger = "T60" // ~60 minutes before incision
	TriggerT0  Trigger = "T0"  // incision window
)

// AllTriggers in countdown order.
var AllTriggers = []Trigger{TriggerT24, TriggerT2, TriggerT60, TriggerT0}

// AlertFlags tracks which trigger alerts have fired for one case.
// Each flag transitions false→true exactly once.
type AlertFlags struct {
	T24Sent bool `json:"t24_sent" db:"t24_sent"`
	T2Sent  bool `json:"t2_sent" db:"t2_sent"`
	T60Sent bool `json:"t60_sent" db:"t60_sent"`
	T0Sent  bool `json:"t0_sent" db:"t0_sent"`
}

// Sent reports whether the alert for the given trigger has already fired.
func (f *AlertFlags) Sent(trigger Trigger) bool {
	switch trigger {
	case TriggerT24:
		return f.T24Sent
	case TriggerT2:
		return f.T2Sent
	case TriggerT60:
		return f.T60Sent
	case TriggerT0:
		return f.T0Sent
	}
	return false
}

// MarkSent sets the flag for the given trigger. Flags are never cleared.
func (f *AlertFlags) MarkSent(trigger Trigger) {
	switch trigger {
	case TriggerT24:
		f.T24Sent = true
	case TriggerT2:
		f.T2Sent = true
	case TriggerT60:
		f.T60Sent = true
	case TriggerT0:
		f.T0Sent = true
	}
}

// ScheduledOperation is one upcoming (or recently past) surgical case,
// normalized from booking-system polls and SIU/ORM messages.
type ScheduledOperation struct {
	CaseID                  string     `json:"case_id" db:"case_id"`
	PatientID               string     `json:"patient_id" db:"patient_id"`
	ProcedureCodes          []string   `json:"procedure_codes" db:"procedure_codes"`
	ProcedureDescription    string     `json:"procedure_description" db:"procedure_description"`
	ScheduledTime           time.Time  `json:"scheduled_time" db:"scheduled_time"`
	Location                string     `json:"location" db:"location"`
	Surgeon                 string     `json:"surgeon" db:"surgeon"`
	Emergency               bool       `json:"emergency" db:"emergency"`
	ProphylaxisOrdered      bool       `json:"prophylaxis_ordered" db:"prophylaxis_ordered"`
	ProphylaxisAdministered bool       `json:"prophylaxis_administered" db:"prophylaxis_administered"`
	Alerts                  AlertFlags `json:"alerts"`
	JourneyID               string     `json:"journey_id" db:"journey_id"`
	CreatedAt               time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at" db:"updated_at"`
}

// MinutesUntil returns whole minutes from now until the scheduled time
// (negative once the scheduled time has passed).
func (op *ScheduledOperation) MinutesUntil(now time.Time) float64 {
	return op.ScheduledTime.Sub(now).Minutes()
}
