package models

import (
	"time"
)

// Severity of a compliance gap.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// ComplianceSnapshot is the point-in-time input the checker evaluated,
// stored with the result so every alert is auditable.
type ComplianceSnapshot struct {
	CaseID              string        `json:"case_id"`
	PatientID           string        `json:"patient_id"`
	ProcedureCodes      []string      `json:"procedure_codes,omitempty"`
	ScheduledTime       time.Time     `json:"scheduled_time"`
	MinutesUntilSurgery float64       `json:"minutes_until_surgery"`
	Location            LocationState `json:"location"`
	OrderExists         bool          `json:"order_exists"`
	Administered        bool          `json:"administered"`
	TherapeuticActive   bool          `json:"therapeutic_active"`
	Emergency           bool          `json:"emergency"`
}

// ComplianceCheckResult is one checker decision (compliance_checks
// table, append-only). Immutable once built.
type ComplianceCheckResult struct {
	CheckID        string             `json:"check_id" db:"check_id"`
	JourneyID      string             `json:"journey_id" db:"journey_id"`
	Trigger        Trigger            `json:"trigger" db:"trigger"`
	AlertRequired  bool               `json:"alert_required" db:"alert_required"`
	Severity       Severity           `json:"severity" db:"severity"`
	Recommendation string             `json:"recommendation" db:"recommendation"`
	Snapshot       ComplianceSnapshot `json:"snapshot"`
	CheckedAt      time.Time          `json:"checked_at" db:"checked_at"`
}
